package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// SettlementStatus is the outcome of SettlementCache.Begin
type SettlementStatus int

const (
	// SettlementNew means the caller owns the settlement and must call Finish
	SettlementNew SettlementStatus = iota
	// SettlementDone means a previous settlement for the same payment succeeded
	SettlementDone
	// SettlementPending means another request is settling the same payment
	SettlementPending
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementNew:
		return "new"
	case SettlementDone:
		return "done"
	case SettlementPending:
		return "pending"
	default:
		return "unknown"
	}
}

type settlementEntry struct {
	response *SettleResponse
	expires  time.Time
	done     chan struct{}
}

// SettlementCache makes settle idempotent per payment. A signed Solana
// transaction can only land once, so a resubmitted payment must be answered
// with the original settlement instead of a second submit.
type SettlementCache struct {
	mu      sync.Mutex
	entries map[string]*settlementEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSettlementCache creates a cache keeping successful settlements for ttl
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		entries: make(map[string]*settlementEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SettlementKey derives the cache key for a payment payload.
// Only the scheme payload is hashed so v1 and v2 envelopes of the same
// transaction collide.
func SettlementKey(payload PaymentPayload) (string, error) {
	raw, err := json.Marshal(payload.Payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Begin claims key for settlement.
// SettlementDone returns the cached response. SettlementPending returns a
// channel closed when the owner finishes. SettlementNew marks the key pending.
func (c *SettlementCache) Begin(key string) (SettlementStatus, *SettleResponse, <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked()

	if entry, ok := c.entries[key]; ok {
		if entry.response != nil {
			return SettlementDone, entry.response, nil
		}
		return SettlementPending, nil, entry.done
	}

	c.entries[key] = &settlementEntry{done: make(chan struct{})}
	return SettlementNew, nil, nil
}

// Wait blocks until the pending settlement for key finishes and returns its
// response, or nil when it failed.
func (c *SettlementCache) Wait(ctx context.Context, key string, done <-chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.Lookup(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the cached successful settlement for key, if any
func (c *SettlementCache) Lookup(key string) *SettleResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.response == nil {
		return nil
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil
	}
	return entry.response
}

// Finish releases key. A successful response is cached for the ttl;
// a nil or failed response drops the entry so the payment may be retried.
func (c *SettlementCache) Finish(key string, response *SettleResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.response != nil {
		return
	}

	if response != nil && response.Success {
		entry.response = response
		entry.expires = c.now().Add(c.ttl)
	} else {
		delete(c.entries, key)
	}
	close(entry.done)
}

// Len reports the number of tracked payments
func (c *SettlementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SettlementCache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.response != nil && now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
}
