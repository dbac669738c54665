package wallet

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/keyring"
	solana "github.com/gagliardetto/solana-go"
)

const keychainService = "paypanel"

// KeyStore stores base58 private keys by wallet name
type KeyStore interface {
	Store(name, privateKey string) error
	Retrieve(name string) (string, error)
	Delete(name string) error
	List() ([]string, error)
}

// Keystore wraps OS keychain access.
type Keystore struct {
	ring keyring.Keyring
}

// DefaultKeystore returns a keystore backed by the OS keychain. fileDir is
// used by the encrypted file backend when no keychain is reachable.
func DefaultKeystore(fileDir string, passphrase func(string) (string, error)) (*Keystore, error) {
	cfg := keyring.Config{
		ServiceName:              keychainService,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         passphrase,
	}

	// Headless Linux has no keychain daemon
	if runtime.GOOS == "linux" {
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		cfg.AllowedBackends = []keyring.BackendType{keyring.FileBackend}
		ring, err = keyring.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open keyring: %w", err)
		}
	}

	return &Keystore{ring: ring}, nil
}

func itemKey(name string) string {
	return keychainService + "." + name
}

// Store validates and saves a private key under name.
func (k *Keystore) Store(name, privateKey string) error {
	if err := validateKey(name, privateKey); err != nil {
		return err
	}
	err := k.ring.Set(keyring.Item{
		Key:         itemKey(name),
		Data:        []byte(privateKey),
		Label:       "paypanel wallet " + name,
		Description: "Solana private key",
	})
	if err != nil {
		return fmt.Errorf("keychain store: %w", err)
	}
	return nil
}

// Retrieve fetches the private key stored under name.
func (k *Keystore) Retrieve(name string) (string, error) {
	item, err := k.ring.Get(itemKey(name))
	if err != nil {
		return "", fmt.Errorf("keychain retrieve %s: %w", name, err)
	}
	return string(item.Data), nil
}

// Delete removes a stored key.
func (k *Keystore) Delete(name string) error {
	if err := k.ring.Remove(itemKey(name)); err != nil {
		return fmt.Errorf("keychain delete %s: %w", name, err)
	}
	return nil
}

// List returns the stored wallet names.
func (k *Keystore) List() ([]string, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("keychain list: %w", err)
	}
	return walletNames(keys), nil
}

// InMemoryKeystore stores keys in memory (for tests).
type InMemoryKeystore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewInMemoryKeystore creates an in-memory keystore.
func NewInMemoryKeystore() *InMemoryKeystore {
	return &InMemoryKeystore{data: make(map[string]string)}
}

func (k *InMemoryKeystore) Store(name, privateKey string) error {
	if err := validateKey(name, privateKey); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[itemKey(name)] = privateKey
	return nil
}

func (k *InMemoryKeystore) Retrieve(name string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[itemKey(name)]
	if !ok {
		return "", fmt.Errorf("key not found: %s", name)
	}
	return v, nil
}

func (k *InMemoryKeystore) Delete(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.data, itemKey(name))
	return nil
}

func (k *InMemoryKeystore) List() ([]string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	keys := make([]string, 0, len(k.data))
	for key := range k.data {
		keys = append(keys, key)
	}
	return walletNames(keys), nil
}

// LoadProvider builds a KeypairProvider from the key stored under name
func LoadProvider(store KeyStore, name string) (*KeypairProvider, error) {
	privateKey, err := store.Retrieve(name)
	if err != nil {
		return nil, err
	}
	return NewKeypairProviderFromBase58(privateKey)
}

func validateKey(name, privateKey string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("wallet name is required")
	}
	if _, err := solana.PrivateKeyFromBase58(privateKey); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	return nil
}

func walletNames(keys []string) []string {
	prefix := keychainService + "."
	var names []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			names = append(names, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(names)
	return names
}
