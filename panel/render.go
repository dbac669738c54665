package panel

import (
	"fmt"
	"io"
	"sync"
)

// Renderer displays panel changes. Calls happen on the attempt goroutine.
type Renderer interface {
	RenderState(state State)
	RenderWallet(address string)
	// RenderResult shows r, or clears the result area when r is nil
	RenderResult(r *Result)
}

type noopRenderer struct{}

func (noopRenderer) RenderState(State)    {}
func (noopRenderer) RenderWallet(string)  {}
func (noopRenderer) RenderResult(*Result) {}

// WriterRenderer prints wallet changes and results to w
type WriterRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	Verbose bool
}

// NewWriterRenderer creates a renderer writing to w
func NewWriterRenderer(w io.Writer) *WriterRenderer {
	return &WriterRenderer{w: w}
}

func (r *WriterRenderer) RenderState(state State) {
	if !r.Verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "[%s]\n", state)
}

func (r *WriterRenderer) RenderWallet(address string) {
	if address == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "Wallet: %s\n", address)
}

func (r *WriterRenderer) RenderResult(result *Result) {
	if result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, result.Text())
}
