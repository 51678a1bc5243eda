package providers

import (
	"context"
	"sync"
)

// DynamicProvider wraps a Provider with atomic hot-swap support. In-flight
// requests finish on the old provider; new requests use the new one.
type DynamicProvider struct {
	mu    sync.RWMutex
	inner Provider
}

// NewDynamicProvider wraps the given provider.
func NewDynamicProvider(initial Provider) *DynamicProvider {
	return &DynamicProvider{inner: initial}
}

// Chat delegates to the current inner provider.
func (d *DynamicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	d.mu.RLock()
	p := d.inner
	d.mu.RUnlock()
	return p.Chat(ctx, req)
}

// DefaultModel delegates to the current inner provider.
func (d *DynamicProvider) DefaultModel() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.inner.DefaultModel()
}

// Swap atomically replaces the inner provider.
func (d *DynamicProvider) Swap(next Provider) {
	d.mu.Lock()
	d.inner = next
	d.mu.Unlock()
}
