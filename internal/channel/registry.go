package channel

import (
	"fmt"
	"sync"
)

// Registry holds the registered adapters and senders per channel type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Type]Adapter
	senders  map[Type]Sender
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[Type]Adapter),
		senders:  make(map[Type]Sender),
	}
}

// Register adds an adapter; if it also implements Sender it is registered for outbound too.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	channelType := adapter.Type()
	if _, exists := r.adapters[channelType]; exists {
		return fmt.Errorf("adapter already registered: %s", channelType)
	}
	r.adapters[channelType] = adapter
	if sender, ok := adapter.(Sender); ok {
		r.senders[channelType] = sender
	}
	return nil
}

// MustRegister registers an adapter and panics on conflict. Intended for wiring at startup.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// RegisterSender sets the outbound sender for a channel type, replacing any existing one.
func (r *Registry) RegisterSender(channelType Type, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channelType] = sender
}

// GetAdapter returns the adapter for a channel type.
func (r *Registry) GetAdapter(channelType Type) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[channelType]
	return adapter, ok
}

// GetSender returns the outbound sender for a channel type.
func (r *Registry) GetSender(channelType Type) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[channelType]
	return sender, ok
}
