package channel

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Registry maps channel tags to adapter instances. It is assembled once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	adapters map[notification.Channel]Adapter
}

// NewRegistry creates a registry holding the given adapters, keyed by their
// own Channel tags.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[notification.Channel]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Channel()] = a
	}
	return r
}

// Get returns the adapter for the channel.
func (r *Registry) Get(ch notification.Channel) (Adapter, error) {
	a, ok := r.adapters[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return a, nil
}

// Channels returns the channels with a registered adapter.
func (r *Registry) Channels() []notification.Channel {
	out := make([]notification.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	return out
}
