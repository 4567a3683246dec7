package registry

import (
	"context"
	"slices"
	"sync"
)

// Static serves a list fixed at construction, typically from the config file. Register and
// Deregister change it in memory only; TTLs are ignored.
type Static struct {
	mu       sync.Mutex
	services map[string][]Endpoint
	watchers map[string][]chan []Endpoint
}

// NewStatic registers eps under service.
func NewStatic(service string, eps ...Endpoint) *Static {
	return &Static{
		services: map[string][]Endpoint{service: slices.Clone(eps)},
		watchers: make(map[string][]chan []Endpoint),
	}
}

func (r *Static) Register(_ context.Context, service string, ep Endpoint, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := slices.DeleteFunc(slices.Clone(r.services[service]), func(e Endpoint) bool { return e.URL == ep.URL })
	r.services[service] = append(eps, ep)
	r.notify(service)
	return nil
}

func (r *Static) Deregister(_ context.Context, service, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[service] = slices.DeleteFunc(slices.Clone(r.services[service]), func(e Endpoint) bool { return e.URL == url })
	r.notify(service)
	return nil
}

func (r *Static) Discover(_ context.Context, service string) ([]Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.services[service]), nil
}

// Watch emits the current list immediately and again after every change.
func (r *Static) Watch(ctx context.Context, service string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)
	r.mu.Lock()
	r.watchers[service] = append(r.watchers[service], ch)
	publish(ch, slices.Clone(r.services[service]))
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[service] = slices.DeleteFunc(r.watchers[service], func(c chan []Endpoint) bool { return c == ch })
		close(ch)
	}()
	return ch
}

func (r *Static) Close() error {
	return nil
}

// notify must be called with r.mu held.
func (r *Static) notify(service string) {
	for _, ch := range r.watchers[service] {
		publish(ch, slices.Clone(r.services[service]))
	}
}
