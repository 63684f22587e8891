package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/lalith-99/huddle/internal/dedup"
)

// Binding is one table a scope listens to.
type Binding struct {
	Table   Table
	Handler Handler
	Options []Option
}

// ScopeEntry is what the registry keeps per open scope: its subscription
// handles and the seen-id cache of the list rendered for it.
type ScopeEntry struct {
	Scope   Scope
	Seen    *dedup.SeenCache
	handles []*Handle
}

// Registry owns every subscription of one view owner, keyed by scope.
// Opening a scope that is already open returns the existing entry instead
// of subscribing twice.
type Registry struct {
	client *Client

	mu     sync.Mutex
	scopes map[Scope]*ScopeEntry
}

func NewRegistry(client *Client) *Registry {
	return &Registry{
		client: client,
		scopes: make(map[Scope]*ScopeEntry),
	}
}

// Open subscribes every binding for scope. The bool result is true when
// the scope was already open and nothing new was subscribed.
func (r *Registry) Open(ctx context.Context, scope Scope, bindings []Binding) (*ScopeEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.scopes[scope]; ok {
		return entry, true, nil
	}

	entry := &ScopeEntry{Scope: scope, Seen: dedup.NewSeenCache()}
	for _, b := range bindings {
		h, err := r.client.Subscribe(ctx, Filter{Table: b.Table, Scope: scope}, b.Handler, b.Options...)
		if err != nil {
			for _, opened := range entry.handles {
				opened.Close()
			}
			return nil, false, fmt.Errorf("subscribe %s/%s: %w", scope, b.Table, err)
		}
		entry.handles = append(entry.handles, h)
	}
	r.scopes[scope] = entry
	return entry, false, nil
}

// Close tears down the scope's subscriptions and resets its seen cache.
// Closing a scope that is not open is a no-op.
func (r *Registry) Close(scope Scope) {
	r.mu.Lock()
	entry, ok := r.scopes[scope]
	delete(r.scopes, scope)
	r.mu.Unlock()

	if !ok {
		return
	}
	for _, h := range entry.handles {
		h.Close()
	}
	entry.Seen.Reset()
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	scopes := make([]Scope, 0, len(r.scopes))
	for s := range r.scopes {
		scopes = append(scopes, s)
	}
	r.mu.Unlock()

	for _, s := range scopes {
		r.Close(s)
	}
}

// Get returns the entry of an open scope.
func (r *Registry) Get(scope Scope) (*ScopeEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.scopes[scope]
	return entry, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}
