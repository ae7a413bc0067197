package retrieve

import (
	"context"
	"sync"
)

// Registry memoizes which tenant collections have been ensured so the
// hot search path skips the FT.INFO round-trip after the first query.
// Entries are never evicted; dropping a collection mid-flight surfaces
// as an empty search result, not an error.
type Registry struct {
	ensurer CollectionEnsurer

	mu    sync.RWMutex
	names map[string]string
}

func NewRegistry(ensurer CollectionEnsurer) *Registry {
	return &Registry{
		ensurer: ensurer,
		names:   make(map[string]string),
	}
}

// Collection returns the ensured text collection name for clientID.
func (r *Registry) Collection(ctx context.Context, clientID string) (string, error) {
	r.mu.RLock()
	name, ok := r.names[clientID]
	r.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := r.ensurer.EnsureText(ctx, clientID)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.names[clientID] = name
	r.mu.Unlock()
	return name, nil
}

// Forget drops a tenant from the registry after its collection is
// deleted, so a later query re-provisions it.
func (r *Registry) Forget(clientID string) {
	r.mu.Lock()
	delete(r.names, clientID)
	r.mu.Unlock()
}
