package attachments

import "sync"

// Registry accumulates the attachments discovered while rewriting bodies,
// deduplicated by origin. The first registration of an origin computes its
// metadata through the backend; later registrations of the same origin
// return the stored metadata, so one attachment referenced from many bodies
// always rewrites to the same destination.
//
// Registration is safe for concurrent use; the insert-if-absent section is
// the only lock in the rewriting phase.
type Registry struct {
	backend Backend

	mu       sync.Mutex
	byOrigin map[string]Metadata
	order    []string // origins in first-seen order, for a stable Drain
}

// NewRegistry creates a registry that derives destinations via backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:  backend,
		byOrigin: make(map[string]Metadata),
	}
}

// Register returns the metadata for an origin, computing and storing it on
// first sight.
func (r *Registry) Register(origin string) Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	if meta, ok := r.byOrigin[origin]; ok {
		return meta
	}
	meta := r.backend.Preprocess(origin)
	r.byOrigin[origin] = meta
	r.order = append(r.order, origin)
	return meta
}

// Len returns the number of distinct origins registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrigin)
}

// Drain returns all registered attachments in first-seen order.
// The transfer phase iterates this after every body has been rewritten.
func (r *Registry) Drain() []Metadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Metadata, 0, len(r.order))
	for _, origin := range r.order {
		out = append(out, r.byOrigin[origin])
	}
	return out
}
