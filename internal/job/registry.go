package job

import "sync"

type entry struct {
	cancelled bool
}

// Registry enforces one active job per requester and holds the sticky
// cancellation flag. It is the only job state shared across goroutines.
type Registry struct {
	mu      sync.Mutex
	entries map[RequesterID]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[RequesterID]*entry)}
}

// TryAcquire marks id busy. It returns false if id already holds a slot.
func (r *Registry) TryAcquire(id RequesterID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.entries[id]; busy {
		return false
	}

	r.entries[id] = &entry{}

	return true
}

// Release frees the slot and clears the cancel flag. Releasing a free slot is a no-op.
func (r *Registry) Release(id RequesterID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, id)
}

// RequestCancel sets the cancel flag and reports whether a job was active.
func (r *Registry) RequestCancel(id RequesterID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return false
	}

	e.cancelled = true

	return true
}

func (r *Registry) IsCancelled(id RequesterID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]

	return ok && e.cancelled
}

// Active returns the number of held slots.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}
