package shiny

import "sync"

// Registry is a single slot holding the supervised process.
//
// Register refuses to overwrite a live process, so a handle can only leave
// the slot through Take, TakeIf or Stop. That keeps a second start from
// orphaning the first runtime.
type Registry struct {
	mu   sync.Mutex
	proc *Process
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register places p in the slot. A process that already exited is replaced
// silently; a live one yields ErrAlreadyRegistered.
func (r *Registry) Register(p *Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.proc != nil && !r.proc.Exited() {
		return ErrAlreadyRegistered
	}
	r.proc = p
	return nil
}

// Current returns the registered process without removing it.
func (r *Registry) Current() *Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc
}

// Holds reports whether p is the registered process.
func (r *Registry) Holds(p *Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return p != nil && r.proc == p
}

// Take empties the slot and returns what it held.
func (r *Registry) Take() *Process {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.proc
	r.proc = nil
	return p
}

// TakeIf empties the slot only when it holds p.
func (r *Registry) TakeIf(p *Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p == nil || r.proc != p {
		return false
	}
	r.proc = nil
	return true
}

// Stop takes the registered process and kills it. An empty slot yields
// ErrNotRunning; a failed kill yields *StopError.
func (r *Registry) Stop() (*Process, error) {
	p := r.Take()
	if p == nil {
		return nil, ErrNotRunning
	}
	if err := p.Kill(); err != nil {
		return p, &StopError{PID: p.PID(), Err: err}
	}
	return p, nil
}
