package functions

import (
	"fmt"
	"sort"
	"sync"
)

// Registry resolves function names to their registered implementations.
type Registry interface {
	// Lookup returns the function registered under the given name.
	Lookup(name string) (Function, bool)
}

// MapRegistry is an in-memory [Registry]. It is safe for concurrent use.
type MapRegistry struct {
	mtx sync.RWMutex
	fns map[string]Function
}

var _ Registry = (*MapRegistry)(nil)

// NewMapRegistry creates an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{fns: make(map[string]Function)}
}

// Register adds fn to the registry. Registering a name that already exists
// with a different version token replaces the previous function and returns
// its signature, so callers can invalidate state keyed on it. Re-registering
// the exact same signature is an error.
func (r *MapRegistry) Register(fn Function) (prev Signature, replaced bool, err error) {
	sig := fn.Signature()
	if sig.Name == "" {
		return Signature{}, false, fmt.Errorf("function name must not be empty")
	}
	if sig.Version == "" {
		return Signature{}, false, fmt.Errorf("function %q has no version token", sig.Name)
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if old, ok := r.fns[sig.Name]; ok {
		prev = old.Signature()
		if prev == sig {
			return Signature{}, false, fmt.Errorf("function %s is already registered", sig)
		}
		replaced = true
	}
	r.fns[sig.Name] = fn
	return prev, replaced, nil
}

// Lookup implements [Registry].
func (r *MapRegistry) Lookup(name string) (Function, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	fn, ok := r.fns[name]
	return fn, ok
}

// Signatures returns the signatures of all registered functions, sorted by
// name.
func (r *MapRegistry) Signatures() []Signature {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	sigs := make([]Signature, 0, len(r.fns))
	for _, fn := range r.fns {
		sigs = append(sigs, fn.Signature())
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}
