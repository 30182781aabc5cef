package asyncop

import (
	"fmt"
	"sort"
	"sync"

	"github.com/phrazzld/asyncview/internal/domain"
)

// Registry maps operation names to operations so stored jobs can be
// rebuilt after a restart.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Register adds op. Registering a nil operation or a name twice returns
// domain.ErrConfiguration.
func (r *Registry) Register(op *Operation) error {
	if op == nil {
		return fmt.Errorf("%w: nil operation", domain.ErrConfiguration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[op.Name()]; exists {
		return fmt.Errorf("%w: operation %q registered twice", domain.ErrConfiguration, op.Name())
	}
	r.ops[op.Name()] = op
	return nil
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
