package opts

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var registrySeq atomic.Uint64

// Function is a host function callable from validator expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry maps case-insensitive names to host functions. Evaluators
// take a clone at construction, so later registrations do not leak into
// already built evaluators.
type FunctionRegistry struct {
	mu        sync.RWMutex
	id        uint64
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		id:        registrySeq.Add(1),
		functions: make(map[string]Function),
	}
}

// Register stores fn under the lowercased name. Names are unique.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("opts: function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("opts: function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("opts: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *FunctionRegistry) MustRegister(name string, fn Function) *FunctionRegistry {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
	return r
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Len returns the number of registered functions.
func (r *FunctionRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// Clone returns an independent copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	functions := maps.Clone(r.functions)
	if functions == nil {
		functions = make(map[string]Function)
	}
	return &FunctionRegistry{id: registrySeq.Add(1), functions: functions}
}

// Merge copies every function of other into r, replacing entries registered
// under the same name.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) {
	if other == nil || other == r {
		return
	}
	other.mu.RLock()
	incoming := maps.Clone(other.functions)
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function, len(incoming))
	}
	maps.Copy(r.functions, incoming)
}

// set registers fn under name, replacing any existing entry.
func (r *FunctionRegistry) set(name string, fn Function) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("opts: function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("opts: function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	r.functions[strings.ToLower(name)] = fn
	return nil
}

// scope identifies this registry instance in program cache keys.
func (r *FunctionRegistry) scope() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.id == 0 {
		r.id = registrySeq.Add(1)
	}
	return "registry#" + strconv.FormatUint(r.id, 10)
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("opts: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("opts: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns the registered names in lexical order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.functions))
}
