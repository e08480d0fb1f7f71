package kubit

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	ErrBindingExists    = errors.New("binding already registered")
	ErrBindingNotFound  = errors.New("binding is not registered")
	ErrCircularBinding  = errors.New("circular binding resolution")
	ErrBindingType      = errors.New("binding resolved to an unexpected type")
	ErrInvalidBinding   = errors.New("binding requires a name and a factory")
	ErrAliasConflicting = errors.New("alias conflicts with an existing binding")
)

// Factory builds the value of a binding. The container handed in carries the
// current resolution chain so nested resolves can detect cycles.
type Factory func(c *Container) (any, error)

type bindingKind int

const (
	kindBind bindingKind = iota
	kindSingleton
	kindInstance
)

type binding struct {
	kind    bindingKind
	factory Factory

	mu       sync.Mutex
	resolved bool
	value    any
}

type registry struct {
	mu       sync.RWMutex
	bindings map[string]*binding
	fakes    map[string]*binding
	aliases  map[string]string
}

// Container is a string keyed registry of lazily resolved bindings.
// Bind registers a factory that runs on every resolve, Singleton caches
// the first result and Instance stores a value that was already built.
type Container struct {
	reg   *registry
	chain []string
}

// NewContainer returns an empty container
func NewContainer() *Container {
	return &Container{
		reg: &registry{
			bindings: make(map[string]*binding),
			fakes:    make(map[string]*binding),
			aliases:  make(map[string]string),
		},
	}
}

// Bind registers a factory executed every time the binding is resolved
func (c *Container) Bind(name string, factory Factory) error {
	return c.register(name, &binding{kind: kindBind, factory: factory})
}

// Singleton registers a factory executed once, the value is cached
func (c *Container) Singleton(name string, factory Factory) error {
	return c.register(name, &binding{kind: kindSingleton, factory: factory})
}

// Instance registers an already built value
func (c *Container) Instance(name string, value any) error {
	if value == nil {
		return fmt.Errorf("%w: %s", ErrInvalidBinding, name)
	}
	return c.register(name, &binding{kind: kindInstance, resolved: true, value: value})
}

func (c *Container) register(name string, b *binding) error {
	if name == "" || (b.kind != kindInstance && b.factory == nil) {
		return fmt.Errorf("%w: %q", ErrInvalidBinding, name)
	}

	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	if _, exists := c.reg.bindings[name]; exists {
		return fmt.Errorf("%w: %s", ErrBindingExists, name)
	}

	if _, exists := c.reg.aliases[name]; exists {
		return fmt.Errorf("%w: %s", ErrAliasConflicting, name)
	}

	c.reg.bindings[name] = b
	return nil
}

// Alias makes name resolvable through alias as well
func (c *Container) Alias(alias, name string) error {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	if _, exists := c.reg.bindings[alias]; exists {
		return fmt.Errorf("%w: %s", ErrAliasConflicting, alias)
	}

	if _, exists := c.reg.bindings[name]; !exists {
		return fmt.Errorf("%w: %s", ErrBindingNotFound, name)
	}

	c.reg.aliases[alias] = name
	return nil
}

// HasBinding returns true when name (or an alias) is registered
func (c *Container) HasBinding(name string) bool {
	_, _, found := c.lookup(name)
	return found
}

// IsResolved reports if a singleton or instance already holds its value,
// bind bindings are never resolved
func (c *Container) IsResolved(name string) bool {
	b, _, found := c.lookup(name)
	if !found || b.kind == kindBind {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolved
}

// Bindings returns the sorted list of registered binding names
func (c *Container) Bindings() []string {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	names := make([]string, 0, len(c.reg.bindings))
	for name := range c.reg.bindings {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

func (c *Container) lookup(name string) (*binding, string, bool) {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	name = c.reg.canonical(name)

	if b, ok := c.reg.fakes[name]; ok {
		return b, name, true
	}

	b, ok := c.reg.bindings[name]
	return b, name, ok
}

// Resolve returns the value of the binding, constructing it if needed
func (c *Container) Resolve(name string) (any, error) {
	b, canonical, found := c.lookup(name)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, name)
	}

	if slices.Contains(c.chain, canonical) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCircularBinding, strings.Join(c.chain, " -> "), canonical)
	}

	child := &Container{reg: c.reg, chain: append(slices.Clone(c.chain), canonical)}

	switch b.kind {
	case kindInstance:
		return b.value, nil
	case kindBind:
		return build(child, canonical, b.factory)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resolved {
		return b.value, nil
	}

	v, err := build(child, canonical, b.factory)
	if err != nil {
		return nil, err
	}

	b.value = v
	b.resolved = true

	return v, nil
}

func build(c *Container, name string, factory Factory) (any, error) {
	v, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	return v, nil
}

// MustResolve is Resolve that panics on error, meant for boot code
func (c *Container) MustResolve(name string) any {
	v, err := c.Resolve(name)
	if err != nil {
		panic(err)
	}
	return v
}

// WithBindings invokes fn with the resolved values when every name is bound.
// Nothing happens when at least one of them is missing.
func (c *Container) WithBindings(names []string, fn func(values ...any) error) error {
	for _, name := range names {
		if !c.HasBinding(name) {
			return nil
		}
	}

	values := make([]any, 0, len(names))
	for _, name := range names {
		v, err := c.Resolve(name)
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	return fn(values...)
}

// Fake swaps the binding for a fake until Restore is called, the fake
// is resolved once like a singleton
func (c *Container) Fake(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: %q", ErrInvalidBinding, name)
	}

	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	c.reg.fakes[c.reg.canonical(name)] = &binding{kind: kindSingleton, factory: factory}
	return nil
}

// Restore removes a fake
func (c *Container) Restore(name string) {
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()

	delete(c.reg.fakes, c.reg.canonical(name))
}

// IsFaked reports if the binding is currently faked
func (c *Container) IsFaked(name string) bool {
	c.reg.mu.RLock()
	defer c.reg.mu.RUnlock()

	_, ok := c.reg.fakes[c.reg.canonical(name)]
	return ok
}

// canonical maps an alias to the binding name, the caller holds mu
func (r *registry) canonical(name string) string {
	if target, ok := r.aliases[name]; ok {
		return target
	}
	return name
}

// Use resolves a binding with type safety.
//
// Usage:
//
//	db, err := kubit.Use[*database.Database](app.Container(), "Kubit/Database")
func Use[T any](c *Container, name string) (T, error) {
	var zero T

	v, err := c.Resolve(name)
	if err != nil {
		return zero, err
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrBindingType, name, v)
	}

	return t, nil
}

// MustUse is Use that panics on error
func MustUse[T any](c *Container, name string) T {
	t, err := Use[T](c, name)
	if err != nil {
		panic(err)
	}
	return t
}
