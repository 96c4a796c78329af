package optimizer

import (
	"slices"
	"sync"

	appErrors "github.com/limaJavier/weektable/pkg/errors"
)

// Factory builds an optimizer working through the given toolkit.
type Factory func(toolkit Toolkit) Optimizer

// DefaultSequence is the order optimizers run in when none is requested.
var DefaultSequence = []string{NameGenetic, NameAnnealing, NameTabu, NameReinforcement, NameAntColony, NameFuzzy}

// Registry maps optimizer names to factories. It is filled once at start-up
// and resolved per run.
type Registry struct {
	mutex     sync.RWMutex
	factories map[string]Factory
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry holds the six built-in optimizers.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(NameGenetic, NewGenetic)
	registry.Register(NameAnnealing, NewAnnealing)
	registry.Register(NameTabu, NewTabu)
	registry.Register(NameReinforcement, NewReinforcement)
	registry.Register(NameAntColony, NewAntColony)
	registry.Register(NameFuzzy, NewFuzzy)
	return registry
}

// Register adds or replaces a factory.
func (registry *Registry) Register(name string, factory Factory) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, ok := registry.factories[name]; !ok {
		registry.order = append(registry.order, name)
	}
	registry.factories[name] = factory
}

// Names lists the registered optimizers in registration order.
func (registry *Registry) Names() []string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return slices.Clone(registry.order)
}

// Resolve builds the named optimizers in order, or DefaultSequence when names
// is empty. An unknown name fails the whole resolution.
func (registry *Registry) Resolve(names []string, toolkit Toolkit) ([]Optimizer, error) {
	if len(names) == 0 {
		names = DefaultSequence
	}

	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	optimizers := make([]Optimizer, 0, len(names))
	for _, name := range names {
		factory, ok := registry.factories[name]
		if !ok {
			return nil, appErrors.Clonef(appErrors.ErrNotRegistered, "optimizer \"%v\" is not registered", name)
		}
		optimizers = append(optimizers, factory(toolkit))
	}
	return optimizers, nil
}
