package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/nammaroute/companion/pkg/provider/llm"
	"github.com/nammaroute/companion/pkg/provider/s2s"
)

// ErrProviderNotRegistered is returned when a config names a provider that
// has no factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factorySet is the table of factories for one provider kind.
type factorySet[P any] struct {
	kind   string
	byName map[string]Factory[P]
}

func newFactorySet[P any](kind string) factorySet[P] {
	return factorySet[P]{kind: kind, byName: make(map[string]Factory[P])}
}

func (s factorySet[P]) build(entry ProviderEntry) (P, error) {
	f, ok := s.byName[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, s.kind, entry.Name)
	}
	return f(entry)
}

func (s factorySet[P]) names() []string {
	return slices.Sorted(maps.Keys(s.byName))
}

// Registry resolves provider names in the config to constructors. The
// binary registers its built-in providers at startup; tests register mocks.
// Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factorySet[llm.Provider]
	s2s factorySet[s2s.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactorySet[llm.Provider]("llm"),
		s2s: newFactorySet[s2s.Provider]("s2s"),
	}
}

// RegisterLLM adds or replaces the text-generation factory called name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	r.llm.byName[name] = f
	r.mu.Unlock()
}

// RegisterS2S adds or replaces the spoken-dialogue factory called name.
func (r *Registry) RegisterS2S(name string, f Factory[s2s.Provider]) {
	r.mu.Lock()
	r.s2s.byName[name] = f
	r.mu.Unlock()
}

// CreateLLM builds the text-generation provider described by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.build(entry)
}

// CreateS2S builds the spoken-dialogue provider described by entry.
func (r *Registry) CreateS2S(entry ProviderEntry) (s2s.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s2s.build(entry)
}

// Names lists registered provider names by kind ("llm", "s2s"), sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		r.llm.kind: r.llm.names(),
		r.s2s.kind: r.s2s.names(),
	}
}
