package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/nammaroute/companion/pkg/provider/llm"
)

// errBlankCompletion counts a whitespace-only answer as a backend failure so
// the next backend gets a chance.
var errBlankCompletion = errors.New("resilience: blank completion")

// LLMFallback tries text-generation backends in order until one returns
// text. It implements [llm.Provider].
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns a chain whose first backend is primary.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a backend to the chain.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) { f.group.AddFallback(name, p) }

// Names lists the backends in try order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
			return nil, errBlankCompletion
		}
		return resp, err
	})
}

// Model reports the primary backend's model.
func (f *LLMFallback) Model() string { return f.group.entries[0].value.Model() }
