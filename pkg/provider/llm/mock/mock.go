// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/duckdebug/pkg/provider/llm"
)

// CompleteCall records one Complete invocation.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a scriptable llm.Provider. CompleteFunc, when set, wins over
// the static CompleteResponse and CompleteErr. Configure it before use.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	CompleteFunc     func(req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu    sync.Mutex
	calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the scripted reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, CompleteCall{Ctx: ctx, Req: req})
	p.mu.Unlock()
	if p.CompleteFunc != nil {
		return p.CompleteFunc(req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// Completes returns a copy of the recorded calls.
func (p *Provider) Completes() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompleteCall(nil), p.calls...)
}
