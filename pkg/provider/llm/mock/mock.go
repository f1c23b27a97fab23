// Package mock provides a test double for the llm.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generator.Generate.
type GenerateCall struct {
	// Req is the request passed to Generate.
	Req llm.Request
}

// Generator is a mock implementation of llm.Generator.
type Generator struct {
	mu sync.Mutex

	// Response is returned from every Generate call when Err is nil.
	Response llm.Response

	// Err, if non-nil, is returned as the error from Generate.
	Err error

	// Fn, if non-nil, is invoked instead of returning Response/Err.
	Fn func(ctx context.Context, req llm.Request) (llm.Response, error)

	calls []GenerateCall
}

// Ensure Generator implements llm.Generator at compile time.
var _ llm.Generator = (*Generator)(nil)

// Generate records the call and returns the scripted response.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GenerateCall{Req: req})
	fn := g.Fn
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if g.Err != nil {
		return llm.Response{}, g.Err
	}
	return g.Response, nil
}

// Calls returns a copy of all recorded invocations. Thread-safe.
func (g *Generator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}
