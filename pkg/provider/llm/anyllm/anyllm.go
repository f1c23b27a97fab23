// Package anyllm provides an llm.Generator backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// local llama.cpp/llamafile servers.
//
// Usage:
//
//	g, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	g, err := anyllm.New("ollama", "llama3.2")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/voxpipe/voxpipe/pkg/provider"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
)

// defaultSystemPrompt keeps replies short enough for low-latency synthesis.
const defaultSystemPrompt = "You are a helpful voice assistant. Answer concisely in one or two sentences suitable for speech synthesis."

// Generator implements llm.Generator by wrapping github.com/mozilla-ai/any-llm-go.
type Generator struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	maxTokens    int
}

// Compile-time assertion that Generator implements llm.Generator.
var _ llm.Generator = (*Generator)(nil)

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithSystemPrompt replaces the default concise-voice-assistant instruction.
func WithSystemPrompt(s string) Option {
	return func(g *Generator) { g.systemPrompt = s }
}

// WithMaxTokens caps completion length. Zero means the backend default.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// New creates a Generator backed by the given LLM backend name.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile". model is the
// specific model to use (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
//
// libOpts are any-llm-go configuration options (anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL, ...). If no API key option is provided, the backend
// falls back to its usual environment variable (OPENAI_API_KEY, etc.).
func New(backendName, model string, libOpts []anyllmlib.Option, opts ...Option) (*Generator, error) {
	if backendName == "" {
		return nil, errors.New("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}

	g := &Generator{
		backend:      backend,
		model:        model,
		systemPrompt: defaultSystemPrompt,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", name)
	}
}

// BackendNames lists the any-llm-go backends this adapter can construct.
// Used by the provider registry to register one factory per backend name.
func BackendNames() []string {
	return []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Prompt == "" {
		return llm.Response{}, errors.New("anyllm: prompt must not be empty")
	}

	system := g.systemPrompt
	if req.SystemPrompt != "" {
		system = req.SystemPrompt
	}

	messages := make([]anyllmlib.Message, 0, len(req.History)+2)
	if system != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: system,
		})
	}
	for _, m := range req.History {
		messages = append(messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.Prompt,
	})

	params := anyllmlib.CompletionParams{
		Model:    g.model,
		Messages: messages,
	}
	if g.maxTokens > 0 {
		mt := g.maxTokens
		params.MaxTokens = &mt
	}

	resp, err := g.backend.Completion(ctx, params)
	if err != nil {
		return llm.Response{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("anyllm: %w: empty choices in response", provider.ErrUnavailable)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return llm.Response{}, fmt.Errorf("anyllm: %w", provider.ErrContentRejected)
	}

	text := strings.TrimSpace(choice.Message.ContentString())
	if text == "" {
		return llm.Response{}, fmt.Errorf("anyllm: %w: backend returned no text", provider.ErrContentRejected)
	}

	return llm.Response{Text: text, Confidence: 1.0}, nil
}

// classify maps transport and API errors onto the shared provider sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("anyllm: %w: %v", provider.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("anyllm: %w: %v", provider.ErrUnavailable, err)
	}
}
