// =============================================================================
// Package quick: One-Line Orchestrator Construction
// =============================================================================
// Provides a convenience entry point for creating a consulting workflow
// orchestrator with minimal boilerplate. Wires a provider, the agent
// registry, a retriever and the orchestrator with production defaults.
//
// The package lives under quick/ (not root) so the root package can
// re-export it without importing cmd/ wiring.
//
// Usage:
//
//	import "github.com/BaSui01/consultflow/quick"
//
//	o, err := quick.New(quick.WithOpenAI("gpt-4o-mini"))
//	o, err := quick.New(quick.WithOffline(), quick.WithDocuments(docs...))
//	o, err := quick.New(quick.WithProvider(myProvider), quick.WithModel("custom"))
//
// =============================================================================
package quick

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/agent"
	"github.com/BaSui01/consultflow/llm"
	"github.com/BaSui01/consultflow/llm/providers/offline"
	"github.com/BaSui01/consultflow/llm/providers/openai"
	"github.com/BaSui01/consultflow/llm/retry"
	"github.com/BaSui01/consultflow/llm/tokenizer"
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/retrieval"
)

// Option configures the orchestrator created by New.
type Option func(*options)

type options struct {
	model     string
	provider  llm.Provider
	generator llm.Generator
	retriever retrieval.Retriever
	docs      []retrieval.Document
	cfg       *orchestrator.Config
	logger    *zap.Logger

	// Provider shortcut fields, used when provider is nil.
	providerName string
	apiKey       string
	baseURL      string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithGenerator sets the generator directly, bypassing provider wiring.
// Useful for tests and custom model backends.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithOpenAI creates an OpenAI-compatible provider using the given model.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithOffline uses the deterministic offline provider. No network access.
func WithOffline() Option {
	return func(o *options) { o.providerName = "offline" }
}

// WithModel sets the model name. Overrides the model set by provider shortcuts.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the OpenAI shortcut at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithDocuments seeds an in-memory retriever.
func WithDocuments(docs ...retrieval.Document) Option {
	return func(o *options) { o.docs = append(o.docs, docs...) }
}

// WithRetriever sets the context document source. Takes precedence over
// WithDocuments.
func WithRetriever(r retrieval.Retriever) Option {
	return func(o *options) { o.retriever = r }
}

// WithConfig replaces the orchestrator defaults.
func WithConfig(cfg orchestrator.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an Orchestrator with minimal configuration.
func New(opts ...Option) (*orchestrator.Orchestrator, error) {
	o := &options{model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	gen, err := o.resolveGenerator()
	if err != nil {
		return nil, err
	}

	registry := agent.NewRegistry(agent.Dependencies{
		Generator: gen,
		Prompts:   agent.NewPromptBuilder(tokenizer.ForModel(o.model)),
		Logger:    o.logger,
	})

	orchOpts := []orchestrator.Option{}
	if o.cfg != nil {
		orchOpts = append(orchOpts, orchestrator.WithConfig(*o.cfg))
	}
	switch {
	case o.retriever != nil:
		orchOpts = append(orchOpts, orchestrator.WithRetriever(o.retriever))
	case len(o.docs) > 0:
		orchOpts = append(orchOpts, orchestrator.WithRetriever(retrieval.NewMemoryRetriever(o.docs...)))
	}
	if o.providerName == "offline" {
		orchOpts = append(orchOpts, orchestrator.WithLanguageDetector(agent.HeuristicLanguageDetector{}))
	} else {
		orchOpts = append(orchOpts, orchestrator.WithLanguageDetector(agent.NewLLMLanguageDetector(gen)))
	}

	return orchestrator.New(registry, o.logger, orchOpts...)
}

func (o *options) resolveGenerator() (llm.Generator, error) {
	if o.generator != nil {
		return o.generator, nil
	}

	p := o.provider
	if p == nil {
		switch o.providerName {
		case "":
			return nil, fmt.Errorf("provider is required: use WithProvider, WithGenerator, WithOpenAI, or WithOffline")
		case "offline":
			p = offline.New(0)
		case "openai":
			if o.apiKey == "" {
				return nil, fmt.Errorf("API key is required for openai: set OPENAI_API_KEY or use WithAPIKey")
			}
			p = openai.New(openai.Config{APIKey: o.apiKey, BaseURL: o.baseURL, Model: o.model}, o.logger)
		default:
			return nil, fmt.Errorf("unknown provider %q", o.providerName)
		}
	}

	resilient := llm.NewResilientProvider(p, o.logger,
		llm.WithRetryer(retry.NewBackoffRetryer(retry.DefaultPolicy(), o.logger)),
	)
	return llm.NewGenerator(resilient, llm.Options{Model: o.model}), nil
}
