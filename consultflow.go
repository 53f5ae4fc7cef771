// Package consultflow provides a top-level convenience entry point for
// creating a consulting workflow orchestrator with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/consultflow"
//
//	o, err := consultflow.New(consultflow.WithOpenAI("gpt-4o-mini"))
//	o, err := consultflow.New(consultflow.WithOffline())
//	res, err := o.RunWorkflow(ctx, "How should we migrate to the cloud?", nil, consultflow.ModeParallel)
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package consultflow

import (
	"github.com/BaSui01/consultflow/orchestrator"
	"github.com/BaSui01/consultflow/quick"
)

// Option configures the orchestrator created by [New].
type Option = quick.Option

// Orchestrator runs consulting workflows.
type Orchestrator = orchestrator.Orchestrator

// Result is the outcome of one run.
type Result = orchestrator.Result

// Mode selects the graph variant a run executes.
type Mode = orchestrator.Mode

// Workflow modes.
const (
	ModeStandard     = orchestrator.ModeStandard
	ModeParallel     = orchestrator.ModeParallel
	ModeFeedbackLoop = orchestrator.ModeFeedbackLoop
	ModeObservable   = orchestrator.ModeObservable
)

// New creates an [orchestrator.Orchestrator] with minimal configuration.
// At minimum, a model backend must be specified via [WithOpenAI],
// [WithOffline], [WithProvider], or [WithGenerator].
func New(opts ...Option) (*Orchestrator, error) {
	return quick.New(opts...)
}

// Re-export option shortcuts so callers never need to import quick/.

// WithProvider sets a pre-built LLM provider.
var WithProvider = quick.WithProvider

// WithGenerator sets the generator directly.
var WithGenerator = quick.WithGenerator

// WithOpenAI creates an OpenAI provider. API key from OPENAI_API_KEY env.
var WithOpenAI = quick.WithOpenAI

// WithOffline uses the deterministic offline provider.
var WithOffline = quick.WithOffline

// WithModel overrides the model name.
var WithModel = quick.WithModel

// WithAPIKey overrides the API key for provider shortcuts.
var WithAPIKey = quick.WithAPIKey

// WithBaseURL points the OpenAI shortcut at a compatible endpoint.
var WithBaseURL = quick.WithBaseURL

// WithDocuments seeds an in-memory retriever.
var WithDocuments = quick.WithDocuments

// WithRetriever sets the context document source.
var WithRetriever = quick.WithRetriever

// WithConfig replaces the orchestrator defaults.
var WithConfig = quick.WithConfig

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger
