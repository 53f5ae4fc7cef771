package agent

import (
	"context"
	"strings"

	"github.com/BaSui01/consultflow/retrieval"
	"github.com/BaSui01/consultflow/types"
	"github.com/BaSui01/consultflow/workflow"
	"go.uber.org/zap"
)

// Metadata keys written by the preparation tasks.
const (
	MetadataIntent    = "intent"
	MetadataRetrieval = "retrieval"
	MetadataLanguage  = "language_source"
)

// Intent metadata values beyond the topic intents.
const (
	IntentGeneral = "general"
)

// Node names of the preparation tasks.
const (
	NodeDetectLanguage  = "detect_language"
	NodeClassify        = "classify_query"
	NodeRetrieveContext = "retrieve_context"
)

// LanguageTask detects the query language. Detector failures fall back to
// the heuristic detector and never fail the run.
func LanguageTask(detector LanguageDetector, logger *zap.Logger) workflow.TaskFunc {
	logger = nopIfNil(logger).With(zap.String("component", "language_detection"))
	if detector == nil {
		detector = HeuristicLanguageDetector{}
	}
	return func(ctx context.Context, st *workflow.State) (workflow.Update, error) {
		lang, err := detector.Detect(ctx, st.Query(), st.History())
		if err != nil {
			if ctx.Err() != nil {
				return workflow.Update{}, ctx.Err()
			}
			logger.Warn("language detection failed, using heuristic", zap.Error(err))
			lang = detectHeuristic(st.Query())
			return workflow.Update{}.WithLanguage(lang).WithMetadata(MetadataLanguage, "heuristic"), nil
		}
		return workflow.Update{}.WithLanguage(NormalizeLanguage(lang)).WithMetadata(MetadataLanguage, "detector"), nil
	}
}

// ClassifyTask selects the specialists for the query. A greeting selects
// none and presets the localized reply, which routes straight to compilation.
func ClassifyTask() workflow.TaskFunc {
	return func(_ context.Context, st *workflow.State) (workflow.Update, error) {
		intents := DetectIntents(st.Query())
		if len(intents) == 1 && intents[0] == IntentGreeting {
			return workflow.Update{}.
				WithSelection().
				WithMetadata(MetadataIntent, string(IntentGreeting)).
				WithFinalResponse(GreetingResponse(st.Query(), st.Language())), nil
		}

		roles := SelectRoles(intents)
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		label := IntentGeneral
		if len(intents) > 0 {
			parts := make([]string, len(intents))
			for i, in := range intents {
				parts[i] = string(in)
			}
			label = strings.Join(parts, ",")
		}
		return workflow.Update{}.WithSelection(names...).WithMetadata(MetadataIntent, label), nil
	}
}

// ContextRetrievalTask fetches up to k documents for the query. Greetings
// skip the search; a failing retriever degrades to no context.
func ContextRetrievalTask(r retrieval.Retriever, k int, logger *zap.Logger) workflow.TaskFunc {
	logger = nopIfNil(logger).With(zap.String("component", "context_retrieval"))
	return func(ctx context.Context, st *workflow.State) (workflow.Update, error) {
		if _, done := st.FinalResponse(); done || r == nil {
			return workflow.Update{}.WithContext(nil).WithMetadata(MetadataRetrieval, "skipped"), nil
		}
		docs, err := r.Search(ctx, st.Query(), k)
		if err != nil {
			if ctx.Err() != nil {
				return workflow.Update{}, ctx.Err()
			}
			logger.Warn("context retrieval failed", zap.Error(err))
			return workflow.Update{}.WithContext(nil).WithMetadata(MetadataRetrieval, "degraded"), nil
		}
		logger.Debug("context retrieved", zap.Int("documents", len(docs)))
		return workflow.Update{}.WithContext(dedupDocuments(docs)).WithMetadata(MetadataRetrieval, "ok"), nil
	}
}

func dedupDocuments(docs []types.ContextDocument) []types.ContextDocument {
	seen := make(map[string]bool, len(docs))
	out := make([]types.ContextDocument, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

func nopIfNil(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
