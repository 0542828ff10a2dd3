// Package reflection scores a draft brief along fixed analytical depth
// dimensions and decides whether one refinement pass is warranted. Scoring
// runs on a cheaper secondary model; the decision rule is purely numeric so
// the evaluator stays deterministic given the scores.
package reflection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/repair"
)

// The depth dimensions, each scored 0 through 10.
const (
	DimCausalDepth            = "causal_depth"
	DimHistoricalAwareness    = "historical_awareness"
	DimCrossArticleSynthesis  = "cross_article_synthesis"
	DimPredictionSpecificity  = "prediction_specificity"
	DimImplicationExploration = "implication_exploration"
)

// Dimensions lists every scored dimension in canonical order.
var Dimensions = []string{
	DimCausalDepth,
	DimHistoricalAwareness,
	DimCrossArticleSynthesis,
	DimPredictionSpecificity,
	DimImplicationExploration,
}

// Config sets the acceptance rule. A draft whose weighted aggregate is at
// or above DepthThreshold passes; a dimension below DimensionFloor is a
// shallow area regardless of the aggregate.
type Config struct {
	DepthThreshold float64
	DimensionFloor float64

	// Weights per dimension. Missing dimensions get weight 1.
	Weights map[string]float64

	// Model names the secondary scoring model.
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the standard acceptance rule: equal weights, pass
// at 8.0, dimension floor 6.0.
func DefaultConfig() Config {
	return Config{
		DepthThreshold: 8.0,
		DimensionFloor: 6.0,
		Temperature:    0.3,
		MaxTokens:      1024,
	}
}

// Evaluation is the scored outcome for one draft.
type Evaluation struct {
	Scores      map[string]float64
	Suggestions map[string]string
	Aggregate   float64

	// ShallowAreas lists dimensions scoring below the floor, in canonical
	// dimension order.
	ShallowAreas []string
}

// Passed reports whether the aggregate meets the threshold. The boundary
// is inclusive: a draft scoring exactly the threshold is accepted.
func (e Evaluation) Passed(threshold float64) bool {
	return e.Aggregate >= threshold
}

// Evaluator scores drafts via a secondary model call.
type Evaluator struct {
	client llm.Client
	parser *repair.Parser
	config Config
	logger *zap.Logger
}

// NewEvaluator creates an evaluator using the given client for scoring
// calls.
func NewEvaluator(client llm.Client, config Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		client: client,
		parser: repair.NewParser(logger.Named("repair")),
		config: config,
		logger: logger,
	}
}

// Evaluate scores the draft along every dimension and computes the
// weighted aggregate. Scores outside 0 through 10 are clamped; a
// dimension the model omitted scores zero and is reported shallow.
func (e *Evaluator) Evaluate(ctx context.Context, draft string) (Evaluation, error) {
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.config.Model,
		System:      scoringSystemPrompt,
		User:        scoringUserPrompt(draft),
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Evaluation{}, fmt.Errorf("reflection scoring call: %w", err)
		}
		e.logger.Warn("scoring model unavailable, falling back to heuristic scores", zap.Error(err))
		return e.heuristic(draft), nil
	}

	result, _, err := e.parser.Parse(resp.Text)
	if err != nil {
		e.logger.Warn("scoring response unparseable, falling back to heuristic scores", zap.Error(err))
		return e.heuristic(draft), nil
	}

	eval := Evaluation{
		Scores:      make(map[string]float64, len(Dimensions)),
		Suggestions: make(map[string]string, len(Dimensions)),
	}
	for _, dim := range Dimensions {
		eval.Scores[dim] = clampScore(scoreFor(result, dim))
		if s := suggestionFor(result, dim); s != "" {
			eval.Suggestions[dim] = s
		}
	}
	eval.Aggregate = e.aggregate(eval.Scores)
	eval.ShallowAreas = e.shallow(eval.Scores)

	e.logger.Info("draft evaluated",
		zap.Float64("aggregate", eval.Aggregate),
		zap.Strings("shallow_areas", eval.ShallowAreas))
	return eval, nil
}

// Threshold returns the configured acceptance threshold.
func (e *Evaluator) Threshold() float64 { return e.config.DepthThreshold }

func (e *Evaluator) weight(dim string) float64 {
	if w, ok := e.config.Weights[dim]; ok && w > 0 {
		return w
	}
	return 1
}

func (e *Evaluator) aggregate(scores map[string]float64) float64 {
	var sum, weights float64
	for _, dim := range Dimensions {
		w := e.weight(dim)
		sum += scores[dim] * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

func (e *Evaluator) shallow(scores map[string]float64) []string {
	var out []string
	for _, dim := range Dimensions {
		if scores[dim] < e.config.DimensionFloor {
			out = append(out, dim)
		}
	}
	return out
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

// scoreFor reads a dimension score from either the flat form
// {"causal_depth": 7} or the nested form {"causal_depth": {"score": 7}}.
func scoreFor(result repair.Result, dim string) float64 {
	if v, ok := result.Float(dim); ok {
		return v
	}
	if nested, ok := result[dim].(map[string]any); ok {
		if v, ok := nested["score"].(float64); ok {
			return v
		}
	}
	return 0
}

func suggestionFor(result repair.Result, dim string) string {
	if nested, ok := result[dim].(map[string]any); ok {
		if s, ok := nested["suggestion"].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	if s, ok := result[dim+"_suggestion"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// RefinementPrompt builds the one-shot refinement instruction for a draft
// that fell short. It names each shallow dimension with its score and the
// model's own suggestion so the refinement targets the actual gaps.
func (e *Evaluator) RefinementPrompt(eval Evaluation) string {
	var sb strings.Builder
	sb.WriteString("Your previous draft scored ")
	sb.WriteString(fmt.Sprintf("%.1f/10 overall for analytical depth, below the %.1f required.\n\n", eval.Aggregate, e.config.DepthThreshold))
	sb.WriteString("Revise the brief to deepen these specific areas:\n")

	dims := eval.ShallowAreas
	if len(dims) == 0 {
		// Below threshold without any single dimension under the floor:
		// name the weakest dimensions instead.
		dims = weakest(eval.Scores, 2)
	}
	for _, dim := range dims {
		sb.WriteString(fmt.Sprintf("- %s (scored %.1f)", strings.ReplaceAll(dim, "_", " "), eval.Scores[dim]))
		if s := eval.Suggestions[dim]; s != "" {
			sb.WriteString(": " + s)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\nKeep every factual claim and citation from the draft. Deepen the analysis; do not pad the length.")
	return sb.String()
}

func weakest(scores map[string]float64, n int) []string {
	dims := append([]string(nil), Dimensions...)
	sort.SliceStable(dims, func(a, b int) bool {
		return scores[dims[a]] < scores[dims[b]]
	})
	if len(dims) > n {
		dims = dims[:n]
	}
	return dims
}
