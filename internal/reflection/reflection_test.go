package reflection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/loomworks/loom/internal/llm"
)

func scoreJSON(scores map[string]float64) string {
	var sb strings.Builder
	sb.WriteString("{")
	first := true
	for dim, s := range scores {
		if !first {
			sb.WriteString(",")
		}
		first = false
		fmt.Fprintf(&sb, `"%s": {"score": %g, "suggestion": "deepen %s"}`, dim, s, dim)
	}
	sb.WriteString("}")
	return sb.String()
}

func allScores(v float64) map[string]float64 {
	out := make(map[string]float64, len(Dimensions))
	for _, d := range Dimensions {
		out[d] = v
	}
	return out
}

func TestEvaluator_Evaluate_AggregateAndSuggestions(t *testing.T) {
	scores := allScores(9)
	scores[DimCausalDepth] = 5

	mock := llm.NewMockClient(scoreJSON(scores))
	e := NewEvaluator(mock, DefaultConfig(), nil)

	eval, err := e.Evaluate(context.Background(), "draft text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := (5.0 + 9*4) / 5
	if eval.Aggregate != want {
		t.Errorf("aggregate = %v, want %v", eval.Aggregate, want)
	}
	if len(eval.ShallowAreas) != 1 || eval.ShallowAreas[0] != DimCausalDepth {
		t.Errorf("shallow areas = %v", eval.ShallowAreas)
	}
	if eval.Suggestions[DimCausalDepth] != "deepen causal_depth" {
		t.Errorf("suggestion = %q", eval.Suggestions[DimCausalDepth])
	}
}

func TestEvaluator_ThresholdBoundaryInclusive(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEvaluator(llm.NewMockClient(scoreJSON(allScores(8))), cfg, nil)

	eval, err := e.Evaluate(context.Background(), "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Aggregate != 8.0 {
		t.Fatalf("aggregate = %v, want exactly 8.0", eval.Aggregate)
	}
	// Exactly the threshold is accepted.
	if !eval.Passed(cfg.DepthThreshold) {
		t.Error("aggregate equal to threshold was rejected")
	}
	if eval.Passed(8.01) {
		t.Error("aggregate below threshold was accepted")
	}
}

func TestEvaluator_WeightedAggregate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = map[string]float64{DimCausalDepth: 3}

	scores := allScores(6)
	scores[DimCausalDepth] = 10
	e := NewEvaluator(llm.NewMockClient(scoreJSON(scores)), cfg, nil)

	eval, err := e.Evaluate(context.Background(), "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := (10*3.0 + 6*4) / 7
	if eval.Aggregate != want {
		t.Errorf("weighted aggregate = %v, want %v", eval.Aggregate, want)
	}
}

func TestEvaluator_ClampsAndDefaultsScores(t *testing.T) {
	// One dimension over range, one missing entirely.
	raw := `{"causal_depth": {"score": 14}, "historical_awareness": {"score": 7},
		"cross_article_synthesis": {"score": 7}, "prediction_specificity": {"score": 7}}`
	e := NewEvaluator(llm.NewMockClient(raw), DefaultConfig(), nil)

	eval, err := e.Evaluate(context.Background(), "draft")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Scores[DimCausalDepth] != 10 {
		t.Errorf("over-range score not clamped: %v", eval.Scores[DimCausalDepth])
	}
	if eval.Scores[DimImplicationExploration] != 0 {
		t.Errorf("missing dimension scored %v, want 0", eval.Scores[DimImplicationExploration])
	}
	if !contains(eval.ShallowAreas, DimImplicationExploration) {
		t.Error("missing dimension not reported shallow")
	}
}

func TestEvaluator_HeuristicFallbackOnTransportError(t *testing.T) {
	mock := llm.NewMockClientWithError(errors.New("scoring model down"))
	e := NewEvaluator(mock, DefaultConfig(), nil)

	draft := "Prices rose because supply fell. Historically this trend reverses. Across both reports we expect a rebound within months, which means implications for shippers. [1]"
	eval, err := e.Evaluate(context.Background(), draft)
	if err != nil {
		t.Fatalf("heuristic fallback returned error: %v", err)
	}
	if eval.Aggregate <= 0 {
		t.Error("heuristic produced zero aggregate")
	}
	for _, dim := range Dimensions {
		if eval.Scores[dim] > 8 {
			t.Errorf("heuristic score for %s = %v, must cap at 8", dim, eval.Scores[dim])
		}
	}
}

func TestEvaluator_HeuristicFallbackDeterministic(t *testing.T) {
	e := NewEvaluator(llm.NewMockClientWithError(errors.New("down")), DefaultConfig(), nil)

	a, _ := e.Evaluate(context.Background(), "same draft text because of this trend")
	b, _ := e.Evaluate(context.Background(), "same draft text because of this trend")
	if a.Aggregate != b.Aggregate {
		t.Errorf("heuristic not deterministic: %v vs %v", a.Aggregate, b.Aggregate)
	}
}

func TestEvaluator_RefinementPromptNamesShallowAreas(t *testing.T) {
	e := NewEvaluator(llm.NewMockClient("{}"), DefaultConfig(), nil)

	eval := Evaluation{
		Scores:       map[string]float64{DimCausalDepth: 4, DimPredictionSpecificity: 5},
		Suggestions:  map[string]string{DimCausalDepth: "trace the supply chain mechanism"},
		Aggregate:    6.2,
		ShallowAreas: []string{DimCausalDepth, DimPredictionSpecificity},
	}
	prompt := e.RefinementPrompt(eval)

	if !strings.Contains(prompt, "causal depth") {
		t.Error("prompt does not name the shallow dimension")
	}
	if !strings.Contains(prompt, "trace the supply chain mechanism") {
		t.Error("prompt drops the model's suggestion")
	}
	if !strings.Contains(prompt, "6.2") {
		t.Error("prompt does not state the aggregate score")
	}
	if !strings.Contains(prompt, "Keep every factual claim") {
		t.Error("prompt missing the preservation instruction")
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
