package brief

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loomworks/loom/internal/curate"
	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/reflection"
	"github.com/loomworks/loom/internal/trust"
)

const goodBrief = `{
  "bottom_line": "A quiet week with one development worth watching.",
  "trends_and_patterns": [{"scope": "local", "summary": "freight volumes recovering", "citations": [1]}],
  "priority_events": [{"title": "Port strike ends", "severity": "high", "summary": "ended after nine days", "citations": [1, 99]}],
  "predictions_scenarios": [{"scenario": "shipping rates normalize", "confidence": 0.7, "citations": [2]}],
  "metadata": {"citation_map": {"1": {"title": "FABRICATED"}}}
}`

func scoresAt(v float64) string {
	parts := make([]string, 0, len(reflection.Dimensions))
	for _, dim := range reflection.Dimensions {
		parts = append(parts, `"`+dim+`": {"score": `+trimFloat(v)+`}`)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func trimFloat(v float64) string {
	if v == float64(int(v)) {
		return string(rune('0' + int(v)))
	}
	return "0"
}

const auditPass = `{"claims": [{"text": "strike ended", "type": "FACT", "verdict": "VERIFIED"}], "loaded_language": [], "tone_issues": []}`

const auditFailLoaded = `{
  "claims": [{"text": "strike ended", "type": "FACT", "verdict": "VERIFIED"}],
  "loaded_language": [
    {"phrase": "a", "severity": "LOW"}, {"phrase": "b", "severity": "LOW"},
    {"phrase": "c", "severity": "LOW"}, {"phrase": "d", "severity": "LOW"}
  ],
  "tone_issues": []
}`

func newTestController(mock *llm.MockClient, maxRetries int) *Controller {
	assembler := curate.NewAssembler(curate.NewBudgetEnforcer(curate.DefaultBudgetConfig(), nil), nil)
	dispatcher := llm.NewDispatcher(mock, nil, llm.DispatchConfig{MaxTransportRetries: 0}, nil)
	evaluator := reflection.NewEvaluator(mock, reflection.DefaultConfig(), nil)
	verifier := trust.NewVerifier(mock, trust.DefaultThresholds(), "audit", nil)

	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	return NewController(assembler, dispatcher, evaluator, verifier, cfg, nil)
}

func testJob() Job {
	return Job{
		Topic:        "freight",
		Instructions: "synthesize the news",
		Articles:     testRecords(),
	}
}

func TestController_Run_AcceptsFirstAttempt(t *testing.T) {
	mock := llm.NewMockClientScript(goodBrief, scoresAt(9), auditPass)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b.BottomLine != "A quiet week with one development worth watching." {
		t.Errorf("bottom line = %q", b.BottomLine)
	}
	if b.Topic != "freight" {
		t.Errorf("topic = %q", b.Topic)
	}
	if len(b.PriorityEvents) != 1 || b.PriorityEvents[0].Severity != SeverityHigh {
		t.Errorf("events = %+v", b.PriorityEvents)
	}

	// One synthesis + one reflection + one audit.
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
	if len(b.Metadata.Attempts) != 1 {
		t.Fatalf("attempts = %d", len(b.Metadata.Attempts))
	}
	rec := b.Metadata.Attempts[0]
	if rec.Outcome != string(StateAccepted) || rec.ParseStrategy != "strict" || !rec.TrustPassed {
		t.Errorf("attempt record = %+v", rec)
	}
}

func TestController_Run_CitationMapOverwritesModel(t *testing.T) {
	mock := llm.NewMockClientScript(goodBrief, scoresAt(9), auditPass)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cm := b.Metadata.CitationMap
	if cm[1].Title != "Port strike ends" {
		t.Errorf("ordinal 1 = %+v, want first caller record", cm[1])
	}
	for _, cit := range cm {
		if cit.Title == "FABRICATED" {
			t.Fatal("model citation map survived")
		}
	}
	// The dangling ordinal 99 from the model is pruned.
	if got := b.PriorityEvents[0].Citations; len(got) != 1 || got[0] != 1 {
		t.Errorf("event citations = %v, want [1]", got)
	}
}

func TestController_Run_ParseFailureRetriesUnmodified(t *testing.T) {
	mock := llm.NewMockClientScript(
		"I am sorry, I cannot produce that.",
		goodBrief, scoresAt(9), auditPass,
	)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.Metadata.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(b.Metadata.Attempts))
	}
	if b.Metadata.Attempts[0].Outcome != "parse_failed" {
		t.Errorf("first attempt = %+v", b.Metadata.Attempts[0])
	}

	// The retry prompt is byte-identical to the failed one.
	if mock.Prompts[1].System != mock.Prompts[0].System {
		t.Error("system prompt changed after parse failure")
	}
	if mock.Prompts[1].User != mock.Prompts[0].User {
		t.Error("user prompt changed after parse failure")
	}
}

func TestController_Run_TrustFailureAugmentsPrompt(t *testing.T) {
	mock := llm.NewMockClientScript(
		goodBrief, scoresAt(9), auditFailLoaded,
		goodBrief, scoresAt(9), auditPass,
	)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.Metadata.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(b.Metadata.Attempts))
	}
	if b.Metadata.Attempts[0].Outcome != "trust_failed" {
		t.Errorf("first attempt = %+v", b.Metadata.Attempts[0])
	}

	firstSystem := mock.Prompts[0].System
	retrySystem := mock.Prompts[3].System
	if strings.Contains(firstSystem, "Mandatory Constraints") {
		t.Error("first attempt already carried constraints")
	}
	if !strings.Contains(retrySystem, "neutral framing") {
		t.Error("retry prompt missing the neutral framing constraint")
	}
	if !strings.Contains(retrySystem, firstSystem) {
		t.Error("constraints replaced the prompt instead of augmenting it")
	}
}

func TestController_Run_RefinesOnceAndNeverRescores(t *testing.T) {
	mock := llm.NewMockClientScript(
		goodBrief,     // synthesis
		scoresAt(6),   // below threshold
		goodBrief,     // refinement output
		auditPass,     // audit of refined draft
	)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Exactly 4 calls: a second reflection would make it 5.
	if mock.Calls() != 4 {
		t.Errorf("calls = %d, want 4", mock.Calls())
	}
	if len(b.Metadata.Attempts) != 1 || !b.Metadata.Attempts[0].Refined {
		t.Errorf("attempts = %+v", b.Metadata.Attempts)
	}
	if !strings.Contains(mock.Prompts[2].User, "previous draft") {
		t.Error("refinement prompt does not include the draft")
	}
}

func TestController_Run_RefinementParseFailureKeepsOriginal(t *testing.T) {
	mock := llm.NewMockClientScript(
		goodBrief,
		scoresAt(6),
		"not json at all",
		auditPass,
	)
	c := newTestController(mock, 3)

	b, err := c.Run(context.Background(), testJob())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Metadata.Attempts[0].Refined {
		t.Error("unparseable refinement marked as refined")
	}
	if b.BottomLine == "" {
		t.Error("original draft lost")
	}
}

func TestController_Run_BoundedRetries(t *testing.T) {
	mock := llm.NewMockClient("never valid output")
	c := newTestController(mock, 2)

	_, err := c.Run(context.Background(), testJob())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("error is not a *Failure: %v", err)
	}
	if len(f.Attempts) != 2 {
		t.Errorf("attempt history = %d, want 2", len(f.Attempts))
	}
	// Parse failures never reach reflection or audit.
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
}

func TestController_Run_NoArticles(t *testing.T) {
	c := newTestController(llm.NewMockClient(goodBrief), 3)

	_, err := c.Run(context.Background(), Job{Instructions: "go"})
	if !errors.Is(err, ErrNoArticles) {
		t.Errorf("expected ErrNoArticles, got %v", err)
	}
}

func TestController_Run_Cancellation(t *testing.T) {
	c := newTestController(llm.NewMockClient(goodBrief), 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Run(ctx, testJob())
	if !errors.Is(err, ErrJobCancelled) {
		t.Errorf("expected ErrJobCancelled, got %v", err)
	}
	if errors.Is(err, ErrJobFailed) {
		t.Error("cancellation conflated with content failure")
	}
}
