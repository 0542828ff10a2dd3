package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/loomworks/loom/internal/llm"
)

func analysisWithClaims(total, contradicted int) Analysis {
	var a Analysis
	for i := 0; i < total; i++ {
		verdict := VerdictVerified
		if i < contradicted {
			verdict = VerdictContradicted
		}
		a.Claims = append(a.Claims, Claim{
			Text:    fmt.Sprintf("claim %d", i),
			Type:    ClaimFact,
			Verdict: verdict,
		})
	}
	return a
}

func TestThresholds_ContradictedBoundaryInclusive(t *testing.T) {
	th := DefaultThresholds()

	// Exactly 5%: 1 contradicted of 20 passes.
	report := th.Evaluate(analysisWithClaims(20, 1))
	if !report.Passed {
		t.Errorf("exactly 5%% contradicted rejected: %v", report.Violations)
	}

	// Just over: 2 of 20 fails.
	report = th.Evaluate(analysisWithClaims(20, 2))
	if report.Passed {
		t.Error("10% contradicted accepted")
	}
	if len(report.Violations) == 0 || !strings.Contains(report.Violations[0], "contradicted") {
		t.Errorf("violations = %v", report.Violations)
	}
}

func TestThresholds_LoadedLanguageBoundaryInclusive(t *testing.T) {
	th := DefaultThresholds()

	a := analysisWithClaims(10, 0)
	for i := 0; i < 3; i++ {
		a.LoadedLanguage = append(a.LoadedLanguage, Finding{Phrase: "shocking", Severity: SeverityLow})
	}
	if report := th.Evaluate(a); !report.Passed {
		t.Errorf("exactly 3 loaded findings rejected: %v", report.Violations)
	}

	a.LoadedLanguage = append(a.LoadedLanguage, Finding{Phrase: "disastrous", Severity: SeverityLow})
	if report := th.Evaluate(a); report.Passed {
		t.Error("4 loaded findings accepted")
	}
}

func TestThresholds_HighSeverityToneFails(t *testing.T) {
	th := DefaultThresholds()

	a := analysisWithClaims(10, 0)
	a.ToneIssues = append(a.ToneIssues, Finding{Phrase: "we must act", Severity: SeverityMedium})
	if report := th.Evaluate(a); !report.Passed {
		t.Errorf("medium tone issue rejected: %v", report.Violations)
	}

	a.ToneIssues = append(a.ToneIssues, Finding{Phrase: "wake up, people", Severity: SeverityHigh})
	report := th.Evaluate(a)
	if report.Passed {
		t.Error("high severity tone issue accepted")
	}
	if !strings.Contains(strings.Join(report.Violations, " "), "tone") {
		t.Errorf("violations = %v", report.Violations)
	}
}

func TestThresholds_NoClaimsPasses(t *testing.T) {
	if report := DefaultThresholds().Evaluate(Analysis{}); !report.Passed {
		t.Errorf("empty analysis rejected: %v", report.Violations)
	}
}

const auditResponse = `{
  "claims": [
    {"text": "the bank held rates", "type": "FACT", "verdict": "VERIFIED"},
    {"text": "inflation will fall", "type": "SPECULATION", "verdict": "UNVERIFIABLE"},
    {"text": "the mayor resigned", "type": "fact", "verdict": "contradicted"}
  ],
  "loaded_language": [
    {"phrase": "reckless spending", "severity": "MEDIUM", "note": "editorializing"}
  ],
  "tone_issues": []
}`

func TestVerifier_Verify_DecodesAnalysis(t *testing.T) {
	mock := llm.NewMockClient(auditResponse)
	v := NewVerifier(mock, DefaultThresholds(), "audit-model", nil)

	analysis, report, err := v.Verify(context.Background(), "draft text", "source text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if analysis.TotalClaims() != 3 {
		t.Errorf("total claims = %d", analysis.TotalClaims())
	}
	if analysis.ContradictedClaims() != 1 {
		t.Errorf("contradicted = %d", analysis.ContradictedClaims())
	}
	// Lowercase labels normalize.
	if analysis.Claims[2].Type != ClaimFact || analysis.Claims[2].Verdict != VerdictContradicted {
		t.Errorf("claim 3 = %+v", analysis.Claims[2])
	}
	if len(analysis.LoadedLanguage) != 1 || analysis.LoadedLanguage[0].Severity != SeverityMedium {
		t.Errorf("loaded language = %+v", analysis.LoadedLanguage)
	}

	// 1/3 contradicted is far over 5%.
	if report.Passed {
		t.Error("draft with 33% contradicted claims accepted")
	}

	req := mock.LastPrompt()
	if req.Model != "audit-model" {
		t.Errorf("model = %q", req.Model)
	}
	if !strings.Contains(req.User, "draft text") || !strings.Contains(req.User, "source text") {
		t.Error("audit prompt missing draft or sources")
	}
}

func TestVerifier_Verify_UnknownVerdictIsError(t *testing.T) {
	mock := llm.NewMockClient(`{"claims": [{"text": "x", "type": "FACT", "verdict": "PROBABLY"}]}`)
	v := NewVerifier(mock, DefaultThresholds(), "m", nil)

	analysis, report, err := v.Verify(context.Background(), "d", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if analysis.Claims[0].Verdict != VerdictError {
		t.Errorf("unknown verdict mapped to %s", analysis.Claims[0].Verdict)
	}
	// ERROR is not CONTRADICTED; it does not trip the ratio.
	if !report.Passed {
		t.Errorf("ERROR verdict counted as contradiction: %v", report.Violations)
	}
}

func TestVerifier_Verify_SpeculationNeverContradicted(t *testing.T) {
	mock := llm.NewMockClient(`{"claims": [
		{"text": "rates will rise", "type": "SPECULATION", "verdict": "CONTRADICTED"},
		{"text": "the deal is a mistake", "type": "OPINION", "verdict": "VERIFIED"}
	]}`)
	v := NewVerifier(mock, DefaultThresholds(), "m", nil)

	analysis, report, err := v.Verify(context.Background(), "d", "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range analysis.Claims {
		if c.Verdict != VerdictUnverifiable {
			t.Errorf("claim %d verdict = %s, want UNVERIFIABLE", i, c.Verdict)
		}
	}
	if !report.Passed {
		t.Errorf("speculative claims tripped the ratio: %v", report.Violations)
	}
}

func TestVerifier_Verify_TransportError(t *testing.T) {
	mock := llm.NewMockClientWithError(errors.New("down"))
	v := NewVerifier(mock, DefaultThresholds(), "m", nil)

	_, _, err := v.Verify(context.Background(), "d", "s")
	if err == nil {
		t.Fatal("expected error")
	}
}
