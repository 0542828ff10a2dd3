// Package trust audits a draft brief against its source material. Claims
// are extracted and checked one by one, loaded language and tone problems
// are flagged, and a fixed numeric rule decides whether the draft can be
// trusted or must be regenerated under stricter constraints.
package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/repair"
)

// ErrVerificationFailed marks a draft that the audit rejected. The retry
// layer reacts by regenerating under accumulated constraints.
var ErrVerificationFailed = errors.New("trust verification failed")

// ClaimType classifies how a claim relates to its sources.
type ClaimType string

const (
	ClaimFact        ClaimType = "FACT"
	ClaimInference   ClaimType = "INFERENCE"
	ClaimSpeculation ClaimType = "SPECULATION"
	ClaimOpinion     ClaimType = "OPINION"
)

// Verdict is the outcome of checking one claim against the sources.
type Verdict string

const (
	VerdictVerified     Verdict = "VERIFIED"
	VerdictContradicted Verdict = "CONTRADICTED"
	VerdictUnverifiable Verdict = "UNVERIFIABLE"
	VerdictError        Verdict = "ERROR"
)

// Severity grades a language or tone finding.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Claim is one factual assertion lifted from the draft.
type Claim struct {
	Text    string
	Type    ClaimType
	Verdict Verdict
}

// Finding is one loaded-language or tone problem in the draft.
type Finding struct {
	Phrase   string
	Severity Severity
	Note     string
}

// Analysis is the full audit of one draft.
type Analysis struct {
	Claims         []Claim
	LoadedLanguage []Finding
	ToneIssues     []Finding
}

// TotalClaims counts every extracted claim.
func (a Analysis) TotalClaims() int { return len(a.Claims) }

// ContradictedClaims counts claims the sources contradict.
func (a Analysis) ContradictedClaims() int {
	n := 0
	for _, c := range a.Claims {
		if c.Verdict == VerdictContradicted {
			n++
		}
	}
	return n
}

// ContradictedRatio returns contradicted over total claims. A draft with
// no claims has ratio zero.
func (a Analysis) ContradictedRatio() float64 {
	if len(a.Claims) == 0 {
		return 0
	}
	return float64(a.ContradictedClaims()) / float64(a.TotalClaims())
}

func (a Analysis) highSeverityTone() []Finding {
	var out []Finding
	for _, f := range a.ToneIssues {
		if f.Severity == SeverityHigh {
			out = append(out, f)
		}
	}
	return out
}

// Thresholds is the acceptance rule. Both comparisons are inclusive: a
// draft sitting exactly on a limit passes.
type Thresholds struct {
	MaxContradictedRatio float64
	MaxLoadedLanguage    int
}

// DefaultThresholds returns the standard rule: at most 5% of claims
// contradicted, at most 3 loaded-language findings, and no high-severity
// tone issue.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxContradictedRatio: 0.05,
		MaxLoadedLanguage:    3,
	}
}

// Report is the pass/fail decision plus the specific violations, phrased
// for operator logs and retry prompts.
type Report struct {
	Passed     bool
	Violations []string
}

// Evaluate applies the thresholds to an analysis.
func (t Thresholds) Evaluate(a Analysis) Report {
	var violations []string
	if ratio := a.ContradictedRatio(); ratio > t.MaxContradictedRatio {
		violations = append(violations, fmt.Sprintf(
			"%d of %d claims contradicted by sources (%.1f%%, limit %.1f%%)",
			a.ContradictedClaims(), a.TotalClaims(), ratio*100, t.MaxContradictedRatio*100))
	}
	if n := len(a.LoadedLanguage); n > t.MaxLoadedLanguage {
		violations = append(violations, fmt.Sprintf(
			"%d loaded-language findings (limit %d)", n, t.MaxLoadedLanguage))
	}
	if high := a.highSeverityTone(); len(high) > 0 {
		violations = append(violations, fmt.Sprintf(
			"%d high-severity tone issues", len(high)))
	}
	return Report{Passed: len(violations) == 0, Violations: violations}
}

// Verifier runs the audit via a secondary model call.
type Verifier struct {
	client     llm.Client
	parser     *repair.Parser
	thresholds Thresholds
	model      string
	maxTokens  int
	logger     *zap.Logger
}

// NewVerifier creates a verifier. model names the audit model; it may be
// cheaper than the synthesis model since the task is extraction, not
// generation.
func NewVerifier(client llm.Client, thresholds Thresholds, model string, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		client:     client,
		parser:     repair.NewParser(logger.Named("repair")),
		thresholds: thresholds,
		model:      model,
		maxTokens:  4096,
		logger:     logger,
	}
}

// Thresholds returns the acceptance rule in use.
func (v *Verifier) Thresholds() Thresholds { return v.thresholds }

// Verify audits the draft against its source material and applies the
// thresholds. The analysis is returned alongside the report so callers
// can log or persist the full audit.
func (v *Verifier) Verify(ctx context.Context, draft, sources string) (Analysis, Report, error) {
	resp, err := v.client.Complete(ctx, llm.Request{
		Model:       v.model,
		System:      auditSystemPrompt,
		User:        auditUserPrompt(draft, sources),
		Temperature: 0,
		MaxTokens:   v.maxTokens,
	})
	if err != nil {
		return Analysis{}, Report{}, fmt.Errorf("trust audit call: %w", err)
	}

	result, _, err := v.parser.Parse(resp.Text)
	if err != nil {
		return Analysis{}, Report{}, fmt.Errorf("trust audit response: %w", err)
	}

	analysis := decodeAnalysis(result)
	report := v.thresholds.Evaluate(analysis)

	v.logger.Info("draft audited",
		zap.Int("claims", analysis.TotalClaims()),
		zap.Int("contradicted", analysis.ContradictedClaims()),
		zap.Int("loaded_language", len(analysis.LoadedLanguage)),
		zap.Bool("passed", report.Passed))
	return analysis, report, nil
}

func decodeAnalysis(result repair.Result) Analysis {
	var a Analysis
	for _, item := range result.List("claims") {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["text"].(string)
		if strings.TrimSpace(text) == "" {
			continue
		}
		claim := Claim{
			Text:    text,
			Type:    normalizeClaimType(m["type"]),
			Verdict: normalizeVerdict(m["verdict"]),
		}
		// Speculation and opinion have no source of truth to check
		// against, so their verdict is always UNVERIFIABLE no matter
		// what the audit model returned.
		if claim.Type == ClaimSpeculation || claim.Type == ClaimOpinion {
			claim.Verdict = VerdictUnverifiable
		}
		a.Claims = append(a.Claims, claim)
	}
	a.LoadedLanguage = decodeFindings(result.List("loaded_language"))
	a.ToneIssues = decodeFindings(result.List("tone_issues"))
	return a
}

func decodeFindings(items []any) []Finding {
	var out []Finding
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		phrase, _ := m["phrase"].(string)
		note, _ := m["note"].(string)
		if strings.TrimSpace(phrase) == "" && strings.TrimSpace(note) == "" {
			continue
		}
		out = append(out, Finding{
			Phrase:   phrase,
			Severity: normalizeSeverity(m["severity"]),
			Note:     note,
		})
	}
	return out
}

func normalizeClaimType(v any) ClaimType {
	s, _ := v.(string)
	switch ClaimType(strings.ToUpper(strings.TrimSpace(s))) {
	case ClaimFact:
		return ClaimFact
	case ClaimInference:
		return ClaimInference
	case ClaimSpeculation:
		return ClaimSpeculation
	case ClaimOpinion:
		return ClaimOpinion
	}
	return ClaimInference
}

// normalizeVerdict maps unknown verdict strings to ERROR rather than
// guessing, so a malformed audit can never silently pass a claim.
func normalizeVerdict(v any) Verdict {
	s, _ := v.(string)
	switch Verdict(strings.ToUpper(strings.TrimSpace(s))) {
	case VerdictVerified:
		return VerdictVerified
	case VerdictContradicted:
		return VerdictContradicted
	case VerdictUnverifiable:
		return VerdictUnverifiable
	}
	return VerdictError
}

func normalizeSeverity(v any) Severity {
	s, _ := v.(string)
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	}
	return SeverityLow
}
