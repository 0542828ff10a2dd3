// Package brief drives a single synthesis job from raw articles to an
// accepted brief. It owns the retry state machine, the citation binding,
// and the trust constraints that tighten the prompt between attempts.
package brief

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/repair"
)

// Event severity levels, most urgent first.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Trend scopes, from the reader's street to their field.
var TrendScopes = []string{"local", "state_regional", "national", "global", "niche_field"}

// Trend is one pattern the synthesis found across articles.
type Trend struct {
	Scope     string `json:"scope"`
	Summary   string `json:"summary"`
	Citations []int  `json:"citations,omitempty"`
}

// Event is one discrete development worth the reader's attention.
type Event struct {
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Summary   string `json:"summary"`
	Citations []int  `json:"citations,omitempty"`
}

// Prediction is a forward-looking scenario with the model's confidence.
type Prediction struct {
	Scenario   string  `json:"scenario"`
	Confidence float64 `json:"confidence"`
	Citations  []int   `json:"citations,omitempty"`
}

// Citation resolves one ordinal to the record it cites.
type Citation struct {
	ArticleID   int64     `json:"article_id,omitempty"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// CitationMap maps citation ordinals (1-based, in record input order) to
// the records they reference.
type CitationMap map[int]Citation

// AttemptRecord summarizes one pass through the synthesis state machine,
// kept for operator diagnostics.
type AttemptRecord struct {
	Attempt       int     `json:"attempt"`
	Outcome       string  `json:"outcome"`
	ParseStrategy string  `json:"parse_strategy,omitempty"`
	DepthScore    float64 `json:"depth_score,omitempty"`
	Refined       bool    `json:"refined,omitempty"`
	TrustPassed   bool    `json:"trust_passed,omitempty"`
	Failure       string  `json:"failure,omitempty"`
}

// Metadata carries provenance for an accepted brief.
type Metadata struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Model       string          `json:"model"`
	Degraded    bool            `json:"degraded,omitempty"`
	CitationMap CitationMap     `json:"citation_map"`
	Attempts    []AttemptRecord `json:"attempts,omitempty"`
}

// Brief is one accepted synthesis output.
type Brief struct {
	ID             uuid.UUID    `json:"id"`
	Topic          string       `json:"topic,omitempty"`
	BottomLine     string       `json:"bottom_line"`
	Trends         []Trend      `json:"trends_and_patterns,omitempty"`
	PriorityEvents []Event      `json:"priority_events,omitempty"`
	Predictions    []Prediction `json:"predictions_scenarios,omitempty"`
	Metadata       Metadata     `json:"metadata"`
}

// Summary renders a short plain-text digest of the brief, used for the
// historical memory index.
func (b *Brief) Summary() string {
	var sb strings.Builder
	sb.WriteString(b.BottomLine)
	for _, e := range b.PriorityEvents {
		if e.Severity == SeverityCritical || e.Severity == SeverityHigh {
			sb.WriteString("\n- ")
			sb.WriteString(e.Title)
		}
	}
	return sb.String()
}

// decodeBrief maps a parsed result onto the brief schema. Unknown scopes
// and severities pass through as written; validation against the fixed
// vocabularies is the audit layer's job, not the decoder's.
func decodeBrief(result repair.Result) *Brief {
	b := &Brief{
		ID:         uuid.New(),
		BottomLine: result.String("bottom_line"),
	}
	for _, item := range result.List("trends_and_patterns") {
		if m, ok := item.(map[string]any); ok {
			b.Trends = append(b.Trends, Trend{
				Scope:     str(m, "scope"),
				Summary:   str(m, "summary"),
				Citations: ints(m, "citations"),
			})
		}
	}
	for _, item := range result.List("priority_events") {
		if m, ok := item.(map[string]any); ok {
			b.PriorityEvents = append(b.PriorityEvents, Event{
				Title:     str(m, "title"),
				Severity:  strings.ToUpper(str(m, "severity")),
				Summary:   str(m, "summary"),
				Citations: ints(m, "citations"),
			})
		}
	}
	for _, item := range result.List("predictions_scenarios") {
		if m, ok := item.(map[string]any); ok {
			p := Prediction{
				Scenario:  str(m, "scenario"),
				Citations: ints(m, "citations"),
			}
			if c, ok := m["confidence"].(float64); ok {
				p.Confidence = c
			}
			b.Predictions = append(b.Predictions, p)
		}
	}
	return b
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func ints(m map[string]any, key string) []int {
	raw, _ := m[key].([]any)
	var out []int
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}
