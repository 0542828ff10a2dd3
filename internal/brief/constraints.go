package brief

import (
	"strings"

	"github.com/loomworks/loom/internal/trust"
)

// The constraint texts appended to the prompt after a trust failure. Each
// maps to the threshold that tripped; constraints accumulate across
// attempts and are never removed once added.
const (
	constraintFactualAccuracy = `CRITICAL CONSTRAINT: Every factual claim must be directly supported by the provided articles. If the articles do not state it, do not write it. Prefer "the articles do not address X" over filling gaps from general knowledge.`

	constraintNeutralFraming = `CRITICAL CONSTRAINT: Use strictly neutral framing. No emotionally charged adjectives, no editorializing, no language that pushes the reader toward a conclusion. Report what the sources say, attribute positions to who holds them.`

	constraintProfessionalTone = `CRITICAL CONSTRAINT: Maintain a flat professional register throughout. No alarmism, no advocacy, no rhetorical questions. Write like an intelligence analyst, not a columnist.`
)

// Constraints accumulates trust-failure constraints across retry
// attempts. The zero value is ready to use.
type Constraints struct {
	active []string
	seen   map[string]bool
}

// Augment adds the constraints matching the report's violations. Adding
// the same constraint twice is a no-op, so repeated failures of one kind
// keep the prompt stable.
func (c *Constraints) Augment(report trust.Report) {
	for _, v := range report.Violations {
		switch {
		case strings.Contains(v, "contradicted"):
			c.add(constraintFactualAccuracy)
		case strings.Contains(v, "loaded-language"):
			c.add(constraintNeutralFraming)
		case strings.Contains(v, "tone"):
			c.add(constraintProfessionalTone)
		}
	}
	// A failure that matched nothing still tightens factual accuracy,
	// the broadest of the three.
	if len(c.active) == 0 && len(report.Violations) > 0 {
		c.add(constraintFactualAccuracy)
	}
}

func (c *Constraints) add(text string) {
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[text] {
		return
	}
	c.seen[text] = true
	c.active = append(c.active, text)
}

// Len returns how many distinct constraints are active.
func (c *Constraints) Len() int { return len(c.active) }

// Render returns the constraint block to append to the system prompt, or
// "" when no constraints are active.
func (c *Constraints) Render() string {
	if len(c.active) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n## Mandatory Constraints\n\nYour previous draft failed verification. These constraints are non-negotiable:\n")
	for _, text := range c.active {
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
