package brief

import (
	"fmt"
	"strings"
)

// synthesisTask renders the user message for one synthesis attempt. The
// article ordinals in the prompt match the caller's record order, which
// is also how the citation map is bound afterward.
func synthesisTask(topic string, recordCount int) string {
	var sb strings.Builder
	sb.WriteString("Synthesize the articles above into a single intelligence brief")
	if topic != "" {
		fmt.Fprintf(&sb, " focused on %q", topic)
	}
	sb.WriteString(".\n\n")
	fmt.Fprintf(&sb, "Cite articles by their number (1 through %d, as presented above). Every trend, event, and prediction should cite the articles supporting it.\n\n", recordCount)
	sb.WriteString(`Respond with a single JSON object and nothing else:
{
  "bottom_line": "The 2-3 sentence takeaway a busy reader needs.",
  "trends_and_patterns": [
    {"scope": "local|state_regional|national|global|niche_field", "summary": "...", "citations": [1]}
  ],
  "priority_events": [
    {"title": "...", "severity": "CRITICAL|HIGH|MEDIUM|LOW", "summary": "...", "citations": [1]}
  ],
  "predictions_scenarios": [
    {"scenario": "...", "confidence": 0.0, "citations": [1]}
  ]
}

Analysis requirements:
- Trace causes and mechanisms, not just events.
- Connect findings across articles; do not summarize them one by one.
- Make predictions concrete: conditions, timeframes, confidence between 0 and 1.
- Work out what each development means for the reader described in the context.`)
	return sb.String()
}
