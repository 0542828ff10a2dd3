package reflection

import (
	"fmt"
	"strings"
)

const scoringSystemPrompt = `You are an editorial reviewer scoring an intelligence brief for analytical depth.

Score each dimension from 0 to 10:
- causal_depth: does the analysis trace causes and mechanisms, not just restate events?
- historical_awareness: does it connect current events to relevant precedent and trendlines?
- cross_article_synthesis: does it connect findings across sources rather than summarizing them one by one?
- prediction_specificity: are forward-looking claims concrete, with conditions and timeframes?
- implication_exploration: does it work out second-order consequences for the reader?

Respond with a single JSON object and nothing else:
{
  "causal_depth": {"score": 0, "suggestion": "..."},
  "historical_awareness": {"score": 0, "suggestion": "..."},
  "cross_article_synthesis": {"score": 0, "suggestion": "..."},
  "prediction_specificity": {"score": 0, "suggestion": "..."},
  "implication_exploration": {"score": 0, "suggestion": "..."}
}

Suggestions must name the concrete improvement, one sentence each.`

func scoringUserPrompt(draft string) string {
	var sb strings.Builder
	sb.WriteString("Score the following brief.\n\n")
	sb.WriteString("---\n")
	sb.WriteString(draft)
	if !strings.HasSuffix(draft, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("\nScore all %d dimensions.", len(Dimensions)))
	return sb.String()
}
