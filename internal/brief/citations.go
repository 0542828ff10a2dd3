package brief

import (
	"github.com/loomworks/loom/internal/article"
)

// BindCitations builds the citation map from the caller-supplied records
// and installs it on the brief, replacing anything the model produced.
// Ordinal 1 is always the first record in input order; the model's own
// citation map is never trusted because models renumber and invent
// sources.
func BindCitations(b *Brief, records []article.Article) {
	cm := make(CitationMap, len(records))
	for i, rec := range records {
		cm[i+1] = Citation{
			ArticleID:   rec.ID,
			Title:       rec.Title,
			Source:      rec.Source,
			URL:         rec.URL,
			PublishedAt: rec.PublishedAt,
		}
	}
	b.Metadata.CitationMap = cm
}

// PruneDanglingCitations drops citation ordinals that do not resolve
// against the bound map, keeping the rest in place. The model sometimes
// cites ordinals past the record count; those references are noise.
func PruneDanglingCitations(b *Brief) {
	valid := func(ords []int) []int {
		out := ords[:0]
		for _, o := range ords {
			if _, ok := b.Metadata.CitationMap[o]; ok {
				out = append(out, o)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	for i := range b.Trends {
		b.Trends[i].Citations = valid(b.Trends[i].Citations)
	}
	for i := range b.PriorityEvents {
		b.PriorityEvents[i].Citations = valid(b.PriorityEvents[i].Citations)
	}
	for i := range b.Predictions {
		b.Predictions[i].Citations = valid(b.Predictions[i].Citations)
	}
}
