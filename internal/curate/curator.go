// Package curate assembles the named context components for one synthesis
// run and enforces the token budget over the resulting bundle. Token counts
// are estimates (roughly four characters per token); the generation service
// re-validates at its own layer.
package curate

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/profile"
)

// Well-known component names. Instructions are never dropped by the budget
// enforcer; the rest are compressed in ascending priority order.
const (
	ComponentInstructions = "instructions"
	ComponentArticles     = "articles"
	ComponentMemory       = "memory"
	ComponentReference    = "reference"
)

var (
	ErrDuplicateComponent = errors.New("duplicate context component")
	ErrNoInstructions     = errors.New("bundle has no instructions component")
)

// Component is one named piece of context. Identity is the name, unique
// within a bundle; a component is immutable once placed.
type Component struct {
	Name            string
	Text            string
	EstimatedTokens int

	// Priority orders compression: lowest priority is truncated first.
	Priority int

	// Allocation is the per-component token ceiling used when the bundle
	// must be compressed.
	Allocation int
}

// Bundle is the ordered set of components for one generation request.
type Bundle struct {
	Components []Component
	Ceiling    int

	// Degraded is set when even maximal truncation could not fit the
	// ceiling and the smallest feasible bundle was kept instead.
	Degraded bool
}

// TotalTokens returns the summed size estimate across components.
func (b *Bundle) TotalTokens() int {
	total := 0
	for _, c := range b.Components {
		total += c.EstimatedTokens
	}
	return total
}

// Component returns the named component, or nil if absent.
func (b *Bundle) Component(name string) *Component {
	for i := range b.Components {
		if b.Components[i].Name == name {
			return &b.Components[i]
		}
	}
	return nil
}

// SystemPrompt renders the bundle as the system message for generation:
// user context and instructions first, then articles, then historical
// memory and reference data.
func (b *Bundle) SystemPrompt() string {
	var sb strings.Builder
	for _, c := range b.Components {
		if c.Text == "" {
			continue
		}
		sb.WriteString(c.Text)
		if !strings.HasSuffix(c.Text, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// EstimateTokens approximates generation tokens from text length.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Assembler gathers context components from collaborators into a bundle.
type Assembler struct {
	enforcer *BudgetEnforcer
	logger   *zap.Logger
}

// NewAssembler creates an assembler that enforces the given budget.
func NewAssembler(enforcer *BudgetEnforcer, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{enforcer: enforcer, logger: logger}
}

// Inputs carries the collaborator-supplied raw material for one run.
type Inputs struct {
	Instructions string
	Articles     []article.Article
	Memory       string
	Reference    string
	Profile      *profile.Profile
}

// Assemble builds the bundle from the inputs and enforces the budget.
// Component order fixes the rendered prompt layout.
func (a *Assembler) Assemble(in Inputs) (*Bundle, error) {
	instructions := in.Instructions
	if in.Profile != nil {
		instructions = in.Profile.FormatForContext() + "\n" + instructions
	}
	if strings.TrimSpace(instructions) == "" {
		return nil, ErrNoInstructions
	}

	bundle := &Bundle{Ceiling: a.enforcer.Ceiling()}

	add := func(name, text string, priority, allocation int) error {
		if bundle.Component(name) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
		}
		bundle.Components = append(bundle.Components, Component{
			Name:            name,
			Text:            text,
			EstimatedTokens: EstimateTokens(text),
			Priority:        priority,
			Allocation:      allocation,
		})
		return nil
	}

	alloc := a.enforcer.Allocations()
	// Instructions carry the highest priority; memory and reference go first
	// under compression.
	if err := add(ComponentInstructions, instructions, 100, alloc[ComponentInstructions]); err != nil {
		return nil, err
	}
	if len(in.Articles) > 0 {
		if err := add(ComponentArticles, FormatArticles(in.Articles), 50, alloc[ComponentArticles]); err != nil {
			return nil, err
		}
	}
	if in.Memory != "" {
		if err := add(ComponentMemory, "## Historical Context\n"+in.Memory, 20, alloc[ComponentMemory]); err != nil {
			return nil, err
		}
	}
	if in.Reference != "" {
		if err := add(ComponentReference, "## Reference Data\n"+in.Reference, 10, alloc[ComponentReference]); err != nil {
			return nil, err
		}
	}

	a.enforcer.Enforce(bundle)

	a.logger.Debug("context bundle assembled",
		zap.Int("components", len(bundle.Components)),
		zap.Int("tokens", bundle.TotalTokens()),
		zap.Bool("degraded", bundle.Degraded))

	return bundle, nil
}

// FormatArticles renders the article records as the articles component.
func FormatArticles(articles []article.Article) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Recent Articles (%d total)\n", len(articles)))
	for i, art := range articles {
		sb.WriteString(fmt.Sprintf("\n### Article %d\n", i+1))
		sb.WriteString(fmt.Sprintf("**Title:** %s\n", art.Title))
		sb.WriteString(fmt.Sprintf("**Source:** %s\n", art.Source))
		if !art.PublishedAt.IsZero() {
			sb.WriteString(fmt.Sprintf("**Date:** %s\n", art.PublishedAt.Format("2006-01-02")))
		}
		if art.Content != "" {
			sb.WriteString(fmt.Sprintf("**Content:** %s\n", art.Content))
		}
	}
	return sb.String()
}
