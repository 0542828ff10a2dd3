package curate

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/profile"
)

func testAssembler() *Assembler {
	return NewAssembler(NewBudgetEnforcer(DefaultBudgetConfig(), nil), nil)
}

func TestAssembler_Assemble_ComponentOrder(t *testing.T) {
	a := testAssembler()

	bundle, err := a.Assemble(Inputs{
		Instructions: "synthesize the news",
		Articles: []article.Article{
			{ID: 1, Title: "Rate decision", Source: "wire", PublishedAt: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), Content: "The bank held rates."},
		},
		Memory:    "last week covered the same bank",
		Reference: "glossary of terms",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{ComponentInstructions, ComponentArticles, ComponentMemory, ComponentReference}
	if len(bundle.Components) != len(want) {
		t.Fatalf("got %d components, want %d", len(bundle.Components), len(want))
	}
	for i, name := range want {
		if bundle.Components[i].Name != name {
			t.Errorf("component %d = %s, want %s", i, bundle.Components[i].Name, name)
		}
	}

	prompt := bundle.SystemPrompt()
	if !strings.Contains(prompt, "### Article 1") {
		t.Error("articles not rendered with ordinals")
	}
	if !strings.Contains(prompt, "Rate decision") {
		t.Error("article title missing from prompt")
	}
	if strings.Index(prompt, "synthesize the news") > strings.Index(prompt, "Rate decision") {
		t.Error("instructions do not precede articles")
	}
}

func TestAssembler_Assemble_RequiresInstructions(t *testing.T) {
	a := testAssembler()

	_, err := a.Assemble(Inputs{Instructions: "   \n"})
	if !errors.Is(err, ErrNoInstructions) {
		t.Errorf("expected ErrNoInstructions, got %v", err)
	}
}

func TestAssembler_Assemble_ProfileFoldedIntoInstructions(t *testing.T) {
	a := testAssembler()

	prof := &profile.Profile{
		Location:            "Dayton, Ohio",
		ProfessionalDomains: []string{"logistics"},
	}
	bundle, err := a.Assemble(Inputs{
		Instructions: "synthesize the news",
		Articles:     []article.Article{{ID: 1, Title: "t", Content: "c"}},
		Profile:      prof,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	instr := bundle.Component(ComponentInstructions)
	if !strings.Contains(instr.Text, "Dayton, Ohio") {
		t.Error("profile location missing from instructions component")
	}
	if !strings.Contains(instr.Text, "synthesize the news") {
		t.Error("base instructions missing")
	}
}

func TestAssembler_Assemble_OptionalComponentsOmitted(t *testing.T) {
	a := testAssembler()

	bundle, err := a.Assemble(Inputs{Instructions: "go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bundle.Components) != 1 {
		t.Errorf("got %d components, want instructions only", len(bundle.Components))
	}
	if bundle.Component(ComponentArticles) != nil {
		t.Error("empty articles produced a component")
	}
}

func TestAssembler_Assemble_EnforcesBudget(t *testing.T) {
	cfg := BudgetConfig{Ceiling: 200, Instructions: 100, Articles: 80, Memory: 20, Reference: 10}
	a := NewAssembler(NewBudgetEnforcer(cfg, nil), nil)

	bundle, err := a.Assemble(Inputs{
		Instructions: "short",
		Articles: []article.Article{
			{ID: 1, Title: "big", Content: strings.Repeat("content ", 500)},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := bundle.TotalTokens(); got > cfg.Ceiling {
		t.Errorf("assembled bundle %d tokens exceeds ceiling %d", got, cfg.Ceiling)
	}
	if !strings.Contains(bundle.Component(ComponentArticles).Text, TruncationMarker) {
		t.Error("oversized articles not marked truncated")
	}
}
