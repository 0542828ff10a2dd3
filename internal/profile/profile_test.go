package profile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeProfile(t, `
location: "Dayton, Ohio"
professional_domains:
  - logistics
  - supply chain
priority_topics:
  - rail freight
active_decisions:
  - relocating warehouse
version: "2"
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Location != "Dayton, Ohio" {
		t.Errorf("location = %q", p.Location)
	}
	if len(p.ProfessionalDomains) != 2 {
		t.Errorf("domains = %v", p.ProfessionalDomains)
	}

	ctx := p.FormatForContext()
	for _, want := range []string{"## User Context", "Dayton, Ohio", "logistics", "rail freight", "relocating warehouse"} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q", want)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "location: [unclosed"},
		{"empty of substance", "location: somewhere\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeProfile(t, tt.content))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
