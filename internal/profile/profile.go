// Package profile loads the requester's priorities and domains from a YAML
// file. The profile is read-only context: it is folded into the instructions
// component of every synthesis run and never mutated by the pipeline.
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("profile file not found")
	ErrInvalid  = errors.New("invalid profile")
)

// Profile describes the requester whose brief is being generated.
type Profile struct {
	Location            string   `yaml:"location"`
	ProfessionalDomains []string `yaml:"professional_domains"`
	CivicInterests      []string `yaml:"civic_interests"`
	PriorityTopics      []string `yaml:"priority_topics"`
	ActiveDecisions     []string `yaml:"active_decisions"`
	Version             string   `yaml:"version"`
}

// Load reads a profile from path.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(p.ProfessionalDomains) == 0 && len(p.PriorityTopics) == 0 {
		return nil, fmt.Errorf("%w: profile declares no domains or priority topics", ErrInvalid)
	}

	return &p, nil
}

// FormatForContext renders the profile as the user-context block embedded in
// the instructions component.
func (p *Profile) FormatForContext() string {
	var b strings.Builder

	b.WriteString("## User Context\n")
	if p.Location != "" {
		b.WriteString(fmt.Sprintf("Location: %s\n", p.Location))
	}
	if len(p.ProfessionalDomains) > 0 {
		b.WriteString(fmt.Sprintf("Professional Domains: %s\n", strings.Join(p.ProfessionalDomains, ", ")))
	}
	if len(p.CivicInterests) > 0 {
		b.WriteString(fmt.Sprintf("Civic Interests: %s\n", strings.Join(p.CivicInterests, ", ")))
	}
	if len(p.PriorityTopics) > 0 {
		b.WriteString(fmt.Sprintf("Priority Topics: %s\n", strings.Join(p.PriorityTopics, ", ")))
	}
	if len(p.ActiveDecisions) > 0 {
		b.WriteString(fmt.Sprintf("Active Decisions: %s\n", strings.Join(p.ActiveDecisions, ", ")))
	}

	return b.String()
}
