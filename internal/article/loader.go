package article

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrNoRecords = errors.New("article file contains no records")

// fileRecord is the on-disk shape, shared between the JSON and YAML
// loaders. PublishedAt accepts RFC 3339 or a bare date.
type fileRecord struct {
	ID            int64   `json:"id" yaml:"id"`
	Title         string  `json:"title" yaml:"title"`
	Source        string  `json:"source" yaml:"source"`
	URL           string  `json:"url" yaml:"url"`
	Content       string  `json:"content" yaml:"content"`
	PublishedAt   string  `json:"published_at" yaml:"published_at"`
	PriorityScore float64 `json:"priority_score" yaml:"priority_score"`
}

// LoadFile reads article records from a JSON or YAML file, chosen by
// extension. Records keep their file order.
func LoadFile(path string) ([]Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading article file: %w", err)
	}

	var records []fileRecord
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing article file %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing article file %s: %w", path, err)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, path)
	}

	articles := make([]Article, 0, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			continue
		}
		a := Article{
			ID:            r.ID,
			Title:         r.Title,
			Source:        r.Source,
			URL:           r.URL,
			Content:       r.Content,
			PriorityScore: r.PriorityScore,
		}
		if a.ID == 0 {
			a.ID = int64(i + 1)
		}
		if r.PublishedAt != "" {
			a.PublishedAt, err = parseDate(r.PublishedAt)
			if err != nil {
				return nil, fmt.Errorf("article %d: %w", i+1, err)
			}
		}
		articles = append(articles, a)
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, path)
	}
	return articles, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized published_at %q", s)
}
