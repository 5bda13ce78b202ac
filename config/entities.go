package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"job-signals/models"
)

// LoadEntities reads the tracked companies from path. A .yml/.yaml file holds
// a list whose items are either a bare name or {name, careers_url}; any other
// file is one name per line with blank lines and # comments skipped.
// Order and duplicates are preserved.
func LoadEntities(path string) ([]models.Entity, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return loadYAMLEntities(path)
	default:
		return loadTextEntities(path)
	}
}

func loadTextEntities(path string) ([]models.Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open entity list %q", path)
	}
	defer f.Close()

	var out []models.Entity
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, models.Entity{Name: line})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read entity list %q", path)
	}
	return out, nil
}

// entityEntry accepts both "- Acme" and "- {name: Acme, careers_url: ...}".
type entityEntry models.Entity

func (e *entityEntry) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		e.Name = n.Value
		return nil
	}
	var m models.Entity
	if err := n.Decode(&m); err != nil {
		return err
	}
	*e = entityEntry(m)
	return nil
}

func loadYAMLEntities(path string) ([]models.Entity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open entity list %q", path)
	}

	var entries []entityEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "parse entity list %q", path),
			"expected a YAML list of names or {name, careers_url} maps")
	}

	out := make([]models.Entity, 0, len(entries))
	for _, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		e.CareersURL = strings.TrimSpace(e.CareersURL)
		out = append(out, models.Entity(e))
	}
	return out, nil
}
