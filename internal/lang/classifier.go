// Package lang decides whether an utterance is a field value or one of the
// closed-vocabulary control phrases ("done", "skip", and their equivalents).
// The vocabularies are data, not logic: they live in phrases.yaml and are
// selected by the session's language tag, keeping the engine's transition
// function language-agnostic.
package lang

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed phrases.yaml
var phrasesYAML []byte

// Kind classifies an utterance.
type Kind int

const (
	// KindValue means the utterance is free text — a field value.
	KindValue Kind = iota
	// KindConfirm means the user said they finished writing.
	KindConfirm
	// KindSkip means the user wants to skip the current field.
	KindSkip
)

// Table holds the control vocabulary for one language.
type Table struct {
	Confirm []string `yaml:"confirm"`
	Skip    []string `yaml:"skip"`
}

// Classifier matches utterances against per-language phrase tables.
type Classifier struct {
	tables map[string]Table
}

// Load parses the embedded phrase tables.
func Load() (*Classifier, error) {
	return Parse(phrasesYAML)
}

// Parse builds a Classifier from YAML. Exposed so deployments can swap in
// their own vocabulary file.
func Parse(data []byte) (*Classifier, error) {
	tables := make(map[string]Table)
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parsing phrase tables: %w", err)
	}
	if _, ok := tables["en"]; !ok {
		return nil, fmt.Errorf("phrase tables missing required language %q", "en")
	}
	return &Classifier{tables: tables}, nil
}

// Languages returns the language tags with a vocabulary.
func (c *Classifier) Languages() []string {
	out := make([]string, 0, len(c.tables))
	for k := range c.tables {
		out = append(out, k)
	}
	return out
}

// Classify maps text to a Kind using the given language's table. Unknown
// languages fall back to English. Comparison is on the trimmed, case-folded
// utterance; the original casing is never altered for storage.
func (c *Classifier) Classify(text, language string) Kind {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return KindValue
	}
	table, ok := c.tables[normalizeTag(language)]
	if !ok {
		table = c.tables["en"]
	}
	if matches(table.Confirm, normalized) {
		return KindConfirm
	}
	if matches(table.Skip, normalized) {
		return KindSkip
	}
	return KindValue
}

func matches(phrases []string, normalized string) bool {
	for _, p := range phrases {
		if strings.ToLower(strings.TrimSpace(p)) == normalized {
			return true
		}
	}
	return false
}

// normalizeTag reduces tags like "ml-IN" or "ML" to the bare language code.
func normalizeTag(language string) string {
	tag := strings.ToLower(strings.ReplaceAll(language, "_", "-"))
	if i := strings.Index(tag, "-"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
