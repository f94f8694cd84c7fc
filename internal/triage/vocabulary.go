package triage

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary holds the phrase sets for each tier. It is data, not logic: the
// evaluation order lives in Classify and does not change when phrases do.
type Vocabulary struct {
	Emergency []string `yaml:"emergency"`
	Urgent    []string `yaml:"urgent"`
}

// DefaultVocabulary returns the built-in phrase sets.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Emergency: []string{"chest pain", "heart attack", "bleeding", "unconscious", "breathing", "stroke"},
		Urgent:    []string{"fever", "fracture", "broken", "pain", "vomiting", "dizziness"},
	}
}

// LoadVocabulary reads a YAML vocabulary file. An empty path yields the defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and normalizes a YAML vocabulary document.
func ParseVocabulary(data []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	v = v.normalized()
	if len(v.Emergency) == 0 {
		return Vocabulary{}, fmt.Errorf("vocabulary: emergency tier is empty")
	}
	return v, nil
}

// normalized lower-cases and trims phrases and drops blanks so matching stays
// a plain substring test against lower-cased input.
func (v Vocabulary) normalized() Vocabulary {
	return Vocabulary{
		Emergency: normalizePhrases(v.Emergency),
		Urgent:    normalizePhrases(v.Urgent),
	}
}

func normalizePhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Classify evaluates the tiers in order and returns on the first match.
// It is total and deterministic; text with no recognized phrase is Routine.
func (v Vocabulary) Classify(text string) Priority {
	lower := strings.ToLower(text)
	if containsAny(lower, v.Emergency) {
		return PriorityEmergency
	}
	if containsAny(lower, v.Urgent) {
		return PriorityUrgent
	}
	return PriorityRoutine
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
