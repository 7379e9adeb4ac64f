package mappers

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PublicationTypeOther = "Other"
	OrcidWorkTypeOther   = "other"

	StatusPublished = "Published"
	StatusInPress   = "In Press"
)

//go:embed vocabularies.yaml
var vocabulariesYAML []byte

type vocabularies struct {
	ActivityInsight    map[string]string `yaml:"activity_insight_publication_types"`
	Pure               map[string]string `yaml:"pure_publication_types"`
	Orcid              map[string]string `yaml:"orcid_work_types"`
	OAPublicationTypes []string          `yaml:"oa_publication_types"`
	Statuses           map[string]string `yaml:"publication_statuses"`

	oaTypes map[string]bool
}

var vocab = mustLoadVocabularies(vocabulariesYAML)

func mustLoadVocabularies(data []byte) *vocabularies {
	v, err := loadVocabularies(data)
	if err != nil {
		panic(err)
	}
	return v
}

func loadVocabularies(data []byte) (*vocabularies, error) {
	var v vocabularies
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse vocabularies: %w", err)
	}
	v.ActivityInsight = foldKeys(v.ActivityInsight)
	v.Pure = foldKeys(v.Pure)
	v.Statuses = foldKeys(v.Statuses)
	v.oaTypes = make(map[string]bool, len(v.OAPublicationTypes))
	for _, t := range v.OAPublicationTypes {
		v.oaTypes[t] = true
	}
	return &v, nil
}

func foldKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = val
	}
	return out
}

func lookup(m map[string]string, raw string) (string, bool) {
	v, ok := m[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

// ActivityInsightPublicationType maps an Activity Insight CONTYPE. Unknown types become "Other".
func ActivityInsightPublicationType(raw string) string {
	if t, ok := lookup(vocab.ActivityInsight, raw); ok {
		return t
	}
	return PublicationTypeOther
}

// PurePublicationType maps a Pure research output type. The bool is false for
// types that are not imported.
func PurePublicationType(raw string) (string, bool) {
	return lookup(vocab.Pure, raw)
}

// OrcidWorkType maps a canonical publication type to an ORCID work type.
func OrcidWorkType(publicationType string) string {
	if t, ok := vocab.Orcid[publicationType]; ok {
		return t
	}
	return OrcidWorkTypeOther
}

// CanonicalPublicationType accepts a canonical type, an Activity Insight CONTYPE or a Pure
// research output type and returns the canonical type. Unknown values are returned trimmed.
func CanonicalPublicationType(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, ok := vocab.Orcid[raw]; ok || vocab.oaTypes[raw] {
		return raw
	}
	if t, ok := lookup(vocab.ActivityInsight, raw); ok {
		return t
	}
	if t, ok := PurePublicationType(raw); ok {
		return t
	}
	return raw
}

// IsOAPublicationType reports whether the open access policy covers the type.
func IsOAPublicationType(publicationType string) bool {
	return vocab.oaTypes[publicationType]
}

// PublicationStatus normalizes a status from Activity Insight or Pure.
// Unknown statuses are returned unchanged.
func PublicationStatus(raw string) string {
	if s, ok := lookup(vocab.Statuses, raw); ok {
		return s
	}
	return raw
}
