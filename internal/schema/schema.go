// Package schema holds the declarative per-category attribute schemas the
// matching core is configured with: which attributes exist, their scoring
// weights, which are deal-breakers, and the synonym groups used for fuzzy
// matching. Schemas are validated at load time so a malformed schema fails
// fast instead of producing silently wrong weights.
package schema

import (
	"math"

	"github.com/rotisserie/eris"
)

// AttributeKind is the value kind of a schema attribute.
type AttributeKind string

const (
	KindString  AttributeKind = "string"
	KindEnum    AttributeKind = "enum"
	KindNumber  AttributeKind = "number"
	KindBoolean AttributeKind = "boolean"
)

// SynonymGroup is a set of raw terms considered interchangeable for matching,
// all normalizing to the group's canonical token.
type SynonymGroup struct {
	Canonical string   `yaml:"canonical" json:"canonical"`
	Terms     []string `yaml:"terms" json:"terms"`
}

// AttributeDefinition declares one attribute of a category schema.
type AttributeDefinition struct {
	Name          string         `yaml:"name" json:"name"`
	Kind          AttributeKind  `yaml:"kind" json:"kind"`
	Required      bool           `yaml:"required" json:"required"`
	DealBreaker   bool           `yaml:"deal_breaker" json:"deal_breaker"`
	Weight        float64        `yaml:"weight" json:"weight"` // points of the 100 scale
	EnumValues    []string       `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
	SynonymGroups []SynonymGroup `yaml:"synonym_groups,omitempty" json:"synonym_groups,omitempty"`
	// MismatchFloor is the fraction of Weight earned when both sides were
	// observed but genuinely differ. Non-zero only for texture-like
	// attributes where a mismatch should not zero out an otherwise strong
	// candidate. Never applies to deal-breakers.
	MismatchFloor float64 `yaml:"mismatch_floor,omitempty" json:"mismatch_floor,omitempty"`
}

// Fuzzy reports whether the attribute is compared through synonym-group
// grading rather than plain equality.
func (a AttributeDefinition) Fuzzy() bool {
	if a.Kind == KindNumber || a.Kind == KindBoolean {
		return false
	}
	return a.Kind == KindString || len(a.SynonymGroups) > 0
}

// CategorySchema is the full matching configuration for one product category.
type CategorySchema struct {
	Name        string                `yaml:"name" json:"name"`
	DisplayName string                `yaml:"display_name" json:"display_name"`
	Attributes  []AttributeDefinition `yaml:"attributes" json:"attributes"`
	// MinMatchScore is the final score at or above which a candidate is
	// declared a match.
	MinMatchScore float64 `yaml:"min_match_score" json:"min_match_score"`
	// CriticalMismatchCap is the score ceiling applied when any deal-breaker
	// attribute fails to match. A cap rather than a zero: partial similarity
	// still has value for human review.
	CriticalMismatchCap float64 `yaml:"critical_mismatch_cap" json:"critical_mismatch_cap"`
	// FamilyCredit is the fraction of an attribute's weight earned by a
	// same-synonym-group (family) match. One documented fraction per schema.
	FamilyCredit float64 `yaml:"family_credit" json:"family_credit"`
	// MinCompleteness is the profile completeness percentage below which
	// comparisons are flagged low-confidence instead of ranked normally.
	MinCompleteness float64 `yaml:"min_completeness" json:"min_completeness"`
}

// weightSumTolerance allows for float drift in hand-written weight tables.
const weightSumTolerance = 0.01

// Attribute returns the definition for the named attribute, or nil.
func (s *CategorySchema) Attribute(name string) *AttributeDefinition {
	for i := range s.Attributes {
		if s.Attributes[i].Name == name {
			return &s.Attributes[i]
		}
	}
	return nil
}

// DealBreakers returns the schema's critical attributes in declaration order.
func (s *CategorySchema) DealBreakers() []AttributeDefinition {
	var out []AttributeDefinition
	for _, a := range s.Attributes {
		if a.DealBreaker {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks the schema against the fixed shape the matching core
// depends on. Any violation is a hard configuration error.
func (s *CategorySchema) Validate() error {
	if s.Name == "" {
		return eris.New("schema: missing name")
	}
	if len(s.Attributes) == 0 {
		return eris.Errorf("schema %s: no attributes", s.Name)
	}
	if s.CriticalMismatchCap < 0 || s.CriticalMismatchCap >= 100 {
		return eris.Errorf("schema %s: critical_mismatch_cap %.2f outside [0,100)", s.Name, s.CriticalMismatchCap)
	}
	if s.FamilyCredit <= 0 || s.FamilyCredit > 1 {
		return eris.Errorf("schema %s: family_credit %.2f outside (0,1]", s.Name, s.FamilyCredit)
	}
	if s.MinMatchScore < 0 || s.MinMatchScore > 100 {
		return eris.Errorf("schema %s: min_match_score %.2f outside [0,100]", s.Name, s.MinMatchScore)
	}
	if s.MinCompleteness < 0 || s.MinCompleteness > 100 {
		return eris.Errorf("schema %s: min_completeness %.2f outside [0,100]", s.Name, s.MinCompleteness)
	}

	var weightSum float64
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.Name == "" {
			return eris.Errorf("schema %s: attribute with empty name", s.Name)
		}
		if seen[a.Name] {
			return eris.Errorf("schema %s: duplicate attribute %q", s.Name, a.Name)
		}
		seen[a.Name] = true

		switch a.Kind {
		case KindString, KindEnum, KindNumber, KindBoolean:
		default:
			return eris.Errorf("schema %s: attribute %q has unknown kind %q", s.Name, a.Name, a.Kind)
		}
		if a.Kind == KindEnum && len(a.EnumValues) == 0 {
			return eris.Errorf("schema %s: enum attribute %q has no values", s.Name, a.Name)
		}
		if a.Weight < 0 {
			return eris.Errorf("schema %s: attribute %q has negative weight", s.Name, a.Name)
		}
		if a.MismatchFloor < 0 || a.MismatchFloor >= 1 {
			return eris.Errorf("schema %s: attribute %q mismatch_floor %.2f outside [0,1)", s.Name, a.Name, a.MismatchFloor)
		}
		if a.DealBreaker && !a.Required {
			return eris.Errorf("schema %s: deal-breaker attribute %q must be required", s.Name, a.Name)
		}
		if a.DealBreaker && a.MismatchFloor > 0 {
			return eris.Errorf("schema %s: deal-breaker attribute %q cannot carry a mismatch floor", s.Name, a.Name)
		}
		if err := validateSynonymGroups(s.Name, a); err != nil {
			return err
		}
		weightSum += a.Weight
	}

	if math.Abs(weightSum-100) > weightSumTolerance {
		return eris.Errorf("schema %s: attribute weights sum to %.2f, want 100", s.Name, weightSum)
	}
	return nil
}

func validateSynonymGroups(schemaName string, a AttributeDefinition) error {
	seenTerm := make(map[string]string)
	for _, g := range a.SynonymGroups {
		if g.Canonical == "" {
			return eris.Errorf("schema %s: attribute %q has a synonym group without a canonical token", schemaName, a.Name)
		}
		if len(g.Terms) == 0 {
			return eris.Errorf("schema %s: attribute %q synonym group %q has no terms", schemaName, a.Name, g.Canonical)
		}
		for _, term := range g.Terms {
			if prev, ok := seenTerm[term]; ok && prev != g.Canonical {
				return eris.Errorf("schema %s: attribute %q term %q appears in groups %q and %q",
					schemaName, a.Name, term, prev, g.Canonical)
			}
			seenTerm[term] = g.Canonical
		}
	}
	return nil
}
