package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSchema() *CategorySchema {
	return &CategorySchema{
		Name:                "hats",
		DisplayName:         "Hats",
		MinMatchScore:       75,
		CriticalMismatchCap: 65,
		FamilyCredit:        0.7,
		MinCompleteness:     40,
		Attributes: []AttributeDefinition{
			{
				Name: "color", Kind: KindString, Required: true, DealBreaker: true, Weight: 60,
				SynonymGroups: []SynonymGroup{
					{Canonical: "black", Terms: []string{"black", "jet black"}},
				},
			},
			{Name: "brand", Kind: KindString, Weight: 30},
			{Name: "brim_cm", Kind: KindNumber, Weight: 10},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validSchema().Validate())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*CategorySchema)
		wantErr string
	}{
		{"missing name", func(s *CategorySchema) { s.Name = "" }, "missing name"},
		{"no attributes", func(s *CategorySchema) { s.Attributes = nil }, "no attributes"},
		{"cap at 100", func(s *CategorySchema) { s.CriticalMismatchCap = 100 }, "critical_mismatch_cap"},
		{"family credit zero", func(s *CategorySchema) { s.FamilyCredit = 0 }, "family_credit"},
		{"family credit above one", func(s *CategorySchema) { s.FamilyCredit = 1.5 }, "family_credit"},
		{"min match score out of range", func(s *CategorySchema) { s.MinMatchScore = 120 }, "min_match_score"},
		{"weights off", func(s *CategorySchema) { s.Attributes[1].Weight = 35 }, "weights sum"},
		{"duplicate attribute", func(s *CategorySchema) { s.Attributes[1].Name = "color" }, "duplicate attribute"},
		{"unknown kind", func(s *CategorySchema) { s.Attributes[1].Kind = "blob" }, "unknown kind"},
		{"enum without values", func(s *CategorySchema) { s.Attributes[1].Kind = KindEnum }, "no values"},
		{"negative weight", func(s *CategorySchema) {
			s.Attributes[1].Weight = -5
		}, "negative weight"},
		{"deal-breaker not required", func(s *CategorySchema) {
			s.Attributes[0].Required = false
		}, "must be required"},
		{"deal-breaker with floor", func(s *CategorySchema) {
			s.Attributes[0].MismatchFloor = 0.2
		}, "mismatch floor"},
		{"floor out of range", func(s *CategorySchema) {
			s.Attributes[1].MismatchFloor = 1.0
		}, "mismatch_floor"},
		{"group without canonical", func(s *CategorySchema) {
			s.Attributes[0].SynonymGroups[0].Canonical = ""
		}, "without a canonical"},
		{"group without terms", func(s *CategorySchema) {
			s.Attributes[0].SynonymGroups[0].Terms = nil
		}, "no terms"},
		{"term in two groups", func(s *CategorySchema) {
			s.Attributes[0].SynonymGroups = append(s.Attributes[0].SynonymGroups,
				SynonymGroup{Canonical: "dark", Terms: []string{"jet black"}})
		}, "appears in groups"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := validSchema()
			tc.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFuzzy(t *testing.T) {
	t.Parallel()

	assert.True(t, AttributeDefinition{Kind: KindString}.Fuzzy())
	assert.True(t, AttributeDefinition{
		Kind:          KindEnum,
		SynonymGroups: []SynonymGroup{{Canonical: "a", Terms: []string{"a"}}},
	}.Fuzzy())
	assert.False(t, AttributeDefinition{Kind: KindEnum}.Fuzzy())
	assert.False(t, AttributeDefinition{Kind: KindNumber}.Fuzzy())
	assert.False(t, AttributeDefinition{Kind: KindBoolean}.Fuzzy())
}

func TestDealBreakersAndAttribute(t *testing.T) {
	t.Parallel()
	s := validSchema()

	db := s.DealBreakers()
	require.Len(t, db, 1)
	assert.Equal(t, "color", db[0].Name)

	require.NotNil(t, s.Attribute("brand"))
	assert.Nil(t, s.Attribute("nonexistent"))
}

func TestBuiltinSchemasAreValid(t *testing.T) {
	t.Parallel()

	reg, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, []string{"shoes", "tops"}, reg.Names())

	for _, name := range reg.Names() {
		cs, err := reg.Lookup(name)
		require.NoError(t, err)
		var sum float64
		for _, a := range cs.Attributes {
			sum += a.Weight
		}
		assert.InDelta(t, 100.0, sum, weightSumTolerance, "schema %s", name)
	}
}
