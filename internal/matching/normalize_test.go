package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

func colorDef() schema.AttributeDefinition {
	return schema.AttributeDefinition{
		Name: "color", Kind: schema.KindString, Weight: 25,
		SynonymGroups: []schema.SynonymGroup{
			{Canonical: "green", Terms: []string{"olive", "olive green", "khaki", "sage"}},
			{Canonical: "blue", Terms: []string{"navy", "navy blue", "cobalt"}},
		},
	}
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Olive Green", "olive green"},
		{"  V-Neck ", "v neck"},
		{"CREW-NECK!!", "crew neck"},
		{"heather   grey", "heather grey"},
		{"100% Cotton", "100 cotton"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Canonicalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalize_SynonymGroups(t *testing.T) {
	t.Parallel()
	def := colorDef()

	tok, ok := Normalize("Olive Green", def)
	assert.True(t, ok)
	assert.Equal(t, "green", tok)

	tok, ok = Normalize("KHAKI", def)
	assert.True(t, ok)
	assert.Equal(t, "green", tok)

	// Unlisted values fall back to their canonical form so equal strings
	// outside every group still match each other.
	tok, ok = Normalize("Mustard", def)
	assert.True(t, ok)
	assert.Equal(t, "mustard", tok)

	_, ok = Normalize("  !!  ", def)
	assert.False(t, ok)
}

func TestGrade(t *testing.T) {
	t.Parallel()
	def := colorDef()

	tests := []struct {
		name string
		ref  string
		cand string
		want model.MatchGrade
	}{
		{"identical after normalization", "Olive Green", "olive green", model.GradeExact},
		{"containment", "olive", "olive green", model.GradeExact},
		{"same synonym group", "olive green", "khaki", model.GradeFamily},
		{"different groups", "olive green", "navy", model.GradeNone},
		{"mid-word substring rejected", "red", "bored", model.GradeNone},
		{"containment below length ratio", "v", "v neck", model.GradeNone},
		{"missing side", "", "olive", model.GradeNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, reason := Grade(tc.ref, tc.cand, def)
			assert.Equal(t, tc.want, got)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestGrade_Symmetric(t *testing.T) {
	t.Parallel()
	def := colorDef()

	pairs := [][2]string{
		{"olive", "olive green"},
		{"khaki", "sage"},
		{"navy", "khaki"},
		{"", "olive"},
	}
	for _, p := range pairs {
		ab, _ := Grade(p[0], p[1], def)
		ba, _ := Grade(p[1], p[0], def)
		assert.Equal(t, ab, ba, "Grade(%q, %q) not symmetric", p[0], p[1])
	}
}
