package matching

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

func topsSchema(t *testing.T) *schema.CategorySchema {
	t.Helper()
	reg, err := schema.Builtin()
	require.NoError(t, err)
	cs, err := reg.Lookup("tops")
	require.NoError(t, err)
	return cs
}

// obs builds a frame observation with the given attribute values.
func obs(frame int, capturedAt time.Time, values map[string]model.ObservedValue) model.SourceObservation {
	return model.SourceObservation{
		Source:           model.FrameEvidence(frame, float64(frame)*1.5, capturedAt),
		Category:         "tops",
		Values:           values,
		ExtractorVersion: "v1.0",
		ExtractedAt:      capturedAt.Add(time.Second),
	}
}

func ov(raw string, confidence float64) model.ObservedValue {
	return model.ObservedValue{Raw: raw, Observed: true, Confidence: confidence}
}

func TestFuse_HighestConfidenceWins(t *testing.T) {
	cs := topsSchema(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sources := []model.SourceObservation{
		obs(0, base, map[string]model.ObservedValue{
			"color": ov("olive green", 88),
		}),
		obs(1, base.Add(time.Second), map[string]model.ObservedValue{
			"color": ov("khaki", 72),
		}),
	}

	p := Fuse(sources, cs)

	color := p.Attribute("color")
	require.True(t, color.Known)
	assert.Equal(t, "olive green", color.Claim.Value)
	assert.InDelta(t, 88.0, color.Claim.Confidence, 0.001)
	require.Len(t, color.Alternatives, 1)
	assert.Equal(t, "khaki", color.Alternatives[0].Raw)
	assert.Equal(t, 2, p.SourceCount)
}

func TestFuse_NotObservedNeverWins(t *testing.T) {
	cs := topsSchema(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sources := []model.SourceObservation{
		obs(0, base, map[string]model.ObservedValue{
			"color":    {Observed: false},
			"neckline": ov("crew", 60),
		}),
		obs(1, base, map[string]model.ObservedValue{
			"color": ov("navy", 40),
		}),
	}

	p := Fuse(sources, cs)

	color := p.Attribute("color")
	require.True(t, color.Known)
	assert.Equal(t, "navy", color.Claim.Value)
	assert.Empty(t, color.Alternatives)

	material := p.Attribute("material")
	assert.False(t, material.Known)
	assert.Equal(t, "", material.Value())
}

func TestFuse_PermutationDeterminism(t *testing.T) {
	cs := topsSchema(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sources := []model.SourceObservation{
		obs(0, base, map[string]model.ObservedValue{
			"color": ov("olive green", 80), "neckline": ov("crew", 91),
		}),
		obs(1, base.Add(2*time.Second), map[string]model.ObservedValue{
			"color": ov("khaki", 80), "material": ov("merino wool", 77),
		}),
		obs(2, base.Add(4*time.Second), map[string]model.ObservedValue{
			"color": ov("sage", 80), "neckline": ov("crew neck", 64),
		}),
	}

	reference := Fuse(sources, cs)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]model.SourceObservation, len(sources))
		copy(shuffled, sources)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		p := Fuse(shuffled, cs)
		assert.Equal(t, reference.Completeness, p.Completeness)
		assert.Equal(t, reference.OverallConfidence, p.OverallConfidence)
		for name, want := range reference.Attributes {
			got := p.Attributes[name]
			assert.Equal(t, want.Known, got.Known, "attribute %s", name)
			assert.Equal(t, want.Claim.Value, got.Claim.Value, "attribute %s", name)
			require.Equal(t, len(want.Alternatives), len(got.Alternatives), "attribute %s", name)
			for j := range want.Alternatives {
				assert.Equal(t, want.Alternatives[j].Raw, got.Alternatives[j].Raw, "attribute %s alt %d", name, j)
			}
		}
	}
}

func TestFuse_TieBreaks(t *testing.T) {
	cs := topsSchema(t)
	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	// Equal confidence: the earlier capture wins.
	p := Fuse([]model.SourceObservation{
		obs(5, late, map[string]model.ObservedValue{"color": ov("navy", 80)}),
		obs(9, early, map[string]model.ObservedValue{"color": ov("olive", 80)}),
	}, cs)
	assert.Equal(t, "olive", p.Attribute("color").Claim.Value)

	// Equal confidence and capture time: the smaller frame index wins.
	p = Fuse([]model.SourceObservation{
		obs(5, early, map[string]model.ObservedValue{"color": ov("navy", 80)}),
		obs(2, early, map[string]model.ObservedValue{"color": ov("olive", 80)}),
	}, cs)
	assert.Equal(t, "olive", p.Attribute("color").Claim.Value)
}

func TestFuse_CompletenessAndConfidence(t *testing.T) {
	cs := topsSchema(t) // 8 attributes
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	p := Fuse([]model.SourceObservation{
		obs(0, base, map[string]model.ObservedValue{
			"color": ov("olive green", 90), "neckline": ov("crew", 70),
		}),
	}, cs)

	// 2 of 8 attributes resolved.
	assert.InDelta(t, 25.0, p.Completeness, 0.001)
	assert.InDelta(t, 80.0, p.OverallConfidence, 0.001)
}

func TestFuse_CompletenessMonotonic(t *testing.T) {
	cs := topsSchema(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Each source resolves an attribute no earlier source observed.
	// Fusing a growing prefix must never lower completeness.
	sources := []model.SourceObservation{
		obs(0, base, map[string]model.ObservedValue{
			"color": ov("olive green", 88),
		}),
		obs(1, base.Add(time.Second), map[string]model.ObservedValue{
			"color": ov("khaki", 40), "neckline": ov("crew", 61),
		}),
		obs(2, base.Add(2*time.Second), map[string]model.ObservedValue{
			"material": ov("merino wool", 75),
		}),
		obs(3, base.Add(3*time.Second), map[string]model.ObservedValue{
			"sleeve_length": ov("long", 52), "color": {Observed: false},
		}),
	}

	prev := Fuse(nil, cs).Completeness
	for i := 1; i <= len(sources); i++ {
		p := Fuse(sources[:i], cs)
		assert.GreaterOrEqual(t, p.Completeness, prev, "completeness dropped after source %d", i-1)
		prev = p.Completeness
	}
	assert.InDelta(t, 50.0, prev, 0.001) // 4 of 8 attributes resolved
}

func TestFuse_ZeroSources(t *testing.T) {
	cs := topsSchema(t)

	p := Fuse(nil, cs)

	assert.Zero(t, p.Completeness)
	assert.Zero(t, p.OverallConfidence)
	assert.Equal(t, 0, p.SourceCount)
	assert.True(t, p.InsufficientEvidence())
	for _, def := range cs.Attributes {
		assert.False(t, p.Attribute(def.Name).Known, "attribute %s", def.Name)
	}
}
