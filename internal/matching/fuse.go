package matching

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// observed pairs one source's value for an attribute with its evidence.
type observed struct {
	value       model.ObservedValue
	source      model.Evidence
	extractor   string
	extractedAt time.Time
}

// Fuse merges per-source observations into one reference profile. Per schema
// attribute: values marked not-observed are discarded; the highest-confidence
// survivor wins, ties broken by earliest capture time, then smallest frame
// index, then evidence ID — all order-independent, so any permutation of the
// same sources yields an identical profile. Losing values are retained as
// alternatives. An attribute with no surviving values resolves to unknown,
// which downstream components treat distinctly from any real value.
func Fuse(sources []model.SourceObservation, cs *schema.CategorySchema) *model.FusedProfile {
	profile := &model.FusedProfile{
		Category:    cs.Name,
		Attributes:  make(map[string]model.ResolvedAttribute, len(cs.Attributes)),
		SourceCount: len(sources),
		FusedAt:     time.Now().UTC(),
	}

	resolved := 0
	var confidenceSum float64

	for _, def := range cs.Attributes {
		candidates := collectObserved(sources, def.Name)
		if len(candidates) == 0 {
			profile.Attributes[def.Name] = model.ResolvedAttribute{Name: def.Name}
			continue
		}

		sortObserved(candidates)
		winner := candidates[0]

		ra := model.ResolvedAttribute{
			Name:  def.Name,
			Known: true,
			Claim: model.NewClaim(winner.value.Raw, winner.value.Confidence,
				winner.source, winner.extractor, winner.extractedAt),
		}
		for _, alt := range candidates[1:] {
			ra.Alternatives = append(ra.Alternatives, model.AlternativeValue{
				Raw:        alt.value.Raw,
				Confidence: alt.value.Confidence,
				Source:     alt.source,
			})
			if Canonicalize(alt.value.Raw) != Canonicalize(winner.value.Raw) {
				zap.L().Debug("fuse: sources disagree on attribute",
					zap.String("category", cs.Name),
					zap.String("attribute", def.Name),
					zap.String("winner", winner.value.Raw),
					zap.String("alternative", alt.value.Raw),
				)
			}
		}

		profile.Attributes[def.Name] = ra
		resolved++
		confidenceSum += winner.value.Confidence
	}

	if len(cs.Attributes) > 0 {
		profile.Completeness = round2(float64(resolved) / float64(len(cs.Attributes)) * 100)
	}
	if resolved > 0 {
		profile.OverallConfidence = round2(confidenceSum / float64(resolved))
	}
	return profile
}

// collectObserved gathers every source's observed value for one attribute.
func collectObserved(sources []model.SourceObservation, attribute string) []observed {
	var out []observed
	for _, src := range sources {
		v := src.Value(attribute)
		if !v.Observed {
			continue
		}
		out = append(out, observed{
			value:       v,
			source:      src.Source,
			extractor:   src.ExtractorVersion,
			extractedAt: src.ExtractedAt,
		})
	}
	return out
}

// sortObserved orders candidates best-first: highest confidence, then
// earliest capture time, then smallest frame index (sources without a frame
// index sort last), then evidence ID. The final ID tie-break makes the order
// total, which is what keeps fusion deterministic under input permutation.
func sortObserved(candidates []observed) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.value.Confidence != b.value.Confidence {
			return a.value.Confidence > b.value.Confidence
		}
		if !a.source.CapturedAt.Equal(b.source.CapturedAt) {
			return a.source.CapturedAt.Before(b.source.CapturedAt)
		}
		ai, bi := frameIndexOrMax(a.source), frameIndexOrMax(b.source)
		if ai != bi {
			return ai < bi
		}
		return a.source.ID < b.source.ID
	})
}

func frameIndexOrMax(ev model.Evidence) int {
	if ev.FrameIndex == nil {
		return math.MaxInt
	}
	return *ev.FrameIndex
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
