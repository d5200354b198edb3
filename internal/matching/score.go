package matching

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// numberTolerance is the relative tolerance for number attribute equality.
// Feed numbers and oracle-read numbers rarely agree to the last digit.
const numberTolerance = 0.01

// Candidate identifies one shopping candidate plus its attribute observation.
type Candidate struct {
	ID          string
	Name        string
	URL         string
	Observation model.SourceObservation
}

// Score compares one candidate against the fused reference profile and
// produces the full itemized result. Raw score is the weighted sum over all
// schema attributes (bounded to 0-100 by the weight-sum invariant); the
// critical gate then caps the final score when any deal-breaker mismatches,
// preserving ordering information among disqualified candidates instead of
// zeroing them.
func Score(fused *model.FusedProfile, cand Candidate, cs *schema.CategorySchema) model.ComparisonResult {
	result := model.ComparisonResult{
		CandidateID:   cand.ID,
		CandidateName: cand.Name,
		CandidateURL:  cand.URL,
	}

	var raw float64
	for _, def := range cs.Attributes {
		line := scoreAttribute(fused.Attribute(def.Name), cand.Observation.Value(def.Name), def, cs.FamilyCredit)
		raw += line.PointsEarned
		result.Breakdown = append(result.Breakdown, line)
	}
	result.RawScore = round2(raw)
	result.FinalScore = result.RawScore

	result.Critical = CheckCritical(fused, cand.Observation, cs)
	if result.Critical.AnyMismatch {
		for _, miss := range result.Critical.Mismatches() {
			result.Flags = append(result.Flags, fmt.Sprintf("similar style but different %s", miss.Attribute))
		}
		if result.RawScore > cs.CriticalMismatchCap {
			result.FinalScore = cs.CriticalMismatchCap
			result.WasCapped = true
			result.CapReason = capReason(result.Critical)
		}
	}

	if fused.InsufficientEvidence() || fused.Completeness < cs.MinCompleteness {
		result.LowEvidence = true
		result.Flags = append(result.Flags, fmt.Sprintf(
			"low confidence: reference profile is %.0f%% complete, needs more evidence", fused.Completeness))
	}

	result.IsMatch = result.FinalScore >= cs.MinMatchScore && !result.LowEvidence && !result.Critical.AnyMismatch
	return result
}

// scoreAttribute computes the points one attribute contributes.
func scoreAttribute(ref model.ResolvedAttribute, cand model.ObservedValue, def schema.AttributeDefinition, familyCredit float64) model.AttributeScore {
	line := model.AttributeScore{
		Attribute:      def.Name,
		ReferenceValue: ref.Value(),
		CandidateValue: cand.Raw,
		PointsPossible: def.Weight,
		Grade:          model.GradeNone,
	}

	// Unknowns earn nothing: an unobserved value is not evidence of
	// similarity, and the mismatch floor applies only when both sides were
	// actually observed.
	if !ref.Known {
		line.Reasoning = "reference attribute unresolved"
		return line
	}
	if !cand.Observed {
		line.Reasoning = "not observed on candidate"
		return line
	}

	switch {
	case def.Kind == schema.KindNumber:
		line.Grade, line.Reasoning = gradeNumber(ref.Value(), cand.Raw)
	case def.Fuzzy():
		line.Grade, line.Reasoning = Grade(ref.Value(), cand.Raw, def)
	default:
		// Booleans and group-less enums: canonical equality only.
		if Canonicalize(ref.Value()) == Canonicalize(cand.Raw) {
			line.Grade = model.GradeExact
			line.Reasoning = "values are equal"
		} else {
			line.Reasoning = fmt.Sprintf("%q differs from %q", ref.Value(), cand.Raw)
		}
	}

	switch line.Grade {
	case model.GradeExact:
		line.PointsEarned = def.Weight
	case model.GradeFamily:
		line.PointsEarned = round2(def.Weight * familyCredit)
	case model.GradeNone:
		if def.MismatchFloor > 0 && !def.DealBreaker {
			line.PointsEarned = round2(def.Weight * def.MismatchFloor)
			line.Reasoning += " (partial-credit floor)"
		}
	}
	return line
}

// gradeNumber compares two numeric raw values within a relative tolerance.
// Values are trimmed, not canonicalized, since canonicalization would strip
// decimal points.
func gradeNumber(ref, cand string) (model.MatchGrade, string) {
	refN, err1 := strconv.ParseFloat(strings.TrimSpace(ref), 64)
	candN, err2 := strconv.ParseFloat(strings.TrimSpace(cand), 64)
	if err1 != nil || err2 != nil {
		return model.GradeNone, "value is not numeric"
	}

	diff := math.Abs(refN - candN)
	scale := math.Max(math.Abs(refN), math.Abs(candN))
	if diff == 0 || (scale > 0 && diff/scale <= numberTolerance) {
		return model.GradeExact, fmt.Sprintf("%g and %g are equal within tolerance", refN, candN)
	}
	return model.GradeNone, fmt.Sprintf("%g and %g differ", refN, candN)
}

func capReason(report model.CriticalReport) string {
	misses := report.Mismatches()
	if len(misses) == 1 {
		return fmt.Sprintf("critical attribute %s mismatched", misses[0].Attribute)
	}
	return fmt.Sprintf("%d critical attributes mismatched", len(misses))
}
