package matching

import (
	"fmt"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// CheckCritical re-checks the fused profile against one candidate strictly
// on the schema's deal-breaker attributes. A check passes only when both
// sides normalize successfully and to the same token: an unresolved
// reference never counts as a match, because absence of evidence is not
// evidence of a match. The gate classifies only; scoring happens elsewhere.
func CheckCritical(fused *model.FusedProfile, candidate model.SourceObservation, cs *schema.CategorySchema) model.CriticalReport {
	var report model.CriticalReport

	for _, def := range cs.DealBreakers() {
		ref := fused.Attribute(def.Name)
		cand := candidate.Value(def.Name)

		check := model.CriticalCheck{
			Attribute:    def.Name,
			ReferenceRaw: ref.Value(),
			CandidateRaw: cand.Raw,
		}

		switch {
		case !ref.Known:
			check.Reason = "reference attribute unresolved"
		case !cand.Observed:
			check.Reason = "attribute not observed on candidate"
		default:
			refTok, refOK := Normalize(ref.Value(), def)
			candTok, candOK := Normalize(cand.Raw, def)
			check.ReferenceNormalized = refTok
			check.CandidateNormalized = candTok
			switch {
			case !refOK || !candOK:
				check.Reason = "value did not normalize"
			case refTok == candTok:
				check.Matches = true
			default:
				check.Reason = fmt.Sprintf("%q and %q normalize to different tokens", ref.Value(), cand.Raw)
			}
		}

		if !check.Matches {
			report.AnyMismatch = true
		}
		report.Checks = append(report.Checks, check)
	}

	return report
}
