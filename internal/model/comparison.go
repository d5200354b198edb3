package model

// MatchGrade classifies how closely two attribute values match.
type MatchGrade string

const (
	GradeExact  MatchGrade = "exact"  // equal after normalization, or substring containment
	GradeFamily MatchGrade = "family" // same synonym group, not exact
	GradeNone   MatchGrade = "none"   // genuine mismatch
)

// CriticalCheck records the gate's verdict for one deal-breaker attribute.
type CriticalCheck struct {
	Attribute           string `json:"attribute"`
	ReferenceRaw        string `json:"reference_raw"`
	CandidateRaw        string `json:"candidate_raw"`
	ReferenceNormalized string `json:"reference_normalized"`
	CandidateNormalized string `json:"candidate_normalized"`
	Matches             bool   `json:"matches"`
	Reason              string `json:"reason,omitempty"`
}

// CriticalReport is the gate's output for one candidate: one check per
// deal-breaker attribute. The gate classifies only; it never scores.
type CriticalReport struct {
	Checks      []CriticalCheck `json:"checks"`
	AnyMismatch bool            `json:"any_mismatch"`
}

// Mismatches returns only the failed checks.
func (r CriticalReport) Mismatches() []CriticalCheck {
	var out []CriticalCheck
	for _, c := range r.Checks {
		if !c.Matches {
			out = append(out, c)
		}
	}
	return out
}

// AttributeScore is the per-attribute accounting line in a comparison.
type AttributeScore struct {
	Attribute      string     `json:"attribute"`
	ReferenceValue string     `json:"reference_value"`
	CandidateValue string     `json:"candidate_value"`
	PointsEarned   float64    `json:"points_earned"`
	PointsPossible float64    `json:"points_possible"`
	Grade          MatchGrade `json:"grade"`
	Reasoning      string     `json:"reasoning"`
}

// ComparisonResult is the scorer's full output for one candidate: raw and
// capped scores, the critical-gate verdict, a complete per-attribute
// breakdown, and human-readable flags. The breakdown is always populated
// regardless of capping so a reviewer can see why a capped item still
// looked superficially close.
type ComparisonResult struct {
	CandidateID   string           `json:"candidate_id"`
	CandidateName string           `json:"candidate_name,omitempty"`
	CandidateURL  string           `json:"candidate_url,omitempty"`
	RawScore      float64          `json:"raw_score"`
	FinalScore    float64          `json:"final_score"`
	WasCapped     bool             `json:"was_capped"`
	CapReason     string           `json:"cap_reason,omitempty"`
	IsMatch       bool             `json:"is_match"`
	LowEvidence   bool             `json:"low_evidence"`
	Breakdown     []AttributeScore `json:"breakdown"`
	Critical      CriticalReport   `json:"critical"`
	Flags         []string         `json:"flags,omitempty"`
}
