package model

import "time"

// AlternativeValue is a value for an attribute that lost the fusion selection
// to a higher-confidence source, retained for inspection and re-ranking.
type AlternativeValue struct {
	Raw        string   `json:"raw"`
	Confidence float64  `json:"confidence"`
	Source     Evidence `json:"source"`
}

// ResolvedAttribute is the fused best estimate for one schema attribute.
// Known == false means no source observed the attribute; the claim is then
// zero-valued with confidence 0 and no evidence.
type ResolvedAttribute struct {
	Name         string             `json:"name"`
	Known        bool               `json:"known"`
	Claim        AttributeClaim     `json:"claim"`
	Alternatives []AlternativeValue `json:"alternatives,omitempty"`
}

// Value returns the resolved raw value, or "" when unknown.
func (r ResolvedAttribute) Value() string {
	if !r.Known {
		return ""
	}
	return r.Claim.Value
}

// FusedProfile is the canonical reference profile built from a set of
// SourceObservations. It is rebuilt from scratch whenever the observation
// set changes, never patched incrementally.
type FusedProfile struct {
	Category          string                       `json:"category"`
	Attributes        map[string]ResolvedAttribute `json:"attributes"`
	Completeness      float64                      `json:"completeness"`       // percent 0-100
	OverallConfidence float64                      `json:"overall_confidence"` // mean over resolved, 0 if none
	SourceCount       int                          `json:"source_count"`
	FusedAt           time.Time                    `json:"fused_at"`
}

// Attribute returns the resolved attribute by name, or an unknown placeholder
// when the schema attribute was never fused (e.g. zero sources).
func (p *FusedProfile) Attribute(name string) ResolvedAttribute {
	if p == nil {
		return ResolvedAttribute{Name: name}
	}
	ra, ok := p.Attributes[name]
	if !ok {
		return ResolvedAttribute{Name: name}
	}
	return ra
}

// InsufficientEvidence reports whether the profile resolved nothing at all.
func (p *FusedProfile) InsufficientEvidence() bool {
	return p == nil || p.Completeness == 0
}
