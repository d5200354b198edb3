package model

import "time"

// Provenance tags who or what asserted a claim's current value.
type Provenance string

const (
	ProvenanceAutomatic        Provenance = "automatic"
	ProvenanceCreatorConfirmed Provenance = "creator_confirmed"
	ProvenanceBrandVerified    Provenance = "brand_verified"
	ProvenanceUserCorrected    Provenance = "user_corrected"
	ProvenanceDisputed         Provenance = "disputed"
	ProvenanceHumanReviewed    Provenance = "human_reviewed"
)

// Revision is one prior state of a claim, recorded whenever the claim is
// confirmed, corrected, or disputed.
type Revision[T any] struct {
	Value      T          `json:"value"`
	Confidence float64    `json:"confidence"`
	Provenance Provenance `json:"provenance"`
	Reason     string     `json:"reason,omitempty"`
	Actor      string     `json:"actor,omitempty"`
	At         time.Time  `json:"at"`
}

// Claim wraps a value with confidence, supporting evidence, provenance, and
// an append-only revision history. Claims are never mutated in place: verify
// operations return a derived copy with the prior state appended to History.
type Claim[T any] struct {
	Value            T            `json:"value"`
	Confidence       float64      `json:"confidence"` // 0-100
	Evidence         []Evidence   `json:"evidence,omitempty"`
	Provenance       Provenance   `json:"provenance"`
	ExtractorVersion string       `json:"extractor_version,omitempty"`
	ExtractedAt      time.Time    `json:"extracted_at"`
	VerifiedAt       *time.Time   `json:"verified_at,omitempty"`
	VerifiedBy       string       `json:"verified_by,omitempty"`
	History          []Revision[T] `json:"history,omitempty"`
}

// NewClaim creates an automatic claim from a single piece of evidence.
func NewClaim[T any](value T, confidence float64, ev Evidence, extractorVersion string, extractedAt time.Time) Claim[T] {
	return Claim[T]{
		Value:            value,
		Confidence:       clampConfidence(confidence),
		Evidence:         []Evidence{ev},
		Provenance:       ProvenanceAutomatic,
		ExtractorVersion: extractorVersion,
		ExtractedAt:      extractedAt.UTC(),
	}
}

// Snapshot returns the claim's current state as a Revision, for appending to
// a derived claim's history.
func (c Claim[T]) Snapshot(reason, actor string, at time.Time) Revision[T] {
	return Revision[T]{
		Value:      c.Value,
		Confidence: c.Confidence,
		Provenance: c.Provenance,
		Reason:     reason,
		Actor:      actor,
		At:         at.UTC(),
	}
}

// AttributeClaim is the claim type the fuser and verification layer exchange.
type AttributeClaim = Claim[string]

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
