package model

import "time"

// ObservedValue is one extractor's raw guess for a single attribute.
// Observed == false means the extractor could not see the attribute at all,
// which is distinct from an observed-but-absent value (Observed true, Raw "").
type ObservedValue struct {
	Raw        string  `json:"raw"`
	Observed   bool    `json:"observed"`
	Confidence float64 `json:"confidence"` // 0-100
	Note       string  `json:"note,omitempty"`
}

// SourceObservation is one extractor pass over one evidence source: a raw
// value (or not-observed marker) for every schema attribute, plus a per-source
// overall confidence and free-text visibility notes. Immutable once created.
type SourceObservation struct {
	Source            Evidence                 `json:"source"`
	Category          string                   `json:"category"`
	Values            map[string]ObservedValue `json:"values"`
	OverallConfidence float64                  `json:"overall_confidence"`
	Notes             string                   `json:"notes,omitempty"`
	ExtractorVersion  string                   `json:"extractor_version,omitempty"`
	ExtractedAt       time.Time                `json:"extracted_at"`
}

// Value returns the observation for an attribute, defaulting to not-observed
// when the extractor omitted the attribute entirely.
func (o SourceObservation) Value(attribute string) ObservedValue {
	v, ok := o.Values[attribute]
	if !ok {
		return ObservedValue{Observed: false}
	}
	return v
}
