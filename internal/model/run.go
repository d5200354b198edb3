package model

import "time"

// RunStatus tracks a match run through its phases.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusFusing     RunStatus = "fusing"
	RunStatusComparing  RunStatus = "comparing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RunStats aggregates counters and cost attribution for one match run.
type RunStats struct {
	Sources          int     `json:"sources"`
	SourcesFailed    int     `json:"sources_failed"`
	Candidates       int     `json:"candidates"`
	CandidatesFailed int     `json:"candidates_failed"`
	Matches          int     `json:"matches"`
	Capped           int     `json:"capped"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	DurationMs       int64   `json:"duration_ms"`
}

// MatchReport is the ranked output of one comparison batch: the fused
// reference profile plus the ordered comparison results.
type MatchReport struct {
	Profile *FusedProfile      `json:"profile"`
	Results []ComparisonResult `json:"results"`
	Flags   []string           `json:"flags,omitempty"`
}

// MatchRun is the persisted record of one match request.
type MatchRun struct {
	ID            string             `json:"id"`
	Category      string             `json:"category"`
	ReferenceName string             `json:"reference_name,omitempty"`
	ReferenceURL  string             `json:"reference_url,omitempty"`
	Status        RunStatus          `json:"status"`
	Error         string             `json:"error,omitempty"`
	Profile       *FusedProfile      `json:"profile,omitempty"`
	Results       []ComparisonResult `json:"results,omitempty"`
	Stats         RunStats           `json:"stats"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}
