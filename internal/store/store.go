// Package store persists match runs and the observation cache. Two backends
// are provided: SQLite for single-machine use and Postgres for shared
// deployments.
package store

import (
	"context"
	"time"

	"github.com/reelmatch/match-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	Category string          `json:"category,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the matching pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, category, referenceName, referenceURL string) (*model.MatchRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	MarkRunFailed(ctx context.Context, runID string, cause string) error
	SaveRunReport(ctx context.Context, runID string, report *model.MatchReport, stats model.RunStats) error
	UpdateRunProfile(ctx context.Context, runID string, profile *model.FusedProfile) error
	GetRun(ctx context.Context, runID string) (*model.MatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.MatchRun, error)

	// Observation cache, keyed by image fingerprint + category + extractor
	// version so a new extractor version never serves stale observations.
	GetCachedObservation(ctx context.Context, fingerprint, category, version string) (*model.SourceObservation, bool, error)
	SetCachedObservation(ctx context.Context, fingerprint, category, version string, obs *model.SourceObservation) error
	DeleteExpiredObservations(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ObservationTTL is how long cached observations stay valid.
// Overridable per store via SetObservationTTL.
const defaultObservationTTL = 7 * 24 * time.Hour
