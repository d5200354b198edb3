package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/match-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testObservation(confidence float64) *model.SourceObservation {
	return &model.SourceObservation{
		Source:   model.FrameEvidence(3, 4.5, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)),
		Category: "tops",
		Values: map[string]model.ObservedValue{
			"color": {Raw: "olive green", Observed: true, Confidence: confidence},
		},
		OverallConfidence: confidence,
		ExtractorVersion:  "v1.0",
		ExtractedAt:       time.Date(2026, 2, 1, 10, 0, 1, 0, time.UTC),
	}
}

// --- Runs ---

func TestSQLite_CreateAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "tops", "olive crew tee", "https://shop.example.com/p/1")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "tops", got.Category)
	assert.Equal(t, "olive crew tee", got.ReferenceName)
	assert.Equal(t, "https://shop.example.com/p/1", got.ReferenceURL)
	assert.Nil(t, got.Profile)
	assert.Empty(t, got.Results)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "tops", "", "")
	require.NoError(t, err)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusExtracting))
	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusFusing))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFusing, got.Status)

	err = st.UpdateRunStatus(ctx, "missing", model.RunStatusExtracting)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestSQLite_MarkRunFailed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "shoes", "", "")
	require.NoError(t, err)

	require.NoError(t, st.MarkRunFailed(ctx, run.ID, "all sources failed extraction"))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "all sources failed extraction", got.Error)
}

func TestSQLite_SaveRunReport_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "tops", "olive crew tee", "")
	require.NoError(t, err)

	report := &model.MatchReport{
		Profile: &model.FusedProfile{
			Category:     "tops",
			Completeness: 75,
			SourceCount:  3,
			Attributes: map[string]model.ResolvedAttribute{
				"color": {Name: "color", Known: true},
			},
		},
		Results: []model.ComparisonResult{
			{CandidateID: "cand-1", FinalScore: 88, RawScore: 88},
			{CandidateID: "cand-2", FinalScore: 52, RawScore: 74, WasCapped: true},
		},
	}
	stats := model.RunStats{Sources: 3, Candidates: 2, Matches: 1, TotalCostUSD: 0.042}

	require.NoError(t, st.SaveRunReport(ctx, run.ID, report, stats))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Profile)
	assert.Equal(t, "tops", got.Profile.Category)
	assert.InDelta(t, 75.0, got.Profile.Completeness, 0.001)
	require.Len(t, got.Results, 2)
	assert.Equal(t, "cand-1", got.Results[0].CandidateID)
	assert.True(t, got.Results[1].WasCapped)
	assert.Equal(t, 3, got.Stats.Sources)
	assert.InDelta(t, 0.042, got.Stats.TotalCostUSD, 0.0001)
}

func TestSQLite_UpdateRunProfile(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "tops", "", "")
	require.NoError(t, err)

	profile := &model.FusedProfile{Category: "tops", Completeness: 50, SourceCount: 2}
	require.NoError(t, st.UpdateRunProfile(ctx, run.ID, profile))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Profile)
	assert.Equal(t, 2, got.Profile.SourceCount)
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tops, err := st.CreateRun(ctx, "tops", "", "")
	require.NoError(t, err)
	shoes, err := st.CreateRun(ctx, "shoes", "", "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, shoes.ID, model.RunStatusComplete))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byCategory, err := st.ListRuns(ctx, RunFilter{Category: "tops"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, tops.ID, byCategory[0].ID)

	byStatus, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, shoes.ID, byStatus[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Observation cache ---

func TestSQLite_ObservationCache_SetAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	obs := testObservation(88)
	require.NoError(t, st.SetCachedObservation(ctx, "fp-abc", "tops", "v1.0", obs))

	got, ok, err := st.GetCachedObservation(ctx, "fp-abc", "tops", "v1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 88.0, got.OverallConfidence, 0.001)
	assert.Equal(t, "olive green", got.Value("color").Raw)
}

func TestSQLite_ObservationCache_MissOnDifferentKey(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedObservation(ctx, "fp-abc", "tops", "v1.0", testObservation(80)))

	// Same frame, different category or extractor version is a distinct entry.
	_, ok, err := st.GetCachedObservation(ctx, "fp-abc", "shoes", "v1.0")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = st.GetCachedObservation(ctx, "fp-abc", "tops", "v2.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_ObservationCache_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SetCachedObservation(ctx, "fp-abc", "tops", "v1.0", testObservation(60)))
	require.NoError(t, st.SetCachedObservation(ctx, "fp-abc", "tops", "v1.0", testObservation(92)))

	got, ok, err := st.GetCachedObservation(ctx, "fp-abc", "tops", "v1.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 92.0, got.OverallConfidence, 0.001)
}

func TestSQLite_ObservationCache_Expiry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	st.SetObservationTTL(-time.Hour) // entries are born expired
	require.NoError(t, st.SetCachedObservation(ctx, "fp-old", "tops", "v1.0", testObservation(70)))

	_, ok, err := st.GetCachedObservation(ctx, "fp-old", "tops", "v1.0")
	require.NoError(t, err)
	assert.False(t, ok)

	st.SetObservationTTL(time.Hour)
	require.NoError(t, st.SetCachedObservation(ctx, "fp-new", "tops", "v1.0", testObservation(70)))

	deleted, err := st.DeleteExpiredObservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, ok, err = st.GetCachedObservation(ctx, "fp-new", "tops", "v1.0")
	require.NoError(t, err)
	assert.True(t, ok)
}
