package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelmatch/match-cli/internal/config"
	"github.com/reelmatch/match-cli/internal/cost"
	"github.com/reelmatch/match-cli/internal/extract"
	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
	"github.com/reelmatch/match-cli/internal/store"
	"github.com/reelmatch/match-cli/pkg/anthropic"
)

// fakeClient answers every vision call with the same canned JSON.
type fakeClient struct {
	response string
	err      error
}

func (f *fakeClient) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		ID:         "msg_fake",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: f.response}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 50},
	}, nil
}

func (f *fakeClient) CreateBatch(context.Context, anthropic.BatchRequest) (*anthropic.BatchResponse, error) {
	return nil, errors.New("batch not expected in this test")
}

func (f *fakeClient) GetBatch(context.Context, string) (*anthropic.BatchResponse, error) {
	return nil, errors.New("batch not expected in this test")
}

func (f *fakeClient) GetBatchResults(context.Context, string) (anthropic.BatchResultIterator, error) {
	return nil, errors.New("batch not expected in this test")
}

const fullResponse = `{
  "color": {"value": "olive green", "confidence": 90},
  "neckline": {"value": "crew", "confidence": 92},
  "sleeve_length": {"value": "long", "confidence": 88},
  "pattern": {"value": "solid", "confidence": 80},
  "material": {"value": "merino wool", "confidence": 85},
  "fit": {"value": "regular", "confidence": 75},
  "texture": {"value": "ribbed", "confidence": 70},
  "brand": {"value": "acme", "confidence": 60},
  "overall_confidence": 84,
  "notes": "well lit frames"
}`

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			VisionModel: "claude-haiku-4-5-20251001",
			NoBatch:     true,
		},
		Extract: config.ExtractConfig{
			Concurrency:   4,
			RatePerSecond: 1000,
			Retries:       1,
			Version:       "v1.0",
		},
	}
}

func newTestPipeline(t *testing.T, client anthropic.Client) (*Pipeline, store.Store) {
	t.Helper()
	cfg := testConfig()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg, err := schema.Builtin()
	require.NoError(t, err)

	ex := extract.New(client, cfg.Anthropic, cfg.Extract, nil)
	calc := cost.NewCalculator(cost.DefaultRates())
	return New(cfg, st, ex, reg, calc), st
}

func frameSource(i int) extract.ImageSource {
	captured := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second)
	return extract.ImageSource{
		Evidence:  model.FrameEvidence(i, float64(i)*1.5, captured),
		MediaType: "image/jpeg",
		Data:      []byte{0xFF, 0xD8, byte(i)},
	}
}

func feedObservation(confidence float64) *model.SourceObservation {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return &model.SourceObservation{
		Source:   model.ListingEvidence("https://shop.example.com/p/2", at),
		Category: "tops",
		Values: map[string]model.ObservedValue{
			"color":    {Raw: "navy", Observed: true, Confidence: confidence},
			"neckline": {Raw: "crew", Observed: true, Confidence: confidence},
			"material": {Raw: "merino", Observed: true, Confidence: confidence},
		},
		OverallConfidence: confidence,
		ExtractedAt:       at,
	}
}

func TestRun_RanksCandidates(t *testing.T) {
	p, st := newTestPipeline(t, &fakeClient{response: fullResponse})

	imageCand := frameSource(10)
	req := MatchRequest{
		Category:      "tops",
		ReferenceName: "olive crew sweater",
		ReferenceURL:  "https://video.example.com/v/1",
		Frames:        []extract.ImageSource{frameSource(0), frameSource(1)},
		Candidates: []CandidateInput{
			{ID: "cand-feed", Name: "Navy Crew", URL: "https://shop.example.com/p/2", Observation: feedObservation(90)},
			{ID: "cand-img", Name: "Olive Crew", URL: "https://shop.example.com/p/1", Image: &imageCand},
			{ID: "cand-broken", Name: "No Data"},
		},
	}

	run, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "olive crew sweater", run.ReferenceName)
	require.NotNil(t, run.Profile)
	assert.InDelta(t, 100.0, run.Profile.Completeness, 0.001)

	// The broken candidate is excluded, not fatal.
	require.Len(t, run.Results, 2)
	assert.Equal(t, 3, run.Stats.Candidates)
	assert.Equal(t, 1, run.Stats.CandidatesFailed)

	// The image candidate sees the exact same values as the reference and
	// must outrank the feed candidate whose color disagrees.
	assert.Equal(t, "cand-img", run.Results[0].CandidateID)
	assert.Equal(t, "cand-feed", run.Results[1].CandidateID)
	assert.True(t, run.Results[0].IsMatch)
	assert.InDelta(t, 100.0, run.Results[0].FinalScore, 0.001)

	assert.Equal(t, 2, run.Stats.Sources)
	assert.Zero(t, run.Stats.SourcesFailed)
	assert.Greater(t, run.Stats.InputTokens, int64(0))
	assert.Greater(t, run.Stats.TotalCostUSD, 0.0)

	// The run is retrievable with the same report.
	again, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Results[0].CandidateID, again.Results[0].CandidateID)
}

func TestRun_AllSourcesFailedStillEmitsReport(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeClient{err: errors.New("vision oracle unavailable")})

	req := MatchRequest{
		Category: "tops",
		Frames:   []extract.ImageSource{frameSource(0)},
		Candidates: []CandidateInput{
			{ID: "cand-feed", Observation: feedObservation(90)},
		},
	}

	run, err := p.Run(context.Background(), req)
	require.NoError(t, err)

	// No fabricated profile: completeness 0, the report is flagged, and the
	// comparison is marked low-evidence rather than ranked normally.
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Profile)
	assert.Zero(t, run.Profile.Completeness)
	assert.Equal(t, 1, run.Stats.SourcesFailed)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].LowEvidence)
	assert.False(t, run.Results[0].IsMatch)
}

func TestRun_UnknownCategory(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeClient{response: fullResponse})

	_, err := p.Run(context.Background(), MatchRequest{Category: "gloves"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestSubmitThenProcess(t *testing.T) {
	p, st := newTestPipeline(t, &fakeClient{response: fullResponse})

	req := MatchRequest{
		Category:      "tops",
		ReferenceName: "olive crew sweater",
		Frames:        []extract.ImageSource{frameSource(0)},
		Candidates: []CandidateInput{
			{ID: "cand-feed", Name: "Navy Crew", Observation: feedObservation(90)},
		},
	}

	submitted, err := p.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, submitted.Status)
	assert.Nil(t, submitted.Profile)

	// The queued run is visible before processing starts.
	queued, err := st.GetRun(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusQueued, queued.Status)

	run, err := p.Process(context.Background(), submitted.ID, req)
	require.NoError(t, err)
	assert.Equal(t, submitted.ID, run.ID)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.Len(t, run.Results, 1)
}

func TestSubmit_UnknownCategory(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeClient{response: fullResponse})

	_, err := p.Submit(context.Background(), MatchRequest{Category: "gloves"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}
