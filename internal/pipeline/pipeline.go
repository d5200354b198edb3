// Package pipeline orchestrates one match run end to end: extract
// observations from the reference frames, fuse them into a profile, extract
// and score each shopping candidate, and persist the ranked report.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reelmatch/match-cli/internal/config"
	"github.com/reelmatch/match-cli/internal/cost"
	"github.com/reelmatch/match-cli/internal/extract"
	"github.com/reelmatch/match-cli/internal/matching"
	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
	"github.com/reelmatch/match-cli/internal/store"
)

// CandidateInput is one shopping candidate entering a run. Exactly one of
// Image (the oracle reads the listing photo) or Observation (structured feed
// row, already attribute-shaped) should be set.
type CandidateInput struct {
	ID          string
	Name        string
	URL         string
	Image       *extract.ImageSource
	Observation *model.SourceObservation
}

// MatchRequest describes one match run: the reference video frames plus the
// candidate set to rank against them.
type MatchRequest struct {
	Category      string
	ReferenceName string
	ReferenceURL  string
	Frames        []extract.ImageSource
	Candidates    []CandidateInput
}

// Pipeline wires the extractor, matching core, and store into the match flow.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	extractor *extract.Extractor
	registry  *schema.Registry
	calc      *cost.Calculator
}

// New creates a Pipeline.
func New(cfg *config.Config, st store.Store, ex *extract.Extractor, reg *schema.Registry, calc *cost.Calculator) *Pipeline {
	return &Pipeline{cfg: cfg, store: st, extractor: ex, registry: reg, calc: calc}
}

// Run executes a match request to completion and returns the persisted run.
// Source and candidate failures degrade the result (dropped, counted,
// flagged); only infrastructure failures fail the run itself.
func (p *Pipeline) Run(ctx context.Context, req MatchRequest) (*model.MatchRun, error) {
	run, err := p.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, run.ID, req)
}

// Submit validates the request's category and persists a queued run,
// returning it without executing. Callers that want async execution hold the
// run ID and drive Process themselves.
func (p *Pipeline) Submit(ctx context.Context, req MatchRequest) (*model.MatchRun, error) {
	if _, err := p.registry.Lookup(req.Category); err != nil {
		return nil, err
	}
	return p.store.CreateRun(ctx, req.Category, req.ReferenceName, req.ReferenceURL)
}

// Process executes a previously submitted run through extraction, fusion,
// and comparison, then returns the persisted result.
func (p *Pipeline) Process(ctx context.Context, runID string, req MatchRequest) (*model.MatchRun, error) {
	cs, err := p.registry.Lookup(req.Category)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	log := zap.L().With(zap.String("run_id", runID), zap.String("category", req.Category))
	log.Info("pipeline: run started",
		zap.Int("frames", len(req.Frames)),
		zap.Int("candidates", len(req.Candidates)),
	)

	report, stats, err := p.execute(ctx, log, runID, cs, req)
	if err != nil {
		if markErr := p.store.MarkRunFailed(ctx, runID, err.Error()); markErr != nil {
			log.Error("pipeline: mark run failed", zap.Error(markErr))
		}
		return nil, eris.Wrap(err, "pipeline: run")
	}

	stats.DurationMs = time.Since(started).Milliseconds()
	if err := p.store.SaveRunReport(ctx, runID, report, stats); err != nil {
		return nil, err
	}

	log.Info("pipeline: run complete",
		zap.Int("matches", stats.Matches),
		zap.Int("capped", stats.Capped),
		zap.Float64("cost_usd", stats.TotalCostUSD),
		zap.Int64("duration_ms", stats.DurationMs),
	)
	return p.store.GetRun(ctx, runID)
}

func (p *Pipeline) execute(ctx context.Context, log *zap.Logger, runID string, cs *schema.CategorySchema, req MatchRequest) (*model.MatchReport, model.RunStats, error) {
	var stats model.RunStats

	// Phase 1: extract the reference frames.
	if err := p.setStatus(ctx, log, runID, model.RunStatusExtracting); err != nil {
		return nil, stats, err
	}
	frames, err := p.extractor.ExtractAll(ctx, cs, req.Frames)
	if err != nil {
		return nil, stats, eris.Wrap(err, "pipeline: extract reference frames")
	}
	stats.Sources = len(req.Frames)
	stats.SourcesFailed = frames.Failed
	p.accumulate(&stats, frames)

	// Phase 2: fuse into the reference profile.
	if err := p.setStatus(ctx, log, runID, model.RunStatusFusing); err != nil {
		return nil, stats, err
	}
	profile := matching.Fuse(frames.Observations, cs)
	if err := p.store.UpdateRunProfile(ctx, runID, profile); err != nil {
		return nil, stats, err
	}
	log.Info("pipeline: profile fused",
		zap.Float64("completeness", profile.Completeness),
		zap.Float64("confidence", profile.OverallConfidence),
		zap.Int("sources", profile.SourceCount),
	)

	report := &model.MatchReport{Profile: profile}
	if profile.InsufficientEvidence() {
		// Never fabricate a profile: emit the report flagged instead.
		report.Flags = append(report.Flags, "insufficient evidence: no reference frame produced an observation")
	}

	// Phase 3: extract and score candidates.
	if err := p.setStatus(ctx, log, runID, model.RunStatusComparing); err != nil {
		return nil, stats, err
	}
	results, failed, err := p.compareCandidates(ctx, log, cs, profile, req.Candidates, &stats)
	if err != nil {
		return nil, stats, err
	}
	stats.Candidates = len(req.Candidates)
	stats.CandidatesFailed = failed

	report.Results = matching.Rank(results)
	for _, r := range report.Results {
		if r.IsMatch {
			stats.Matches++
		}
		if r.WasCapped {
			stats.Capped++
		}
	}
	return report, stats, nil
}

// compareCandidates resolves each candidate to an observation (feed row or
// oracle read of its listing image) and scores it against the profile in a
// bounded group. A failed candidate is excluded; the batch proceeds.
func (p *Pipeline) compareCandidates(ctx context.Context, log *zap.Logger, cs *schema.CategorySchema, profile *model.FusedProfile, candidates []CandidateInput, stats *model.RunStats) ([]model.ComparisonResult, int, error) {
	// Oracle-path candidates go through one extraction pass so the batch API
	// threshold sees the full set.
	var images []extract.ImageSource
	for _, c := range candidates {
		if c.Image != nil {
			images = append(images, *c.Image)
		}
	}
	observed := map[string]model.SourceObservation{}
	if len(images) > 0 {
		res, err := p.extractor.ExtractAll(ctx, cs, images)
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: extract candidate images")
		}
		p.accumulate(stats, res)
		for _, obs := range res.Observations {
			observed[obs.Source.ID] = obs
		}
	}

	results := make([]model.ComparisonResult, len(candidates))
	ok := make([]bool, len(candidates))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Extract.Concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			obs, found := candidateObservation(c, observed)
			if !found {
				log.Warn("pipeline: candidate dropped, no observation",
					zap.String("candidate_id", c.ID))
				return nil
			}
			results[i] = matching.Score(profile, matching.Candidate{
				ID:          c.ID,
				Name:        c.Name,
				URL:         c.URL,
				Observation: obs,
			}, cs)
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var kept []model.ComparisonResult
	failed := 0
	for i := range candidates {
		if ok[i] {
			kept = append(kept, results[i])
		} else {
			failed++
		}
	}
	return kept, failed, nil
}

func candidateObservation(c CandidateInput, observed map[string]model.SourceObservation) (model.SourceObservation, bool) {
	if c.Observation != nil {
		return *c.Observation, true
	}
	if c.Image != nil {
		obs, found := observed[c.Image.Evidence.ID]
		return obs, found
	}
	return model.SourceObservation{}, false
}

func (p *Pipeline) setStatus(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus) error {
	log.Debug("pipeline: phase", zap.String("status", string(status)))
	return p.store.UpdateRunStatus(ctx, runID, status)
}

// accumulate folds one extraction pass into the run's token and cost totals.
func (p *Pipeline) accumulate(stats *model.RunStats, res *extract.Result) {
	stats.InputTokens += res.Usage.InputTokens
	stats.OutputTokens += res.Usage.OutputTokens
	if p.calc != nil {
		stats.TotalCostUSD += p.calc.Usage(p.cfg.Anthropic.VisionModel, res.Batched, res.Usage)
	}
}
