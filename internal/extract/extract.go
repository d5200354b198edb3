// Package extract turns video frames and product photos into per-source
// attribute observations using the Anthropic vision models. Sources are
// processed concurrently with rate limiting and retries; large jobs go
// through the Batch API.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/reelmatch/match-cli/internal/config"
	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/resilience"
	"github.com/reelmatch/match-cli/internal/schema"
	"github.com/reelmatch/match-cli/pkg/anthropic"
)

// maxOutputTokens bounds the JSON observation response per frame.
const maxOutputTokens = 1024

// ImageSource pairs one frame or photo with its evidence record.
type ImageSource struct {
	Evidence  model.Evidence
	MediaType string // "image/jpeg", "image/png", "image/webp"
	Data      []byte
}

// Fingerprint returns a stable cache key for the image content.
func (s ImageSource) Fingerprint() string {
	sum := sha256.Sum256(s.Data)
	return hex.EncodeToString(sum[:])
}

// ObservationCache dedupes repeat extractions of identical frames. A nil
// cache disables caching.
type ObservationCache interface {
	GetCachedObservation(ctx context.Context, fingerprint, category, version string) (*model.SourceObservation, bool, error)
	SetCachedObservation(ctx context.Context, fingerprint, category, version string, obs *model.SourceObservation) error
}

// Result is the outcome of extracting a set of sources.
type Result struct {
	Observations []model.SourceObservation
	Failed       int
	CacheHits    int
	Batched      bool // true when the batch API priced the tokens
	Usage        anthropic.TokenUsage
}

// Extractor runs vision extraction against a category schema.
type Extractor struct {
	client anthropic.Client
	aiCfg  config.AnthropicConfig
	cfg    config.ExtractConfig
	limit  *rate.Limiter
	cache  ObservationCache
}

// New creates an Extractor. cache may be nil.
func New(client anthropic.Client, aiCfg config.AnthropicConfig, cfg config.ExtractConfig, cache ObservationCache) *Extractor {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Extractor{
		client: client,
		aiCfg:  aiCfg,
		cfg:    cfg,
		limit:  rate.NewLimiter(rate.Limit(rps), 1),
		cache:  cache,
	}
}

// ExtractAll extracts observations for every source. Individual source
// failures are dropped and counted rather than failing the whole set; the
// error return is reserved for total failures (batch submission, context
// cancellation).
func (e *Extractor) ExtractAll(ctx context.Context, cs *schema.CategorySchema, sources []ImageSource) (*Result, error) {
	result := &Result{}
	if len(sources) == 0 {
		return result, nil
	}

	// Resolve cached observations first; only misses go to the API.
	pending := make([]ImageSource, 0, len(sources))
	for _, src := range sources {
		if obs, ok := e.cachedObservation(ctx, src, cs.Name); ok {
			result.Observations = append(result.Observations, *obs)
			result.CacheHits++
			continue
		}
		pending = append(pending, src)
	}

	if len(pending) == 0 {
		return result, nil
	}

	systemBlocks := anthropic.BuildCachedSystemBlocks(BuildSystemPrompt(cs))

	threshold := e.aiCfg.SmallBatchThreshold
	if threshold <= 0 {
		threshold = 5
	}

	var err error
	if e.aiCfg.NoBatch || len(pending) <= threshold {
		err = e.extractDirect(ctx, cs, pending, systemBlocks, result)
	} else {
		result.Batched = true
		err = e.extractBatch(ctx, cs, pending, systemBlocks, result)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("extract: sources processed",
		zap.String("category", cs.Name),
		zap.Int("sources", len(sources)),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (e *Extractor) extractDirect(ctx context.Context, cs *schema.CategorySchema, sources []ImageSource, systemBlocks []anthropic.SystemBlock, result *Result) error {
	concurrency := e.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	retryCfg := resilience.DefaultRetryConfig()
	if e.cfg.Retries > 0 {
		retryCfg.MaxAttempts = e.cfg.Retries
	}
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "extract frame")

	obsByIdx := make([]*model.SourceObservation, len(sources))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, src := range sources {
		g.Go(func() error {
			resp, err := resilience.DoVal(gCtx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
				if err := e.limit.Wait(ctx); err != nil {
					return nil, err
				}
				return e.client.CreateMessage(ctx, e.frameRequest(src, systemBlocks))
			})
			if err != nil {
				zap.L().Warn("extract: source failed after retries",
					zap.String("evidence_id", src.Evidence.ID),
					zap.Error(err),
				)
				return nil // one bad frame never fails the set
			}

			obs := ParseObservation(textOf(resp), cs, src.Evidence, e.cfg.Version, time.Now())
			e.storeCached(gCtx, src, cs.Name, &obs)

			mu.Lock()
			obsByIdx[i] = &obs
			result.Usage.InputTokens += resp.Usage.InputTokens
			result.Usage.OutputTokens += resp.Usage.OutputTokens
			result.Usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
			result.Usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "extract: direct")
	}

	for _, obs := range obsByIdx {
		if obs == nil {
			result.Failed++
			continue
		}
		result.Observations = append(result.Observations, *obs)
	}
	return nil
}

func (e *Extractor) extractBatch(ctx context.Context, cs *schema.CategorySchema, sources []ImageSource, systemBlocks []anthropic.SystemBlock, result *Result) error {
	items := make([]anthropic.BatchRequestItem, len(sources))
	for i, src := range sources {
		items[i] = anthropic.BatchRequestItem{
			CustomID: fmt.Sprintf("src-%d-%s", i, src.Evidence.ID),
			Params:   e.frameRequest(src, systemBlocks),
		}
	}

	// Warm the prompt cache so batch items hit the cached schema prompt.
	var primerUsage anthropic.TokenUsage
	var primerWg sync.WaitGroup
	primerWg.Add(1)
	go func() {
		defer primerWg.Done()
		resp, err := anthropic.PrimerRequest(ctx, e.client, items[0].Params)
		if err != nil {
			zap.L().Warn("extract: primer failed", zap.Error(err))
			return
		}
		primerUsage = resp.Usage
	}()

	batch, err := e.client.CreateBatch(ctx, anthropic.BatchRequest{Requests: items})
	if err != nil {
		primerWg.Wait()
		return eris.Wrap(err, "extract: create batch")
	}

	batch, err = anthropic.PollBatch(ctx, e.client, batch.ID)
	if err != nil {
		primerWg.Wait()
		return eris.Wrap(err, "extract: poll batch")
	}

	iter, err := e.client.GetBatchResults(ctx, batch.ID)
	if err != nil {
		primerWg.Wait()
		return eris.Wrap(err, "extract: get batch results")
	}

	results, err := anthropic.CollectBatchResults(iter)
	if err != nil {
		primerWg.Wait()
		return eris.Wrap(err, "extract: collect batch results")
	}

	primerWg.Wait()
	result.Usage.InputTokens += primerUsage.InputTokens
	result.Usage.OutputTokens += primerUsage.OutputTokens
	result.Usage.CacheCreationInputTokens += primerUsage.CacheCreationInputTokens
	result.Usage.CacheReadInputTokens += primerUsage.CacheReadInputTokens

	for i, src := range sources {
		customID := fmt.Sprintf("src-%d-%s", i, src.Evidence.ID)
		resp, ok := results[customID]
		if !ok || resp == nil {
			zap.L().Warn("extract: batch item missing from results",
				zap.String("custom_id", customID),
			)
			result.Failed++
			continue
		}

		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		result.Usage.CacheCreationInputTokens += resp.Usage.CacheCreationInputTokens
		result.Usage.CacheReadInputTokens += resp.Usage.CacheReadInputTokens

		obs := ParseObservation(textOf(resp), cs, src.Evidence, e.cfg.Version, time.Now())
		e.storeCached(ctx, src, cs.Name, &obs)
		result.Observations = append(result.Observations, obs)
	}
	return nil
}

func (e *Extractor) frameRequest(src ImageSource, systemBlocks []anthropic.SystemBlock) anthropic.MessageRequest {
	return anthropic.MessageRequest{
		Model:     e.aiCfg.VisionModel,
		MaxTokens: maxOutputTokens,
		System:    systemBlocks,
		Messages: []anthropic.Message{
			{
				Role:    "user",
				Content: "Report the attributes you can see in this image.",
				Images:  []anthropic.Image{{MediaType: src.MediaType, Data: src.Data}},
			},
		},
	}
}

func (e *Extractor) cachedObservation(ctx context.Context, src ImageSource, category string) (*model.SourceObservation, bool) {
	if e.cache == nil {
		return nil, false
	}
	obs, ok, err := e.cache.GetCachedObservation(ctx, src.Fingerprint(), category, e.cfg.Version)
	if err != nil {
		zap.L().Warn("extract: cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	// The cached values were produced from identical bytes; re-point them at
	// the caller's evidence so provenance reflects this run's source.
	obs.Source = src.Evidence
	return obs, true
}

func (e *Extractor) storeCached(ctx context.Context, src ImageSource, category string, obs *model.SourceObservation) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetCachedObservation(ctx, src.Fingerprint(), category, e.cfg.Version, obs); err != nil {
		zap.L().Warn("extract: cache store failed", zap.Error(err))
	}
}

func textOf(resp *anthropic.MessageResponse) string {
	for _, b := range resp.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return ""
}
