package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/cost"
	"github.com/reelmatch/match-cli/internal/extract"
	"github.com/reelmatch/match-cli/internal/pipeline"
	"github.com/reelmatch/match-cli/internal/schema"
	"github.com/reelmatch/match-cli/internal/store"
	anthropicpkg "github.com/reelmatch/match-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store, schema registry, and pipeline
// needed by the match/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Registry *schema.Registry
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initRegistry loads the built-in category schemas plus any user-supplied
// schema directory from config.
func initRegistry() (*schema.Registry, error) {
	reg, err := schema.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.Schemas.Dir != "" {
		if err := reg.LoadDir(cfg.Schemas.Dir); err != nil {
			return nil, err
		}
		zap.L().Info("loaded schema directory", zap.String("dir", cfg.Schemas.Dir))
	}
	return reg, nil
}

// initPipeline sets up the store, the Anthropic client, the schema registry,
// and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Extract.CacheTTLHours > 0 {
		ttl := time.Duration(cfg.Extract.CacheTTLHours) * time.Hour
		switch s := st.(type) {
		case *store.SQLiteStore:
			s.SetObservationTTL(ttl)
		case *store.PostgresStore:
			s.SetObservationTTL(ttl)
		}
	}

	reg, err := initRegistry()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	extractor := extract.New(client, cfg.Anthropic, cfg.Extract, st)

	rates := cost.DefaultRates()
	for model, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			BatchDiscount: p.BatchDiscount,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	calc := cost.NewCalculator(rates)

	return &pipelineEnv{
		Store:    st,
		Registry: reg,
		Pipeline: pipeline.New(cfg, st, extractor, reg, calc),
	}, nil
}
