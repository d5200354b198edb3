package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/catalog"
	"github.com/reelmatch/match-cli/internal/extract"
	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/pipeline"
	"github.com/reelmatch/match-cli/internal/schema"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a match: extract reference frames, fuse, rank candidates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		category, _ := cmd.Flags().GetString("category")
		refName, _ := cmd.Flags().GetString("name")
		refURL, _ := cmd.Flags().GetString("url")
		framePaths, _ := cmd.Flags().GetStringArray("frame")
		candidateImages, _ := cmd.Flags().GetStringArray("candidate-image")
		feedPath, _ := cmd.Flags().GetString("feed")

		if len(framePaths) == 0 {
			return eris.New("at least one --frame is required")
		}
		if len(candidateImages) == 0 && feedPath == "" {
			return eris.New("provide candidates via --candidate-image or --feed")
		}

		env, err := initPipeline(ctx, "match")
		if err != nil {
			return err
		}
		defer env.Close()

		frames, err := loadFrames(framePaths)
		if err != nil {
			return err
		}

		candidates, err := loadImageCandidates(candidateImages)
		if err != nil {
			return err
		}

		if feedPath != "" {
			cs, err := env.Registry.Lookup(category)
			if err != nil {
				return err
			}
			feedCandidates, err := loadFeedCandidates(ctx, feedPath, cs)
			if err != nil {
				return err
			}
			candidates = append(candidates, feedCandidates...)
		}

		run, err := env.Pipeline.Run(ctx, pipeline.MatchRequest{
			Category:      category,
			ReferenceName: refName,
			ReferenceURL:  refURL,
			Frames:        frames,
			Candidates:    candidates,
		})
		if err != nil {
			return err
		}

		zap.L().Info("match run complete",
			zap.String("run_id", run.ID),
			zap.Int("candidates", run.Stats.Candidates),
			zap.Int("matches", run.Stats.Matches),
			zap.Float64("cost_usd", run.Stats.TotalCostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	matchCmd.Flags().String("category", "", "category schema to match against (e.g. tops, shoes)")
	matchCmd.Flags().String("name", "", "reference product name, if known")
	matchCmd.Flags().String("url", "", "reference video or post URL")
	matchCmd.Flags().StringArray("frame", nil, "reference frame image file (repeatable, ordered)")
	matchCmd.Flags().StringArray("candidate-image", nil, "candidate listing photo as id=path (repeatable)")
	matchCmd.Flags().String("feed", "", "candidate feed: CSV/XLSX path or ftp:// URL")
	_ = matchCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(matchCmd)
}

// mediaTypeOf maps an image file extension to its MIME type. Defaults to
// JPEG for unknown extensions since that is what frame samplers emit.
func mediaTypeOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

// loadFrames reads frame image files in order. The flag position becomes the
// frame index, which the fuser uses as a deterministic tie-breaker.
func loadFrames(paths []string) ([]extract.ImageSource, error) {
	now := time.Now()
	frames := make([]extract.ImageSource, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read frame %s", p)
		}
		frames = append(frames, extract.ImageSource{
			Evidence:  model.FrameEvidence(i, 0, now),
			MediaType: mediaTypeOf(p),
			Data:      data,
		})
	}
	return frames, nil
}

// loadImageCandidates parses id=path specs into image-backed candidates.
// A bare path uses the file's base name (minus extension) as the ID.
func loadImageCandidates(specs []string) ([]pipeline.CandidateInput, error) {
	now := time.Now()
	candidates := make([]pipeline.CandidateInput, 0, len(specs))
	for _, spec := range specs {
		id, path, found := strings.Cut(spec, "=")
		if !found {
			path = spec
			id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read candidate image %s", path)
		}
		candidates = append(candidates, pipeline.CandidateInput{
			ID:   id,
			Name: id,
			Image: &extract.ImageSource{
				Evidence:  model.ListingEvidence("", now),
				MediaType: mediaTypeOf(path),
				Data:      data,
			},
		})
	}
	return candidates, nil
}

// loadFeedCandidates reads a merchant feed (CSV, XLSX, or ftp:// URL) and
// converts each listing into a structured-observation candidate.
func loadFeedCandidates(ctx context.Context, feedPath string, cs *schema.CategorySchema) ([]pipeline.CandidateInput, error) {
	listings, err := readFeed(ctx, feedPath)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	candidates := make([]pipeline.CandidateInput, 0, len(listings))
	for _, l := range listings {
		obs := l.ToObservation(cs, cfg.Catalog.FeedConfidence, now)
		candidates = append(candidates, pipeline.CandidateInput{
			ID:          l.ID,
			Name:        l.Name,
			URL:         l.URL,
			Observation: &obs,
		})
	}
	return candidates, nil
}

// readFeed dispatches on the feed location: ftp:// URLs are fetched remotely,
// local paths are read by extension (.xlsx or CSV).
func readFeed(ctx context.Context, feedPath string) ([]catalog.Listing, error) {
	if strings.HasPrefix(feedPath, "ftp://") {
		data, err := catalog.FetchFTP(ctx, feedPath, catalog.FTPOptions{
			Timeout: time.Duration(cfg.Catalog.FTPTimeoutSecs) * time.Second,
			Retries: cfg.Catalog.FTPRetries,
		})
		if err != nil {
			return nil, err
		}
		return catalog.ReadCSV(strings.NewReader(string(data)))
	}
	if strings.EqualFold(filepath.Ext(feedPath), ".xlsx") {
		return catalog.ReadXLSX(feedPath)
	}
	return catalog.ReadCSVFile(feedPath)
}
