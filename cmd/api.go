package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/extract"
	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/pipeline"
	"github.com/reelmatch/match-cli/internal/store"
	"github.com/reelmatch/match-cli/internal/verify"
)

// apiImage is an inline base64 image in an API request.
type apiImage struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"` // base64
}

// apiCandidate is one shopping candidate in a match request. Exactly one of
// Image or Attributes should be set.
type apiCandidate struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	URL        string            `json:"url,omitempty"`
	Image      *apiImage         `json:"image,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Confidence float64           `json:"confidence,omitempty"` // trust in supplied attributes, default from config
}

// apiMatchRequest is the POST /v1/match body.
type apiMatchRequest struct {
	Category      string         `json:"category"`
	ReferenceName string         `json:"reference_name,omitempty"`
	ReferenceURL  string         `json:"reference_url,omitempty"`
	Frames        []apiImage     `json:"frames"`
	Candidates    []apiCandidate `json:"candidates"`
}

// newRouter builds the HTTP API. baseCtx outlives individual requests and
// drives the async match executions so an early client disconnect never
// cancels a run in flight.
func newRouter(baseCtx context.Context, env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/match", handleMatch(baseCtx, env))
		r.Get("/runs", handleListRuns(env))
		r.Get("/runs/{id}", handleGetRun(env))
		r.Get("/schemas", handleListSchemas(env))
		r.Get("/schemas/{name}", handleGetSchema(env))

		r.Post("/runs/{id}/attributes/{name}/confirm", handleConfirm(env))
		r.Post("/runs/{id}/attributes/{name}/correct", handleCorrect(env))
		r.Post("/runs/{id}/attributes/{name}/dispute", handleDispute(env))
	})

	return r
}

func handleMatch(baseCtx context.Context, env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req apiMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Category == "" {
			writeError(w, http.StatusBadRequest, "category is required")
			return
		}
		if len(req.Frames) == 0 {
			writeError(w, http.StatusBadRequest, "at least one frame is required")
			return
		}

		matchReq, err := toMatchRequest(env, req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		run, err := env.Pipeline.Submit(r.Context(), matchReq)
		if err != nil {
			if strings.Contains(err.Error(), "unknown category") {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "submit failed")
			return
		}

		go func() {
			if _, err := env.Pipeline.Process(baseCtx, run.ID, matchReq); err != nil {
				zap.L().Error("async match run failed",
					zap.String("run_id", run.ID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": run.ID,
			"status": string(run.Status),
		})
	}
}

func handleListRuns(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))

		runs, err := env.Store.ListRuns(r.Context(), store.RunFilter{
			Status:   model.RunStatus(q.Get("status")),
			Category: q.Get("category"),
			Limit:    limit,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
	}
}

func handleGetRun(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if strings.Contains(err.Error(), "not found") {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleListSchemas(env *pipelineEnv) http.HandlerFunc {
	type schemaSummary struct {
		Name          string  `json:"name"`
		DisplayName   string  `json:"display_name"`
		Attributes    int     `json:"attributes"`
		DealBreakers  int     `json:"deal_breakers"`
		MinMatchScore float64 `json:"min_match_score"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		names := env.Registry.Names()
		out := make([]schemaSummary, 0, len(names))
		for _, name := range names {
			cs, err := env.Registry.Lookup(name)
			if err != nil {
				continue
			}
			out = append(out, schemaSummary{
				Name:          cs.Name,
				DisplayName:   cs.DisplayName,
				Attributes:    len(cs.Attributes),
				DealBreakers:  len(cs.DealBreakers()),
				MinMatchScore: cs.MinMatchScore,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"schemas": out})
	}
}

func handleGetSchema(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs, err := env.Registry.Lookup(chi.URLParam(r, "name"))
		if err != nil {
			writeError(w, http.StatusNotFound, "schema not found")
			return
		}
		writeJSON(w, http.StatusOK, cs)
	}
}

// verifyBody is the shared body for the claim verification endpoints.
type verifyBody struct {
	Actor  string `json:"actor"`
	As     string `json:"as,omitempty"`     // confirm: creator or brand
	Value  string `json:"value,omitempty"`  // correct
	Reason string `json:"reason,omitempty"` // correct, dispute
}

func handleConfirm(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeVerifyBody(w, r)
		if !ok {
			return
		}
		as := body.As
		if as == "" {
			as = "creator"
		}
		provenance, err := confirmProvenance(as)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		handleVerifyAction(w, r, env, func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Confirm(c, provenance, body.Actor), nil
		})
	}
}

func handleCorrect(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeVerifyBody(w, r)
		if !ok {
			return
		}
		if body.Value == "" {
			writeError(w, http.StatusBadRequest, "value is required")
			return
		}
		handleVerifyAction(w, r, env, func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Correct(c, body.Value, body.Actor, body.Reason), nil
		})
	}
}

func handleDispute(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeVerifyBody(w, r)
		if !ok {
			return
		}
		handleVerifyAction(w, r, env, func(c model.AttributeClaim) (model.AttributeClaim, error) {
			return verify.Dispute(c, body.Actor, body.Reason), nil
		})
	}
}

func decodeVerifyBody(w http.ResponseWriter, r *http.Request) (verifyBody, bool) {
	var body verifyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return body, false
	}
	if body.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return body, false
	}
	return body, true
}

func handleVerifyAction(w http.ResponseWriter, r *http.Request, env *pipelineEnv, apply func(model.AttributeClaim) (model.AttributeClaim, error)) {
	runID := chi.URLParam(r, "id")
	attr := chi.URLParam(r, "name")

	updated, err := applyClaimAction(r.Context(), env.Store, runID, attr, apply)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not found"):
			writeError(w, http.StatusNotFound, "run not found")
		case strings.Contains(msg, "not resolved"), strings.Contains(msg, "no fused profile"):
			writeError(w, http.StatusConflict, msg)
		default:
			writeError(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"attribute":    updated,
		"verification": verify.StateOf(updated.Claim),
	})
}

// toMatchRequest converts the wire request into pipeline inputs, decoding
// base64 image payloads and shaping supplied attributes as observations.
func toMatchRequest(env *pipelineEnv, req apiMatchRequest) (pipeline.MatchRequest, error) {
	now := time.Now()

	out := pipeline.MatchRequest{
		Category:      req.Category,
		ReferenceName: req.ReferenceName,
		ReferenceURL:  req.ReferenceURL,
	}

	for i, f := range req.Frames {
		src, err := decodeImage(f, model.FrameEvidence(i, 0, now))
		if err != nil {
			return out, err
		}
		out.Frames = append(out.Frames, src)
	}

	for _, c := range req.Candidates {
		input := pipeline.CandidateInput{ID: c.ID, Name: c.Name, URL: c.URL}
		switch {
		case c.Image != nil:
			src, err := decodeImage(*c.Image, model.ListingEvidence(c.URL, now))
			if err != nil {
				return out, err
			}
			input.Image = &src
		case len(c.Attributes) > 0:
			cs, err := env.Registry.Lookup(req.Category)
			if err != nil {
				return out, err
			}
			confidence := c.Confidence
			if confidence == 0 {
				confidence = cfg.Catalog.FeedConfidence
			}
			obs := attributeObservation(cs.Name, c, confidence, now)
			for _, def := range cs.Attributes {
				if _, ok := obs.Values[def.Name]; !ok {
					obs.Values[def.Name] = model.ObservedValue{Observed: false}
				}
			}
			input.Observation = &obs
		}
		out.Candidates = append(out.Candidates, input)
	}

	return out, nil
}

func attributeObservation(category string, c apiCandidate, confidence float64, at time.Time) model.SourceObservation {
	obs := model.SourceObservation{
		Source:      model.ListingEvidence(c.URL, at),
		Category:    category,
		Values:      make(map[string]model.ObservedValue, len(c.Attributes)),
		ExtractedAt: at.UTC(),
	}
	var sum float64
	for name, raw := range c.Attributes {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		obs.Values[name] = model.ObservedValue{Raw: raw, Observed: true, Confidence: confidence}
		sum += confidence
	}
	if n := len(obs.Values); n > 0 {
		obs.OverallConfidence = sum / float64(n)
	}
	return obs
}

func decodeImage(img apiImage, ev model.Evidence) (extract.ImageSource, error) {
	data, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return extract.ImageSource{}, err
	}
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return extract.ImageSource{Evidence: ev, MediaType: mediaType, Data: data}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
