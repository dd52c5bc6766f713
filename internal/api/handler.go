package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/repository"
)

// scoreCacheTTL bounds staleness of dashboard score reads between runs.
const scoreCacheTTL = 5 * time.Minute

// defaultScoreLimit caps /scores responses when no limit is given.
const defaultScoreLimit = 100

// Handler holds dependencies for API handlers.
type Handler struct {
	scoring *domain.ScoringConfig
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	graph   *graph.Scorer
	version string
}

// NewHandler creates a new API handler.
func NewHandler(scoring *domain.ScoringConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		scoring: scoring,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		graph:   graph.NewScorer(scoring),
		version: version,
	}
}

// ScoreResponse is a persisted score enriched with its risk band.
type ScoreResponse struct {
	domain.Score
	Level  domain.RiskLevel `json:"level"`
	Action string           `json:"action"`
}

// RunTriggerRequest is the optional request body for POST /runs.
type RunTriggerRequest struct {
	RequestedBy string `json:"requestedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check event bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.repo.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetClaim retrieves a claim by ID.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	claim, err := h.repo.GetClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "claim not found",
			})
			return
		}
		if errors.Is(err, repository.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "claim id is required",
			})
			return
		}
		slog.Error("failed to get claim", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// GetScore retrieves the persisted score for a claim, enriched with its
// risk band. Reads go through the cache; misses fall back to the
// repository and backfill the cache.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID := chi.URLParam(r, "id")

	if claimID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "claim id is required",
		})
		return
	}

	if h.cache != nil {
		score, err := h.cache.GetScore(ctx, claimID)
		if err != nil {
			slog.Warn("score cache read failed", "id", claimID, "error", err)
		}
		if score != nil {
			writeJSON(w, http.StatusOK, h.withBand(score))
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	score, err := h.repo.GetScore(ctx, claimID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "score not found",
			})
			return
		}
		slog.Error("failed to get score", "id", claimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetScore(ctx, score, scoreCacheTTL); err != nil {
			slog.Warn("score cache write failed", "id", claimID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, h.withBand(score))
}

// ListScores returns scores at or above min_risk, highest risk first.
// Query parameters: min_risk (default 0), band (level name, overrides
// min_risk with the band's range), limit (default 100).
func (h *Handler) ListScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	minRisk := 0.0
	maxRisk := -1.0 // no upper bound
	if raw := r.URL.Query().Get("min_risk"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "min_risk must be a number in [0,1]",
			})
			return
		}
		minRisk = v
	}

	if raw := r.URL.Query().Get("band"); raw != "" {
		lo, hi, ok := h.bandRange(domain.RiskLevel(raw))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown band: " + raw,
			})
			return
		}
		minRisk, maxRisk = lo, hi
	}

	limit := defaultScoreLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = v
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	// With an upper bound the limit is applied after filtering, so fetch
	// the full range from the repository.
	fetchLimit := limit
	if maxRisk >= 0 {
		fetchLimit = 0
	}

	scores, err := h.repo.ListScoresAbove(ctx, minRisk, fetchLimit)
	if err != nil {
		slog.Error("failed to list scores", "min_risk", minRisk, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	out := make([]*ScoreResponse, 0, len(scores))
	for _, s := range scores {
		if maxRisk >= 0 && s.RiskScore >= maxRisk {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, h.withBand(s))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scores":  out,
		"count":   len(out),
		"minRisk": minRisk,
	})
}

// Stats summarizes the scored population: total count, per-band histogram
// and the graph rules the local scorer cannot evaluate.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	total, err := h.repo.CountScores(ctx)
	if err != nil {
		slog.Error("failed to count scores", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	scores, err := h.repo.ListScoresAbove(ctx, 0, 0)
	if err != nil {
		slog.Error("failed to list scores for stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal server error",
		})
		return
	}

	bands := make(map[string]int, len(h.scoring.Bands))
	for _, b := range h.scoring.Bands {
		bands[string(b.Level)] = 0
	}
	for _, s := range scores {
		bands[string(h.scoring.BandFor(s.RiskScore).Level)]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scoredClaims":          total,
		"bands":                 bands,
		"unevaluatedGraphRules": h.graph.Unevaluated(),
		"version":               h.version,
	})
}

// TriggerRun publishes a run-requested event for the async scoring worker.
// The body is optional and carries requester metadata only.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req RunTriggerRequest
	body, err := io.ReadAll(r.Body)
	if err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	payload, _ := json.Marshal(req)
	if err := h.bus.Publish(ctx, domain.TopicRunRequested, payload); err != nil {
		slog.Error("failed to publish run request", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to request run",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"topic":  domain.TopicRunRequested,
	})
}

// bandRange returns the [lo, hi) risk-score range of a band level.
func (h *Handler) bandRange(level domain.RiskLevel) (float64, float64, bool) {
	lo := 0.0
	for _, b := range h.scoring.Bands {
		if b.Level == level {
			return lo, b.Below, true
		}
		lo = b.Below
	}
	return 0, 0, false
}

func (h *Handler) withBand(score *domain.Score) *ScoreResponse {
	band := h.scoring.BandFor(score.RiskScore)
	return &ScoreResponse{
		Score:  *score,
		Level:  band.Level,
		Action: band.Action,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
