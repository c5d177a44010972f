package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trustlab/kestrel/internal/assessment"
	"github.com/trustlab/kestrel/internal/classifier"
	"github.com/trustlab/kestrel/internal/domain"
	"github.com/trustlab/kestrel/internal/graph"
	"github.com/trustlab/kestrel/internal/pipeline"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	builder      *graph.Builder
	scheduler    *pipeline.Scheduler
	orchestrator *assessment.Orchestrator
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, builder *graph.Builder, scheduler *pipeline.Scheduler, orchestrator *assessment.Orchestrator, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		builder:      builder,
		scheduler:    scheduler,
		orchestrator: orchestrator,
		version:      version,
	}
}

// IngestRequest is the request body for POST /events.
type IngestRequest struct {
	Events []domain.BehaviorEvent `json:"events"`
}

// IngestEvents handles POST /events: batch behavior-event ingestion with
// per-record rejection.
func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "events is required and must not be empty",
		})
		return
	}

	report, err := h.builder.Ingest(ctx, req.Events)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.cache != nil {
		if _, err := h.cache.IncrementCounter(ctx, "events_ingested", time.Minute); err != nil {
			slog.Warn("failed to bump ingest counter", "error", err)
		}
	}
	if h.bus != nil && report.Accepted > 0 {
		if payload, err := json.Marshal(report); err == nil {
			_ = h.bus.Publish(ctx, domain.TopicEventsIngested, payload)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// ProfilesRequest is the request body for POST /profiles.
type ProfilesRequest struct {
	Profiles []domain.BehaviorProfile `json:"profiles"`
}

// ProfilesResponse reports per-record profile upsert outcomes.
type ProfilesResponse struct {
	Accepted int                    `json:"accepted"`
	Rejected []domain.RejectedEvent `json:"rejected,omitempty"`
}

// SaveProfiles handles POST /profiles: behavioral aggregate upserts from
// the ETL collaborator, rejected per record like event ingestion.
func (h *Handler) SaveProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ProfilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Profiles) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "profiles is required and must not be empty",
		})
		return
	}

	resp := &ProfilesResponse{}
	for i := range req.Profiles {
		profile := &req.Profiles[i]
		if err := profile.Validate(); err != nil {
			resp.Rejected = append(resp.Rejected, domain.RejectedEvent{
				Index:  i,
				Reason: err.Error(),
			})
			continue
		}
		if err := h.repo.SaveProfile(ctx, profile); err != nil {
			h.writeError(w, err)
			return
		}
		resp.Accepted++
	}

	writeJSON(w, http.StatusOK, resp)
}

// TriggerEpoch handles POST /epochs: requests an asynchronous scoring
// epoch. Overlapping requests coalesce.
func (h *Handler) TriggerEpoch(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Trigger()

	if h.bus != nil {
		_ = h.bus.Publish(r.Context(), domain.TopicEpochRequested, []byte(`{"source":"api"}`))
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "requested",
	})
}

// GetEpoch handles GET /epochs/{id}.
func (h *Handler) GetEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := h.repo.GetEpoch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epoch)
}

// GetCurrentEpoch handles GET /epochs/current.
func (h *Handler) GetCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := h.repo.CurrentEpoch(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epoch)
}

// GetTrust handles GET /users/{id}/trust.
func (h *Handler) GetTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	if h.cache != nil {
		if record, err := h.cache.GetTrustRecord(ctx, userID); err == nil && record != nil {
			writeJSON(w, http.StatusOK, record)
			return
		}
	}

	record, err := h.repo.GetCurrentTrustRecord(ctx, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if h.cache != nil {
		_ = h.cache.SetTrustRecord(ctx, userID, record, 0)
	}

	writeJSON(w, http.StatusOK, record)
}

// GetTrustHistory handles GET /users/{id}/trust/history?limit=N.
func (h *Handler) GetTrustHistory(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	history, err := h.repo.ListTrustHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
	})
}

// GetAssessment handles GET /users/{id}/assessment: the handoff contract
// for the downstream assessment consumer.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	handoff, err := h.orchestrator.Assess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handoff)
}

// GetTrustSummary handles GET /trust/summary: per-tier distribution of
// current trust records.
func (h *Handler) GetTrustSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.TierDistribution(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers": summary,
	})
}

// ListRings handles GET /rings?risk_level=High for the current epoch.
func (h *Handler) ListRings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var level domain.RiskLevel
	if raw := r.URL.Query().Get("risk_level"); raw != "" {
		level = domain.RiskLevel(raw)
		switch level {
		case domain.RiskHigh, domain.RiskMedium, domain.RiskLow:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "risk_level must be High, Medium or Low",
			})
			return
		}
	}

	epoch, err := h.repo.CurrentEpoch(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"rings": []*domain.Ring{}})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	rings, err := h.repo.ListRings(ctx, epoch.ID, level)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rings == nil {
		rings = []*domain.Ring{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"epochId": epoch.ID,
		"rings":   rings,
	})
}

// GetRing handles GET /rings/{id}.
func (h *Handler) GetRing(w http.ResponseWriter, r *http.Request) {
	ring, err := h.repo.GetRing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ring)
}

// ModelUploadRequest is the request body for PUT /models/classifier.
// Payload carries the opaque trained-model document.
type ModelUploadRequest struct {
	Version       string          `json:"version"`
	Kind          string          `json:"kind"`
	SchemaVersion string          `json:"schemaVersion"`
	FeatureSchema []string        `json:"featureSchema"`
	Payload       json.RawMessage `json:"payload"`
}

// UploadModel handles PUT /models/classifier. The artifact is validated
// against the feature store schema before it is activated; a mismatch is
// rejected here rather than failing the next epoch.
func (h *Handler) UploadModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ModelUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Version == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "version is required",
		})
		return
	}

	artifact := &domain.ModelArtifact{
		Version:       req.Version,
		Kind:          req.Kind,
		SchemaVersion: req.SchemaVersion,
		FeatureSchema: req.FeatureSchema,
		Payload:       []byte(req.Payload),
		Active:        true,
		UploadedAt:    time.Now().UTC(),
	}

	if _, err := classifier.Load(artifact); err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.repo.SaveModelArtifact(ctx, artifact); err != nil {
		h.writeError(w, err)
		return
	}

	slog.Info("classifier artifact activated",
		"version", artifact.Version,
		"schema_version", artifact.SchemaVersion,
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"version": artifact.Version,
		"status":  "active",
	})
}

// GetActiveModel handles GET /models/classifier: active artifact metadata
// without the payload body.
func (h *Handler) GetActiveModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.repo.ActiveModelArtifact(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       artifact.Version,
		"kind":          artifact.Kind,
		"schemaVersion": artifact.SchemaVersion,
		"featureSchema": artifact.FeatureSchema,
		"uploadedAt":    artifact.UploadedAt,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready: checks downstream dependencies.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{}
	healthy := true

	if err := h.repo.Ping(ctx); err != nil {
		checks["repository"] = err.Error()
		healthy = false
	} else {
		checks["repository"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["cache"] = err.Error()
			healthy = false
		} else {
			checks["cache"] = "ok"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(ctx); err != nil {
			checks["bus"] = err.Error()
			healthy = false
		} else {
			checks["bus"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  healthy,
		"checks": checks,
	})
}

// writeError maps domain errors to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrMalformedInput),
		errors.Is(err, domain.ErrModelSchemaMismatch):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
