package audit

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/platform/httpx"
	"github.com/capline-erp/capline/internal/shared"
)

const exportRateLimit = 10
const exportRateWindow = time.Minute

// Handler exposes the audit timeline read API. The trail itself is written by
// the domain services; this surface is read-only and Admin-only.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the audit endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
	r.Get("/audit", h.handleTimeline)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/audit/export.csv", h.handleExport)
	})
}

type eventResponse struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	Action     string    `json:"action"`
	Before     *Snapshot `json:"before_values"`
	After      *Snapshot `json:"after_values"`
	ActorID    int64     `json:"actor_id"`
	At         time.Time `json:"occurred_at"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

type timelineResponse struct {
	Events []eventResponse `json:"events"`
	Paging PagingInfo      `json:"paging"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	result, err := h.service.Timeline(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	events := make([]eventResponse, 0, len(result.Events))
	for _, event := range result.Events {
		events = append(events, toEventResponse(event))
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Events: events, Paging: result.Paging})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok || !actor.IsAdmin() {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	events, err := h.service.Export(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"occurred_at", "actor_id", "action", "entity_type", "entity_id", "before", "after"})
	for _, event := range events {
		before, _ := snapshotJSON(event.Before)
		after, _ := snapshotJSON(event.After)
		_ = writer.Write([]string{
			event.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(event.ActorID, 10),
			string(event.Action),
			event.EntityType,
			strconv.FormatInt(event.EntityID, 10),
			string(before),
			string(after),
		})
	}
	writer.Flush()
}

func toEventResponse(event Event) eventResponse {
	return eventResponse{
		ID:         event.ID,
		EntityType: event.EntityType,
		EntityID:   event.EntityID,
		Action:     string(event.Action),
		Before:     event.Before,
		After:      event.After,
		ActorID:    event.ActorID,
		At:         event.At,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
	}
}

func filtersFromQuery(r *http.Request) TimelineFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	actorID, _ := strconv.ParseInt(q.Get("actor_id"), 10, 64)
	entityID, _ := strconv.ParseInt(q.Get("entity_id"), 10, 64)
	filters := TimelineFilters{
		ActorID:    actorID,
		EntityType: q.Get("entity_type"),
		EntityID:   entityID,
		Action:     q.Get("action"),
		Page:       page,
		PageSize:   pageSize,
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filters.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filters.To = t
		}
	}
	return filters
}
