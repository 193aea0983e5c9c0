package grants

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/platform/httpx"
)

// Handler manages the sharing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the sharing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/access", func(r chi.Router) {
		r.Get("/", h.listGrants)
		r.Post("/", h.share)
		r.Put("/{id}", h.updateGrant)
		r.Delete("/{id}", h.revoke)
	})
}

type shareRequest struct {
	RecordType string     `json:"record_type" validate:"required"`
	RecordID   int64      `json:"record_id" validate:"required,gt=0"`
	UserID     int64      `json:"user_id"`
	GroupID    int64      `json:"group_id"`
	Level      string     `json:"access_level" validate:"required,oneof=Read Write Full"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type updateRequest struct {
	Level     *string    `json:"access_level"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type grantResponse struct {
	ID         int64      `json:"id"`
	RecordType string     `json:"record_type"`
	RecordID   int64      `json:"record_id"`
	UserID     int64      `json:"user_id,omitempty"`
	GroupID    int64      `json:"group_id,omitempty"`
	Level      string     `json:"access_level"`
	GrantedBy  int64      `json:"granted_by"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	UpdatedBy  int64      `json:"updated_by,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

func toGrantResponse(g access.Grant) grantResponse {
	return grantResponse{
		ID:         g.ID,
		RecordType: g.RecordType,
		RecordID:   g.RecordID,
		UserID:     g.UserID,
		GroupID:    g.GroupID,
		Level:      string(g.Level),
		GrantedBy:  g.GrantedBy,
		GrantedAt:  g.GrantedAt,
		ExpiresAt:  g.ExpiresAt,
		UpdatedBy:  g.UpdatedBy,
		UpdatedAt:  g.UpdatedAt,
	}
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req shareRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.Share(r.Context(), actor, ShareInput{
		RecordType: req.RecordType,
		RecordID:   req.RecordID,
		UserID:     req.UserID,
		GroupID:    req.GroupID,
		Level:      req.Level,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logger.Warn("share record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(g))
}

func (h *Handler) updateGrant(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	g, err := h.service.Update(r.Context(), actor, id, UpdateInput{Level: req.Level, ExpiresAt: req.ExpiresAt})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGrantResponse(g))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := h.service.Revoke(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	recordType := r.URL.Query().Get("record_type")
	recordID, _ := strconv.ParseInt(r.URL.Query().Get("record_id"), 10, 64)
	if recordType == "" || recordID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "record_type and record_id are required")
		return
	}
	out, err := h.service.List(r.Context(), actor, recordType, recordID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]grantResponse, 0, len(out))
	for _, g := range out {
		resp = append(resp, toGrantResponse(g))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
