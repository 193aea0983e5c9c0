package groups

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/capline-erp/capline/internal/access"
	"github.com/capline-erp/capline/internal/platform/httpx"
	"github.com/capline-erp/capline/internal/shared"
)

// Handler manages the group endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the group routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/groups", func(r chi.Router) {
		r.Get("/", h.listGroups)
		r.Post("/", h.createGroup)
		r.Get("/{id}", h.getGroup)
		r.Put("/{id}", h.updateGroup)
		r.Delete("/{id}", h.deleteGroup)
		r.Get("/{id}/members", h.listMembers)
		r.Post("/{id}/members", h.addMember)
		r.Delete("/{id}/members/{userID}", h.removeMember)
	})
}

type groupRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

type groupPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type groupResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toGroupResponse(g Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

type memberRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

type memberResponse struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	GroupID int64     `json:"group_id"`
	AddedBy int64     `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

func toMemberResponse(m Membership) memberResponse {
	return memberResponse{
		ID:      m.ID,
		UserID:  m.UserID,
		GroupID: m.GroupID,
		AddedBy: m.AddedBy,
		AddedAt: m.AddedAt,
	}
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.CreateGroup(r.Context(), actor, CreateGroupInput{Name: req.Name, Description: req.Description})
	if err != nil {
		h.logger.Warn("create group", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(g))
}

func (h *Handler) getGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	g, err := h.service.GetGroup(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(g))
}

func (h *Handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req groupPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	g, err := h.service.UpdateGroup(r.Context(), actor, pathID(r), UpdateGroupInput{Name: req.Name, Description: req.Description})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGroupResponse(g))
}

func (h *Handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteGroup(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	out, err := h.service.ListGroups(r.Context(), actor, shared.NewListWindow(limit, offset))
	if err != nil {
		h.logger.Error("list groups", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]groupResponse, 0, len(out))
	for _, g := range out {
		resp = append(resp, toGroupResponse(g))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req memberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.AddMember(r.Context(), actor, pathID(r), req.UserID)
	if err != nil {
		h.logger.Warn("add member", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMemberResponse(m))
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	userID, _ := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err := h.service.RemoveMember(r.Context(), actor, pathID(r), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	out, err := h.service.ListMembers(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]memberResponse, 0, len(out))
	for _, m := range out {
		resp = append(resp, toMemberResponse(m))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}
