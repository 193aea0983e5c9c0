package resources

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

// Handler manages the resource endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the resource routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/resources", func(r chi.Router) {
		r.Get("/", h.listResources)
		r.Post("/", h.createResource)
		r.Get("/{id}", h.getResource)
		r.Put("/{id}", h.updateResource)
		r.Delete("/{id}", h.deleteResource)
	})
	r.Route("/allocations", func(r chi.Router) {
		r.Get("/", h.listAllocations)
		r.Post("/", h.createAllocation)
		r.Get("/{id}", h.getAllocation)
		r.Put("/{id}", h.updateAllocation)
		r.Delete("/{id}", h.deleteAllocation)
	})
}

type resourceRequest struct {
	Name         string     `json:"name" validate:"required,max=255"`
	Vendor       string     `json:"vendor" validate:"max=255"`
	Role         string     `json:"role" validate:"max=255"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	CostPerMonth string     `json:"cost_per_month"`
	OwnerGroupID int64      `json:"owner_group_id" validate:"required,gt=0"`
	Status       string     `json:"status" validate:"max=50"`
}

type resourcePatch struct {
	Name         *string    `json:"name"`
	Vendor       *string    `json:"vendor"`
	Role         *string    `json:"role"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	CostPerMonth *string    `json:"cost_per_month"`
	Status       *string    `json:"status"`
}

type resourceResponse struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Vendor       string     `json:"vendor,omitempty"`
	Role         string     `json:"role,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CostPerMonth string     `json:"cost_per_month,omitempty"`
	OwnerGroupID int64      `json:"owner_group_id"`
	Status       string     `json:"status,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toResourceResponse(res Resource) resourceResponse {
	return resourceResponse{
		ID:           res.ID,
		Name:         res.Name,
		Vendor:       res.Vendor,
		Role:         res.Role,
		StartDate:    res.StartDate,
		EndDate:      res.EndDate,
		CostPerMonth: res.CostPerMonth,
		OwnerGroupID: res.OwnerGroupID,
		Status:       res.Status,
		CreatedBy:    res.CreatedBy,
		UpdatedBy:    res.UpdatedBy,
		CreatedAt:    res.CreatedAt,
		UpdatedAt:    res.UpdatedAt,
	}
}

func (h *Handler) createResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req resourceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.CreateResource(r.Context(), actor, CreateResourceInput{
		Name:         req.Name,
		Vendor:       req.Vendor,
		Role:         req.Role,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		CostPerMonth: req.CostPerMonth,
		OwnerGroupID: req.OwnerGroupID,
		Status:       req.Status,
	})
	if err != nil {
		h.logger.Warn("create resource", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceResponse(res))
}

func (h *Handler) getResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	res, err := h.service.GetResource(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceResponse(res))
}

func (h *Handler) updateResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req resourcePatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	res, err := h.service.UpdateResource(r.Context(), actor, pathID(r), UpdateResourceInput{
		Name:         req.Name,
		Vendor:       req.Vendor,
		Role:         req.Role,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		CostPerMonth: req.CostPerMonth,
		Status:       req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResourceResponse(res))
}

func (h *Handler) deleteResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteResource(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listResources(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	out, err := h.service.ListResources(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list resources", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]resourceResponse, 0, len(out))
	for _, res := range out {
		resp = append(resp, toResourceResponse(res))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type allocationRequest struct {
	ResourceID          int64      `json:"resource_id" validate:"required,gt=0"`
	POID                int64      `json:"po_id" validate:"required,gt=0"`
	AllocationStart     *time.Time `json:"allocation_start"`
	AllocationEnd       *time.Time `json:"allocation_end"`
	ExpectedMonthlyBurn string     `json:"expected_monthly_burn"`
}

type allocationPatch struct {
	AllocationStart     *time.Time `json:"allocation_start"`
	AllocationEnd       *time.Time `json:"allocation_end"`
	ExpectedMonthlyBurn *string    `json:"expected_monthly_burn"`
}

type allocationResponse struct {
	ID                  int64      `json:"id"`
	ResourceID          int64      `json:"resource_id"`
	POID                int64      `json:"po_id"`
	AllocationStart     *time.Time `json:"allocation_start,omitempty"`
	AllocationEnd       *time.Time `json:"allocation_end,omitempty"`
	ExpectedMonthlyBurn string     `json:"expected_monthly_burn,omitempty"`
	OwnerGroupID        int64      `json:"owner_group_id"`
	CreatedBy           int64      `json:"created_by"`
	UpdatedBy           int64      `json:"updated_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}

func toAllocationResponse(alloc Allocation) allocationResponse {
	return allocationResponse{
		ID:                  alloc.ID,
		ResourceID:          alloc.ResourceID,
		POID:                alloc.POID,
		AllocationStart:     alloc.AllocationStart,
		AllocationEnd:       alloc.AllocationEnd,
		ExpectedMonthlyBurn: alloc.ExpectedMonthlyBurn,
		OwnerGroupID:        alloc.OwnerGroupID,
		CreatedBy:           alloc.CreatedBy,
		UpdatedBy:           alloc.UpdatedBy,
		CreatedAt:           alloc.CreatedAt,
		UpdatedAt:           alloc.UpdatedAt,
	}
}

func (h *Handler) createAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req allocationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	alloc, err := h.service.CreateAllocation(r.Context(), actor, CreateAllocationInput{
		ResourceID:          req.ResourceID,
		POID:                req.POID,
		AllocationStart:     req.AllocationStart,
		AllocationEnd:       req.AllocationEnd,
		ExpectedMonthlyBurn: req.ExpectedMonthlyBurn,
	})
	if err != nil {
		h.logger.Warn("create allocation", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAllocationResponse(alloc))
}

func (h *Handler) getAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	alloc, err := h.service.GetAllocation(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAllocationResponse(alloc))
}

func (h *Handler) updateAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req allocationPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	alloc, err := h.service.UpdateAllocation(r.Context(), actor, pathID(r), UpdateAllocationInput{
		AllocationStart:     req.AllocationStart,
		AllocationEnd:       req.AllocationEnd,
		ExpectedMonthlyBurn: req.ExpectedMonthlyBurn,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAllocationResponse(alloc))
}

func (h *Handler) deleteAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteAllocation(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	out, err := h.service.ListAllocations(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list allocations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := make([]allocationResponse, 0, len(out))
	for _, alloc := range out {
		resp = append(resp, toAllocationResponse(alloc))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id
}

func windowFromQuery(r *http.Request) shared.ListWindow {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return shared.NewListWindow(limit, offset)
}
