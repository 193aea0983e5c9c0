package budget

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

// Handler manages the planning endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the planning routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/budget-items", func(r chi.Router) {
		r.Get("/", h.listBudgetItems)
		r.Post("/", h.createBudgetItem)
		r.Get("/{id}", h.getBudgetItem)
		r.Put("/{id}", h.updateBudgetItem)
		r.Delete("/{id}", h.deleteBudgetItem)
	})
	r.Route("/business-cases", func(r chi.Router) {
		r.Get("/", h.listBusinessCases)
		r.Post("/", h.createBusinessCase)
		r.Get("/{id}", h.getBusinessCase)
		r.Put("/{id}", h.updateBusinessCase)
		r.Delete("/{id}", h.deleteBusinessCase)
	})
	r.Route("/line-items", func(r chi.Router) {
		r.Get("/", h.listLineItems)
		r.Post("/", h.createLineItem)
		r.Get("/{id}", h.getLineItem)
		r.Put("/{id}", h.updateLineItem)
		r.Delete("/{id}", h.deleteLineItem)
	})
}

type budgetItemRequest struct {
	WorkdayRef   string `json:"workday_ref" validate:"required,max=255"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	BudgetAmount string `json:"budget_amount" validate:"required"`
	Currency     string `json:"currency" validate:"required,max=10"`
	FiscalYear   int    `json:"fiscal_year" validate:"required,gt=0"`
	OwnerGroupID int64  `json:"owner_group_id" validate:"required,gt=0"`
}

type budgetItemPatch struct {
	WorkdayRef   *string `json:"workday_ref"`
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	BudgetAmount *string `json:"budget_amount"`
	Currency     *string `json:"currency"`
	FiscalYear   *int    `json:"fiscal_year"`
}

type budgetItemResponse struct {
	ID           int64      `json:"id"`
	WorkdayRef   string     `json:"workday_ref"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	BudgetAmount string     `json:"budget_amount"`
	Currency     string     `json:"currency"`
	FiscalYear   int        `json:"fiscal_year"`
	OwnerGroupID int64      `json:"owner_group_id"`
	CreatedBy    int64      `json:"created_by"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toBudgetItemResponse(item BudgetItem) budgetItemResponse {
	return budgetItemResponse{
		ID:           item.ID,
		WorkdayRef:   item.WorkdayRef,
		Title:        item.Title,
		Description:  item.Description,
		BudgetAmount: item.BudgetAmount,
		Currency:     item.Currency,
		FiscalYear:   item.FiscalYear,
		OwnerGroupID: item.OwnerGroupID,
		CreatedBy:    item.CreatedBy,
		UpdatedBy:    item.UpdatedBy,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func (h *Handler) createBudgetItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req budgetItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	item, err := h.service.CreateBudgetItem(r.Context(), actor, CreateBudgetItemInput{
		WorkdayRef:   req.WorkdayRef,
		Title:        req.Title,
		Description:  req.Description,
		BudgetAmount: req.BudgetAmount,
		Currency:     req.Currency,
		FiscalYear:   req.FiscalYear,
		OwnerGroupID: req.OwnerGroupID,
	})
	if err != nil {
		h.logger.Warn("create budget item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetItemResponse(item))
}

func (h *Handler) getBudgetItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	item, err := h.service.GetBudgetItem(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetItemResponse(item))
}

func (h *Handler) updateBudgetItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req budgetItemPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	item, err := h.service.UpdateBudgetItem(r.Context(), actor, pathID(r), UpdateBudgetItemInput{
		WorkdayRef:   req.WorkdayRef,
		Title:        req.Title,
		Description:  req.Description,
		BudgetAmount: req.BudgetAmount,
		Currency:     req.Currency,
		FiscalYear:   req.FiscalYear,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetItemResponse(item))
}

func (h *Handler) deleteBudgetItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteBudgetItem(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listBudgetItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	items, err := h.service.ListBudgetItems(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list budget items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]budgetItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toBudgetItemResponse(item))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type businessCaseRequest struct {
	Title         string `json:"title" validate:"required"`
	Description   string `json:"description"`
	Requestor     string `json:"requestor" validate:"max=255"`
	Department    string `json:"department" validate:"max=255"`
	EstimatedCost string `json:"estimated_cost"`
	Status        string `json:"status" validate:"max=50"`
	OwnerGroupID  int64  `json:"owner_group_id" validate:"required,gt=0"`
}

type businessCasePatch struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	Requestor     *string `json:"requestor"`
	Department    *string `json:"department"`
	EstimatedCost *string `json:"estimated_cost"`
	Status        *string `json:"status"`
}

type businessCaseResponse struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Requestor     string     `json:"requestor,omitempty"`
	Department    string     `json:"department,omitempty"`
	EstimatedCost string     `json:"estimated_cost,omitempty"`
	Status        string     `json:"status,omitempty"`
	OwnerGroupID  int64      `json:"owner_group_id"`
	CreatedBy     int64      `json:"created_by"`
	UpdatedBy     int64      `json:"updated_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

func toBusinessCaseResponse(bc BusinessCase) businessCaseResponse {
	return businessCaseResponse{
		ID:            bc.ID,
		Title:         bc.Title,
		Description:   bc.Description,
		Requestor:     bc.Requestor,
		Department:    bc.Department,
		EstimatedCost: bc.EstimatedCost,
		Status:        bc.Status,
		OwnerGroupID:  bc.OwnerGroupID,
		CreatedBy:     bc.CreatedBy,
		UpdatedBy:     bc.UpdatedBy,
		CreatedAt:     bc.CreatedAt,
		UpdatedAt:     bc.UpdatedAt,
	}
}

func (h *Handler) createBusinessCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req businessCaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	bc, err := h.service.CreateBusinessCase(r.Context(), actor, CreateBusinessCaseInput{
		Title:         req.Title,
		Description:   req.Description,
		Requestor:     req.Requestor,
		Department:    req.Department,
		EstimatedCost: req.EstimatedCost,
		Status:        req.Status,
		OwnerGroupID:  req.OwnerGroupID,
	})
	if err != nil {
		h.logger.Warn("create business case", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBusinessCaseResponse(bc))
}

func (h *Handler) getBusinessCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	bc, err := h.service.GetBusinessCase(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBusinessCaseResponse(bc))
}

func (h *Handler) updateBusinessCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req businessCasePatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	bc, err := h.service.UpdateBusinessCase(r.Context(), actor, pathID(r), UpdateBusinessCaseInput{
		Title:         req.Title,
		Description:   req.Description,
		Requestor:     req.Requestor,
		Department:    req.Department,
		EstimatedCost: req.EstimatedCost,
		Status:        req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBusinessCaseResponse(bc))
}

func (h *Handler) deleteBusinessCase(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteBusinessCase(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listBusinessCases(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	cases, err := h.service.ListBusinessCases(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list business cases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]businessCaseResponse, 0, len(cases))
	for _, bc := range cases {
		out = append(out, toBusinessCaseResponse(bc))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type lineItemRequest struct {
	BusinessCaseID    int64      `json:"business_case_id" validate:"required,gt=0"`
	BudgetItemID      int64      `json:"budget_item_id" validate:"required,gt=0"`
	OwnerGroupID      int64      `json:"owner_group_id" validate:"required,gt=0"`
	Title             string     `json:"title" validate:"required"`
	Description       string     `json:"description"`
	SpendCategory     string     `json:"spend_category" validate:"required,oneof=CAPEX OPEX"`
	RequestedAmount   string     `json:"requested_amount" validate:"required"`
	Currency          string     `json:"currency" validate:"required,max=10"`
	PlannedCommitDate *time.Time `json:"planned_commit_date"`
	Status            string     `json:"status" validate:"max=50"`
}

type lineItemPatch struct {
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	SpendCategory     *string    `json:"spend_category"`
	RequestedAmount   *string    `json:"requested_amount"`
	Currency          *string    `json:"currency"`
	PlannedCommitDate *time.Time `json:"planned_commit_date"`
	Status            *string    `json:"status"`
}

type lineItemResponse struct {
	ID                int64      `json:"id"`
	BusinessCaseID    int64      `json:"business_case_id"`
	BudgetItemID      int64      `json:"budget_item_id"`
	OwnerGroupID      int64      `json:"owner_group_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	SpendCategory     string     `json:"spend_category"`
	RequestedAmount   string     `json:"requested_amount"`
	Currency          string     `json:"currency"`
	PlannedCommitDate *time.Time `json:"planned_commit_date,omitempty"`
	Status            string     `json:"status,omitempty"`
	CreatedBy         int64      `json:"created_by"`
	UpdatedBy         int64      `json:"updated_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

func toLineItemResponse(line LineItem) lineItemResponse {
	return lineItemResponse{
		ID:                line.ID,
		BusinessCaseID:    line.BusinessCaseID,
		BudgetItemID:      line.BudgetItemID,
		OwnerGroupID:      line.OwnerGroupID,
		Title:             line.Title,
		Description:       line.Description,
		SpendCategory:     string(line.SpendCategory),
		RequestedAmount:   line.RequestedAmount,
		Currency:          line.Currency,
		PlannedCommitDate: line.PlannedCommitDate,
		Status:            line.Status,
		CreatedBy:         line.CreatedBy,
		UpdatedBy:         line.UpdatedBy,
		CreatedAt:         line.CreatedAt,
		UpdatedAt:         line.UpdatedAt,
	}
}

func (h *Handler) createLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req lineItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.CreateLineItem(r.Context(), actor, CreateLineItemInput{
		BusinessCaseID:    req.BusinessCaseID,
		BudgetItemID:      req.BudgetItemID,
		OwnerGroupID:      req.OwnerGroupID,
		Title:             req.Title,
		Description:       req.Description,
		SpendCategory:     req.SpendCategory,
		RequestedAmount:   req.RequestedAmount,
		Currency:          req.Currency,
		PlannedCommitDate: req.PlannedCommitDate,
		Status:            req.Status,
	})
	if err != nil {
		h.logger.Warn("create line item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLineItemResponse(line))
}

func (h *Handler) getLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	line, err := h.service.GetLineItem(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLineItemResponse(line))
}

func (h *Handler) updateLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req lineItemPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	line, err := h.service.UpdateLineItem(r.Context(), actor, pathID(r), UpdateLineItemInput{
		Title:             req.Title,
		Description:       req.Description,
		SpendCategory:     req.SpendCategory,
		RequestedAmount:   req.RequestedAmount,
		Currency:          req.Currency,
		PlannedCommitDate: req.PlannedCommitDate,
		Status:            req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLineItemResponse(line))
}

func (h *Handler) deleteLineItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteLineItem(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listLineItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	lines, err := h.service.ListLineItems(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list line items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]lineItemResponse, 0, len(lines))
	for _, line := range lines {
		out = append(out, toLineItemResponse(line))
	}
	httpx.JSON(w, http.StatusOK, out)
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
