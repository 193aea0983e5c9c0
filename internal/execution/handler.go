package execution

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

// Handler manages the execution-chain endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the execution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/wbs", func(r chi.Router) {
		r.Get("/", h.listWBS)
		r.Post("/", h.createWBS)
		r.Get("/{id}", h.getWBS)
		r.Put("/{id}", h.updateWBS)
		r.Delete("/{id}", h.deleteWBS)
	})
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.listAssets)
		r.Post("/", h.createAsset)
		r.Get("/{id}", h.getAsset)
		r.Put("/{id}", h.updateAsset)
		r.Delete("/{id}", h.deleteAsset)
	})
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPurchaseOrders)
		r.Post("/", h.createPurchaseOrder)
		r.Get("/{id}", h.getPurchaseOrder)
		r.Put("/{id}", h.updatePurchaseOrder)
		r.Delete("/{id}", h.deletePurchaseOrder)
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Get("/", h.listGoodsReceipts)
		r.Post("/", h.createGoodsReceipt)
		r.Get("/{id}", h.getGoodsReceipt)
		r.Put("/{id}", h.updateGoodsReceipt)
		r.Delete("/{id}", h.deleteGoodsReceipt)
	})
}

type wbsRequest struct {
	LineItemID  int64  `json:"business_case_line_item_id" validate:"required,gt=0"`
	WBSCode     string `json:"wbs_code" validate:"required,max=255"`
	Description string `json:"description"`
	Status      string `json:"status" validate:"max=50"`
}

type wbsPatch struct {
	WBSCode     *string `json:"wbs_code"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type wbsResponse struct {
	ID           int64      `json:"id"`
	LineItemID   int64      `json:"business_case_line_item_id"`
	WBSCode      string     `json:"wbs_code"`
	Description  string     `json:"description,omitempty"`
	OwnerGroupID int64      `json:"owner_group_id"`
	Status       string     `json:"status,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toWBSResponse(w WBS) wbsResponse {
	return wbsResponse{
		ID:           w.ID,
		LineItemID:   w.LineItemID,
		WBSCode:      w.WBSCode,
		Description:  w.Description,
		OwnerGroupID: w.OwnerGroupID,
		Status:       w.Status,
		CreatedBy:    w.CreatedBy,
		UpdatedBy:    w.UpdatedBy,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

func (h *Handler) createWBS(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req wbsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	elem, err := h.service.CreateWBS(r.Context(), actor, CreateWBSInput{
		LineItemID:  req.LineItemID,
		WBSCode:     req.WBSCode,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.logger.Warn("create wbs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWBSResponse(elem))
}

func (h *Handler) getWBS(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	elem, err := h.service.GetWBS(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWBSResponse(elem))
}

func (h *Handler) updateWBS(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req wbsPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	elem, err := h.service.UpdateWBS(r.Context(), actor, pathID(r), UpdateWBSInput{
		WBSCode:     req.WBSCode,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toWBSResponse(elem))
}

func (h *Handler) deleteWBS(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteWBS(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listWBS(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	elems, err := h.service.ListWBS(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list wbs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]wbsResponse, 0, len(elems))
	for _, elem := range elems {
		out = append(out, toWBSResponse(elem))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assetRequest struct {
	WBSID       int64  `json:"wbs_id" validate:"required,gt=0"`
	AssetCode   string `json:"asset_code" validate:"required,max=255"`
	AssetType   string `json:"asset_type" validate:"max=50"`
	Description string `json:"description"`
	Status      string `json:"status" validate:"max=50"`
}

type assetPatch struct {
	AssetCode   *string `json:"asset_code"`
	AssetType   *string `json:"asset_type"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

type assetResponse struct {
	ID           int64      `json:"id"`
	WBSID        int64      `json:"wbs_id"`
	AssetCode    string     `json:"asset_code"`
	AssetType    string     `json:"asset_type,omitempty"`
	Description  string     `json:"description,omitempty"`
	OwnerGroupID int64      `json:"owner_group_id"`
	Status       string     `json:"status,omitempty"`
	CreatedBy    int64      `json:"created_by"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toAssetResponse(a Asset) assetResponse {
	return assetResponse{
		ID:           a.ID,
		WBSID:        a.WBSID,
		AssetCode:    a.AssetCode,
		AssetType:    a.AssetType,
		Description:  a.Description,
		OwnerGroupID: a.OwnerGroupID,
		Status:       a.Status,
		CreatedBy:    a.CreatedBy,
		UpdatedBy:    a.UpdatedBy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req assetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	a, err := h.service.CreateAsset(r.Context(), actor, CreateAssetInput{
		WBSID:       req.WBSID,
		AssetCode:   req.AssetCode,
		AssetType:   req.AssetType,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		h.logger.Warn("create asset", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	a, err := h.service.GetAsset(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *Handler) updateAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req assetPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	a, err := h.service.UpdateAsset(r.Context(), actor, pathID(r), UpdateAssetInput{
		AssetCode:   req.AssetCode,
		AssetType:   req.AssetType,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(a))
}

func (h *Handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteAsset(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	assets, err := h.service.ListAssets(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list assets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, toAssetResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type purchaseOrderRequest struct {
	AssetID           int64      `json:"asset_id" validate:"required,gt=0"`
	PONumber          string     `json:"po_number" validate:"required,max=255"`
	AribaPRNumber     string     `json:"ariba_pr_number" validate:"max=255"`
	Supplier          string     `json:"supplier" validate:"max=255"`
	POType            string     `json:"po_type" validate:"max=50"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	TotalAmount       string     `json:"total_amount"`
	Currency          string     `json:"currency" validate:"max=10"`
	SpendCategory     string     `json:"spend_category" validate:"required,oneof=CAPEX OPEX"`
	PlannedCommitDate *time.Time `json:"planned_commit_date"`
	ActualCommitDate  *time.Time `json:"actual_commit_date"`
	Status            string     `json:"status" validate:"max=50"`
}

type purchaseOrderPatch struct {
	PONumber          *string    `json:"po_number"`
	AribaPRNumber     *string    `json:"ariba_pr_number"`
	Supplier          *string    `json:"supplier"`
	POType            *string    `json:"po_type"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	TotalAmount       *string    `json:"total_amount"`
	Currency          *string    `json:"currency"`
	SpendCategory     *string    `json:"spend_category"`
	PlannedCommitDate *time.Time `json:"planned_commit_date"`
	ActualCommitDate  *time.Time `json:"actual_commit_date"`
	Status            *string    `json:"status"`
}

type purchaseOrderResponse struct {
	ID                int64      `json:"id"`
	AssetID           int64      `json:"asset_id"`
	PONumber          string     `json:"po_number"`
	AribaPRNumber     string     `json:"ariba_pr_number,omitempty"`
	Supplier          string     `json:"supplier,omitempty"`
	POType            string     `json:"po_type,omitempty"`
	StartDate         *time.Time `json:"start_date,omitempty"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	TotalAmount       string     `json:"total_amount,omitempty"`
	Currency          string     `json:"currency"`
	SpendCategory     string     `json:"spend_category"`
	PlannedCommitDate *time.Time `json:"planned_commit_date,omitempty"`
	ActualCommitDate  *time.Time `json:"actual_commit_date,omitempty"`
	OwnerGroupID      int64      `json:"owner_group_id"`
	Status            string     `json:"status,omitempty"`
	CreatedBy         int64      `json:"created_by"`
	UpdatedBy         int64      `json:"updated_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

func toPurchaseOrderResponse(p PurchaseOrder) purchaseOrderResponse {
	return purchaseOrderResponse{
		ID:                p.ID,
		AssetID:           p.AssetID,
		PONumber:          p.PONumber,
		AribaPRNumber:     p.AribaPRNumber,
		Supplier:          p.Supplier,
		POType:            p.POType,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		TotalAmount:       p.TotalAmount,
		Currency:          p.Currency,
		SpendCategory:     string(p.SpendCategory),
		PlannedCommitDate: p.PlannedCommitDate,
		ActualCommitDate:  p.ActualCommitDate,
		OwnerGroupID:      p.OwnerGroupID,
		Status:            p.Status,
		CreatedBy:         p.CreatedBy,
		UpdatedBy:         p.UpdatedBy,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (h *Handler) createPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req purchaseOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p, err := h.service.CreatePurchaseOrder(r.Context(), actor, CreatePurchaseOrderInput{
		AssetID:           req.AssetID,
		PONumber:          req.PONumber,
		AribaPRNumber:     req.AribaPRNumber,
		Supplier:          req.Supplier,
		POType:            req.POType,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		TotalAmount:       req.TotalAmount,
		Currency:          req.Currency,
		SpendCategory:     req.SpendCategory,
		PlannedCommitDate: req.PlannedCommitDate,
		ActualCommitDate:  req.ActualCommitDate,
		Status:            req.Status,
	})
	if err != nil {
		h.logger.Warn("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseOrderResponse(p))
}

func (h *Handler) getPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	p, err := h.service.GetPurchaseOrder(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseOrderResponse(p))
}

func (h *Handler) updatePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req purchaseOrderPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	p, err := h.service.UpdatePurchaseOrder(r.Context(), actor, pathID(r), UpdatePurchaseOrderInput{
		PONumber:          req.PONumber,
		AribaPRNumber:     req.AribaPRNumber,
		Supplier:          req.Supplier,
		POType:            req.POType,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		TotalAmount:       req.TotalAmount,
		Currency:          req.Currency,
		SpendCategory:     req.SpendCategory,
		PlannedCommitDate: req.PlannedCommitDate,
		ActualCommitDate:  req.ActualCommitDate,
		Status:            req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseOrderResponse(p))
}

func (h *Handler) deletePurchaseOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeletePurchaseOrder(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	orders, err := h.service.ListPurchaseOrders(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]purchaseOrderResponse, 0, len(orders))
	for _, p := range orders {
		out = append(out, toPurchaseOrderResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type goodsReceiptRequest struct {
	POID        int64      `json:"po_id" validate:"required,gt=0"`
	GRNumber    string     `json:"gr_number" validate:"required,max=255"`
	GRDate      *time.Time `json:"gr_date"`
	Amount      string     `json:"amount"`
	Description string     `json:"description"`
}

type goodsReceiptPatch struct {
	GRNumber    *string    `json:"gr_number"`
	GRDate      *time.Time `json:"gr_date"`
	Amount      *string    `json:"amount"`
	Description *string    `json:"description"`
}

type goodsReceiptResponse struct {
	ID           int64      `json:"id"`
	POID         int64      `json:"po_id"`
	GRNumber     string     `json:"gr_number"`
	GRDate       *time.Time `json:"gr_date,omitempty"`
	Amount       string     `json:"amount,omitempty"`
	Description  string     `json:"description,omitempty"`
	OwnerGroupID int64      `json:"owner_group_id"`
	CreatedBy    int64      `json:"created_by"`
	UpdatedBy    int64      `json:"updated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

func toGoodsReceiptResponse(g GoodsReceipt) goodsReceiptResponse {
	return goodsReceiptResponse{
		ID:           g.ID,
		POID:         g.POID,
		GRNumber:     g.GRNumber,
		GRDate:       g.GRDate,
		Amount:       g.Amount,
		Description:  g.Description,
		OwnerGroupID: g.OwnerGroupID,
		CreatedBy:    g.CreatedBy,
		UpdatedBy:    g.UpdatedBy,
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
}

func (h *Handler) createGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req goodsReceiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	g, err := h.service.CreateGoodsReceipt(r.Context(), actor, CreateGoodsReceiptInput{
		POID:        req.POID,
		GRNumber:    req.GRNumber,
		GRDate:      req.GRDate,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("create goods receipt", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGoodsReceiptResponse(g))
}

func (h *Handler) getGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	g, err := h.service.GetGoodsReceipt(r.Context(), actor, pathID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGoodsReceiptResponse(g))
}

func (h *Handler) updateGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	var req goodsReceiptPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	g, err := h.service.UpdateGoodsReceipt(r.Context(), actor, pathID(r), UpdateGoodsReceiptInput{
		GRNumber:    req.GRNumber,
		GRDate:      req.GRDate,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toGoodsReceiptResponse(g))
}

func (h *Handler) deleteGoodsReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	if err := h.service.DeleteGoodsReceipt(r.Context(), actor, pathID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) listGoodsReceipts(w http.ResponseWriter, r *http.Request) {
	actor, ok := access.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
		return
	}
	receipts, err := h.service.ListGoodsReceipts(r.Context(), actor, windowFromQuery(r))
	if err != nil {
		h.logger.Error("list goods receipts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]goodsReceiptResponse, 0, len(receipts))
	for _, g := range receipts {
		out = append(out, toGoodsReceiptResponse(g))
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
