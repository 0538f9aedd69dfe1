package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dangerclosesec/coursehub/internal/model"
	"github.com/dangerclosesec/coursehub/internal/repository"
	"github.com/dangerclosesec/coursehub/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHandler serves service-role operations: purchase inspection and
// replay, the reconciliation log, the price catalog and manual seat grants.
type AdminHandler struct {
	purchases *service.PurchaseService
	reconcile *service.ReconciliationService
	catalog   *service.CatalogService
	seats     *service.SeatService
	logs      *repository.ReconciliationLogRepository
	logger    *slog.Logger
}

type AdminDeps struct {
	Purchases *service.PurchaseService
	Reconcile *service.ReconciliationService
	Catalog   *service.CatalogService
	Seats     *service.SeatService
	Logs      *repository.ReconciliationLogRepository
	Logger    *slog.Logger
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		purchases: deps.Purchases,
		reconcile: deps.Reconcile,
		catalog:   deps.Catalog,
		seats:     deps.Seats,
		logs:      deps.Logs,
		logger:    deps.Logger,
	}
}

func (h *AdminHandler) InspectPurchase(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.purchases.Inspect(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		handleServiceError(w, r, h.logger, "inspect purchase failed", err)
		return
	}
	respondWithData(w, http.StatusOK, inspection)
}

// ReplayPurchase refetches the session from Stripe and runs it through
// reconciliation again. Fulfilled purchases come back as already_fulfilled.
func (h *AdminHandler) ReplayPurchase(w http.ResponseWriter, r *http.Request) {
	result, err := h.purchases.Replay(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		handleServiceError(w, r, h.logger, "replay purchase failed", err)
		return
	}
	respondWithData(w, http.StatusOK, result)
}

type LogsResponse struct {
	BaseResponse
	Logs  []model.ReconciliationLog `json:"logs"`
	Total int64                     `json:"total"`
}

// ReconciliationLogs lists log entries, filtered by query parameters.
func (h *AdminHandler) ReconciliationLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.QueryParams{
		SessionID: q.Get("session_id"),
		Action:    q.Get("action"),
	}

	if startTimeStr := q.Get("start_time"); startTimeStr != "" {
		startTime, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "start_time must be RFC3339")
			return
		}
		params.StartTime = startTime
	}
	if endTimeStr := q.Get("end_time"); endTimeStr != "" {
		endTime, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "end_time must be RFC3339")
			return
		}
		params.EndTime = endTime
	}

	// Pagination
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err == nil && limit > 0 && limit <= 500 {
			params.Limit = limit
		}
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	logs, total, err := h.logs.Query(r.Context(), params)
	if err != nil {
		handleServiceError(w, r, h.logger, "query reconciliation logs failed", err)
		return
	}
	if logs == nil {
		logs = []model.ReconciliationLog{}
	}
	respondWithJSON(w, http.StatusOK, LogsResponse{BaseResponse: BaseResponse{Ok: true}, Logs: logs, Total: total})
}

// RunSweep reconciles one batch of stale purchases immediately.
func (h *AdminHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconcile.Sweep(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, "reconciliation sweep failed", err)
		return
	}
	respondWithData(w, http.StatusOK, res)
}

func (h *AdminHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		handleServiceError(w, r, h.logger, "list products failed", err)
		return
	}
	if products == nil {
		products = []*model.CourseProduct{}
	}
	respondWithData(w, http.StatusOK, products)
}

func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	var input service.UpsertProductInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	product, err := h.catalog.Upsert(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, h.logger, "upsert product failed", err)
		return
	}
	respondWithData(w, http.StatusOK, product)
}

func (h *AdminHandler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Deactivate(r.Context(), chi.URLParam(r, "priceID")); err != nil {
		handleServiceError(w, r, h.logger, "deactivate product failed", err)
		return
	}
	respondWithJSON(w, http.StatusOK, BaseResponse{Ok: true})
}

// SyncCatalog imports course prices from Stripe. ?dry_run=true reports
// without writing.
func (h *AdminHandler) SyncCatalog(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	res, err := h.catalog.Sync(r.Context(), dryRun)
	if err != nil {
		handleServiceError(w, r, h.logger, "catalog sync failed", err)
		return
	}
	respondWithData(w, http.StatusOK, res)
}

type GrantSeatsRequest struct {
	CourseID uuid.UUID `json:"course_id"`
	Seats    int       `json:"seats"`
}

// GrantSeats adds seats to an account's pool outside of any purchase.
func (h *AdminHandler) GrantSeats(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuidParam(r, "accountID")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}
	var req GrantSeatsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	pool, err := h.seats.AllocateSeats(r.Context(), accountID, req.CourseID, req.Seats)
	if err != nil {
		handleServiceError(w, r, h.logger, "grant seats failed", err)
		return
	}
	respondWithData(w, http.StatusOK, pool)
}
