package request

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/campusops/campusops/internal/auth"
	"github.com/campusops/campusops/internal/platform/httpx"
	"github.com/campusops/campusops/internal/shared"
)

// Handler manages request endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    auth.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Post("/", h.create)
		r.Get("/", h.listMine)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdmin)
		r.Get("/all", h.listAll)
		r.Put("/{id}/status", h.updateStatus)
	})
}

type itemPayload struct {
	BudgetItemID int64   `json:"budgetItemId" validate:"required"`
	Quantity     int64   `json:"quantity" validate:"required,gt=0"`
	Price        float64 `json:"price" validate:"required,gt=0"`
}

type createPayload struct {
	BudgetID int64         `json:"budgetId" validate:"required"`
	Items    []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type itemStatusPayload struct {
	ItemID int64  `json:"itemId" validate:"required"`
	Status string `json:"status" validate:"required"`
}

type statusPayload struct {
	Status string              `json:"status" validate:"required"`
	Items  []itemStatusPayload `json:"items" validate:"dive"`
}

type itemResponse struct {
	ID           int64   `json:"id"`
	BudgetItemID int64   `json:"budgetItemId"`
	Name         string  `json:"name"`
	Quantity     int64   `json:"quantity"`
	Price        float64 `json:"price"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
}

type requestResponse struct {
	ID          int64          `json:"id"`
	RefID       string         `json:"refId"`
	BudgetID    int64          `json:"budgetId"`
	OwnerID     int64          `json:"ownerId"`
	Items       []itemResponse `json:"items"`
	TotalAmount float64        `json:"totalAmount"`
	Status      string         `json:"status"`
	CreatedAt   string         `json:"createdAt"`
}

func toRequestResponse(req Request) requestResponse {
	items := make([]itemResponse, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, itemResponse{
			ID:           item.ID,
			BudgetItemID: item.BudgetItemID,
			Name:         item.Name,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Amount:       item.Amount,
			Status:       string(item.Status),
		})
	}
	return requestResponse{
		ID:          req.ID,
		RefID:       req.RefID,
		BudgetID:    req.BudgetID,
		OwnerID:     req.OwnerID,
		Items:       items,
		TotalAmount: req.TotalAmount,
		Status:      string(req.Status),
		CreatedAt:   req.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ItemInput, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, ItemInput{BudgetItemID: item.BudgetItemID, Quantity: item.Quantity, Price: item.Price})
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	created, err := h.service.CreateIdempotent(r.Context(), principal, r.Header.Get("Idempotency-Key"), payload.BudgetID, items)
	if err != nil {
		h.logger.Error("create request", slog.Any("error", err), slog.Int64("budget", payload.BudgetID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRequestResponse(created))
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload statusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updates := make([]ItemStatusUpdate, 0, len(payload.Items))
	for _, item := range payload.Items {
		updates = append(updates, ItemStatusUpdate{ItemID: item.ItemID, Status: ItemStatus(item.Status)})
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.UpdateStatus(r.Context(), principal, id, Status(payload.Status), updates)
	if err != nil {
		h.logger.Error("update request status", slog.Any("error", err), slog.Int64("request", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(updated))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal, _ := shared.PrincipalFromContext(r.Context())
	req, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestResponse(req))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	requests, err := h.service.ListMine(r.Context(), principal)
	if err != nil {
		h.logger.Error("list requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]requestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type pagedRequestsResponse struct {
	Data       []requestResponse `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	requests, err := h.service.ListAll(r.Context(), principal)
	if err != nil {
		h.logger.Error("list all requests", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageParams(r.URL.Query())
	pg := shared.NewPagination(page, perPage, len(requests))
	start, end := pg.Window(len(requests))
	out := make([]requestResponse, 0, end-start)
	for _, req := range requests[start:end] {
		out = append(out, toRequestResponse(req))
	}
	httpx.JSON(w, http.StatusOK, pagedRequestsResponse{Data: out, Pagination: pg})
}
