package budget

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

// Handler manages budget endpoints.
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

// MountRoutes registers budget routes.
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
		r.Put("/{id}/items/{itemID}/approve", h.approveItem)
		r.Put("/{id}/status", h.setStatus)
	})
}

type itemPayload struct {
	Name     string  `json:"name" validate:"required"`
	Quantity int64   `json:"quantity" validate:"required,gt=0"`
	Price    float64 `json:"price" validate:"required,gt=0"`
}

type createPayload struct {
	AcademicYearID int64         `json:"academicYearId" validate:"required"`
	Items          []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type approvePayload struct {
	ApprovedQuantity int64 `json:"approvedQuantity" validate:"gte=0"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

type itemResponse struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Quantity         int64   `json:"quantity"`
	Price            float64 `json:"price"`
	Amount           float64 `json:"amount"`
	ApprovedQuantity int64   `json:"approvedQuantity"`
	Status           string  `json:"status"`
}

type budgetResponse struct {
	ID             int64          `json:"id"`
	RefID          string         `json:"refId"`
	AcademicYearID int64          `json:"academicYearId"`
	OwnerID        int64          `json:"ownerId"`
	Items          []itemResponse `json:"items"`
	TotalAmount    float64        `json:"totalAmount"`
	Status         string         `json:"status"`
	CreatedAt      string         `json:"createdAt"`
}

func toBudgetResponse(b Budget) budgetResponse {
	items := make([]itemResponse, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, itemResponse{
			ID:               item.ID,
			Name:             item.Name,
			Quantity:         item.Quantity,
			Price:            item.Price,
			Amount:           item.Amount,
			ApprovedQuantity: item.ApprovedQuantity,
			Status:           string(item.Status),
		})
	}
	return budgetResponse{
		ID:             b.ID,
		RefID:          b.RefID,
		AcademicYearID: b.AcademicYearID,
		OwnerID:        b.OwnerID,
		Items:          items,
		TotalAmount:    b.TotalAmount,
		Status:         string(b.Status),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
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
		items = append(items, ItemInput{Name: item.Name, Quantity: item.Quantity, Price: item.Price})
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), principal, payload.AcademicYearID, items)
	if err != nil {
		h.logger.Error("create budget", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBudgetResponse(created))
}

func (h *Handler) approveItem(w http.ResponseWriter, r *http.Request) {
	budgetID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	itemID, _ := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	var payload approvePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.ApproveItem(r.Context(), principal, budgetID, itemID, payload.ApprovedQuantity)
	if err != nil {
		h.logger.Error("approve budget item", slog.Any("error", err), slog.Int64("budget", budgetID), slog.Int64("item", itemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(updated))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	budgetID, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload statusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.SetStatus(r.Context(), principal, budgetID, Status(payload.Status))
	if err != nil {
		h.logger.Error("set budget status", slog.Any("error", err), slog.Int64("budget", budgetID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(updated))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal, _ := shared.PrincipalFromContext(r.Context())
	b, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBudgetResponse(b))
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	budgets, err := h.service.ListMine(r.Context(), principal)
	if err != nil {
		h.logger.Error("list budgets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]budgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type pagedBudgetsResponse struct {
	Data       []budgetResponse  `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	budgets, err := h.service.ListAll(r.Context(), principal)
	if err != nil {
		h.logger.Error("list all budgets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageParams(r.URL.Query())
	pg := shared.NewPagination(page, perPage, len(budgets))
	start, end := pg.Window(len(budgets))
	out := make([]budgetResponse, 0, end-start)
	for _, b := range budgets[start:end] {
		out = append(out, toBudgetResponse(b))
	}
	httpx.JSON(w, http.StatusOK, pagedBudgetsResponse{Data: out, Pagination: pg})
}
