package academicyear

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

// Handler manages academic year endpoints.
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

// MountRoutes registers academic year routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Get("/", h.list)
		r.Get("/active", h.getActive)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdmin)
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/activate", h.activate)
		r.Delete("/{id}", h.remove)
	})
}

type yearPayload struct {
	Label     string `json:"label" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	IsActive  bool   `json:"isActive"`
}

type yearResponse struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
}

func toYearResponse(y AcademicYear) yearResponse {
	return yearResponse{
		ID:        y.ID,
		Label:     y.Label,
		StartDate: y.StartDate.Format("2006-01-02"),
		EndDate:   y.EndDate.Format("2006-01-02"),
		IsActive:  y.IsActive,
		CreatedAt: y.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	payload, start, end, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	year, err := h.service.Create(r.Context(), principal, CreateInput{
		Label:     payload.Label,
		StartDate: start,
		EndDate:   end,
		IsActive:  payload.IsActive,
	})
	if err != nil {
		h.logger.Error("create academic year", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toYearResponse(year))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	payload, start, end, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	year, err := h.service.Update(r.Context(), principal, id, UpdateInput{
		Label:     payload.Label,
		StartDate: start,
		EndDate:   end,
		IsActive:  payload.IsActive,
	})
	if err != nil {
		h.logger.Error("update academic year", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Activate(r.Context(), principal, id); err != nil {
		h.logger.Error("activate academic year", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activated": id})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), principal, id); err != nil {
		h.logger.Error("delete academic year", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list academic years", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]yearResponse, 0, len(years))
	for _, y := range years {
		out = append(out, toYearResponse(y))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	year, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) getActive(w http.ResponseWriter, r *http.Request) {
	year, err := h.service.GetActive(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (yearPayload, time.Time, time.Time, bool) {
	var payload yearPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return payload, time.Time{}, time.Time{}, false
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return payload, time.Time{}, time.Time{}, false
	}
	start, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "startDate must be YYYY-MM-DD")
		return payload, time.Time{}, time.Time{}, false
	}
	end, err := time.Parse("2006-01-02", payload.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "endDate must be YYYY-MM-DD")
		return payload, time.Time{}, time.Time{}, false
	}
	return payload, start, end, true
}
