package emergency

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campusops/campusops/internal/auth"
	"github.com/campusops/campusops/internal/platform/httpx"
	"github.com/campusops/campusops/internal/shared"
)

// Handler manages emergency endpoints. Creation accepts multipart form
// data so a supporting document can ride along with the fields.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers emergency routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireUser)
		r.Post("/", h.create)
		r.Get("/", h.listMine)
		r.Get("/{id}", h.get)
		r.Get("/{id}/media", h.getMedia)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAdmin)
		r.Get("/all", h.listAll)
		r.Put("/{id}/status", h.setStatus)
	})
}

type emergencyResponse struct {
	ID             int64   `json:"id"`
	RefID          string  `json:"refId"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	OwnerID        int64   `json:"ownerId"`
	AcademicYearID int64   `json:"academicYearId"`
	HasMedia       bool    `json:"hasMedia"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"createdAt"`
}

func toEmergencyResponse(e Emergency) emergencyResponse {
	return emergencyResponse{
		ID:             e.ID,
		RefID:          e.RefID,
		Title:          e.Title,
		Description:    e.Description,
		Amount:         e.Amount,
		OwnerID:        e.OwnerID,
		AcademicYearID: e.AcademicYearID,
		HasMedia:       e.HasMedia,
		Status:         string(e.Status),
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxMediaBytes+1<<20)
	if err := r.ParseMultipartForm(MaxMediaBytes); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid multipart form")
		return
	}
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a number")
		return
	}
	in := CreateInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Amount:      amount,
	}
	file, header, err := r.FormFile("mediaFile")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, MaxMediaBytes+1))
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "could not read media file")
			return
		}
		in.Media = &Media{Data: data, ContentType: header.Header.Get("Content-Type")}
	} else if !errors.Is(err, http.ErrMissingFile) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid media file")
		return
	}

	principal, _ := shared.PrincipalFromContext(r.Context())
	created, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.logger.Error("create emergency", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEmergencyResponse(created))
}

type statusPayload struct {
	Status string `json:"status"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	var payload statusPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.SetStatus(r.Context(), principal, id, Status(payload.Status))
	if err != nil {
		h.logger.Error("set emergency status", slog.Any("error", err), slog.Int64("emergency", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEmergencyResponse(updated))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	principal, _ := shared.PrincipalFromContext(r.Context())
	e, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEmergencyResponse(e))
}

func (h *Handler) getMedia(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	media, err := h.service.GetMedia(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", media.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(media.Data)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	emergencies, err := h.service.ListMine(r.Context(), principal)
	if err != nil {
		h.logger.Error("list emergencies", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]emergencyResponse, 0, len(emergencies))
	for _, e := range emergencies {
		out = append(out, toEmergencyResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type pagedEmergenciesResponse struct {
	Data       []emergencyResponse `json:"data"`
	Pagination shared.Pagination   `json:"pagination"`
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	emergencies, err := h.service.ListAll(r.Context(), principal)
	if err != nil {
		h.logger.Error("list all emergencies", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	page, perPage := shared.PageParams(r.URL.Query())
	pg := shared.NewPagination(page, perPage, len(emergencies))
	start, end := pg.Window(len(emergencies))
	out := make([]emergencyResponse, 0, end-start)
	for _, e := range emergencies[start:end] {
		out = append(out, toEmergencyResponse(e))
	}
	httpx.JSON(w, http.StatusOK, pagedEmergenciesResponse{Data: out, Pagination: pg})
}
