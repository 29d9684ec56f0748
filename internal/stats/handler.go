package stats

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	stats, err := h.service.Statistics(r.Context(), caller)
	if errors.Is(err, domain.ErrForbidden) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		h.logger.Error("failed to compute statistics", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) HandleSellerDashboard(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	var days int
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = parsed
	}

	dashboard, err := h.service.SellerDashboard(r.Context(), caller, days)
	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Error())
		return
	case err != nil:
		h.logger.Error("failed to compute seller dashboard", "error", err, "seller_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, dashboard)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
