package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type Store interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
	Create(ctx context.Context, p *domain.Product) error
	Modify(ctx context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error)
	StockAlerts(ctx context.Context, ownerID string, threshold int) (low, out []domain.Product, err error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil || !product.IsActive {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, productResponse(*product))
}

type createProductRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	SKU           string           `json:"sku"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	Stock         int              `json:"stock"`
	IsActive      *bool            `json:"is_active"`
}

func (h *Handler) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())
	if !auth.Authorize(caller, auth.ActionManageOwnProducts, auth.Resource{}) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product := &domain.Product{
		OwnerID:       caller.ID,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		SKU:           strings.TrimSpace(req.SKU),
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}

	if err := validateProduct(product); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err, "owner_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "owner_id", product.OwnerID)
	h.writeJSON(w, http.StatusCreated, productResponse(*product))
}

type updateProductRequest struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	ClearDiscount bool             `json:"clear_discount"`
	Stock         *int             `json:"stock"`
	IsActive      *bool            `json:"is_active"`
}

func (h *Handler) HandleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	caller, _ := auth.CallerFrom(r.Context())

	var req updateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.store.Modify(r.Context(), id, func(p *domain.Product) error {
		if !auth.Authorize(caller, auth.ActionManageOwnProducts, auth.Resource{OwnerID: p.OwnerID}) {
			return domain.ErrNotFound
		}
		req.apply(p)
		return validateProduct(p)
	})

	var validation *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Error())
		return
	case err != nil:
		h.logger.Error("failed to update product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product updated", "product_id", product.ID, "stock", product.Stock)
	h.writeJSON(w, http.StatusOK, productResponse(*product))
}

// apply copies the fields present in the request onto p. Stock is only
// touched when the request names it.
func (req updateProductRequest) apply(p *domain.Product) {
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.DiscountPrice != nil {
		p.DiscountPrice = req.DiscountPrice
	}
	if req.ClearDiscount {
		p.DiscountPrice = nil
	}
	if req.Stock != nil {
		p.Stock = *req.Stock
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
}

const defaultAlertThreshold = 10

func (h *Handler) HandleStockAlerts(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.CallerFrom(r.Context())

	threshold := defaultAlertThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "threshold must be a non-negative integer")
			return
		}
		threshold = parsed
	}

	low, out, err := h.store.StockAlerts(r.Context(), caller.ID, threshold)
	if err != nil {
		h.logger.Error("failed to list stock alerts", "error", err, "owner_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"low_stock":    low,
		"out_of_stock": out,
	})
}

func validateProduct(p *domain.Product) error {
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if !p.Price.IsPositive() {
		return domain.NewValidationError("price", "must be greater than zero")
	}
	if p.DiscountPrice != nil && p.DiscountPrice.IsNegative() {
		return domain.NewValidationError("discount_price", "must not be negative")
	}
	if p.Stock < 0 {
		return domain.NewValidationError("stock", "must not be negative")
	}
	return nil
}

type productView struct {
	domain.Product
	EffectivePrice decimal.Decimal `json:"effective_price"`
}

func productResponse(p domain.Product) productView {
	return productView{Product: p, EffectivePrice: p.EffectivePrice()}
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
