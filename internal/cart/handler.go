package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/domain"
)

type LineStore interface {
	Lines(ctx context.Context, customerID string) ([]domain.CartLine, error)
	Line(ctx context.Context, customerID, productID string) (*domain.CartLine, error)
	Add(ctx context.Context, customerID, productID string, delta int) (domain.CartLine, error)
	SetQuantity(ctx context.Context, customerID, productID string, quantity int) (bool, error)
	Remove(ctx context.Context, customerID, productID string) (bool, error)
	Clear(ctx context.Context, customerID string) error
}

type ProductReader interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type Handler struct {
	lines    LineStore
	products ProductReader
	logger   *slog.Logger
}

func NewHandler(lines LineStore, products ProductReader, logger *slog.Logger) *Handler {
	return &Handler{
		lines:    lines,
		products: products,
		logger:   logger,
	}
}

type cartLineView struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Stock          int             `json:"stock"`
	IsActive       bool            `json:"is_active"`
	SellerID       string          `json:"seller_id"`
	Quantity       int             `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

type cartView struct {
	Items      []cartLineView  `json:"cart_items"`
	Total      decimal.Decimal `json:"total"`
	ItemsCount int             `json:"items_count"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}

	lines, err := h.lines.Lines(r.Context(), caller.ID)
	if err != nil {
		h.logger.Error("failed to list cart", "error", err, "customer_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	view := cartView{Items: make([]cartLineView, 0, len(lines)), Total: decimal.Zero}
	for _, line := range lines {
		product, err := h.products.Get(r.Context(), line.ProductID)
		if err != nil {
			h.logger.Error("failed to load cart product", "error", err, "product_id", line.ProductID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if product == nil {
			continue
		}

		price := product.EffectivePrice()
		subtotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		view.Items = append(view.Items, cartLineView{
			ProductID:      product.ID,
			Name:           product.Name,
			Price:          product.Price,
			EffectivePrice: price,
			Stock:          product.Stock,
			IsActive:       product.IsActive,
			SellerID:       product.OwnerID,
			Quantity:       line.Quantity,
			Subtotal:       subtotal,
		})
		view.Total = view.Total.Add(subtotal)
	}
	view.ItemsCount = len(view.Items)

	h.writeJSON(w, http.StatusOK, view)
}

type addRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "product_id and a quantity of at least 1 are required")
		return
	}

	product, ok := h.purchasable(r.Context(), w, req.ProductID)
	if !ok {
		return
	}

	existing, err := h.lines.Line(r.Context(), caller.ID, req.ProductID)
	if err != nil {
		h.logger.Error("failed to get cart line", "error", err, "customer_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	wanted := req.Quantity
	if existing != nil {
		wanted += existing.Quantity
	}
	if product.Stock < wanted {
		h.writeStockError(w, product, wanted)
		return
	}

	line, err := h.lines.Add(r.Context(), caller.ID, req.ProductID, req.Quantity)
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to add cart line", "error", err, "customer_id", caller.ID, "product_id", req.ProductID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("cart line added", "customer_id", caller.ID, "product_id", line.ProductID, "quantity", line.Quantity)
	h.writeJSON(w, http.StatusCreated, line)
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("productId")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	product, ok := h.purchasable(r.Context(), w, productID)
	if !ok {
		return
	}
	if product.Stock < req.Quantity {
		h.writeStockError(w, product, req.Quantity)
		return
	}

	found, err := h.lines.SetQuantity(r.Context(), caller.ID, productID, req.Quantity)
	if err != nil {
		h.logger.Error("failed to update cart line", "error", err, "customer_id", caller.ID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"product_id": productID, "quantity": req.Quantity})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("productId")

	found, err := h.lines.Remove(r.Context(), caller.ID, productID)
	if err != nil {
		h.logger.Error("failed to remove cart line", "error", err, "customer_id", caller.ID, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "item removed from cart"})
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.lines.Clear(r.Context(), caller.ID); err != nil {
		h.logger.Error("failed to clear cart", "error", err, "customer_id", caller.ID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "cart cleared"})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (auth.Caller, bool) {
	caller, _ := auth.CallerFrom(r.Context())
	if !auth.Authorize(caller, auth.ActionManageCart, auth.Resource{OwnerID: caller.ID}) {
		h.writeError(w, http.StatusForbidden, "forbidden")
		return auth.Caller{}, false
	}
	return caller, true
}

func (h *Handler) purchasable(ctx context.Context, w http.ResponseWriter, productID string) (*domain.Product, bool) {
	product, err := h.products.Get(ctx, productID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", productID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return nil, false
	}
	if !product.IsActive {
		err := &domain.ProductUnavailableError{ProductID: product.ID, Name: product.Name}
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "product_id": product.ID})
		return nil, false
	}
	return product, true
}

func (h *Handler) writeStockError(w http.ResponseWriter, product *domain.Product, requested int) {
	err := &domain.InsufficientStockError{ProductID: product.ID, Name: product.Name, Available: product.Stock, Requested: requested}
	h.writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":      err.Error(),
		"product_id": product.ID,
		"available":  product.Stock,
		"requested":  requested,
	})
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
