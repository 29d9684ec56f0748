package orders

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

type listResponse[T any] struct {
	Data   []T `json:"data"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.PlaceOrder(r.Context(), caller(r), req)
	if err != nil {
		h.writeServiceError(w, err, "place order")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	orders, total, err := h.service.ListForCustomer(r.Context(), caller(r), page)
	if err != nil {
		h.writeServiceError(w, err, "list orders")
		return
	}

	page = page.normalize()
	h.writeJSON(w, http.StatusOK, listResponse[domain.Order]{Data: orders, Total: total, Limit: page.Limit, Offset: page.Offset})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), caller(r), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err, "get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Cancel(r.Context(), caller(r), r.PathValue("id"))
	if errors.Is(err, domain.ErrForbidden) {
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeServiceError(w, err, "cancel order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("payment_status")),
		Search:        q.Get("search"),
		Page:          pageFrom(r),
	}

	orders, total, err := h.service.ListAll(r.Context(), caller(r), filter)
	if err != nil {
		h.writeServiceError(w, err, "list all orders")
		return
	}

	page := filter.Page.normalize()
	h.writeJSON(w, http.StatusOK, listResponse[domain.Order]{Data: orders, Total: total, Limit: page.Limit, Offset: page.Offset})
}

type setStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.SetStatus(r.Context(), caller(r), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeServiceError(w, err, "set order status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type setPaymentStatusRequest struct {
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TransactionID string               `json:"transaction_id"`
}

func (h *Handler) HandleSetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req setPaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.SetPaymentStatus(r.Context(), caller(r), r.PathValue("id"), req.PaymentStatus, req.TransactionID)
	if err != nil {
		h.writeServiceError(w, err, "set payment status")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleSellerItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := SellerItemFilter{
		FulfillmentStatus: domain.FulfillmentStatus(q.Get("fulfillment_status")),
		OrderStatus:       domain.OrderStatus(q.Get("order_status")),
		Page:              pageFrom(r),
	}

	items, err := h.service.SellerItems(r.Context(), caller(r), filter)
	if err != nil {
		h.writeServiceError(w, err, "list seller items")
		return
	}

	h.writeJSON(w, http.StatusOK, items)
}

type setFulfillmentRequest struct {
	Status   domain.FulfillmentStatus `json:"status"`
	SellerID string                   `json:"seller_id"`
}

func (h *Handler) HandleSetFulfillment(w http.ResponseWriter, r *http.Request) {
	var req setFulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.SetFulfillmentStatus(r.Context(), caller(r), r.PathValue("id"), req.SellerID, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "set fulfillment status")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func caller(r *http.Request) auth.Caller {
	c, _ := auth.CallerFrom(r.Context())
	return c
}

func pageFrom(r *http.Request) Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return Page{Limit: limit, Offset: offset}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var (
		validation  *domain.ValidationError
		unavailable *domain.ProductUnavailableError
		stock       *domain.InsufficientStockError
		state       *domain.InvalidStateError
	)

	switch {
	case errors.As(err, &validation):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &stock):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      stock.Error(),
			"product_id": stock.ProductID,
			"available":  stock.Available,
			"requested":  stock.Requested,
		})
	case errors.As(err, &unavailable):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": unavailable.Error(), "product_id": unavailable.ProductID})
	case errors.As(err, &state):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": state.Error(), "status": state.Status})
	case errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrConflict):
		h.logger.Warn("order update conflict", "error", err, "op", op)
		h.writeError(w, http.StatusConflict, "the order was modified concurrently, please retry")
	default:
		h.logger.Error("failed to "+op, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
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
