package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes session-scoped cart endpoints. Guests are keyed by a
// cookie-backed session id, authenticated callers by their user id.
type CartHandlers struct {
	cart  services.CartService
	newID func() string
}

// NewCartHandlers constructs a new CartHandlers instance.
func NewCartHandlers(cart services.CartService, newID func() string) *CartHandlers {
	return &CartHandlers{
		cart:  cart,
		newID: newID,
	}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.upsertItem)
	r.Patch("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Delete("/", h.clearCart)
	r.Post("/estimate", h.estimate)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID        string            `json:"id"`
	Currency  string            `json:"currency"`
	Items     []cartItemPayload `json:"items"`
	Subtotal  int64             `json:"subtotal"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url,omitempty"`
	AddedAt   string `json:"added_at,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	owner := resolveOwner(w, r, cartSessionCookie, cartSessionTTL, h.newID)
	cart, err := h.cart.GetOrCreateCart(ctx, owner)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) upsertItem(w http.ResponseWriter, r *http.Request) {
	h.applyItem(w, r, "")
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	h.applyItem(w, r, productID)
}

func (h *CartHandlers) applyItem(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req cartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}
	if productID != "" {
		req.ProductID = productID
	}

	owner := resolveOwner(w, r, cartSessionCookie, cartSessionTTL, h.newID)
	cart, err := h.cart.AddOrUpdateItem(ctx, services.UpsertCartItemCommand{
		OwnerID:   owner,
		ProductID: strings.TrimSpace(req.ProductID),
		Name:      strings.TrimSpace(req.Name),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		ImageURL:  strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	owner := resolveOwner(w, r, cartSessionCookie, cartSessionTTL, h.newID)
	cart, err := h.cart.RemoveItem(ctx, services.RemoveCartItemCommand{
		OwnerID:   owner,
		ProductID: productID,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	owner := resolveOwner(w, r, cartSessionCookie, cartSessionTTL, h.newID)
	if err := h.cart.ClearCart(ctx, owner); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type estimateRequest struct {
	CouponCode string `json:"coupon_code"`
}

type estimateResponse struct {
	Totals orderTotalsPayload `json:"totals"`
}

func (h *CartHandlers) estimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req estimateRequest
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	owner := resolveOwner(w, r, cartSessionCookie, cartSessionTTL, h.newID)
	totals, err := h.cart.Estimate(ctx, services.EstimateCartCommand{
		OwnerID:    owner,
		CouponCode: strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, estimateResponse{Totals: orderTotalsPayload{
		Subtotal: totals.Subtotal,
		Tax:      totals.Tax,
		Shipping: totals.Shipping,
		Discount: totals.Discount,
		Total:    totals.Total,
	}})
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:        strings.TrimSpace(cart.ID),
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     make([]cartItemPayload, 0, len(cart.Items)),
		Subtotal:  cart.Subtotal(),
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  strings.TrimSpace(item.ImageURL),
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	return payload
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart backend unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrCouponInvalidCode), errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_coupon", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart request", http.StatusInternalServerError))
	}
}
