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

const maxWishlistBodySize = 16 * 1024

// WishlistHandlers exposes session-scoped wishlist endpoints.
type WishlistHandlers struct {
	wishlist services.WishlistService
	newID    func() string
}

// NewWishlistHandlers constructs a new WishlistHandlers instance.
func NewWishlistHandlers(wishlist services.WishlistService, newID func() string) *WishlistHandlers {
	return &WishlistHandlers{
		wishlist: wishlist,
		newID:    newID,
	}
}

// Routes registers the /wishlist endpoints.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getWishlist)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
}

type wishlistItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url"`
}

type wishlistResponse struct {
	Wishlist wishlistPayload `json:"wishlist"`
}

type wishlistPayload struct {
	Items []wishlistItemPayload `json:"items"`
}

type wishlistItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url,omitempty"`
	AddedAt   string `json:"added_at,omitempty"`
}

func (h *WishlistHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service unavailable", http.StatusServiceUnavailable))
		return
	}

	owner := resolveOwner(w, r, wishlistSessionCookie, wishlistSessionTTL, h.newID)
	list, err := h.wishlist.GetWishlist(ctx, owner)
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Wishlist: buildWishlistPayload(list)})
}

func (h *WishlistHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWishlistBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req wishlistItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	owner := resolveOwner(w, r, wishlistSessionCookie, wishlistSessionTTL, h.newID)
	list, err := h.wishlist.AddItem(ctx, services.WishlistItemCommand{
		OwnerID:   owner,
		ProductID: strings.TrimSpace(req.ProductID),
		Name:      strings.TrimSpace(req.Name),
		UnitPrice: req.UnitPrice,
		ImageURL:  strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Wishlist: buildWishlistPayload(list)})
}

func (h *WishlistHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wishlist == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	owner := resolveOwner(w, r, wishlistSessionCookie, wishlistSessionTTL, h.newID)
	list, err := h.wishlist.RemoveItem(ctx, services.WishlistItemCommand{
		OwnerID:   owner,
		ProductID: productID,
	})
	if err != nil {
		writeWishlistError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, wishlistResponse{Wishlist: buildWishlistPayload(list)})
}

func buildWishlistPayload(list services.Wishlist) wishlistPayload {
	payload := wishlistPayload{Items: make([]wishlistItemPayload, 0, len(list.Items))}
	for _, item := range list.Items {
		payload.Items = append(payload.Items, wishlistItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			UnitPrice: item.UnitPrice,
			ImageURL:  strings.TrimSpace(item.ImageURL),
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	return payload
}

func writeWishlistError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrWishlistInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWishlistUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_service_unavailable", "wishlist backend unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wishlist_error", "failed to process wishlist request", http.StatusInternalServerError))
	}
}
