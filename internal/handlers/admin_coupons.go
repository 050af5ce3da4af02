package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/pagination"
	"github.com/maplecart/api/internal/services"
)

// AdminCouponHandlers exposes the staff coupon management surface.
type AdminCouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
}

// NewAdminCouponHandlers constructs a new AdminCouponHandlers instance.
func NewAdminCouponHandlers(authn *auth.Authenticator, coupons services.CouponService) *AdminCouponHandlers {
	return &AdminCouponHandlers{
		authn:   authn,
		coupons: coupons,
	}
}

// Routes registers the /admin/coupons endpoints.
func (h *AdminCouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/coupons", h.listCoupons)
	r.Post("/coupons", h.createCoupon)
	r.Put("/coupons/{code}", h.updateCoupon)
	r.Delete("/coupons/{code}", h.deleteCoupon)
}

type couponPayload struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type"`
	Value          int64  `json:"value"`
	MinOrderAmount int64  `json:"min_order_amount,omitempty"`
	MaxDiscount    int64  `json:"max_discount,omitempty"`
	Active         bool   `json:"active"`
	StartsAt       string `json:"starts_at,omitempty"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	UsageLimit     *int   `json:"usage_limit,omitempty"`
	UsedCount      int    `json:"used_count"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

type upsertCouponRequest struct {
	Code           string `json:"code"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	Value          int64  `json:"value"`
	MinOrderAmount int64  `json:"min_order_amount"`
	MaxDiscount    int64  `json:"max_discount"`
	Active         bool   `json:"active"`
	StartsAt       string `json:"starts_at"`
	ExpiresAt      string `json:"expires_at"`
	UsageLimit     *int   `json:"usage_limit"`
}

type couponListResponse struct {
	Items         []couponPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

func (h *AdminCouponHandlers) listCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !requireCapability(w, r, auth.CapabilityViewAdmin) {
		return
	}

	query := r.URL.Query()
	filter := services.CouponListFilter{
		ActiveOnly: query.Get("active") == "true",
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultAdminPageSize,
		MaxPageSize:     maxAdminPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}

	page, err := h.coupons.ListCoupons(ctx, filter)
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}

	items := make([]couponPayload, 0, len(page.Items))
	for _, coupon := range page.Items {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *AdminCouponHandlers) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !requireCapability(w, r, auth.CapabilityManageCoupons) {
		return
	}

	coupon, actor, ok := h.decodeCouponRequest(w, r, "")
	if !ok {
		return
	}

	created, err := h.coupons.CreateCoupon(ctx, services.UpsertCouponCommand{Coupon: coupon, ActorID: actor})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCouponPayload(created))
}

func (h *AdminCouponHandlers) updateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !requireCapability(w, r, auth.CapabilityManageCoupons) {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon code is required", http.StatusBadRequest))
		return
	}

	coupon, actor, ok := h.decodeCouponRequest(w, r, code)
	if !ok {
		return
	}

	updated, err := h.coupons.UpdateCoupon(ctx, services.UpsertCouponCommand{Coupon: coupon, ActorID: actor})
	if err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(updated))
}

func (h *AdminCouponHandlers) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !requireCapability(w, r, auth.CapabilityManageCoupons) {
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "coupon code is required", http.StatusBadRequest))
		return
	}

	if err := h.coupons.DeleteCoupon(ctx, code); err != nil {
		writeCouponError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeCouponRequest parses and validates the shared upsert body. A non-empty
// pathCode pins the coupon code to the URL, ignoring any code in the body.
func (h *AdminCouponHandlers) decodeCouponRequest(w http.ResponseWriter, r *http.Request, pathCode string) (services.Coupon, string, bool) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return services.Coupon{}, "", false
	}
	var req upsertCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return services.Coupon{}, "", false
	}

	coupon := services.Coupon{
		Code:           strings.TrimSpace(req.Code),
		Description:    strings.TrimSpace(req.Description),
		Type:           domain.DiscountType(strings.ToLower(strings.TrimSpace(req.Type))),
		Value:          req.Value,
		MinOrderAmount: req.MinOrderAmount,
		MaxDiscount:    req.MaxDiscount,
		Active:         req.Active,
		UsageLimit:     req.UsageLimit,
	}
	if pathCode != "" {
		coupon.Code = pathCode
	}

	if raw := strings.TrimSpace(req.StartsAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.Coupon{}, "", false
		}
		starts := ts.UTC()
		coupon.StartsAt = &starts
	}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expires_at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return services.Coupon{}, "", false
		}
		expires := ts.UTC()
		coupon.ExpiresAt = &expires
	}

	actor := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actor = strings.TrimSpace(identity.UID)
	}
	return coupon, actor, true
}

func buildCouponPayload(coupon services.Coupon) couponPayload {
	return couponPayload{
		ID:             strings.TrimSpace(coupon.ID),
		Code:           strings.TrimSpace(coupon.Code),
		Description:    strings.TrimSpace(coupon.Description),
		Type:           string(coupon.Type),
		Value:          coupon.Value,
		MinOrderAmount: coupon.MinOrderAmount,
		MaxDiscount:    coupon.MaxDiscount,
		Active:         coupon.Active,
		StartsAt:       formatTime(pointerTime(coupon.StartsAt)),
		ExpiresAt:      formatTime(pointerTime(coupon.ExpiresAt)),
		UsageLimit:     coupon.UsageLimit,
		UsedCount:      coupon.UsedCount,
		CreatedAt:      formatTime(coupon.CreatedAt),
		UpdatedAt:      formatTime(coupon.UpdatedAt),
	}
}
