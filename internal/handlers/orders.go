package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const (
	defaultOrderListLimit  = 20
	maxOrderListLimit      = 100
	maxOrderBodySize       = 64 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

// OrderHandlers exposes the customer-facing order endpoints. Authentication is
// optional; guest callers prove ownership with the contact details used at
// checkout.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	cart   services.CartService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, cart services.CartService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
		cart:   cart,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/confirmation/{number}", h.getOrderByConfirmation)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

type createOrderRequest struct {
	CustomerID      string             `json:"customer_id"`
	Email           string             `json:"email"`
	Phone           string             `json:"phone"`
	Currency        string             `json:"currency"`
	Items           []orderItemRequest `json:"items"`
	CouponCode      string             `json:"coupon_code"`
	PaymentMethod   string             `json:"payment_method"`
	ShippingAddress addressPayload     `json:"shipping_address"`
	BillingAddress  *addressPayload    `json:"billing_address"`
	SessionID       string             `json:"session_id"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url"`
}

type createOrderResponse struct {
	Success            bool   `json:"success"`
	OrderID            string `json:"orderId"`
	ConfirmationNumber string `json:"confirmationNumber"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := buildCreateOrderCommand(ctx, req)

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	h.clearSessionCart(ctx, r, req.SessionID)

	writeJSONResponse(w, http.StatusCreated, createOrderResponse{
		Success:            true,
		OrderID:            order.ID,
		ConfirmationNumber: order.ConfirmationNumber,
	})
}

// buildCreateOrderCommand maps the wire request onto the service command. An
// authenticated identity overrides any customer id supplied in the body.
func buildCreateOrderCommand(ctx context.Context, req createOrderRequest) services.CreateOrderCommand {
	items := make([]services.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			SKU:       strings.TrimSpace(item.SKU),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  strings.TrimSpace(item.ImageURL),
		})
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		customerID = strings.TrimSpace(identity.UID)
	}

	cmd := services.CreateOrderCommand{
		CustomerID: customerID,
		Contact: services.OrderContact{
			Email: strings.TrimSpace(req.Email),
			Phone: strings.TrimSpace(req.Phone),
		},
		Currency:        strings.TrimSpace(req.Currency),
		Items:           items,
		CouponCode:      strings.TrimSpace(req.CouponCode),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ShippingAddress: req.ShippingAddress.toAddress(),
	}
	if req.BillingAddress != nil {
		billing := req.BillingAddress.toAddress()
		cmd.BillingAddress = &billing
	}
	return cmd
}

// clearSessionCart drops the session cart after a successful order. Failures
// are silent; the cart simply survives until its cookie expires.
func (h *OrderHandlers) clearSessionCart(ctx context.Context, r *http.Request, explicitSession string) {
	if h.cart == nil {
		return
	}
	owner := strings.TrimSpace(explicitSession)
	if owner == "" {
		owner = cartOwnerFromRequest(ctx, r)
	}
	if owner == "" {
		return
	}
	_ = h.cart.ClearCart(ctx, owner)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	customerID := strings.TrimSpace(r.URL.Query().Get("customerId"))
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		customerID = strings.TrimSpace(identity.UID)
	}
	if customerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "customerId is required", http.StatusBadRequest))
		return
	}

	limit := defaultOrderListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultOrderListLimit
		case parsed > maxOrderListLimit:
			limit = maxOrderListLimit
		default:
			limit = parsed
		}
	}

	orders, err := h.orders.ListByCustomer(ctx, customerID, limit)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !callerMayReadOrder(ctx, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrderByConfirmation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	number := strings.TrimSpace(chi.URLParam(r, "number"))
	if number == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "confirmation number is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetByConfirmationNumber(ctx, number)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !callerMayReadOrder(ctx, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelBodySize)
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

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	actorID, authorized := resolveCancelActor(ctx, order, req)
	if !authorized {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: orderID,
		ActorID: actorID,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

// callerMayReadOrder gates order reads. Authenticated callers must own the
// order; guest orders stay readable by anyone holding the unguessable id.
func callerMayReadOrder(ctx context.Context, order services.Order) bool {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return order.Guest
	}
	if order.Guest {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(order.CustomerID), strings.TrimSpace(identity.UID))
}

// resolveCancelActor authorises the cancellation request. Guest callers must
// resubmit the checkout contact details; the derived guest id has to match the
// order's stored customer id.
func resolveCancelActor(ctx context.Context, order services.Order, req cancelOrderRequest) (string, bool) {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		uid := strings.TrimSpace(identity.UID)
		if !order.Guest && strings.EqualFold(order.CustomerID, uid) {
			return uid, true
		}
		if order.Guest {
			return uid, true
		}
		return "", false
	}

	if !order.Guest {
		return "", false
	}
	derived := domain.DeriveGuestID(req.Email, req.Phone)
	if derived != order.CustomerID {
		return "", false
	}
	return derived, true
}

type orderListResponse struct {
	Items []orderSummaryPayload `json:"items"`
}

type orderSummaryPayload struct {
	ID                 string `json:"id"`
	ConfirmationNumber string `json:"confirmation_number"`
	Status             string `json:"status"`
	Currency           string `json:"currency"`
	Total              int64  `json:"total"`
	CreatedAt          string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                 string               `json:"id"`
	ConfirmationNumber string               `json:"confirmation_number"`
	CustomerID         string               `json:"customer_id"`
	Guest              bool                 `json:"guest,omitempty"`
	Status             string               `json:"status"`
	Currency           string               `json:"currency"`
	Totals             orderTotalsPayload   `json:"totals"`
	Items              []orderItemPayload   `json:"items"`
	Contact            orderContactPayload  `json:"contact"`
	CouponCode         string               `json:"coupon_code,omitempty"`
	PaymentMethod      string               `json:"payment_method"`
	PaymentReference   string               `json:"payment_reference,omitempty"`
	TrackingNumber     string               `json:"tracking_number,omitempty"`
	EstimatedDelivery  string               `json:"estimated_delivery,omitempty"`
	ShippingAddress    addressPayload       `json:"shipping_address"`
	BillingAddress     addressPayload       `json:"billing_address"`
	CancelReason       string               `json:"cancel_reason,omitempty"`
	CancelledAt        string               `json:"cancelled_at,omitempty"`
	CreatedAt          string               `json:"created_at"`
	UpdatedAt          string               `json:"updated_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
	ImageURL  string `json:"image_url,omitempty"`
}

type orderContactPayload struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:                 strings.TrimSpace(order.ID),
		ConfirmationNumber: strings.TrimSpace(order.ConfirmationNumber),
		Status:             strings.TrimSpace(string(order.Status)),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:              order.Totals.Total,
		CreatedAt:          formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                 strings.TrimSpace(order.ID),
		ConfirmationNumber: strings.TrimSpace(order.ConfirmationNumber),
		CustomerID:         strings.TrimSpace(order.CustomerID),
		Guest:              order.Guest,
		Status:             strings.TrimSpace(string(order.Status)),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Discount: order.Totals.Discount,
			Total:    order.Totals.Total,
		},
		Items: make([]orderItemPayload, 0, len(order.Items)),
		Contact: orderContactPayload{
			Email: strings.TrimSpace(order.Contact.Email),
			Phone: strings.TrimSpace(order.Contact.Phone),
		},
		CouponCode:        stringOrEmpty(order.CouponCode),
		PaymentMethod:     string(order.PaymentMethod),
		PaymentReference:  stringOrEmpty(order.PaymentReference),
		TrackingNumber:    stringOrEmpty(order.TrackingNumber),
		EstimatedDelivery: formatTime(pointerTime(order.EstimatedDelivery)),
		ShippingAddress:   buildAddressPayload(order.ShippingAddress),
		BillingAddress:    buildAddressPayload(order.BillingAddress),
		CancelReason:      stringOrEmpty(order.CancelReason),
		CancelledAt:       formatTime(pointerTime(order.CancelledAt)),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			SKU:       strings.TrimSpace(item.SKU),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
			ImageURL:  strings.TrimSpace(item.ImageURL),
		})
	}

	return payload
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderCancellationClosed):
		httpx.WriteError(ctx, w, httpx.NewError("cancellation_window_closed", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
