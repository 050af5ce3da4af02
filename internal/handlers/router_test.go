package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterServesHealthEndpoints(t *testing.T) {
	router := NewRouter()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}

func TestRouterUnknownRouteReturnsJSONError(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	if payload["error"] != errorNotFoundCode {
		t.Fatalf("expected %s error code, got %v", errorNotFoundCode, payload["error"])
	}
}

func TestRouterUnconfiguredGroupsReturnNotImplemented(t *testing.T) {
	router := NewRouter()

	paths := []string{
		"/v1/orders",
		"/v1/payments/order",
		"/v1/cart",
		"/v1/wishlist",
		"/v1/coupons/validate",
		"/v1/admin/orders",
		"/v1/internal/orders/reconcile",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s: expected status 501, got %d", path, rr.Code)
		}
	}
}

func TestRouterMountsConfiguredRoutes(t *testing.T) {
	router := NewRouter(
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			})
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected configured handler to serve, got %d", rr.Code)
	}
}

func TestRouterAppliesGroupMiddlewares(t *testing.T) {
	paymentHits := 0
	internalHits := 0

	countMW := func(counter *int) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				*counter++
				next.ServeHTTP(w, req)
			})
		}
	}

	ok := func(w http.ResponseWriter, req *http.Request) { w.WriteHeader(http.StatusOK) }

	router := NewRouter(
		WithPaymentRoutes(func(r chi.Router) { r.Post("/webhook", ok) }),
		WithPaymentMiddlewares(countMW(&paymentHits)),
		WithInternalRoutes(func(r chi.Router) { r.Post("/orders/reconcile", ok) }),
		WithInternalMiddlewares(countMW(&internalHits)),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if paymentHits != 1 {
		t.Fatalf("expected payment middleware hit once, got %d", paymentHits)
	}
	if internalHits != 0 {
		t.Fatalf("expected internal middleware untouched, got %d", internalHits)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/internal/orders/reconcile", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if internalHits != 1 {
		t.Fatalf("expected internal middleware hit once, got %d", internalHits)
	}
}
