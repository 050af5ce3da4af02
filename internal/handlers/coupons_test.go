package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

type stubCouponService struct {
	validateFn func(context.Context, services.ValidateCouponCommand) (services.CouponValidationResult, error)
	redeemFn   func(context.Context, string) error
	listFn     func(context.Context, services.CouponListFilter) (domain.CursorPage[services.Coupon], error)
	createFn   func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	updateFn   func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	deleteFn   func(context.Context, string) error
}

func (s *stubCouponService) Validate(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.CouponValidationResult{}, errors.New("not implemented")
}

func (s *stubCouponService) Redeem(ctx context.Context, code string) error {
	if s.redeemFn != nil {
		return s.redeemFn(ctx, code)
	}
	return errors.New("not implemented")
}

func (s *stubCouponService) ListCoupons(ctx context.Context, filter services.CouponListFilter) (domain.CursorPage[services.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Coupon]{}, errors.New("not implemented")
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, code string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, code)
	}
	return errors.New("not implemented")
}

func newCouponRouter(service services.CouponService) chi.Router {
	handler := NewCouponHandlers(service)
	router := chi.NewRouter()
	router.Route("/coupons", handler.Routes)
	return router
}

func TestCouponHandlersValidateAccepted(t *testing.T) {
	var captured services.ValidateCouponCommand
	service := &stubCouponService{
		validateFn: func(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
			captured = cmd
			return services.CouponValidationResult{
				Coupon:   services.Coupon{Code: "SAVE10", Type: domain.DiscountTypePercentage},
				Discount: 6000,
				Valid:    true,
			}, nil
		},
	}

	router := newCouponRouter(service)
	body := []byte(`{"code":"save10","subtotal":60000}`)
	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Code != "save10" || captured.Subtotal != 60000 {
		t.Fatalf("unexpected command: %#v", captured)
	}

	var resp validateCouponResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Valid || resp.Discount != 6000 {
		t.Fatalf("unexpected response: %#v", resp)
	}
	if resp.Code != "SAVE10" || resp.Type != string(domain.DiscountTypePercentage) {
		t.Fatalf("expected coupon details on valid response, got %#v", resp)
	}
}

func TestCouponHandlersValidateRejectedOmitsDetails(t *testing.T) {
	service := &stubCouponService{
		validateFn: func(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
			return services.CouponValidationResult{
				Coupon: services.Coupon{Code: "SAVE10"},
				Valid:  false,
				Reason: "coupon has expired",
			}, nil
		},
	}

	router := newCouponRouter(service)
	body := []byte(`{"code":"SAVE10","subtotal":60000}`)
	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp validateCouponResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Valid {
		t.Fatalf("expected invalid result")
	}
	if resp.Reason != "coupon has expired" {
		t.Fatalf("expected rejection reason, got %q", resp.Reason)
	}
	if resp.Code != "" || resp.Type != "" {
		t.Fatalf("expected coupon details withheld, got %#v", resp)
	}
}

func TestCouponHandlersValidateUnknownCode(t *testing.T) {
	service := &stubCouponService{
		validateFn: func(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidationResult, error) {
			return services.CouponValidationResult{}, services.ErrCouponNotFound
		},
	}

	router := newCouponRouter(service)
	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", bytes.NewReader([]byte(`{"code":"NOPE","subtotal":60000}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCouponHandlersValidateRequiresBody(t *testing.T) {
	router := newCouponRouter(&stubCouponService{})
	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
