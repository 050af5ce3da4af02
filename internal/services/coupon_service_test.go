package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type stubCouponRepo struct {
	insertFn    func(context.Context, domain.Coupon) error
	updateFn    func(context.Context, domain.Coupon) error
	deleteFn    func(context.Context, string) error
	findFn      func(context.Context, string) (domain.Coupon, error)
	incrementFn func(context.Context, string) error
	listFn      func(context.Context, repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error)
}

func (s *stubCouponRepo) Insert(ctx context.Context, coupon domain.Coupon) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, coupon)
	}
	return nil
}

func (s *stubCouponRepo) Update(ctx context.Context, coupon domain.Coupon) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, coupon)
	}
	return nil
}

func (s *stubCouponRepo) Delete(ctx context.Context, couponID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, couponID)
	}
	return nil
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponRepo) IncrementUsage(ctx context.Context, couponID string) error {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, couponID)
	}
	return nil
}

func (s *stubCouponRepo) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Coupon]{}, nil
}

func newTestCouponService(t *testing.T, repo repositories.CouponRepository) CouponService {
	t.Helper()
	svc, err := NewCouponService(CouponServiceDeps{
		Coupons:     repo,
		Clock:       fixedClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "TESTID" },
	})
	if err != nil {
		t.Fatalf("new coupon service: %v", err)
	}
	return svc
}

func activeCoupon() domain.Coupon {
	return domain.Coupon{
		ID:     "cpn_1",
		Code:   "SAVE10",
		Type:   domain.DiscountTypePercentage,
		Value:  10,
		Active: true,
	}
}

func TestValidateCouponNormalisesCode(t *testing.T) {
	requested := ""
	repo := &stubCouponRepo{
		findFn: func(_ context.Context, code string) (domain.Coupon, error) {
			requested = code
			return activeCoupon(), nil
		},
	}
	svc := newTestCouponService(t, repo)

	result, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "  save10 ", Subtotal: 50000})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if requested != "SAVE10" {
		t.Fatalf("expected upper-cased lookup, got %q", requested)
	}
	if !result.Valid || result.Discount != 5000 {
		t.Fatalf("expected valid coupon with discount 5000, got %+v", result)
	}
}

func TestValidateCouponRejectionReasons(t *testing.T) {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	limit := 5

	cases := []struct {
		name   string
		mutate func(*domain.Coupon)
		reason string
	}{
		{"inactive", func(c *domain.Coupon) { c.Active = false }, "coupon is not active"},
		{"not started", func(c *domain.Coupon) { c.StartsAt = &future }, "coupon is not yet valid"},
		{"expired", func(c *domain.Coupon) { c.ExpiresAt = &past }, "coupon has expired"},
		{"limit reached", func(c *domain.Coupon) { c.UsageLimit = &limit; c.UsedCount = 5 }, "coupon usage limit reached"},
		{"below minimum", func(c *domain.Coupon) { c.MinOrderAmount = 100000 }, "order subtotal below minimum of 100000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupon := activeCoupon()
			tc.mutate(&coupon)
			repo := &stubCouponRepo{
				findFn: func(context.Context, string) (domain.Coupon, error) {
					return coupon, nil
				},
			}
			svc := newTestCouponService(t, repo)

			result, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "SAVE10", Subtotal: 50000})
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if result.Valid {
				t.Fatalf("expected invalid result")
			}
			if result.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, result.Reason)
			}
		})
	}
}

func TestValidateCouponNotFound(t *testing.T) {
	repo := &stubCouponRepo{
		findFn: func(context.Context, string) (domain.Coupon, error) {
			return domain.Coupon{}, fakeRepoError{notFound: true}
		},
	}
	svc := newTestCouponService(t, repo)

	if _, err := svc.Validate(context.Background(), ValidateCouponCommand{Code: "NOPE", Subtotal: 1000}); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
}

func TestRedeemIncrementsByDocumentID(t *testing.T) {
	incremented := ""
	repo := &stubCouponRepo{
		findFn: func(context.Context, string) (domain.Coupon, error) {
			return activeCoupon(), nil
		},
		incrementFn: func(_ context.Context, couponID string) error {
			incremented = couponID
			return nil
		},
	}
	svc := newTestCouponService(t, repo)

	if err := svc.Redeem(context.Background(), "save10"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if incremented != "cpn_1" {
		t.Fatalf("expected increment on document id cpn_1, got %q", incremented)
	}
}

func TestCreateCouponAssignsIdentity(t *testing.T) {
	var inserted domain.Coupon
	repo := &stubCouponRepo{
		insertFn: func(_ context.Context, coupon domain.Coupon) error {
			inserted = coupon
			return nil
		},
	}
	svc := newTestCouponService(t, repo)

	coupon, err := svc.CreateCoupon(context.Background(), UpsertCouponCommand{Coupon: Coupon{
		Code:  "welcome20",
		Type:  domain.DiscountTypeFixed,
		Value: 2000,
	}})
	if err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	if coupon.ID != "cpn_TESTID" {
		t.Fatalf("unexpected coupon id %q", coupon.ID)
	}
	if coupon.Code != "WELCOME20" {
		t.Fatalf("expected normalised code, got %q", coupon.Code)
	}
	if inserted.UsedCount != 0 || inserted.CreatedAt.IsZero() {
		t.Fatalf("expected fresh usage and timestamps, got %+v", inserted)
	}
}

func TestCreateCouponValidatesInput(t *testing.T) {
	svc := newTestCouponService(t, &stubCouponRepo{})

	limit := 0
	cases := map[string]Coupon{
		"missing code":        {Type: domain.DiscountTypePercentage, Value: 10},
		"percentage over 100": {Code: "X", Type: domain.DiscountTypePercentage, Value: 150},
		"zero fixed value":    {Code: "X", Type: domain.DiscountTypeFixed, Value: 0},
		"unknown type":        {Code: "X", Type: "bogo", Value: 10},
		"zero usage limit":    {Code: "X", Type: domain.DiscountTypeFixed, Value: 100, UsageLimit: &limit},
	}
	for name, coupon := range cases {
		if _, err := svc.CreateCoupon(context.Background(), UpsertCouponCommand{Coupon: coupon}); !errors.Is(err, ErrCouponInvalidInput) {
			t.Fatalf("%s: expected ErrCouponInvalidInput, got %v", name, err)
		}
	}
}

func TestUpdateCouponPreservesUsage(t *testing.T) {
	existing := activeCoupon()
	existing.UsedCount = 7
	existing.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	var updated domain.Coupon
	repo := &stubCouponRepo{
		findFn: func(context.Context, string) (domain.Coupon, error) {
			return existing, nil
		},
		updateFn: func(_ context.Context, coupon domain.Coupon) error {
			updated = coupon
			return nil
		},
	}
	svc := newTestCouponService(t, repo)

	coupon, err := svc.UpdateCoupon(context.Background(), UpsertCouponCommand{Coupon: Coupon{
		Code:  "SAVE10",
		Type:  domain.DiscountTypePercentage,
		Value: 15,
	}})
	if err != nil {
		t.Fatalf("update coupon: %v", err)
	}
	if coupon.ID != "cpn_1" || coupon.UsedCount != 7 {
		t.Fatalf("expected preserved identity and usage, got %+v", coupon)
	}
	if !updated.CreatedAt.Equal(existing.CreatedAt) {
		t.Fatalf("expected original creation time preserved")
	}
	if updated.Value != 15 {
		t.Fatalf("expected updated value 15, got %d", updated.Value)
	}
}

func TestDeleteCouponResolvesDocumentID(t *testing.T) {
	deleted := ""
	repo := &stubCouponRepo{
		findFn: func(context.Context, string) (domain.Coupon, error) {
			return activeCoupon(), nil
		},
		deleteFn: func(_ context.Context, couponID string) error {
			deleted = couponID
			return nil
		},
	}
	svc := newTestCouponService(t, repo)

	if err := svc.DeleteCoupon(context.Background(), "save10"); err != nil {
		t.Fatalf("delete coupon: %v", err)
	}
	if deleted != "cpn_1" {
		t.Fatalf("expected delete by document id, got %q", deleted)
	}
}
