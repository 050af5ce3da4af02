package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

type stubCartRepo struct {
	upsertFn  func(context.Context, domain.Cart) (domain.Cart, error)
	getFn     func(context.Context, string) (domain.Cart, error)
	replaceFn func(context.Context, string, []domain.CartItem) (domain.Cart, error)
	deleteFn  func(context.Context, string) error
}

func (s *stubCartRepo) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepo) GetCart(ctx context.Context, ownerKey string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ownerKey)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepo) ReplaceItems(ctx context.Context, ownerKey string, items []domain.CartItem) (domain.Cart, error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, ownerKey, items)
	}
	return domain.Cart{OwnerKey: ownerKey, Items: items}, nil
}

func (s *stubCartRepo) DeleteCart(ctx context.Context, ownerKey string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, ownerKey)
	}
	return nil
}

func newTestCartService(t *testing.T, repo *stubCartRepo, opts ...func(*CartServiceDeps)) CartService {
	t.Helper()
	deps := CartServiceDeps{
		Repository:  repo,
		Policy:      testPolicy(),
		Clock:       fixedClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)),
		IDGenerator: func() string { return "TESTID" },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestGetOrCreateCartCreatesWhenMissing(t *testing.T) {
	var created domain.Cart
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, fakeRepoError{notFound: true}
		},
		upsertFn: func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
			created = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, repo)

	cart, err := svc.GetOrCreateCart(context.Background(), "sess_abc")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if cart.ID != "cart_TESTID" {
		t.Fatalf("unexpected cart id %q", cart.ID)
	}
	if created.OwnerKey != "sess_abc" || created.Currency != "INR" {
		t.Fatalf("unexpected created cart %+v", created)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty new cart")
	}
}

func TestAddOrUpdateItemReplacesExistingLine(t *testing.T) {
	existing := domain.Cart{
		OwnerKey: "sess_abc",
		Items: []domain.CartItem{
			{ProductID: "prod_1", Name: "Old Name", Quantity: 1, UnitPrice: 1000},
			{ProductID: "prod_2", Quantity: 2, UnitPrice: 500},
		},
	}
	var replaced []domain.CartItem
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return existing, nil
		},
		replaceFn: func(_ context.Context, ownerKey string, items []domain.CartItem) (domain.Cart, error) {
			replaced = items
			return domain.Cart{OwnerKey: ownerKey, Items: items}, nil
		},
	}
	svc := newTestCartService(t, repo)

	cart, err := svc.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		OwnerID:   "sess_abc",
		ProductID: "prod_1",
		Name:      "New Name",
		Quantity:  3,
		UnitPrice: 1200,
	})
	if err != nil {
		t.Fatalf("add or update: %v", err)
	}
	if len(replaced) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(replaced))
	}
	if replaced[0].Quantity != 3 || replaced[0].UnitPrice != 1200 || replaced[0].Name != "New Name" {
		t.Fatalf("expected line updated in place, got %+v", replaced[0])
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected returned cart with 2 items")
	}
}

func TestAddOrUpdateItemValidatesQuantity(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{})

	for _, qty := range []int{0, -1, 100} {
		_, err := svc.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
			OwnerID:   "sess_abc",
			ProductID: "prod_1",
			Quantity:  qty,
		})
		if !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("quantity %d: expected ErrCartInvalidInput, got %v", qty, err)
		}
	}
}

func TestRemoveItemIsNoOpWhenAbsent(t *testing.T) {
	replaceCalls := 0
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{OwnerKey: "sess_abc", Items: []domain.CartItem{{ProductID: "prod_1", Quantity: 1}}}, nil
		},
		replaceFn: func(_ context.Context, ownerKey string, items []domain.CartItem) (domain.Cart, error) {
			replaceCalls++
			return domain.Cart{OwnerKey: ownerKey, Items: items}, nil
		},
	}
	svc := newTestCartService(t, repo)

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{OwnerID: "sess_abc", ProductID: "prod_missing"})
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if replaceCalls != 0 {
		t.Fatalf("expected no write for absent product")
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected cart unchanged")
	}

	if _, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{OwnerID: "sess_abc", ProductID: "prod_1"}); err != nil {
		t.Fatalf("remove existing item: %v", err)
	}
	if replaceCalls != 1 {
		t.Fatalf("expected write for existing product")
	}
}

func TestClearCartDeletesDocument(t *testing.T) {
	deleted := ""
	repo := &stubCartRepo{
		deleteFn: func(_ context.Context, ownerKey string) error {
			deleted = ownerKey
			return nil
		},
	}
	svc := newTestCartService(t, repo)

	if err := svc.ClearCart(context.Background(), "sess_abc"); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if deleted != "sess_abc" {
		t.Fatalf("expected delete for sess_abc, got %q", deleted)
	}
}

func TestEstimatePricesCartWithCoupon(t *testing.T) {
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{
				OwnerKey: "sess_abc",
				Items: []domain.CartItem{
					{ProductID: "prod_1", Quantity: 2, UnitPrice: 25000},
					{ProductID: "prod_2", Quantity: 1, UnitPrice: 10000},
				},
			}, nil
		},
	}
	coupons := &stubCouponService{
		validateFn: func(_ context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
			if cmd.Subtotal != 60000 {
				t.Fatalf("expected subtotal 60000 in validation, got %d", cmd.Subtotal)
			}
			coupon := domain.Coupon{Type: domain.DiscountTypeFixed, Value: 5000, Active: true}
			return CouponValidationResult{Coupon: coupon, Valid: true, Discount: 5000}, nil
		},
	}
	svc := newTestCartService(t, repo, func(deps *CartServiceDeps) {
		deps.Coupons = coupons
	})

	totals, err := svc.Estimate(context.Background(), EstimateCartCommand{OwnerID: "sess_abc", CouponCode: "FLAT50"})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if totals.Subtotal != 60000 || totals.Discount != 5000 {
		t.Fatalf("unexpected totals %+v", totals)
	}
	if want := totals.Subtotal + totals.Tax + totals.Shipping - totals.Discount; totals.Total != want {
		t.Fatalf("totals invariant violated: %+v", totals)
	}
}

func TestEstimateUnknownCart(t *testing.T) {
	repo := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, fakeRepoError{notFound: true}
		},
	}
	svc := newTestCartService(t, repo)

	if _, err := svc.Estimate(context.Background(), EstimateCartCommand{OwnerID: "sess_missing"}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}
