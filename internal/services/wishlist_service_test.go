package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

type stubWishlistRepo struct {
	getFn     func(context.Context, string) (domain.Wishlist, error)
	replaceFn func(context.Context, string, []domain.WishlistItem) (domain.Wishlist, error)
}

func (s *stubWishlistRepo) GetWishlist(ctx context.Context, ownerKey string) (domain.Wishlist, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ownerKey)
	}
	return domain.Wishlist{OwnerKey: ownerKey}, nil
}

func (s *stubWishlistRepo) ReplaceItems(ctx context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, ownerKey, items)
	}
	return domain.Wishlist{OwnerKey: ownerKey, Items: items}, nil
}

func newTestWishlistService(t *testing.T, repo *stubWishlistRepo) WishlistService {
	t.Helper()
	svc, err := NewWishlistService(WishlistServiceDeps{
		Repository: repo,
		Clock:      fixedClock(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new wishlist service: %v", err)
	}
	return svc
}

func TestWishlistAddItem(t *testing.T) {
	var saved []domain.WishlistItem
	repo := &stubWishlistRepo{
		replaceFn: func(_ context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error) {
			saved = items
			return domain.Wishlist{OwnerKey: ownerKey, Items: items}, nil
		},
	}
	svc := newTestWishlistService(t, repo)

	list, err := svc.AddItem(context.Background(), WishlistItemCommand{
		OwnerID:   "wl_abc",
		ProductID: "prod_1",
		Name:      "Maple Bookend",
		UnitPrice: 10000,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(saved) != 1 || saved[0].ProductID != "prod_1" {
		t.Fatalf("unexpected saved items %+v", saved)
	}
	if saved[0].AddedAt.IsZero() {
		t.Fatalf("expected AddedAt stamped")
	}
	if len(list.Items) != 1 {
		t.Fatalf("expected returned wishlist with 1 item")
	}
}

func TestWishlistReAddPreservesAddedAt(t *testing.T) {
	original := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	var saved []domain.WishlistItem
	repo := &stubWishlistRepo{
		getFn: func(_ context.Context, ownerKey string) (domain.Wishlist, error) {
			return domain.Wishlist{OwnerKey: ownerKey, Items: []domain.WishlistItem{
				{ProductID: "prod_1", Name: "Old Snapshot", UnitPrice: 9000, AddedAt: original},
			}}, nil
		},
		replaceFn: func(_ context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error) {
			saved = items
			return domain.Wishlist{OwnerKey: ownerKey, Items: items}, nil
		},
	}
	svc := newTestWishlistService(t, repo)

	_, err := svc.AddItem(context.Background(), WishlistItemCommand{
		OwnerID:   "wl_abc",
		ProductID: "prod_1",
		Name:      "Fresh Snapshot",
		UnitPrice: 10000,
	})
	if err != nil {
		t.Fatalf("re-add item: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected single line, got %d", len(saved))
	}
	if !saved[0].AddedAt.Equal(original) {
		t.Fatalf("expected original AddedAt preserved, got %v", saved[0].AddedAt)
	}
	if saved[0].Name != "Fresh Snapshot" || saved[0].UnitPrice != 10000 {
		t.Fatalf("expected refreshed snapshot, got %+v", saved[0])
	}
}

func TestWishlistRemoveItemNoOpWhenAbsent(t *testing.T) {
	replaceCalls := 0
	repo := &stubWishlistRepo{
		getFn: func(_ context.Context, ownerKey string) (domain.Wishlist, error) {
			return domain.Wishlist{OwnerKey: ownerKey, Items: []domain.WishlistItem{{ProductID: "prod_1"}}}, nil
		},
		replaceFn: func(_ context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error) {
			replaceCalls++
			return domain.Wishlist{OwnerKey: ownerKey, Items: items}, nil
		},
	}
	svc := newTestWishlistService(t, repo)

	if _, err := svc.RemoveItem(context.Background(), WishlistItemCommand{OwnerID: "wl_abc", ProductID: "prod_other"}); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	if replaceCalls != 0 {
		t.Fatalf("expected no write for absent product")
	}

	list, err := svc.RemoveItem(context.Background(), WishlistItemCommand{OwnerID: "wl_abc", ProductID: "prod_1"})
	if err != nil {
		t.Fatalf("remove existing: %v", err)
	}
	if replaceCalls != 1 || len(list.Items) != 0 {
		t.Fatalf("expected item removed, calls=%d items=%d", replaceCalls, len(list.Items))
	}
}

func TestWishlistValidatesInput(t *testing.T) {
	svc := newTestWishlistService(t, &stubWishlistRepo{})

	if _, err := svc.GetWishlist(context.Background(), " "); !errors.Is(err, ErrWishlistInvalidInput) {
		t.Fatalf("expected ErrWishlistInvalidInput, got %v", err)
	}
	if _, err := svc.AddItem(context.Background(), WishlistItemCommand{OwnerID: "wl_abc"}); !errors.Is(err, ErrWishlistInvalidInput) {
		t.Fatalf("expected ErrWishlistInvalidInput for missing product, got %v", err)
	}
}
