package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrWishlistInvalidInput indicates the caller supplied invalid input.
	ErrWishlistInvalidInput = errors.New("wishlist service: invalid input")
	// ErrWishlistUnavailable indicates the wishlist backend is unreachable.
	ErrWishlistUnavailable = errors.New("wishlist service: unavailable")
)

const maxWishlistItems = 200

// WishlistServiceDeps wires the repository dependency for wishlist operations.
type WishlistServiceDeps struct {
	Repository repositories.WishlistRepository
	Clock      func() time.Time
}

type wishlistService struct {
	repo repositories.WishlistRepository
	now  func() time.Time
}

// NewWishlistService constructs a WishlistService.
func NewWishlistService(deps WishlistServiceDeps) (WishlistService, error) {
	if deps.Repository == nil {
		return nil, errors.New("wishlist service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &wishlistService{
		repo: deps.Repository,
		now:  func() time.Time { return clock().UTC() },
	}, nil
}

// GetWishlist returns the wishlist for the owner key, empty when none exists.
func (s *wishlistService) GetWishlist(ctx context.Context, ownerID string) (Wishlist, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return Wishlist{}, ErrWishlistInvalidInput
	}
	list, err := s.repo.GetWishlist(ctx, owner)
	if err != nil {
		return Wishlist{}, s.mapRepositoryError(err)
	}
	return list, nil
}

// AddItem saves a product to the wishlist. Re-adding an existing product refreshes its snapshot.
func (s *wishlistService) AddItem(ctx context.Context, cmd WishlistItemCommand) (Wishlist, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if owner == "" || productID == "" {
		return Wishlist{}, fmt.Errorf("%w: owner and product id are required", ErrWishlistInvalidInput)
	}

	list, err := s.GetWishlist(ctx, owner)
	if err != nil {
		return Wishlist{}, err
	}

	item := WishlistItem{
		ProductID: productID,
		Name:      strings.TrimSpace(cmd.Name),
		UnitPrice: cmd.UnitPrice,
		ImageURL:  strings.TrimSpace(cmd.ImageURL),
		AddedAt:   s.now(),
	}

	replaced := false
	items := make([]WishlistItem, 0, len(list.Items)+1)
	for _, existing := range list.Items {
		if existing.ProductID == productID {
			item.AddedAt = existing.AddedAt
			items = append(items, item)
			replaced = true
			continue
		}
		items = append(items, existing)
	}
	if !replaced {
		if len(list.Items) >= maxWishlistItems {
			return Wishlist{}, fmt.Errorf("%w: wishlist cannot exceed %d items", ErrWishlistInvalidInput, maxWishlistItems)
		}
		items = append(items, item)
	}

	saved, err := s.repo.ReplaceItems(ctx, owner, items)
	if err != nil {
		return Wishlist{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

// RemoveItem drops a product from the wishlist. Removing an absent product is a no-op.
func (s *wishlistService) RemoveItem(ctx context.Context, cmd WishlistItemCommand) (Wishlist, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if owner == "" || productID == "" {
		return Wishlist{}, fmt.Errorf("%w: owner and product id are required", ErrWishlistInvalidInput)
	}

	list, err := s.GetWishlist(ctx, owner)
	if err != nil {
		return Wishlist{}, err
	}

	items := make([]WishlistItem, 0, len(list.Items))
	for _, existing := range list.Items {
		if existing.ProductID == productID {
			continue
		}
		items = append(items, existing)
	}
	if len(items) == len(list.Items) {
		return list, nil
	}

	saved, err := s.repo.ReplaceItems(ctx, owner, items)
	if err != nil {
		return Wishlist{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

func (s *wishlistService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrWishlistUnavailable, err)
	}
	return err
}
