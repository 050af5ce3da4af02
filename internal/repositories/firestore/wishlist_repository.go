package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	wishlistCollection = "wishlists"
)

// WishlistRepository persists saved-product lists keyed by the wishlist owner.
type WishlistRepository struct {
	base     *pfirestore.BaseRepository[wishlistDocument]
	provider *pfirestore.Provider
}

// NewWishlistRepository constructs a Firestore-backed wishlist repository.
func NewWishlistRepository(provider *pfirestore.Provider) (*WishlistRepository, error) {
	if provider == nil {
		return nil, errors.New("wishlist repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[wishlistDocument](provider, wishlistCollection, nil, nil)
	return &WishlistRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetWishlist loads the wishlist for the given owner key.
func (r *WishlistRepository) GetWishlist(ctx context.Context, ownerKey string) (domain.Wishlist, error) {
	if r == nil || r.base == nil {
		return domain.Wishlist{}, errors.New("wishlist repository not initialised")
	}
	key := strings.TrimSpace(ownerKey)
	if key == "" {
		return domain.Wishlist{}, errors.New("wishlist repository: owner key is required")
	}

	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.Wishlist{}, err
	}

	return domain.Wishlist{
		ID:        doc.ID,
		OwnerKey:  doc.ID,
		Items:     decodeWishlistItems(doc.Data.Items),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}, nil
}

// ReplaceItems swaps the saved items wholesale, creating the document when absent.
func (r *WishlistRepository) ReplaceItems(ctx context.Context, ownerKey string, items []domain.WishlistItem) (domain.Wishlist, error) {
	if r == nil || r.base == nil {
		return domain.Wishlist{}, errors.New("wishlist repository not initialised")
	}
	key := strings.TrimSpace(ownerKey)
	if key == "" {
		return domain.Wishlist{}, errors.New("wishlist repository: owner key is required")
	}

	now := time.Now().UTC()
	createdAt := now
	if existing, err := r.GetWishlist(ctx, key); err == nil && !existing.CreatedAt.IsZero() {
		createdAt = existing.CreatedAt
	} else if err != nil {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return domain.Wishlist{}, err
		}
	}

	doc := wishlistDocument{
		Items:     encodeWishlistItems(items),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	result, err := r.base.Set(ctx, key, doc)
	if err != nil {
		return domain.Wishlist{}, err
	}

	return domain.Wishlist{
		ID:        key,
		OwnerKey:  key,
		Items:     decodeWishlistItems(doc.Items),
		CreatedAt: createdAt,
		UpdatedAt: result.UpdateTime,
	}, nil
}

func encodeWishlistItems(items []domain.WishlistItem) []wishlistItemDocument {
	out := make([]wishlistItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, wishlistItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return out
}

func decodeWishlistItems(items []wishlistItemDocument) []domain.WishlistItem {
	out := make([]domain.WishlistItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.WishlistItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt,
		})
	}
	return out
}

type wishlistDocument struct {
	Items     []wishlistItemDocument `firestore:"items"`
	CreatedAt time.Time              `firestore:"createdAt"`
	UpdatedAt time.Time              `firestore:"updatedAt"`
}

type wishlistItemDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	UnitPrice int64     `firestore:"unitPrice"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
	AddedAt   time.Time `firestore:"addedAt"`
}

var _ repositories.WishlistRepository = (*WishlistRepository)(nil)
