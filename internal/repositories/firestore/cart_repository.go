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
	cartCollection = "carts"
)

// CartRepository persists carts within Firestore. The owner key, a session id
// for guests or the authenticated user id, doubles as the document id so each
// owner holds at most one cart.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// UpsertCart persists the cart document keyed by its owner.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}

	ownerKey := strings.TrimSpace(cartOwnerKey(cart))
	if ownerKey == "" {
		return domain.Cart{}, errors.New("cart repository: owner key is required")
	}

	now := time.Now().UTC()
	if !cart.UpdatedAt.IsZero() {
		now = cart.UpdatedAt.UTC()
	}
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := cartDocument{
		Currency:  strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Items:     encodeCartItems(cart.Items),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	result, err := r.base.Set(ctx, ownerKey, doc)
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.ID = ownerKey
	saved.OwnerKey = ownerKey
	saved.Currency = doc.Currency
	saved.Items = decodeCartItems(doc.Items)
	saved.CreatedAt = createdAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// GetCart loads the cart for the given owner key.
func (r *CartRepository) GetCart(ctx context.Context, ownerKey string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	key := strings.TrimSpace(ownerKey)
	if key == "" {
		return domain.Cart{}, errors.New("cart repository: owner key is required")
	}

	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}

	return domain.Cart{
		ID:        doc.ID,
		OwnerKey:  doc.ID,
		Currency:  strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		Items:     decodeCartItems(doc.Data.Items),
		CreatedAt: doc.Data.CreatedAt,
		UpdatedAt: latestTime(doc.UpdateTime, doc.Data.UpdatedAt),
	}, nil
}

// ReplaceItems swaps the cart line items wholesale and bumps the update timestamp.
func (r *CartRepository) ReplaceItems(ctx context.Context, ownerKey string, items []domain.CartItem) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	key := strings.TrimSpace(ownerKey)
	if key == "" {
		return domain.Cart{}, errors.New("cart repository: owner key is required")
	}

	existing, err := r.GetCart(ctx, key)
	if err != nil {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return domain.Cart{}, err
		}
		existing = domain.Cart{ID: key, OwnerKey: key}
	}

	existing.Items = items
	existing.UpdatedAt = time.Now().UTC()
	return r.UpsertCart(ctx, existing)
}

// DeleteCart removes the owner's cart document. Deleting an absent cart is not an error.
func (r *CartRepository) DeleteCart(ctx context.Context, ownerKey string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	key := strings.TrimSpace(ownerKey)
	if key == "" {
		return errors.New("cart repository: owner key is required")
	}

	ref, err := r.base.DocumentRef(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

func cartOwnerKey(cart domain.Cart) string {
	if strings.TrimSpace(cart.OwnerKey) != "" {
		return strings.TrimSpace(cart.OwnerKey)
	}
	return strings.TrimSpace(cart.ID)
}

func latestTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func encodeCartItems(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, cartItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return out
}

func decodeCartItems(items []cartItemDocument) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  item.ImageURL,
			AddedAt:   item.AddedAt,
		})
	}
	return out
}

type cartDocument struct {
	Currency  string             `firestore:"currency"`
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	SKU       string    `firestore:"sku,omitempty"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	ImageURL  string    `firestore:"imageUrl,omitempty"`
	AddedAt   time.Time `firestore:"addedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
