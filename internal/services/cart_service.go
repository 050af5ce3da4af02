package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")

	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
	ErrCartUnavailable = errors.New("cart service: unavailable")
	// ErrCartNotFound indicates the requested cart does not exist.
	ErrCartNotFound = errors.New("cart service: not found")
)

const (
	cartIDPrefix        = "cart_"
	maxCartItems        = 100
	maxCartItemQuantity = 99
)

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Coupons         CouponService
	Policy          domain.PricingPolicy
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	coupons  CouponService
	policy   domain.PricingPolicy
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "INR"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		coupons:  deps.Coupons,
		policy:   deps.Policy,
		newID:    idGen,
		now:      func() time.Time { return clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the owner key, creating a new cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, ownerID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return Cart{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, owner)
	if err != nil {
		if isRepoNotFound(err) {
			saved, err := s.repo.UpsertCart(ctx, s.newCart(owner))
			if err != nil {
				return Cart{}, s.mapRepositoryError(err)
			}
			return saved, nil
		}
		return Cart{}, s.mapRepositoryError(err)
	}
	return cart, nil
}

// AddOrUpdateItem sets the quantity for a product line, inserting it when new.
func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if owner == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: owner and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}
	if cmd.UnitPrice < 0 {
		return Cart{}, fmt.Errorf("%w: unit price cannot be negative", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	now := s.now()
	updated := false
	items := make([]CartItem, 0, len(cart.Items)+1)
	for _, item := range cart.Items {
		if item.ProductID == productID {
			item.Quantity = cmd.Quantity
			if cmd.UnitPrice > 0 {
				item.UnitPrice = cmd.UnitPrice
			}
			if name := strings.TrimSpace(cmd.Name); name != "" {
				item.Name = name
			}
			if url := strings.TrimSpace(cmd.ImageURL); url != "" {
				item.ImageURL = url
			}
			updated = true
		}
		items = append(items, item)
	}
	if !updated {
		if len(cart.Items) >= maxCartItems {
			return Cart{}, fmt.Errorf("%w: cart cannot exceed %d distinct items", ErrCartInvalidInput, maxCartItems)
		}
		items = append(items, CartItem{
			ProductID: productID,
			Name:      strings.TrimSpace(cmd.Name),
			Quantity:  cmd.Quantity,
			UnitPrice: cmd.UnitPrice,
			ImageURL:  strings.TrimSpace(cmd.ImageURL),
			AddedAt:   now,
		})
	}

	saved, err := s.repo.ReplaceItems(ctx, owner, items)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

// RemoveItem drops a product line from the cart. Removing an absent line is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if owner == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: owner and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	items := make([]CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.ProductID == productID {
			continue
		}
		items = append(items, item)
	}
	if len(items) == len(cart.Items) {
		return cart, nil
	}

	saved, err := s.repo.ReplaceItems(ctx, owner, items)
	if err != nil {
		return Cart{}, s.mapRepositoryError(err)
	}
	return saved, nil
}

// ClearCart removes the cart document entirely.
func (s *cartService) ClearCart(ctx context.Context, ownerID string) error {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.DeleteCart(ctx, owner); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

// Estimate prices the current cart contents, optionally applying a coupon.
func (s *cartService) Estimate(ctx context.Context, cmd EstimateCartCommand) (OrderTotals, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	if owner == "" {
		return OrderTotals{}, ErrCartInvalidInput
	}

	cart, err := s.repo.GetCart(ctx, owner)
	if err != nil {
		if isRepoNotFound(err) {
			return OrderTotals{}, fmt.Errorf("%w: cart %q", ErrCartNotFound, owner)
		}
		return OrderTotals{}, s.mapRepositoryError(err)
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	var coupon *domain.Coupon
	if code := strings.TrimSpace(cmd.CouponCode); code != "" {
		if s.coupons == nil {
			return OrderTotals{}, fmt.Errorf("%w: coupons are not configured", ErrCartUnavailable)
		}
		result, err := s.coupons.Validate(ctx, ValidateCouponCommand{Code: code, Subtotal: cart.Subtotal()})
		if err != nil {
			return OrderTotals{}, err
		}
		if !result.Valid {
			return OrderTotals{}, fmt.Errorf("%w: coupon %q: %s", ErrCartInvalidInput, code, result.Reason)
		}
		coupon = &result.Coupon
	}

	return domain.ComputeTotals(items, coupon, s.policy), nil
}

func (s *cartService) newCart(owner string) Cart {
	now := s.now()
	return Cart{
		ID:        cartIDPrefix + s.newID(),
		OwnerKey:  owner,
		Currency:  s.currency,
		Items:     nil,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
