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

const couponIDPrefix = "cpn_"

// CouponServiceDeps bundles dependencies required to construct a CouponService implementation.
type CouponServiceDeps struct {
	Coupons     repositories.CouponRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type couponService struct {
	repo  repositories.CouponRepository
	clock func() time.Time
	newID func() string
}

// NewCouponService wires a CouponService backed by the provided repositories.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, ErrCouponRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &couponService{
		repo:  deps.Coupons,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
	code := normalizeCouponCode(cmd.Code)
	if code == "" {
		return CouponValidationResult{}, ErrCouponInvalidCode
	}

	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return CouponValidationResult{}, s.mapRepositoryError(err)
	}

	result := CouponValidationResult{Coupon: coupon}
	now := s.clock()

	switch {
	case !coupon.Active:
		result.Reason = "coupon is not active"
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		result.Reason = "coupon is not yet valid"
	case coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt):
		result.Reason = "coupon has expired"
	case coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit:
		result.Reason = "coupon usage limit reached"
	case cmd.Subtotal < coupon.MinOrderAmount:
		result.Reason = fmt.Sprintf("order subtotal below minimum of %d", coupon.MinOrderAmount)
	default:
		result.Valid = true
		result.Discount = coupon.DiscountFor(cmd.Subtotal)
	}

	return result, nil
}

func (s *couponService) Redeem(ctx context.Context, code string) error {
	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return ErrCouponInvalidCode
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.repo.IncrementUsage(ctx, coupon.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.CursorPage[Coupon], error) {
	page, err := s.repo.List(ctx, repositories.CouponListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Coupon]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := s.validateCouponInput(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}

	now := s.clock()
	coupon.ID = couponIDPrefix + s.newID()
	coupon.UsedCount = 0
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	if err := s.repo.Insert(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := s.validateCouponInput(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}

	existing, err := s.repo.FindByCode(ctx, coupon.Code)
	if err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}

	coupon.ID = existing.ID
	coupon.UsedCount = existing.UsedCount
	coupon.CreatedAt = existing.CreatedAt
	coupon.UpdatedAt = s.clock()

	if err := s.repo.Update(ctx, coupon); err != nil {
		return Coupon{}, s.mapRepositoryError(err)
	}
	return coupon, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, code string) error {
	normalized := normalizeCouponCode(code)
	if normalized == "" {
		return ErrCouponInvalidCode
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.repo.Delete(ctx, coupon.ID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *couponService) validateCouponInput(coupon Coupon) (Coupon, error) {
	coupon.Code = normalizeCouponCode(coupon.Code)
	if coupon.Code == "" {
		return Coupon{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	switch coupon.Type {
	case domain.DiscountTypePercentage:
		if coupon.Value <= 0 || coupon.Value > 100 {
			return Coupon{}, fmt.Errorf("%w: percentage value must be between 1 and 100", ErrCouponInvalidInput)
		}
	case domain.DiscountTypeFixed:
		if coupon.Value <= 0 {
			return Coupon{}, fmt.Errorf("%w: fixed value must be positive", ErrCouponInvalidInput)
		}
	default:
		return Coupon{}, fmt.Errorf("%w: unsupported discount type %q", ErrCouponInvalidInput, coupon.Type)
	}
	if coupon.MinOrderAmount < 0 {
		return Coupon{}, fmt.Errorf("%w: minimum order amount cannot be negative", ErrCouponInvalidInput)
	}
	if coupon.MaxDiscount < 0 {
		return Coupon{}, fmt.Errorf("%w: maximum discount cannot be negative", ErrCouponInvalidInput)
	}
	if coupon.StartsAt != nil && coupon.ExpiresAt != nil && coupon.ExpiresAt.Before(*coupon.StartsAt) {
		return Coupon{}, fmt.Errorf("%w: expiry precedes start", ErrCouponInvalidInput)
	}
	if coupon.UsageLimit != nil && *coupon.UsageLimit <= 0 {
		return Coupon{}, fmt.Errorf("%w: usage limit must be positive", ErrCouponInvalidInput)
	}
	coupon.Description = strings.TrimSpace(coupon.Description)
	return coupon, nil
}

func (s *couponService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCouponNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCouponConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("coupon service: repository unavailable: %w", err)
		}
	}
	return err
}

func normalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
