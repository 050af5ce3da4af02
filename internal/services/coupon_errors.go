package services

import "errors"

var (
	// ErrCouponRepositoryMissing indicates the coupon repository dependency is absent.
	ErrCouponRepositoryMissing = errors.New("coupon service: repository is not configured")
	// ErrCouponInvalidCode signals the supplied coupon code is missing or malformed.
	ErrCouponInvalidCode = errors.New("coupon service: invalid coupon code")
	// ErrCouponNotFound indicates no coupon exists for the provided code.
	ErrCouponNotFound = errors.New("coupon service: coupon not found")
	// ErrCouponInvalidInput signals an admin upsert carried invalid fields.
	ErrCouponInvalidInput = errors.New("coupon service: invalid input")
	// ErrCouponConflict indicates a duplicate code or concurrent modification.
	ErrCouponConflict = errors.New("coupon service: conflict")
)
