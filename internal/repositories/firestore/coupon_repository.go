package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	couponCollection = "coupons"
)

// CouponRepository maintains coupon definitions within Firestore. Codes are
// stored uppercased so lookups are case-insensitive.
type CouponRepository struct {
	base     *pfirestore.BaseRepository[couponDocument]
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[couponDocument](provider, couponCollection, nil, nil)
	return &CouponRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the coupon document, failing when the id already exists.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	ref, err := r.base.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeCouponDocument(coupon)); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update overwrites the coupon document.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID := strings.TrimSpace(coupon.ID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	if _, err := r.base.Set(ctx, couponID, encodeCouponDocument(coupon)); err != nil {
		return err
	}
	return nil
}

// Delete removes the coupon document.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	if r == nil || r.base == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	ref, err := r.base.DocumentRef(ctx, couponID)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("coupons.delete", err)
	}
	return nil
}

// FindByCode loads a coupon by its normalized code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.base == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return domain.Coupon{}, errors.New("coupon repository: code is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	if len(docs) == 0 {
		return domain.Coupon{}, pfirestore.NotFoundError("coupons.findByCode", normalized)
	}
	return decodeCouponDocument(docs[0].ID, docs[0].Data), nil
}

// IncrementUsage bumps the redemption counter inside a transaction so
// concurrent checkouts cannot lose increments.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	if r == nil || r.provider == nil {
		return errors.New("coupon repository not initialised")
	}
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return errors.New("coupon repository: coupon id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	ref := client.Collection(couponCollection).Doc(couponID)
	increment := func(tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc couponDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode coupon %s: %w", couponID, err)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "usedCount", Value: doc.UsedCount + 1},
			{Path: "updatedAt", Value: time.Now().UTC()},
		})
	}

	// Joining an ambient transaction keeps the increment atomic with the
	// caller's other writes instead of starting a nested transaction.
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := increment(tx); err != nil {
			return pfirestore.WrapError("coupons.incrementUsage", err)
		}
		return nil
	}

	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		return increment(tx)
	})
	if err != nil {
		return pfirestore.WrapError("coupons.incrementUsage", err)
	}
	return nil
}

// List returns a page of coupons for admin consumption, newest first.
func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.CursorPage[domain.Coupon], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Coupon]{}, errors.New("coupon repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeOrderListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Coupon]{}, fmt.Errorf("coupon repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Coupon]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		tokenTime := last.Data.CreatedAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeOrderListToken(tokenTime, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.Coupon, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeCouponDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Coupon]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func encodeCouponDocument(coupon domain.Coupon) couponDocument {
	doc := couponDocument{
		Code:           strings.ToUpper(strings.TrimSpace(coupon.Code)),
		Description:    strings.TrimSpace(coupon.Description),
		Type:           string(coupon.Type),
		Value:          coupon.Value,
		MinOrderAmount: coupon.MinOrderAmount,
		MaxDiscount:    coupon.MaxDiscount,
		Active:         coupon.Active,
		UsageLimit:     coupon.UsageLimit,
		UsedCount:      coupon.UsedCount,
		CreatedAt:      coupon.CreatedAt.UTC(),
		UpdatedAt:      coupon.UpdatedAt.UTC(),
	}
	if coupon.StartsAt != nil {
		value := coupon.StartsAt.UTC()
		doc.StartsAt = &value
	}
	if coupon.ExpiresAt != nil {
		value := coupon.ExpiresAt.UTC()
		doc.ExpiresAt = &value
	}
	return doc
}

func decodeCouponDocument(id string, doc couponDocument) domain.Coupon {
	return domain.Coupon{
		ID:             id,
		Code:           doc.Code,
		Description:    doc.Description,
		Type:           domain.DiscountType(doc.Type),
		Value:          doc.Value,
		MinOrderAmount: doc.MinOrderAmount,
		MaxDiscount:    doc.MaxDiscount,
		Active:         doc.Active,
		StartsAt:       doc.StartsAt,
		ExpiresAt:      doc.ExpiresAt,
		UsageLimit:     doc.UsageLimit,
		UsedCount:      doc.UsedCount,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

type couponDocument struct {
	Code           string     `firestore:"code"`
	Description    string     `firestore:"description,omitempty"`
	Type           string     `firestore:"type"`
	Value          int64      `firestore:"value"`
	MinOrderAmount int64      `firestore:"minOrderAmount"`
	MaxDiscount    int64      `firestore:"maxDiscount"`
	Active         bool       `firestore:"active"`
	StartsAt       *time.Time `firestore:"startsAt,omitempty"`
	ExpiresAt      *time.Time `firestore:"expiresAt,omitempty"`
	UsageLimit     *int       `firestore:"usageLimit,omitempty"`
	UsedCount      int        `firestore:"usedCount"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)
