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
	"github.com/maplecart/api/internal/platform/pagination"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderCollection = "orders"

	maxStatusFilters = 10
)

// OrderRepository persists order documents within Firestore. Line items are
// embedded in the order document so the header and items are written in a
// single mutation.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{
		base:     base,
		provider: provider,
	}, nil
}

// Insert creates the order document, failing when the id already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := tx.Create(ref, encodeOrderDocument(order)); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, encodeOrderDocument(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update overwrites the order document with the provided state.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return errors.New("order repository: order id is required")
	}

	if _, err := r.base.Set(ctx, orderID, encodeOrderDocument(order)); err != nil {
		return err
	}
	return nil
}

// FindByID loads a single order by its internal id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// FindByConfirmationNumber loads a single order by its customer-facing
// confirmation number.
func (r *OrderRepository) FindByConfirmationNumber(ctx context.Context, number string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, errors.New("order repository: confirmation number is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("confirmationNumber", "==", number).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.NotFoundError("orders.findByConfirmationNumber", number)
	}
	return decodeOrderDocument(docs[0].ID, docs[0].Data), nil
}

// ListByCustomer returns the customer's most recent orders.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, errors.New("order repository: customer id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("customerId", "==", customerID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

// List returns a filtered page of orders for admin consumption.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
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
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("order repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := normaliseOrderStatuses(filter.Status)
	customerID := strings.TrimSpace(filter.CustomerID)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if customerID != "" {
			q = q.Where("customerId", "==", customerID)
		}

		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > maxStatusFilters {
				statusFilters = statusFilters[:maxStatusFilters]
			}
			q = q.Where("status", "in", statusFilters)
		}

		if filter.DateRange.From != nil && !filter.DateRange.From.IsZero() {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil && !filter.DateRange.To.IsZero() {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
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
		return domain.CursorPage[domain.Order]{}, err
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

	items := make([]domain.Order, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeOrderDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Order]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func normaliseOrderStatuses(statuses []string) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		trimmed := strings.ToLower(strings.TrimSpace(status))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func encodeOrderListToken(createdAt time.Time, docID string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeOrderListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("malformed token")
	}
	tsRaw, okTS := cursor.StartAfter[0].(string)
	docID, okID := cursor.StartAfter[1].(string)
	if !okTS || !okID {
		return time.Time{}, "", errors.New("malformed token")
	}
	ts, err := time.Parse(time.RFC3339Nano, tsRaw)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, docID, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		ConfirmationNumber: strings.TrimSpace(order.ConfirmationNumber),
		CustomerID:         strings.TrimSpace(order.CustomerID),
		Guest:              order.Guest,
		Email:              strings.TrimSpace(order.Contact.Email),
		Phone:              strings.TrimSpace(order.Contact.Phone),
		Currency:           strings.ToUpper(strings.TrimSpace(order.Currency)),
		Subtotal:           order.Totals.Subtotal,
		Tax:                order.Totals.Tax,
		Shipping:           order.Totals.Shipping,
		Discount:           order.Totals.Discount,
		Total:              order.Totals.Total,
		CouponCode:         order.CouponCode,
		PaymentMethod:      string(order.PaymentMethod),
		PaymentReference:   order.PaymentReference,
		Status:             string(order.Status),
		TrackingNumber:     order.TrackingNumber,
		ShippingAddress:    encodeAddressDocument(order.ShippingAddress),
		BillingAddress:     encodeAddressDocument(order.BillingAddress),
		CancelReason:       order.CancelReason,
		CreatedAt:          order.CreatedAt.UTC(),
		UpdatedAt:          order.UpdatedAt.UTC(),
	}

	if order.EstimatedDelivery != nil {
		value := order.EstimatedDelivery.UTC()
		doc.EstimatedDelivery = &value
	}
	if order.CancelledAt != nil {
		value := order.CancelledAt.UTC()
		doc.CancelledAt = &value
	}

	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
			ImageURL:  item.ImageURL,
		})
	}
	return doc
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                 id,
		ConfirmationNumber: doc.ConfirmationNumber,
		CustomerID:         doc.CustomerID,
		Guest:              doc.Guest,
		Contact: domain.OrderContact{
			Email: doc.Email,
			Phone: doc.Phone,
		},
		Currency:          doc.Currency,
		Totals: domain.OrderTotals{
			Subtotal: doc.Subtotal,
			Tax:      doc.Tax,
			Shipping: doc.Shipping,
			Discount: doc.Discount,
			Total:    doc.Total,
		},
		CouponCode:        doc.CouponCode,
		PaymentMethod:     domain.PaymentMethod(doc.PaymentMethod),
		PaymentReference:  doc.PaymentReference,
		Status:            domain.OrderStatus(doc.Status),
		TrackingNumber:    doc.TrackingNumber,
		EstimatedDelivery: doc.EstimatedDelivery,
		ShippingAddress:   decodeAddressDocument(doc.ShippingAddress),
		BillingAddress:    decodeAddressDocument(doc.BillingAddress),
		CancelReason:      doc.CancelReason,
		CancelledAt:       doc.CancelledAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}

	order.Items = make([]domain.OrderItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
			ImageURL:  item.ImageURL,
		})
	}
	return order
}

func encodeAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		FullName:   strings.TrimSpace(addr.FullName),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
		Phone:      strings.TrimSpace(addr.Phone),
	}
}

func decodeAddressDocument(doc addressDocument) domain.Address {
	return domain.Address{
		FullName:   doc.FullName,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

type orderDocument struct {
	ConfirmationNumber string              `firestore:"confirmationNumber"`
	CustomerID         string              `firestore:"customerId"`
	Guest              bool                `firestore:"guest"`
	Email              string              `firestore:"email"`
	Phone              string              `firestore:"phone,omitempty"`
	Currency           string              `firestore:"currency"`
	Items              []orderItemDocument `firestore:"items"`
	Subtotal           int64               `firestore:"subtotal"`
	Tax                int64               `firestore:"tax"`
	Shipping           int64               `firestore:"shipping"`
	Discount           int64               `firestore:"discount"`
	Total              int64               `firestore:"total"`
	CouponCode         *string             `firestore:"couponCode,omitempty"`
	PaymentMethod      string              `firestore:"paymentMethod"`
	PaymentReference   *string             `firestore:"paymentReference,omitempty"`
	Status             string              `firestore:"status"`
	TrackingNumber     *string             `firestore:"trackingNumber,omitempty"`
	EstimatedDelivery  *time.Time          `firestore:"estimatedDelivery,omitempty"`
	ShippingAddress    addressDocument     `firestore:"shippingAddress"`
	BillingAddress     addressDocument     `firestore:"billingAddress"`
	CancelReason       *string             `firestore:"cancelReason,omitempty"`
	CancelledAt        *time.Time          `firestore:"cancelledAt,omitempty"`
	CreatedAt          time.Time           `firestore:"createdAt"`
	UpdatedAt          time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	SKU       string `firestore:"sku,omitempty"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Total     int64  `firestore:"total"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
