package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/platform/config"
	"github.com/maplecart/api/internal/repositories"
	"github.com/maplecart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders   services.OrderService
	Payments services.PaymentService
	Cart     services.CartService
	Coupons  services.CouponService
	Wishlist services.WishlistService
	System   services.SystemService
}

// Deps carries collaborators that live outside the repository registry, such as
// the payment gateway manager and Pub/Sub publishers assembled in main.
type Deps struct {
	Gateway       *payments.Manager
	Events        services.OrderEventPublisher
	Notifications services.NotificationPublisher
	Build         services.BuildInfo
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring supplies a
// Firestore-backed registry, while tests can provide in-memory stand-ins.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	policy := domain.PricingPolicy{
		TaxBasisPoints:        cfg.Orders.TaxBasisPoints,
		FreeShippingThreshold: cfg.Orders.FreeShippingThreshold,
		FlatShippingFee:       cfg.Orders.FlatShippingFee,
	}

	if couponRepo := reg.Coupons(); couponRepo != nil {
		couponSvc, err := services.NewCouponService(services.CouponServiceDeps{
			Coupons: couponRepo,
			Clock:   time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build coupon service: %w", err)
		}
		svc.Coupons = couponSvc
	}

	if cartRepo := reg.Carts(); cartRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository:      cartRepo,
			Coupons:         svc.Coupons,
			Policy:          policy,
			Clock:           time.Now,
			DefaultCurrency: cfg.Payments.DefaultCurrency,
			Logger:          deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Cart = cartSvc
	}

	if wishlistRepo := reg.Wishlists(); wishlistRepo != nil {
		wishlistSvc, err := services.NewWishlistService(services.WishlistServiceDeps{
			Repository: wishlistRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wishlist service: %w", err)
		}
		svc.Wishlist = wishlistSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && reg.Counters() != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:             ordersRepo,
			Counters:           reg.Counters(),
			Coupons:            svc.Coupons,
			UnitOfWork:         reg,
			Events:             deps.Events,
			Notifications:      deps.Notifications,
			Clock:              time.Now,
			Logger:             deps.Logger,
			Policy:             policy,
			DefaultCurrency:    cfg.Payments.DefaultCurrency,
			ConfirmationPrefix: cfg.Orders.ConfirmationPrefix,
			CancellationWindow: cfg.Orders.CancellationWindow,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if svc.Orders != nil && deps.Gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:          svc.Orders,
			OrderStore:      ordersRepo,
			Coupons:         svc.Coupons,
			Gateway:         deps.Gateway,
			Policy:          policy,
			DefaultCurrency: cfg.Payments.DefaultCurrency,
			KeyID:           cfg.Payments.RazorpayKeyID,
			Production:      cfg.Security.IsProduction(),
			Clock:           time.Now,
			Logger:          deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	return svc, nil
}
