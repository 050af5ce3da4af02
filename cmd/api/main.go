package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/maplecart/api/internal/di"
	"github.com/maplecart/api/internal/handlers"
	"github.com/maplecart/api/internal/payments"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/platform/idempotency"
	"github.com/maplecart/api/internal/platform/jobs"
	"github.com/maplecart/api/internal/platform/observability"
	"github.com/maplecart/api/internal/platform/secrets"
	"github.com/maplecart/api/internal/repositories"
	firestoreRepo "github.com/maplecart/api/internal/repositories/firestore"
	"github.com/maplecart/api/internal/services"

	"github.com/oklog/ulid/v2"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Payments.RazorpayKeySecret", "Payments.RazorpayWebhookSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var (
		pubsubClient       *pubsub.Client
		orderEventsTopic   *pubsub.Topic
		notificationsTopic *pubsub.Topic
		eventPublisher     services.OrderEventPublisher
		notifyPublisher    services.NotificationPublisher
	)
	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, projectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		orderEventsTopic = pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(orderEventsTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		notificationsTopic = pubsubClient.Topic(cfg.PubSub.NotificationsTopic)
		notifyPublisher, err = jobs.NewPubSubNotificationPublisher(notificationsTopic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
	} else {
		logger.Warn("pubsub project not configured; order events and notifications are disabled")
	}

	healthRepo, err := newHealthRepository(firestoreClient, fetcher, orderEventsTopic)
	if err != nil {
		logger.Warn("health: dependency checks unavailable", zap.Error(err))
	}

	registryOpts := []firestoreRepo.RegistryOption{}
	if healthRepo != nil {
		registryOpts = append(registryOpts, firestoreRepo.WithHealthRepository(healthRepo))
	}
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	paymentsLogger := logger.Named("payments")
	razorpayProvider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
		KeyID:         cfg.Payments.RazorpayKeyID,
		KeySecret:     cfg.Payments.RazorpayKeySecret,
		WebhookSecret: cfg.Payments.RazorpayWebhookSecret,
		Logger:        newEventLogger(paymentsLogger),
		Clock:         time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise razorpay provider", zap.Error(err))
	}
	gateway, err := payments.NewManager(
		map[string]payments.Provider{"razorpay": razorpayProvider},
		payments.WithDefaultProvider("razorpay"),
	)
	if err != nil {
		logger.Fatal("failed to initialise payment gateway manager", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.Deps{
		Gateway:       gateway,
		Events:        eventPublisher,
		Notifications: notifyPublisher,
		Build:         buildInfo,
		Logger:        newEventLogger(logger.Named("services")),
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	var cleanupTicker *time.Ticker
	if cfg.Idempotency.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(cfg.Idempotency.CleanupInterval)
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			cleanupLogger := logger.Named("idempotency")
			for {
				select {
				case <-cleanupTicker.C:
					runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
					removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
					cancel()
					if err != nil {
						cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
						continue
					}
					if removed > 0 {
						cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
					}
				case <-cleanupCtx.Done():
					return
				}
			}
		}()
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	internalHMAC := buildInternalHMACMiddleware(ctx, logger.Named("auth"), fetcher, envValues)

	paymentLimiter := handlers.NewFixedWindowRateLimiter(cfg.RateLimits.DefaultPerMinute, time.Minute)

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Cart)
	paymentHandlers := handlers.NewPaymentHandlers(container.Services.Payments, paymentLimiter)
	cartHandlers := handlers.NewCartHandlers(container.Services.Cart, newULID)
	wishlistHandlers := handlers.NewWishlistHandlers(container.Services.Wishlist, newULID)
	couponHandlers := handlers.NewCouponHandlers(container.Services.Coupons)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders)
	adminCouponHandlers := handlers.NewAdminCouponHandlers(authenticator, container.Services.Coupons)
	internalHandlers := handlers.NewInternalHandlers(container.Services.Payments)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		idempotencyMiddleware,
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithWishlistRoutes(wishlistHandlers.Routes),
		handlers.WithCouponRoutes(couponHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Group(adminOrderHandlers.Routes)
			r.Group(adminCouponHandlers.Routes)
		}),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if internalHMAC != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(internalHMAC))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("maplecart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if cleanupTicker != nil {
		cleanupTicker.Stop()
	}
	cleanupCancel()
	cleanupWG.Wait()

	if orderEventsTopic != nil {
		orderEventsTopic.Stop()
	}
	if notificationsTopic != nil {
		notificationsTopic.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newULID() string {
	return ulid.Make().String()
}

// newEventLogger adapts a zap logger to the event/fields callback shape the
// service and payment layers accept.
func newEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zFields = append(zFields, zap.Any(k, fields[k]))
		}
		logger.Debug("event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(client *firestore.Client, fetcher *secrets.Fetcher, orderEvents *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil {
					return nil
				}
				if st, ok := status.FromError(err); ok {
					switch st.Code() {
					case codes.NotFound:
						return nil
					}
				}
				return err
			},
		})
	}
	if orderEvents != nil {
		topic := orderEvents
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				exists, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

// buildInternalHMACMiddleware guards /internal routes with request signing. The
// secret comes from API_INTERNAL_HMAC_SECRET and may be a Secret Manager
// reference resolved through the fetcher.
func buildInternalHMACMiddleware(ctx context.Context, logger *zap.Logger, fetcher *secrets.Fetcher, env map[string]string) func(http.Handler) http.Handler {
	raw := ""
	if env != nil {
		raw = strings.TrimSpace(env["API_INTERNAL_HMAC_SECRET"])
	}
	if raw == "" {
		logger.Warn("auth: internal hmac secret not configured; internal routes are unsigned")
		return nil
	}
	if strings.HasPrefix(raw, "secret://") || strings.HasPrefix(raw, "sm://") {
		resolved, err := fetcher.Resolve(ctx, raw)
		if err != nil {
			logger.Error("auth: failed to resolve internal hmac secret", zap.Error(err))
			return nil
		}
		raw = resolved
	}

	provider := auth.SecretProviderFunc(func(_ context.Context, name string) (string, error) {
		if strings.EqualFold(strings.TrimSpace(name), "internal") {
			return raw, nil
		}
		return "", errors.New("auth: secret not found")
	})
	validator := auth.NewHMACValidator(provider, auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
	)
	return validator.RequireHMAC("internal")
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		if value, ok := env[key]; ok {
			return strings.TrimSpace(value)
		}
		return ""
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
