package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mc-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "mc-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "mc-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Payments.DefaultCurrency != defaultCurrency {
		t.Errorf("expected default currency %s, got %s", defaultCurrency, cfg.Payments.DefaultCurrency)
	}
	if cfg.Orders.TaxBasisPoints != defaultTaxBasisPoints {
		t.Errorf("unexpected default tax basis points: %d", cfg.Orders.TaxBasisPoints)
	}
	if cfg.Orders.CancellationWindow != defaultCancellationWindow {
		t.Errorf("unexpected default cancellation window: %s", cfg.Orders.CancellationWindow)
	}
	if cfg.Sessions.CartTTL != defaultCartCookieTTL {
		t.Errorf("unexpected default cart cookie ttl: %s", cfg.Sessions.CartTTL)
	}
	if cfg.Sessions.WishlistTTL != defaultWishlistCookieTTL {
		t.Errorf("unexpected default wishlist cookie ttl: %s", cfg.Sessions.WishlistTTL)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                      "9090",
		"API_SERVER_READ_TIMEOUT":              "20s",
		"API_SERVER_WRITE_TIMEOUT":             "25s",
		"API_SERVER_IDLE_TIMEOUT":              "2m",
		"API_FIREBASE_PROJECT_ID":              "mc-prod",
		"API_FIRESTORE_PROJECT_ID":             "mc-fire",
		"API_PAYMENTS_RAZORPAY_KEY_ID":         "rzp_test_key",
		"API_PAYMENTS_RAZORPAY_KEY_SECRET":     "secret://razorpay/key",
		"API_PAYMENTS_RAZORPAY_WEBHOOK_SECRET": "secret://razorpay/webhook",
		"API_PAYMENTS_CURRENCY":                "usd",
		"API_ORDERS_TAX_BASIS_POINTS":          "1200",
		"API_ORDERS_FREE_SHIPPING_THRESHOLD":   "250000",
		"API_ORDERS_FLAT_SHIPPING_FEE":         "9900",
		"API_ORDERS_CANCELLATION_WINDOW":       "12h",
		"API_ORDERS_CONFIRMATION_PREFIX":       "SHOP",
		"API_SESSIONS_CART_TTL":                "168h",
		"API_SESSIONS_COOKIE_SECURE":           "false",
		"API_PUBSUB_ORDER_EVENTS_TOPIC":        "orders-prod",
		"API_RATELIMIT_DEFAULT_PER_MIN":        "150",
		"API_RATELIMIT_AUTH_PER_MIN":           "300",
		"API_RATELIMIT_WEBHOOK_BURST":          "80",
		"API_SECURITY_ENVIRONMENT":             "prod",
		"API_IDEMPOTENCY_HEADER":               "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                  "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":     "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":        "500",
	}

	secrets := map[string]string{
		"secret://razorpay/key":     "razorpay-key-secret",
		"secret://razorpay/webhook": "razorpay-webhook-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Payments.RazorpayKeySecret != "razorpay-key-secret" {
		t.Errorf("expected resolved razorpay key secret, got %s", cfg.Payments.RazorpayKeySecret)
	}
	if cfg.Payments.RazorpayWebhookSecret != "razorpay-webhook-secret" {
		t.Errorf("expected resolved razorpay webhook secret, got %s", cfg.Payments.RazorpayWebhookSecret)
	}
	if cfg.Payments.DefaultCurrency != "USD" {
		t.Errorf("expected currency uppercased to USD, got %s", cfg.Payments.DefaultCurrency)
	}
	if cfg.Orders.TaxBasisPoints != 1200 {
		t.Errorf("unexpected tax basis points %d", cfg.Orders.TaxBasisPoints)
	}
	if cfg.Orders.FreeShippingThreshold != 250000 {
		t.Errorf("unexpected free shipping threshold %d", cfg.Orders.FreeShippingThreshold)
	}
	if cfg.Orders.CancellationWindow != 12*time.Hour {
		t.Errorf("unexpected cancellation window %s", cfg.Orders.CancellationWindow)
	}
	if cfg.Orders.ConfirmationPrefix != "SHOP" {
		t.Errorf("unexpected confirmation prefix %s", cfg.Orders.ConfirmationPrefix)
	}
	if cfg.Sessions.CartTTL != 168*time.Hour {
		t.Errorf("unexpected cart ttl %s", cfg.Sessions.CartTTL)
	}
	if cfg.Sessions.CookieSecure {
		t.Errorf("expected insecure cookies per override")
	}
	if cfg.PubSub.OrderEventsTopic != "orders-prod" {
		t.Errorf("unexpected order events topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if !cfg.Security.IsProduction() {
		t.Errorf("expected prod environment to report production")
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=mc-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "mc-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":          "mc-dev",
		"API_PAYMENTS_RAZORPAY_KEY_SECRET": "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://razorpay/key=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://razorpay/key=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mc-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.RazorpayKeySecret"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Payments.RazorpayKeySecret")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "mc-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Payments.RazorpayKeySecret" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Payments.RazorpayKeySecret"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":              "mc-dev",
		"API_PAYMENTS_RAZORPAY_WEBHOOK_SECRET": "sm://razorpay/webhook",
	}

	secrets := map[string]string{
		"secret://razorpay/webhook": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.RazorpayWebhookSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Payments.RazorpayWebhookSecret)
	}
}
