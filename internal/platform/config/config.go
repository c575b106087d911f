package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownGrace       = 10 * time.Second
	defaultSecurityEnvironment = "local"
	defaultRateLimitPerMinute  = 60

	defaultCodePrefix         = "ORD"
	defaultCodeWidth          = 4
	defaultCodeStrategy       = CodeStrategySequence
	defaultCounterName        = "orders"
	defaultMaxQuantity        = 50
	defaultRecentLimit        = 10
	defaultAnalyticsWindow    = 30
	defaultTimezone           = "UTC"
	defaultStoreBackend       = StoreBackendFirestore
	defaultTaxRate            = 0.08
	defaultDeliveryFee        = 500
	defaultTotalTolerance     = 1
	defaultSizeSurcharges     = "small=0,medium=0.08,large=0.15"
	defaultDraftTTL           = 30 * time.Minute
	defaultCurrency           = "lkr"
	defaultMinorUnits         = 100
	defaultEventsBackend      = EventsBackendNone
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyCleanup = time.Hour
)

// Identifier strategies.
const (
	CodeStrategySequence = "sequence"
	CodeStrategyCount    = "count"
)

// Store backends.
const (
	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"
)

// Event backends.
const (
	EventsBackendNone   = "none"
	EventsBackendPubSub = "pubsub"
	EventsBackendKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Orders      OrdersConfig
	Pricing     PricingConfig
	Checkout    CheckoutConfig
	PSP         PSPConfig
	Redis       RedisConfig
	Events      EventsConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// OrdersConfig controls identifier assignment and order-store behaviour.
type OrdersConfig struct {
	StoreBackend        string
	CodePrefix          string
	CodeWidth           int
	CodeStrategy        string
	CounterName         string
	MaxQuantity         int
	HardDeleteOnCancel  bool
	RecentLimit         int
	AnalyticsWindowDays int
	Timezone            string
}

// PricingConfig carries the raw pricing policy; services.PricingConfig is built from it.
type PricingConfig struct {
	TaxRate        float64
	DeliveryFee    int64
	SizeSurcharges map[string]float64
	TotalTolerance int64
}

// CheckoutConfig controls the deferred-payment draft protocol.
type CheckoutConfig struct {
	DraftSigningSecret string
	DraftTTL           time.Duration
}

// PSPConfig collects payment provider credentials.
type PSPConfig struct {
	StripeAPIKey string
	Currency     string
	MinorUnits   int64
}

// RedisConfig enables the Redis sequence counter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Backend      string
	PubSubTopic  string
	KafkaBrokers []string
	KafkaTopic   string
}

// SecurityConfig groups authentication settings.
type SecurityConfig struct {
	Environment        string
	RateLimitPerMinute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretsConfig points secret:// references at a Secret Manager project.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	var invalid []string
	surcharges, err := floatMapWithDefault(lookup, "API_PRICING_SIZE_SURCHARGES", defaultSizeSurcharges)
	if err != nil {
		invalid = append(invalid, "Pricing.SizeSurcharges")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:          stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:   durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:  durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:   durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownGrace: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_GRACE", defaultShutdownGrace),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Orders: OrdersConfig{
			StoreBackend:        strings.ToLower(stringWithDefault(lookup, "API_ORDERS_STORE_BACKEND", defaultStoreBackend)),
			CodePrefix:          stringWithDefault(lookup, "API_ORDERS_CODE_PREFIX", defaultCodePrefix),
			CodeWidth:           intWithDefault(lookup, "API_ORDERS_CODE_WIDTH", defaultCodeWidth),
			CodeStrategy:        strings.ToLower(stringWithDefault(lookup, "API_ORDERS_CODE_STRATEGY", defaultCodeStrategy)),
			CounterName:         stringWithDefault(lookup, "API_ORDERS_COUNTER_NAME", defaultCounterName),
			MaxQuantity:         intWithDefault(lookup, "API_ORDERS_MAX_QUANTITY", defaultMaxQuantity),
			HardDeleteOnCancel:  boolWithDefault(lookup, "API_ORDERS_HARD_DELETE_ON_CANCEL", false),
			RecentLimit:         intWithDefault(lookup, "API_ORDERS_DASHBOARD_RECENT_LIMIT", defaultRecentLimit),
			AnalyticsWindowDays: intWithDefault(lookup, "API_ORDERS_ANALYTICS_WINDOW_DAYS", defaultAnalyticsWindow),
			Timezone:            stringWithDefault(lookup, "API_ORDERS_TIMEZONE", defaultTimezone),
		},
		Pricing: PricingConfig{
			TaxRate:        floatWithDefault(lookup, "API_PRICING_TAX_RATE", defaultTaxRate),
			DeliveryFee:    int64(intWithDefault(lookup, "API_PRICING_DELIVERY_FEE", defaultDeliveryFee)),
			SizeSurcharges: surcharges,
			TotalTolerance: int64(intWithDefault(lookup, "API_PRICING_TOTAL_TOLERANCE", defaultTotalTolerance)),
		},
		Checkout: CheckoutConfig{
			DraftSigningSecret: stringWithDefault(lookup, "API_CHECKOUT_DRAFT_SIGNING_SECRET", ""),
			DraftTTL:           durationWithDefault(lookup, "API_CHECKOUT_DRAFT_TTL", defaultDraftTTL),
		},
		PSP: PSPConfig{
			StripeAPIKey: stringWithDefault(lookup, "API_PSP_STRIPE_API_KEY", ""),
			Currency:     strings.ToLower(stringWithDefault(lookup, "API_PSP_CURRENCY", defaultCurrency)),
			MinorUnits:   int64(intWithDefault(lookup, "API_PSP_MINOR_UNITS", defaultMinorUnits)),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "API_REDIS_DB", 0),
		},
		Events: EventsConfig{
			Backend:      strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			PubSubTopic:  stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			KafkaBrokers: csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
			KafkaTopic:   stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", ""),
		},
		Security: SecurityConfig{
			Environment:        strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			RateLimitPerMinute: intWithDefault(lookup, "API_SECURITY_RATELIMIT_PER_MIN", defaultRateLimitPerMinute),
		},
		Idempotency: IdempotencyConfig{
			Header:          stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	for _, field := range []*string{
		&cfg.Checkout.DraftSigningSecret,
		&cfg.PSP.StripeAPIKey,
		&cfg.Redis.Password,
	} {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves the configured order timezone.
func (c OrdersConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// IsLocal reports whether the service runs in a developer environment.
func (c SecurityConfig) IsLocal() bool {
	return c.Environment == defaultSecurityEnvironment
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: trimmed, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, trimmed)
	if err != nil {
		return "", &SecretError{Ref: trimmed, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Orders.StoreBackend {
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case StoreBackendMemory:
	default:
		missing = append(missing, "Orders.StoreBackend")
	}
	if !cfg.Security.IsLocal() && cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if strings.TrimSpace(cfg.Orders.CodePrefix) == "" {
		missing = append(missing, "Orders.CodePrefix")
	}
	if cfg.Orders.CodeWidth <= 0 {
		missing = append(missing, "Orders.CodeWidth")
	}
	if cfg.Orders.CodeStrategy != CodeStrategySequence && cfg.Orders.CodeStrategy != CodeStrategyCount {
		missing = append(missing, "Orders.CodeStrategy")
	}
	if cfg.Orders.MaxQuantity <= 0 {
		missing = append(missing, "Orders.MaxQuantity")
	}
	if cfg.Orders.RecentLimit <= 0 {
		missing = append(missing, "Orders.RecentLimit")
	}
	if cfg.Orders.AnalyticsWindowDays <= 0 {
		missing = append(missing, "Orders.AnalyticsWindowDays")
	}
	if _, err := cfg.Orders.Location(); err != nil {
		missing = append(missing, "Orders.Timezone")
	}
	if cfg.Pricing.TaxRate < 0 {
		missing = append(missing, "Pricing.TaxRate")
	}
	if cfg.Pricing.DeliveryFee < 0 {
		missing = append(missing, "Pricing.DeliveryFee")
	}
	if cfg.Pricing.TotalTolerance < 0 {
		missing = append(missing, "Pricing.TotalTolerance")
	}
	if !cfg.Security.IsLocal() && strings.TrimSpace(cfg.Checkout.DraftSigningSecret) == "" {
		missing = append(missing, "Checkout.DraftSigningSecret")
	}
	if cfg.PSP.MinorUnits <= 0 {
		missing = append(missing, "PSP.MinorUnits")
	}
	if cfg.Checkout.DraftTTL <= 0 {
		missing = append(missing, "Checkout.DraftTTL")
	}
	switch cfg.Events.Backend {
	case EventsBackendNone:
	case EventsBackendPubSub:
		if cfg.Events.PubSubTopic == "" {
			missing = append(missing, "Events.PubSubTopic")
		}
	case EventsBackendKafka:
		if len(cfg.Events.KafkaBrokers) == 0 {
			missing = append(missing, "Events.KafkaBrokers")
		}
		if cfg.Events.KafkaTopic == "" {
			missing = append(missing, "Events.KafkaTopic")
		}
	default:
		missing = append(missing, "Events.Backend")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok {
		return []string{}
	}
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// floatMapWithDefault parses "name=value" pairs such as "small=0,medium=0.08".
func floatMapWithDefault(lookup func(string) (string, bool), key, fallback string) (map[string]float64, error) {
	raw := stringWithDefault(lookup, key, fallback)
	values := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if !ok || name == "" {
			return nil, fmt.Errorf("config: malformed entry %q in %s", entry, key)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("config: invalid value %q for %s in %s", value, name, key)
		}
		values[name] = parsed
	}
	return values, nil
}
