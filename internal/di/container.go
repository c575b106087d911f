package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
	"github.com/Dilshan221/Cakey-sub000/internal/handlers"
	"github.com/Dilshan221/Cakey-sub000/internal/payments"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/auth"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/config"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/events"
	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/idempotency"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/metrics"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/observability"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
	firestorerepo "github.com/Dilshan221/Cakey-sub000/internal/repositories/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories/memory"
	redisrepo "github.com/Dilshan221/Cakey-sub000/internal/repositories/redis"
	"github.com/Dilshan221/Cakey-sub000/internal/services"
)

const (
	storeCheckTimeout = 1500 * time.Millisecond
	redisCheckTimeout = time.Second
	cleanupRunTimeout = time.Minute
	cleanupBatchSize  = 500
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Checkout  services.CheckoutService
	Orders    services.OrderService
	Dashboard services.DashboardService
	System    services.SystemService
}

// Container wires repositories, services and HTTP infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Metrics      *metrics.ServerMetrics
	Idempotency  idempotency.Store
	Router       http.Handler

	logger  *zap.Logger
	clock   func() time.Time
	closers []func(context.Context) error
}

type containerOptions struct {
	registry repositories.Registry
	verifier auth.TokenVerifier
	build    services.BuildInfo
	clock    func() time.Time
	checks   []repositories.DependencyCheck
}

// Option customises container construction, mostly for tests and the entry point.
type Option func(*containerOptions)

// WithRegistry supplies the repositories instead of building them from configuration.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) { o.registry = reg }
}

// WithTokenVerifier overrides the Firebase token verifier.
func WithTokenVerifier(v auth.TokenVerifier) Option {
	return func(o *containerOptions) { o.verifier = v }
}

// WithBuildInfo sets the metadata reported by the health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *containerOptions) { o.build = build }
}

// WithClock overrides the wall clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDependencyChecks adds readiness checks for dependencies owned outside the container.
func WithDependencyChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *containerOptions) { o.checks = append(o.checks, checks...) }
}

// NewContainer constructs the runtime dependencies from cfg.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	c := &Container{Config: cfg, logger: logger, clock: o.clock}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close(context.Background())
		}
	}()

	var provider *pfirestore.Provider
	reg := o.registry
	if reg == nil {
		switch cfg.Orders.StoreBackend {
		case config.StoreBackendMemory:
			logger.Warn("orders are kept in memory and will not survive a restart")
			reg = memory.NewRegistry()
		case config.StoreBackendFirestore:
			provider = pfirestore.NewProvider(cfg.Firestore)
			fsReg, err := firestorerepo.NewRegistry(provider, o.clock)
			if err != nil {
				_ = provider.Close(ctx)
				return nil, err
			}
			reg = fsReg
		default:
			return nil, fmt.Errorf("unknown order store backend %q", cfg.Orders.StoreBackend)
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	checks := []repositories.DependencyCheck{{Name: "orderStore", Timeout: storeCheckTimeout, Check: reg.Ping}}

	counters := reg.Counters()
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		client := redisrepo.NewClient(addr, cfg.Redis.Password, cfg.Redis.DB)
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		redisCounters, err := redisrepo.NewCounterRepository(client)
		if err != nil {
			return nil, err
		}
		counters = redisCounters
		checks = append(checks, repositories.DependencyCheck{Name: "redis", Timeout: redisCheckTimeout, Check: redisCounters.Ping})
	}

	c.Metrics = metrics.NewServerMetrics(prometheus.NewRegistry())
	publisher, err := c.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build event publisher: %w", err)
	}
	publisher = c.Metrics.CountEvents(publisher)

	svc, err := c.buildServices(cfg, o, reg, counters, publisher, append(checks, o.checks...))
	if err != nil {
		return nil, err
	}
	c.Services = svc

	if provider != nil {
		store, err := idempotency.NewFirestoreStore(provider)
		if err != nil {
			return nil, fmt.Errorf("build idempotency store: %w", err)
		}
		c.Idempotency = store
	} else {
		c.Idempotency = idempotency.NewMemoryStore()
	}

	verifier := o.verifier
	if verifier == nil && cfg.Firebase.ProjectID != "" {
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
		verifier = firebase
	}
	if verifier == nil {
		logger.Warn("no token verifier configured; staff endpoints will reject every request")
	}
	c.Router = c.buildRouter(cfg, auth.NewAuthenticator(verifier))

	ok = true
	return c, nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, error) {
	switch cfg.Events.Backend {
	case config.EventsBackendPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			return nil, err
		}
		topic := client.Topic(cfg.Events.PubSubTopic)
		topic.EnableMessageOrdering = true
		publisher, err := events.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error {
			_ = publisher.Close()
			return client.Close()
		})
		return publisher, nil
	case config.EventsBackendKafka:
		publisher, err := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return publisher.Close() })
		return publisher, nil
	default:
		return nil, nil
	}
}

func (c *Container) buildServices(cfg config.Config, o containerOptions, reg repositories.Registry, counters repositories.CounterRepository, publisher services.OrderEventPublisher, checks []repositories.DependencyCheck) (Services, error) {
	serviceLogger := observability.ServiceLogger(c.logger.Named("orders"))

	loc, err := cfg.Orders.Location()
	if err != nil {
		return Services{}, fmt.Errorf("load order timezone: %w", err)
	}
	pricing, err := services.NewPricingCalculator(pricingConfig(cfg))
	if err != nil {
		return Services{}, fmt.Errorf("build pricing calculator: %w", err)
	}
	codes, err := services.NewCodeAssigner(services.CodeAssignerDeps{
		Strategy:    cfg.Orders.CodeStrategy,
		Prefix:      cfg.Orders.CodePrefix,
		Width:       cfg.Orders.CodeWidth,
		CounterName: cfg.Orders.CounterName,
		Orders:      reg.Orders(),
		Counters:    counters,
		Clock:       o.clock,
		Logger:      serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build code assigner: %w", err)
	}

	secret := strings.TrimSpace(cfg.Checkout.DraftSigningSecret)
	if secret == "" {
		// Only reachable in local environments; drafts die with the process.
		c.logger.Warn("draft signing secret not configured; using an ephemeral secret")
		secret = ulid.Make().String()
	}
	drafts, err := services.NewDraftCodec(secret, cfg.Checkout.DraftTTL, o.clock)
	if err != nil {
		return Services{}, fmt.Errorf("build draft codec: %w", err)
	}

	var confirmer services.PaymentConfirmer
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeConfirmer, err := payments.NewStripeConfirmer(payments.StripeConfirmerConfig{
			APIKey:     key,
			Currency:   cfg.PSP.Currency,
			MinorUnits: cfg.PSP.MinorUnits,
			Logger:     observability.ServiceLogger(c.logger.Named("payments")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build stripe confirmer: %w", err)
		}
		confirmer = stripeConfirmer
	} else {
		c.logger.Warn("no payment provider configured; card references are accepted unverified")
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     reg.Orders(),
		Catalog:    reg.Products(),
		Codes:      codes,
		Pricing:    pricing,
		Normalizer: services.NewOrderNormalizer(loc),
		Drafts:     drafts,
		Payments:   confirmer,
		Clock:      o.clock,
		Events:     publisher,
		Logger:     serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             reg.Orders(),
		HardDeleteOnCancel: cfg.Orders.HardDeleteOnCancel,
		Clock:              o.clock,
		Events:             publisher,
		Logger:             serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	dashboard, err := services.NewDashboardService(services.DashboardServiceDeps{
		Orders:        reg.Orders(),
		RecentLimit:   cfg.Orders.RecentLimit,
		AnalyticsDays: cfg.Orders.AnalyticsWindowDays,
		Location:      loc,
		Clock:         o.clock,
		Logger:        serviceLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build dashboard service: %w", err)
	}

	health, err := repositories.NewHealthRepository(checks)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	if build.StartedAt.IsZero() {
		build.StartedAt = o.clock().UTC()
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{Health: health, Clock: o.clock, Build: build})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{Checkout: checkout, Orders: orders, Dashboard: dashboard, System: system}, nil
}

func (c *Container) buildRouter(cfg config.Config, authn *auth.Authenticator) http.Handler {
	httpLogger := c.logger.Named("http")
	projectID := cfg.Firestore.ProjectID

	idem := idempotency.Middleware(c.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithClock(c.clock),
		idempotency.WithLogger(observability.ServiceLogger(c.logger.Named("idempotency"))),
	)
	orderHandlers := handlers.NewOrderHandlers(authn, c.Services.Orders, c.Services.Checkout,
		handlers.WithIntakeRateLimit(cfg.Security.RateLimitPerMinute),
		handlers.WithIdempotency(idem),
	)
	dashboardHandlers := handlers.NewDashboardHandlers(authn, c.Services.Dashboard)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
			c.Metrics.Middleware,
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(c.Services.System, c.clock)),
		handlers.WithMetricsHandler(c.Metrics.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithDashboardRoutes(dashboardHandlers.Routes),
	)
}

// RunIdempotencyCleanup purges expired idempotency records every interval until ctx ends.
func (c *Container) RunIdempotencyCleanup(ctx context.Context, interval time.Duration) {
	if c == nil || c.Idempotency == nil || interval <= 0 {
		return
	}
	logger := c.logger.Named("idempotency")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, cleanupRunTimeout)
			removed, err := c.Idempotency.CleanupExpired(runCtx, c.clock().UTC(), cleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func pricingConfig(cfg config.Config) services.PricingConfig {
	surcharges := make(map[domain.CakeSize]decimal.Decimal, len(cfg.Pricing.SizeSurcharges))
	for size, rate := range cfg.Pricing.SizeSurcharges {
		surcharges[domain.CakeSize(strings.ToLower(strings.TrimSpace(size)))] = decimal.NewFromFloat(rate)
	}
	return services.PricingConfig{
		TaxRate:            decimal.NewFromFloat(cfg.Pricing.TaxRate),
		DefaultDeliveryFee: cfg.Pricing.DeliveryFee,
		Surcharges:         surcharges,
		MaxQuantity:        cfg.Orders.MaxQuantity,
		TotalTolerance:     cfg.Pricing.TotalTolerance,
	}
}
