// orunkd runs the billing module as a standalone HTTP service.
//
// Identity is delegated to the fronting proxy: requests arrive with
// X-Orunk-User-ID (and X-Orunk-Admin for staff) set by whatever
// authenticates the user upstream. The service itself only trusts those
// headers, so it must never be exposed without that proxy in front.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/orunkhq/orunk/modules/billing"
	"github.com/orunkhq/orunk/pkg/binlookup"
	"github.com/orunkhq/orunk/pkg/config"
	"github.com/orunkhq/orunk/pkg/download"
	"github.com/orunkhq/orunk/pkg/entitlement"
	"github.com/orunkhq/orunk/pkg/license"
	"github.com/orunkhq/orunk/pkg/logger"
	"github.com/orunkhq/orunk/pkg/payment"
	"github.com/orunkhq/orunk/pkg/pg"
	"github.com/orunkhq/orunk/pkg/plan"
	"github.com/orunkhq/orunk/pkg/quota"
	"github.com/orunkhq/orunk/pkg/redis"
	"github.com/orunkhq/orunk/pkg/requestid"
)

type appConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	PlansPath string   `env:"PLANS_PATH" envDefault:"plans.yaml"`
	Gateways  []string `env:"PAYMENT_GATEWAYS" envDefault:"bank" envSeparator:","`

	BINLookupEnabled bool  `env:"BINLOOKUP_ENABLED" envDefault:"true"`
	BINAnonHourly    int64 `env:"BINLOOKUP_ANON_HOURLY" envDefault:"30"`

	// feature_key=object_key pairs, e.g. "wp_plugin=releases/plugin.zip"
	Artifacts map[string]string `env:"DOWNLOAD_ARTIFACTS" envSeparator:"," envKeyValSeparator:"="`

	ExpirySweepInterval time.Duration `env:"EXPIRY_SWEEP_INTERVAL" envDefault:"1h"`
}

func main() {
	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.New(
		logger.WithLevel(logCfg.Level),
		logger.WithFormat(logCfg.Format),
		logger.WithAttrs(slog.String("service", "orunkd")),
		logger.WithContextExtractors(requestIDAttr),
	)
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("orunkd exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	config.MustLoad(&cfg)

	var pgCfg pg.Config
	config.MustLoad(&pgCfg)
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	rdb, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	catalog, err := plan.NewCatalog(ctx, plan.FileSource{Path: cfg.PlansPath})
	if err != nil {
		return err
	}

	ents := entitlement.NewPostgresStore(pool)
	issuer := license.NewIssuer(ents, catalog, license.WithIssuerLogger(log))
	svc := entitlement.NewService(ents, catalog, issuer, entitlement.WithLogger(log))
	tracker := license.NewTracker(license.NewPostgresActivationStore(pool), ents, catalog,
		license.WithTrackerLogger(log))
	counter := quota.NewCounter(quota.NewRedisStore(rdb))

	registry, err := buildGateways(cfg.Gateways)
	if err != nil {
		return err
	}

	deps := billing.Deps{
		Entitlements: svc,
		Catalog:      catalog,
		Gateways:     registry,
		Issuer:       issuer,
		Tracker:      tracker,
		Counter:      counter,
		Logger:       log,
	}

	if cfg.BINLookupEnabled {
		var binCfg binlookup.Config
		config.MustLoad(&binCfg)
		deps.BinClient, err = binlookup.NewClient(binCfg, binlookup.NewRedisCache(rdb),
			binlookup.WithClientLogger(log))
		if err != nil {
			return err
		}
		deps.BinThrottle = binlookup.NewThrottle(counter, cfg.BINAnonHourly)
	}

	if len(cfg.Artifacts) > 0 {
		var dlCfg download.Config
		config.MustLoad(&dlCfg)
		deps.Downloads, err = download.NewService(ctx, dlCfg, ents, cfg.Artifacts,
			download.WithServiceLogger(log))
		if err != nil {
			return err
		}
	}

	go sweepExpired(ctx, svc, cfg.ExpirySweepInterval, log)

	r := chi.NewRouter()
	r.Use(billing.ActorMiddleware(actorFromHeaders))
	r.Mount("/billing", billing.New(deps).Handle())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "listening", "addr", cfg.Addr, "gateways", registry.IDs())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("shut down cleanly")
	return nil
}

// buildGateways constructs each enabled gateway from its own env config,
// so credentials are only required for gateways actually turned on.
func buildGateways(ids []string) (*payment.Registry, error) {
	var gws []payment.Gateway
	for _, id := range ids {
		switch id {
		case "stripe":
			var c payment.StripeConfig
			config.MustLoad(&c)
			gw, err := payment.NewStripeGateway(c)
			if err != nil {
				return nil, err
			}
			gws = append(gws, gw)
		case "paypal":
			var c payment.PayPalConfig
			config.MustLoad(&c)
			gw, err := payment.NewPayPalGateway(c)
			if err != nil {
				return nil, err
			}
			gws = append(gws, gw)
		case "paddle":
			var c payment.PaddleConfig
			config.MustLoad(&c)
			gw, err := payment.NewPaddleGateway(c)
			if err != nil {
				return nil, err
			}
			gws = append(gws, gw)
		case "bank":
			var c payment.BankConfig
			config.MustLoad(&c)
			gws = append(gws, payment.NewBankGateway(c))
		default:
			return nil, errors.New("unknown payment gateway: " + id)
		}
	}
	return payment.NewRegistry(gws...), nil
}

func actorFromHeaders(r *http.Request) (billing.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Orunk-User-ID"))
	if err != nil {
		return billing.Actor{}, false
	}
	return billing.Actor{ID: id, Admin: r.Header.Get("X-Orunk-Admin") == "true"}, true
}

// sweepExpired periodically moves active entitlements whose expiry has
// passed into the expired status.
func sweepExpired(ctx context.Context, svc entitlement.Service, every time.Duration, log *slog.Logger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.ExpireDue(ctx)
			if err != nil {
				log.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.InfoContext(ctx, "expired entitlements", "count", n)
			}
		}
	}
}

func requestIDAttr(ctx context.Context) (slog.Attr, bool) {
	if id := requestid.FromContext(ctx); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}
