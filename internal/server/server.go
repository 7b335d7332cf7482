package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/cloudflare/cloudflare-go"

	"flareddns/db"
	"flareddns/internal/auth"
	"flareddns/internal/config"
	"flareddns/internal/database"
	"flareddns/internal/handler"
	"flareddns/internal/metrics"
	"flareddns/internal/ratelimit"
	"flareddns/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Start wires every component and serves until ctx is cancelled, then
// drains in-flight requests.
func Start(ctx context.Context, cfg *config.Config, version string, log *slog.Logger) error {
	store, err := database.Open(ctx, cfg.Database.DSN, db.MigrationsFS())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	limits, err := service.LoadRateLimit(ctx, store, ratelimit.Config{
		Window:      cfg.DDNS.RateLimit.Window,
		MaxRequests: cfg.DDNS.RateLimit.MaxRequests,
	})
	if err != nil {
		log.Warn("failed to load stored rate limit, using configured values", slog.Any("error", err))
	}
	limiter := ratelimit.New(limits)

	factory, err := providerFactory(cfg.Provider)
	if err != nil {
		return err
	}
	providers := service.NewProviderCache(cfg.Provider.Kind, factory)
	tokens := service.NewTokenSource(store, cfg.Provider.APIToken)

	trusted := make([]netip.Prefix, 0, len(cfg.Server.TrustedProxies))
	for _, p := range cfg.Server.TrustedProxies {
		prefix, err := config.ParseTrusted(p)
		if err != nil {
			return fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		trusted = append(trusted, prefix)
	}

	updater := service.NewUpdater(service.UpdaterDeps{
		Auth:            auth.FromConfig(cfg, store, log),
		Limiter:         limiter,
		Zones:           store,
		Tokens:          tokens,
		Providers:       providers,
		Reconciler:      service.NewReconciler(store, log),
		Audit:           service.NewAuditLogger(store, log),
		Log:             log,
		HostnameTimeout: cfg.Server.HostnameTimeout,
	})

	if cfg.LDAP.Enabled {
		log.Info("LDAP authentication enabled", slog.String("url", cfg.LDAP.URL))
	}

	ddnsH := handler.NewDDNSHandler(updater, trusted)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /nic/update", ddnsH.Update)
	mux.HandleFunc("GET /v3/update", ddnsH.Update)
	mux.HandleFunc("GET /healthz", handler.Health(store))
	mux.Handle("GET /metrics", metrics.Handler())

	if cfg.Admin.APIToken != "" {
		apiH := handler.NewAPIHandler(handler.APIDeps{
			Store:      store,
			Zones:      service.NewZoneService(store, tokens, providers, log),
			Tokens:     tokens,
			Providers:  providers,
			Limiter:    limiter,
			Users:      auth.NewStatic(cfg.DDNS.Users).Usernames(),
			AdminToken: cfg.Admin.APIToken,
			Log:        log,
		})
		apiH.Register(mux)
	} else {
		log.Info("admin API disabled, set admin.api_token to enable it")
	}

	go limiter.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("flareddns server starting", slog.String("addr", addr), slog.String("version", version))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func providerFactory(cfg config.ProviderConfig) (service.ProviderFactory, error) {
	switch cfg.Kind {
	case "cloudflare":
		var opts []cloudflare.Option
		if cfg.BaseURL != "" {
			opts = append(opts, cloudflare.BaseURL(cfg.BaseURL))
		}
		return service.CloudflareFactory(opts...), nil
	case "route53":
		var optFns []func(*route53.Options)
		if cfg.BaseURL != "" {
			optFns = append(optFns, func(o *route53.Options) {
				o.BaseEndpoint = aws.String(cfg.BaseURL)
			})
		}
		return service.Route53Factory(cfg.Region, optFns...), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Kind)
	}
}
