package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/Vasu1712/scenyx-connect/internal/access"
	"github.com/Vasu1712/scenyx-connect/internal/api"
	callsapi "github.com/Vasu1712/scenyx-connect/internal/api/calls"
	"github.com/Vasu1712/scenyx-connect/internal/api/dms"
	"github.com/Vasu1712/scenyx-connect/internal/auth"
	"github.com/Vasu1712/scenyx-connect/internal/calls"
	"github.com/Vasu1712/scenyx-connect/internal/config"
	"github.com/Vasu1712/scenyx-connect/internal/conversation"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
	"github.com/Vasu1712/scenyx-connect/internal/metrics"
	"github.com/Vasu1712/scenyx-connect/internal/middleware"
	"github.com/Vasu1712/scenyx-connect/internal/storage"
	"github.com/Vasu1712/scenyx-connect/internal/storage/cache"
	"github.com/Vasu1712/scenyx-connect/internal/storage/memory"
	"github.com/Vasu1712/scenyx-connect/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-connect/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Level: "info"}).Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pairCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer pairCache.Close()

	m := metrics.New()
	hub := ws.NewHub(log, m)
	go hub.Run(ctx)

	checker := access.NewChecker(store)
	resolver := conversation.NewResolver(store, pairCache, log, m)
	issuer := calls.NewIssuer(
		checker,
		calls.NewSigner(cfg.Video.AccountSID, cfg.Video.APIKeySID, cfg.Video.APIKeySecret),
		calls.Policy{TTL: cfg.Video.TokenTTL, AllowOverrides: cfg.Video.AllowOverrides},
		log, m,
	)
	if cfg.Video.AllowOverrides {
		log.Warn().Msg("call credential room and identity overrides are enabled")
	}

	router := mux.NewRouter()
	router.Use(middleware.Observe(log.Component("http"), m))
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	protected := router.NewRoute().Subrouter()
	protected.Use(auth.Middleware(auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), log.Component("auth")))
	dms.RegisterDMRoutes(protected, &dms.DMHandler{
		Resolver:      resolver,
		Access:        checker,
		Messages:      store,
		Hub:           hub,
		Log:           log.Component("dms"),
		Metrics:       m,
		AllowedOrigin: cfg.CORSOrigin,
	})
	callsapi.RegisterCallRoutes(protected, &callsapi.CallHandler{Issuer: issuer, Log: log.Component("calls")})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.CORS(cfg.CORSOrigin)(router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.LogServerStart(cfg.HTTPAddr, cfg.StoreDriver, cfg.ValkeyAddr != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.LogServerShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		store, err := postgres.NewPostgresDMStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		universes, err := memory.ParseSeed(cfg.SeedUniverses)
		if err != nil {
			return nil, err
		}
		return memory.NewDMStore(universes...), nil
	}
}

// openCache prefers a shared Valkey cache. Without one, the postgres
// driver still gets a per-process cache; the memory store is its own
// cache already.
func openCache(ctx context.Context, cfg *config.Config) (cache.PairCache, error) {
	switch {
	case cfg.ValkeyAddr != "":
		c, err := cache.NewValkey(ctx, cfg.ValkeyAddr, cfg.PairCacheTTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case cfg.StoreDriver == config.DriverPostgres:
		return cache.NewMemory(cfg.PairCacheTTL), nil
	default:
		return cache.Nop{}, nil
	}
}
