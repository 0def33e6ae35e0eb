// sso-service es el binario principal: monta el stack completo (store,
// redis opcional, services, controllers, router) y sirve HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/vitrinapp/sso-core/internal/cache"
	"github.com/vitrinapp/sso-core/internal/cache/memory"
	"github.com/vitrinapp/sso-core/internal/config"
	"github.com/vitrinapp/sso-core/internal/controlplane"
	"github.com/vitrinapp/sso-core/internal/directory"
	httpx "github.com/vitrinapp/sso-core/internal/http"
	authctrl "github.com/vitrinapp/sso-core/internal/http/controllers/auth"
	healthctrl "github.com/vitrinapp/sso-core/internal/http/controllers/health"
	oauthctrl "github.com/vitrinapp/sso-core/internal/http/controllers/oauth"
	sessionctrl "github.com/vitrinapp/sso-core/internal/http/controllers/session"
	"github.com/vitrinapp/sso-core/internal/http/router"
	authsvc "github.com/vitrinapp/sso-core/internal/http/services/auth"
	"github.com/vitrinapp/sso-core/internal/http/services/oauth"
	"github.com/vitrinapp/sso-core/internal/http/services/session"
	jwtx "github.com/vitrinapp/sso-core/internal/jwt"
	"github.com/vitrinapp/sso-core/internal/metrics"
	"github.com/vitrinapp/sso-core/internal/observability/logger"
	"github.com/vitrinapp/sso-core/internal/rate"
	"github.com/vitrinapp/sso-core/internal/store/pg"
	migrations "github.com/vitrinapp/sso-core/migrations/postgres"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "ruta al config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		// logger aún no inicializado
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: os.Getenv("LOG_LEVEL")})
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Store (PostgreSQL) ----
	poolCfg := pg.PoolConfig{
		MaxConns: cfg.Storage.Postgres.MaxConns,
		MinConns: cfg.Storage.Postgres.MinConns,
	}
	if cfg.Storage.Postgres.ConnMaxLifetime != "" {
		if d, perr := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime); perr == nil {
			poolCfg.ConnMaxLifetime = d
		}
	}
	store, err := pg.New(ctx, cfg.Storage.DSN, poolCfg)
	if err != nil {
		log.Fatal("store init failed", logger.Err(err))
	}
	defer store.Close()

	if cfg.Flags.Migrate {
		applied, merr := store.Migrate(ctx, migrations.FS, migrations.Dir)
		if merr != nil {
			log.Fatal("migrations failed", logger.Err(merr))
		}
		log.Info("migrations applied", logger.Count(len(applied)))
	}

	// ---- Redis (opcional) ----
	var httpLimiter rate.Limiter
	var ipFailures rate.Limiter
	if cfg.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if perr := client.Ping(ctx).Err(); perr != nil {
			log.Warn("redis ping failed, rate limiting degraded", logger.Err(perr))
		}
		httpWindow, _ := time.ParseDuration(cfg.Rate.HTTP.Window)
		httpLimiter = rate.NewRedisLimiter(client, cfg.Redis.Prefix+"http:", cfg.Rate.HTTP.Limit, httpWindow)

		globalWindow, _ := time.ParseDuration(cfg.Rate.GlobalIPWindow)
		ipFailures = rate.NewRedisLimiter(client, cfg.Redis.Prefix+"ipfail:", cfg.Rate.GlobalIPMaxFailures, globalWindow)
	} else {
		log.Info("redis not configured, login failures counted against store history")
	}

	// ---- Control plane ----
	var cpCache cache.Cache
	if ttl, perr := time.ParseDuration(cfg.Cache.Memory.DefaultTTL); perr == nil {
		cpCache = memory.New(ttl)
	} else {
		cpCache = memory.New(2 * time.Minute)
	}
	cp := controlplane.New(controlplane.Deps{
		Tenants: store.Tenants,
		Cache:   cpCache,
	})

	// ---- JWT ----
	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Secret, cfg.AccessTTL())
	if err != nil {
		log.Fatal("jwt issuer init failed", logger.Err(err))
	}

	// ---- OAuth services ----
	registry := oauth.NewClientRegistry(store.Clients)
	if cfg.Seed.FirstPartyClients {
		if seeded, serr := registry.Seed(ctx); serr != nil {
			log.Warn("client seed failed", logger.Err(serr))
		} else if len(seeded) > 0 {
			log.Info("first-party clients seeded", logger.Count(len(seeded)))
		}
	}

	tokenSvc := oauth.NewTokenService(oauth.TokenDeps{
		Tokens:     store.Tokens,
		Sessions:   store.Sessions,
		Issuer:     issuer,
		RefreshTTL: cfg.RefreshTTL(),
	})
	authorizeSvc := oauth.NewAuthorizeService(oauth.AuthorizeDeps{
		Codes:        store.Codes,
		Clients:      registry,
		ControlPlane: cp,
	})

	// ---- Sessions + login ----
	sessionSvc := session.New(session.Deps{
		Sessions:     store.Sessions,
		Tokens:       tokenSvc,
		TokenRepo:    store.Tokens,
		ControlPlane: cp,
	})

	globalWindow, _ := time.ParseDuration(cfg.Rate.GlobalIPWindow)
	loginLimiter := rate.NewLoginLimiter(rate.LoginDeps{
		Attempts:          store.Attempts,
		Blocked:           store.BlockedIPs,
		Policy:            cp,
		IPFailures:        ipFailures,
		GlobalMaxFailures: cfg.Rate.GlobalIPMaxFailures,
		GlobalWindow:      globalWindow,
		GlobalBlockTTL:    time.Duration(cfg.Rate.GlobalIPBlockHours) * time.Hour,
	})

	if cfg.Directory.URL == "" {
		log.Fatal("directory.url is required (env DIRECTORY_URL)")
	}
	verifier := directory.New(cfg.Directory.URL, cfg.Directory.APIKey, cfg.DirectoryTimeout())

	authSvc := authsvc.New(authsvc.Deps{
		Verifier: verifier,
		Limiter:  loginLimiter,
		Sessions: sessionSvc,
	})

	// ---- Metrics ----
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", logger.Err(err))
	}

	// ---- HTTP ----
	handler := router.New(router.Deps{
		Authorize:   oauthctrl.NewAuthorizeController(authorizeSvc),
		Token:       oauthctrl.NewTokenController(authorizeSvc, tokenSvc, sessionSvc),
		Login:       authctrl.NewLoginController(authSvc),
		Logout:      authctrl.NewLogoutController(authSvc),
		Sessions:    sessionctrl.NewSessionsController(sessionSvc),
		Health:      healthctrl.NewController(store),
		Issuer:      issuer,
		RateLimiter: httpLimiter,
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Metrics:     true,
	})

	srv := httpx.NewServer(cfg.Server.Addr, handler)
	if err := srv.Start(ctx); err != nil {
		log.Fatal("http server failed", logger.Err(err))
	}
	log.Info("shutdown complete")
}
