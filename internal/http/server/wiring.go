// Package server arma el handler HTTP con todas sus dependencias a partir de la config.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/consentgate/internal/audit"
	"github.com/dropDatabas3/consentgate/internal/cache"
	"github.com/dropDatabas3/consentgate/internal/claims"
	"github.com/dropDatabas3/consentgate/internal/config"
	"github.com/dropDatabas3/consentgate/internal/consent"
	"github.com/dropDatabas3/consentgate/internal/controlplane"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
	"github.com/dropDatabas3/consentgate/internal/flow"
	"github.com/dropDatabas3/consentgate/internal/http/controllers/health"
	"github.com/dropDatabas3/consentgate/internal/http/controllers/oauth"
	sessionctrl "github.com/dropDatabas3/consentgate/internal/http/controllers/session"
	"github.com/dropDatabas3/consentgate/internal/http/router"
	"github.com/dropDatabas3/consentgate/internal/issuance"
	"github.com/dropDatabas3/consentgate/internal/jwt"
	"github.com/dropDatabas3/consentgate/internal/metrics"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
	"github.com/dropDatabas3/consentgate/internal/policy"
	"github.com/dropDatabas3/consentgate/internal/session"
	"github.com/dropDatabas3/consentgate/internal/store/memory"
	"github.com/dropDatabas3/consentgate/internal/store/pg"
)

// Version se setea con -ldflags.
var Version = "dev"

// App es el resultado del wiring.
type App struct {
	Handler http.Handler
	// Loader permite invalidar el snapshot (SIGHUP en serve).
	Loader  *controlplane.Loader
	Cleanup func() error
}

// scoreTTL: sin actividad, un score de reputación vuelve a 0.
const scoreTTL = 24 * time.Hour

// Build instancia cache, stores, control plane, orquestador y router.
// reg nil = prometheus.DefaultRegisterer / DefaultGatherer.
func Build(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*App, error) {
	log := logger.From(ctx).With(logger.Layer("wiring"), logger.Op("server.Build"))

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	if err := metrics.Register(registerer); err != nil {
		return nil, fmt.Errorf("server: register metrics: %w", err)
	}

	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*App, error) {
		_ = cleanup()
		return nil, err
	}

	// 1. Cache (tokens de consent, codes, grants, sesiones)
	cc, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: config.MustDuration(cfg.Cache.Memory.DefaultTTL, 10*time.Minute),
	})
	if err != nil {
		return fail(fmt.Errorf("server: cache: %w", err))
	}
	closers = append(closers, cc.Close)

	// 2. Reputation scores: mismo redis si hay, si no go-cache
	var scores policy.ScoreSource
	if rdb, ok := cache.RedisOf(cc); ok {
		scores = policy.NewRedisScores(rdb, strings.TrimSuffix(cfg.Cache.Redis.Prefix, ":"), scoreTTL)
	} else {
		scores = policy.NewMemoryScores(scoreTTL)
	}

	// 3. Control plane
	env, err := expr.NewEnv()
	if err != nil {
		return fail(fmt.Errorf("server: expression env: %w", err))
	}
	loader := controlplane.NewLoader(controlplane.LoaderDeps{
		Source: controlplane.FileSource{Path: cfg.ControlPlane.Path},
		Build:  controlplane.BuildDeps{Env: env, Scores: scores},
	})
	snap, err := loader.Snapshot(ctx)
	if err != nil {
		return fail(fmt.Errorf("server: control plane: %w", err))
	}

	// 4. Usuarios + consents recordados
	checks := map[string]health.Check{
		"cache":         cc.Ping,
		"control_plane": func(ctx context.Context) error { _, err := loader.Snapshot(ctx); return err },
	}
	var (
		users    repository.UserRepository
		consents repository.ConsentRepository
	)
	if dsn := strings.TrimSpace(cfg.Storage.DSN); dsn != "" {
		st, err := pg.New(ctx, dsn, pg.Options{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: config.MustDuration(cfg.Storage.Postgres.ConnMaxLifetime, 0),
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error { st.Close(); return nil })
		applied, err := st.Migrate(ctx)
		if err != nil {
			return fail(err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", logger.Any("versions", applied))
		}
		pu := st.Users()
		for _, u := range snap.Users() {
			if err := pu.Create(ctx, u); err != nil && !repository.IsConflict(err) {
				return fail(fmt.Errorf("server: seed user %s: %w", u.Username, err))
			}
		}
		users, consents = pu, st.Consents()
		checks["postgres"] = st.Ping
	} else {
		users, consents = memory.NewUsers(snap.Users()...), memory.NewConsents()
	}

	// 5. Firma
	keys, err := signingKeys(cfg)
	if err != nil {
		return fail(err)
	}
	if cfg.JWT.SigningKeySeed == "" {
		log.Warn("using ephemeral signing key; tokens will not survive a restart")
	}
	signer := jwt.NewSigner(keys)

	// 6. Pipeline
	sessions := session.NewStore(session.StoreDeps{Cache: cc, Users: users})
	tokens := issuance.NewService(issuance.ServiceDeps{Cache: cc, Signer: signer})
	consentTTL := config.MustDuration(cfg.Consent.TokenTTL, 10*time.Minute)
	orch := flow.NewOrchestrator(flow.OrchestratorDeps{
		Snapshots:     loader,
		Authenticator: sessions,
		Users:         users,
		Engine:        policy.NewEngine(policy.EngineDeps{DefaultTimeout: config.MustDuration(cfg.Policy.DefaultTimeout, 30*time.Second)}),
		Consent:       consent.NewTokenStore(consent.TokenStoreDeps{Cache: cc, TTL: consentTTL}),
		Remembered:    consent.NewMemory(consents, nil),
		Materializer:  claims.NewMaterializer(),
		Codes:         tokens,
		Scores:        scores,
		Audit:         audit.LogRecorder{},
		BaseURL:       baseURL(cfg),
		ConsentTTL:    consentTTL,
	})

	// 7. HTTP
	dev := cfg.App.Env == "dev"
	h := router.New(router.Deps{
		OAuth: oauth.NewControllers(oauth.Deps{
			Flow:       orch,
			Tokens:     tokens,
			Snapshots:  loader,
			CookieName: cfg.Auth.Session.CookieName,
			LoginURL:   cfg.Server.LoginURL,
		}),
		Health: health.NewHealthController(checks, Version),
		Session: sessionctrl.NewSessionController(sessionctrl.Deps{
			Sessions:   sessions,
			Users:      users,
			CookieName: cfg.Auth.Session.CookieName,
			Secure:     !dev,
		}),
		DevLogin: dev,
		JWKS:     oauth.NewJWKSController(keys.JWKSJSON()),
		Metrics:  promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	})

	log.Info("server wired",
		logger.String("config_version", snap.Version),
		logger.String("cache", cfg.Cache.Kind),
		logger.Bool("postgres", cfg.Storage.DSN != ""))

	return &App{Handler: h, Loader: loader, Cleanup: cleanup}, nil
}

func signingKeys(cfg *config.Config) (*jwt.KeySet, error) {
	if seed := strings.TrimSpace(cfg.JWT.SigningKeySeed); seed != "" {
		return jwt.FromSeed(seed, cfg.JWT.KID)
	}
	if cfg.App.Env == "prod" {
		return nil, errors.New("server: jwt.signing_key_seed is required in prod")
	}
	return jwt.NewDevEd25519(cfg.JWT.KID)
}

func baseURL(cfg *config.Config) string {
	if b := strings.TrimSpace(cfg.Server.BaseURL); b != "" {
		return b
	}
	return strings.TrimSpace(cfg.JWT.Issuer)
}
