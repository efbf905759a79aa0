package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gamelend/config"
	"gamelend/db"
	"gamelend/identity"
	"gamelend/lending"
	"gamelend/logger"
	"gamelend/mailer"
	"gamelend/metrics"
	"gamelend/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Short aliases for handlers.
type Ctx = gin.Context
type H = gin.H

// App wires every dependency a handler may need.
type App struct {
	Router  *gin.Engine
	DB      *gorm.DB
	Repo    *db.Repo
	Backend session.Backend
	WA      *webauthn.WebAuthn
	Config  *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics

	Identity identity.Provider
	Mailer   mailer.Sender

	AppSess    *session.AppSessionStore
	Ceremonies *session.Store
	Limiter    *session.Limiter
	Seen       *session.SeenThrottle

	rdb *redis.Client
}

// Deps are the already-open resources New assembles an App from. Nil
// optional fields get production defaults derived from Config.
type Deps struct {
	Config   *config.Config
	DB       *gorm.DB
	Backend  session.Backend
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Identity identity.Provider
	Mailer   mailer.Sender
}

func New(d Deps) (*App, error) {
	if d.Config == nil || d.DB == nil || d.Backend == nil {
		return nil, fmt.Errorf("app: config, db and session backend are required")
	}
	cfg := d.Config
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(false)
	}
	if d.Identity == nil {
		d.Identity = identity.NewSupabase(cfg.Supabase)
	}
	if d.Mailer == nil {
		d.Mailer = mailer.NewSMTP(cfg.SMTP, d.Log)
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPID:          cfg.WebAuthn.RPID,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn: %w", err)
	}

	policy := lending.NewPolicy(cfg.Lending.OverdueDays, cfg.Lending.FeePerDay, cfg.Lending.MaxFee)

	useJSONFieldNames()
	r := gin.New()
	a := &App{
		Router:     r,
		DB:         d.DB,
		Repo:       db.NewRepo(d.DB, policy),
		Backend:    d.Backend,
		WA:         wa,
		Config:     cfg,
		Log:        d.Log,
		Metrics:    d.Metrics,
		Identity:   d.Identity,
		Mailer:     d.Mailer,
		AppSess:    session.NewAppSessionStore(d.Backend, cfg.Session.TTL, cfg.Session.RotateAfter),
		Ceremonies: session.NewStore(d.Backend, cfg.Session.CeremonyTTL),
		Limiter:    session.NewLimiter(d.Backend, int64(cfg.Auth.LoginLimit), cfg.Auth.LoginWindow),
		Seen:       session.NewSeenThrottle(d.Backend, cfg.Session.LastSeenThrottle),
	}
	r.Use(RequestLogger(a.Log), Recovery(), a.Metrics.Middleware())
	useCORS(r, cfg.App.WebOrigin)
	return a, nil
}

// MustNew opens the database and Redis from cfg and exits on failure.
func MustNew(cfg *config.Config, log *logger.Logger) *App {
	ctx := context.Background()
	conn, err := db.ConnectDB(cfg.DB)
	if err != nil {
		log.Error(ctx, "db.connect_failed", err)
		os.Exit(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rdb, err := session.NewRedisClient(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error(ctx, "redis.connect_failed", err)
		os.Exit(1)
	}

	a, err := New(Deps{
		Config:  cfg,
		DB:      conn,
		Backend: session.NewRedisBackend(rdb),
		Log:     log,
		Metrics: metrics.New(true),
	})
	if err != nil {
		log.Error(ctx, "app.init_failed", err)
		os.Exit(1)
	}
	a.rdb = rdb
	return a
}

func (a *App) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Healthy pings the database and the session backend.
func (a *App) Healthy(ctx context.Context) map[string]string {
	out := map[string]string{"db": "ok", "redis": "ok"}
	if err := a.Repo.Ping(ctx); err != nil {
		out["db"] = err.Error()
	}
	if err := a.Backend.Ping(ctx); err != nil {
		out["redis"] = err.Error()
	}
	return out
}
