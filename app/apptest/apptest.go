// Package apptest assembles a fully routed App on SQLite and an in-memory
// session backend for HTTP-level tests.
package apptest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/config"
	"gamelend/db"
	"gamelend/identity"
	"gamelend/logger"
	"gamelend/mailer"
	"gamelend/metrics"
	"gamelend/models"
	"gamelend/routes"
	"gamelend/security"
	"gamelend/session/sessiontest"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var BaseTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Outbox records mail instead of sending it.
type Outbox struct {
	mu   sync.Mutex
	Sent []mailer.Message
	Err  error
}

func (o *Outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.Sent = append(o.Sent, msg)
	return nil
}

// Identities resolves tokens from a fixed table.
type Identities map[string]*identity.Profile

func (ids Identities) Resolve(_ context.Context, token string) (*identity.Profile, error) {
	if p, ok := ids[token]; ok {
		return p, nil
	}
	return nil, apperr.Wrap(apperr.CodeUnauthorized, identity.ErrInvalidToken, "invalid access token")
}

type Harness struct {
	App        *app.App
	Mem        *sessiontest.Memory
	Clock      *Clock
	Outbox     *Outbox
	Identities Identities
}

// Config returns the defaults the service ships with, minus external services.
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: config.AppEnvDev, Port: "0", WebOrigin: "http://localhost:5173"},
		Session: config.SessionConfig{
			TTL:              time.Hour,
			RotateAfter:      30 * time.Minute,
			CeremonyTTL:      10 * time.Minute,
			LastSeenThrottle: 5 * time.Minute,
		},
		Lending: config.LendingConfig{OverdueDays: 14, FeePerDay: 2, MaxFee: 50},
		Auth:    config.AuthConfig{LoginLimit: 5, LoginWindow: time.Minute},
		WebAuthn: config.WebAuthnConfig{
			RPID:          "localhost",
			RPDisplayName: "GameLend",
			RPOrigins:     []string{"http://localhost:5173"},
		},
		SMTP: config.SMTPConfig{AppName: "GameLend"},
	}
}

func openDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:apptest_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(conn))
	return conn
}

// New builds a routed App. mutate may adjust the configuration first.
func New(t testing.TB, mutate ...func(*config.Config)) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	security.HashCost = bcrypt.MinCost

	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}
	h := &Harness{
		Mem:        sessiontest.New(),
		Clock:      &Clock{t: BaseTime},
		Outbox:     &Outbox{},
		Identities: Identities{},
	}
	h.Mem.Now = h.Clock.Now

	a, err := app.New(app.Deps{
		Config:   cfg,
		DB:       openDB(t),
		Backend:  h.Mem,
		Log:      logger.Nop(),
		Metrics:  metrics.New(false),
		Identity: h.Identities,
		Mailer:   h.Outbox,
	})
	require.NoError(t, err)
	a.Repo.Now = h.Clock.Now
	a.AppSess.SetClock(h.Clock.Now)
	routes.RegisterRoutes(a)
	h.App = a
	return h
}

// SeedUser inserts an active user with the given password (may be empty).
func (h *Harness) SeedUser(t testing.TB, username, role, password string) *models.User {
	t.Helper()
	u := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	}
	if password != "" {
		hash, err := security.HashPassword(password)
		require.NoError(t, err)
		u.PasswordHash = hash
	}
	require.NoError(t, h.App.Repo.CreateUser(context.Background(), models.Actor{}, u))
	return u
}

// SessionFor opens a session for userID and returns the cookie value.
func (h *Harness) SessionFor(t testing.TB, userID string) string {
	t.Helper()
	sid, err := h.App.AppSess.Create(context.Background(), userID)
	require.NoError(t, err)
	return sid
}

// Do sends a request through the router. body is JSON encoded unless it is
// already a string.
func (h *Harness) Do(method, path string, body any, sessionID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: app.AppSessionCookie, Value: sessionID})
	}
	w := httptest.NewRecorder()
	h.App.Router.ServeHTTP(w, req)
	return w
}

// SessionCookie returns the app_session cookie set on w, if any.
func SessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == app.AppSessionCookie {
			return c
		}
	}
	return nil
}

// Decode unmarshals the response body into a generic map.
func Decode(t testing.TB, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// ErrorCode extracts error.code from an error envelope.
func ErrorCode(t testing.TB, w *httptest.ResponseRecorder) string {
	t.Helper()
	env := Decode(t, w)
	e, ok := env["error"].(map[string]any)
	require.True(t, ok, "no error envelope: %s", w.Body.String())
	code, _ := e["code"].(string)
	return code
}
