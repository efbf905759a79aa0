package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamelend/app"
	"gamelend/app/apptest"
	"gamelend/apperr"
	"gamelend/config"
	"gamelend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
		details bool
	}{
		{"conflict keeps message and details", apperr.Conflict("game not available").WithDetails(map[string]string{"gameId": "x"}), http.StatusConflict, "CONFLICT", "game not available", true},
		{"rate limit hides message", apperr.New(apperr.CodeRateLimit, "login:1.2.3.4:ann"), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "too many attempts, try again later", false},
		{"dependency hides cause", apperr.Wrap(apperr.CodeDependency, errors.New("dial tcp"), "redis down"), http.StatusServiceUnavailable, "DEPENDENCY_ERROR", "dependency unavailable", false},
		{"plain error is internal", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			app.WriteError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			body := apptest.Decode(t, w)
			e := body["error"].(map[string]any)
			assert.Equal(t, tt.code, e["code"])
			assert.Equal(t, tt.message, e["message"])
			_, hasDetails := e["details"]
			assert.Equal(t, tt.details, hasDetails)
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestBindJSONReportsFieldsByJSONName(t *testing.T) {
	h := apptest.New(t)

	w := h.Do(http.MethodPost, "/api/auth/register", map[string]any{"username": "ann", "email": "not-an-email"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	e := apptest.Decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", e["code"])
	details := e["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "firstName")
	assert.NotContains(t, details, "username")
}

func TestBindJSONRejectsMalformedBody(t *testing.T) {
	h := apptest.New(t)

	w := h.Do(http.MethodPost, "/api/auth/login", `{"login":`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", apptest.ErrorCode(t, w))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := apptest.New(t)

	req := httptest.NewRequest(http.MethodGet, "/api/games", nil)
	req.Header.Set(app.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	h.App.Router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(app.RequestIDHeader))

	w = h.Do(http.MethodGet, "/api/games", nil, "")
	assert.NotEmpty(t, w.Header().Get(app.RequestIDHeader))
}

func TestAuthRequired(t *testing.T) {
	t.Run("missing cookie", func(t *testing.T) {
		h := apptest.New(t)
		w := h.Do(http.MethodGet, "/api/auth/whoami", nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHORIZED", apptest.ErrorCode(t, w))
	})

	t.Run("unknown session clears cookie", func(t *testing.T) {
		h := apptest.New(t)
		w := h.Do(http.MethodGet, "/api/auth/whoami", nil, "does-not-exist")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		ck := apptest.SessionCookie(w)
		require.NotNil(t, ck)
		assert.Less(t, ck.MaxAge, 0)
	})

	t.Run("inactivity expires the session", func(t *testing.T) {
		h := apptest.New(t)
		u := h.SeedUser(t, "ann", models.RoleCustomer, "")
		sid := h.SessionFor(t, u.ID)

		// each request slides the window; follow the cookie across rotations
		for i := 0; i < 3; i++ {
			h.Clock.Advance(50 * time.Minute)
			w := h.Do(http.MethodGet, "/api/me/borrowed", nil, sid)
			require.Equal(t, http.StatusOK, w.Code, "request %d", i)
			next := apptest.SessionCookie(w)
			require.NotNil(t, next)
			sid = next.Value
		}

		h.Clock.Advance(61 * time.Minute)
		w := h.Do(http.MethodGet, "/api/me/borrowed", nil, sid)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		e := apptest.Decode(t, w)["error"].(map[string]any)
		assert.Equal(t, "session expired", e["message"])
	})

	t.Run("old sessions are rotated", func(t *testing.T) {
		h := apptest.New(t)
		u := h.SeedUser(t, "ann", models.RoleCustomer, "")
		sid := h.SessionFor(t, u.ID)

		h.Clock.Advance(10 * time.Minute)
		w := h.Do(http.MethodGet, "/api/auth/whoami", nil, sid)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, sid, apptest.SessionCookie(w).Value)

		h.Clock.Advance(25 * time.Minute)
		w = h.Do(http.MethodGet, "/api/auth/whoami", nil, sid)
		require.Equal(t, http.StatusOK, w.Code)
		rotated := apptest.SessionCookie(w).Value
		assert.NotEqual(t, sid, rotated)
		assert.True(t, apptest.SessionCookie(w).HttpOnly)

		assert.Equal(t, http.StatusUnauthorized, h.Do(http.MethodGet, "/api/auth/whoami", nil, sid).Code)
		assert.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/auth/whoami", nil, rotated).Code)
	})

	t.Run("disabled user loses every session", func(t *testing.T) {
		h := apptest.New(t)
		admin := h.SeedUser(t, "boss", models.RoleAdmin, "")
		u := h.SeedUser(t, "ann", models.RoleCustomer, "")
		s1 := h.SessionFor(t, u.ID)
		s2 := h.SessionFor(t, u.ID)

		ctx := context.Background()
		who := models.Actor{UserID: admin.ID, Username: admin.Username, Role: admin.Role}
		require.NoError(t, h.App.Repo.SetUserStatus(ctx, who, u.ID, models.StatusDisabled))

		w := h.Do(http.MethodGet, "/api/auth/whoami", nil, s1)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		e := apptest.Decode(t, w)["error"].(map[string]any)
		assert.Equal(t, "account disabled", e["message"])

		_, err := h.App.AppSess.Get(ctx, s2)
		assert.Error(t, err, "sibling session should be revoked")
	})

	t.Run("session store outage is a dependency error", func(t *testing.T) {
		h := apptest.New(t)
		u := h.SeedUser(t, "ann", models.RoleCustomer, "")
		sid := h.SessionFor(t, u.ID)
		h.Mem.FailWith = errors.New("connection refused")

		w := h.Do(http.MethodGet, "/api/auth/whoami", nil, sid)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "DEPENDENCY_ERROR", apptest.ErrorCode(t, w))
	})
}

func TestRoleGuards(t *testing.T) {
	h := apptest.New(t)
	admin := h.SeedUser(t, "boss", models.RoleAdmin, "")
	cust := h.SeedUser(t, "ann", models.RoleCustomer, "")
	adminSID := h.SessionFor(t, admin.ID)
	custSID := h.SessionFor(t, cust.ID)

	w := h.Do(http.MethodGet, "/api/admin/dashboard", nil, custSID)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", apptest.ErrorCode(t, w))

	assert.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/admin/dashboard", nil, adminSID).Code)

	// admins do not borrow
	w = h.Do(http.MethodPost, "/api/games/"+admin.ID+"/borrow", nil, adminSID)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminEmailsOverrideRole(t *testing.T) {
	h := apptest.New(t, func(c *config.Config) {
		c.Auth.AdminEmails = []string{"ann@example.com"}
	})
	u := h.SeedUser(t, "ann", models.RoleCustomer, "")
	sid := h.SessionFor(t, u.ID)

	assert.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/admin/dashboard", nil, sid).Code)
	w := h.Do(http.MethodGet, "/api/auth/whoami", nil, sid)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleAdmin, apptest.Decode(t, w)["role"])
}

func TestTouchLastSeenIsThrottled(t *testing.T) {
	h := apptest.New(t)
	u := h.SeedUser(t, "ann", models.RoleCustomer, "")
	sid := h.SessionFor(t, u.ID)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/me/borrowed", nil, sid).Code)
	first, err := h.App.Repo.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, first.LastSeenAt)

	h.Clock.Advance(time.Minute)
	require.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/me/borrowed", nil, sid).Code)
	second, err := h.App.Repo.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, first.LastSeenAt.Equal(*second.LastSeenAt))

	h.Clock.Advance(5 * time.Minute)
	require.Equal(t, http.StatusOK, h.Do(http.MethodGet, "/api/me/borrowed", nil, sid).Code)
	third, err := h.App.Repo.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, third.LastSeenAt.After(*first.LastSeenAt))
}

func TestBootstrapFirstAdmin(t *testing.T) {
	h := apptest.New(t, func(c *config.Config) {
		c.Auth.BootstrapUsername = "root"
		c.Auth.BootstrapEmail = "root@example.com"
		c.Auth.BootstrapPassword = "secret123"
	})
	ctx := context.Background()

	created, err := h.App.BootstrapFirstAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.App.BootstrapFirstAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created, "an admin already exists")

	w := h.Do(http.MethodPost, "/api/auth/login", map[string]string{"login": "root", "password": "secret123"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RoleAdmin, apptest.Decode(t, w)["role"])
}

func TestHealthz(t *testing.T) {
	h := apptest.New(t)
	w := h.Do(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, apptest.Decode(t, w)["ok"])

	h.Mem.FailWith = errors.New("connection refused")
	w = h.Do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := apptest.Decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["db"])
	assert.Equal(t, "connection refused", checks["redis"])
}
