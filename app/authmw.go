package app

import (
	"errors"
	"net/http"
	"time"

	"gamelend/apperr"
	"gamelend/models"
	"gamelend/session"

	"github.com/gin-gonic/gin"
)

const (
	AppSessionCookie = "app_session"

	ctxActor = "actor"
)

// ActorFrom returns the actor resolved by AuthRequired.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(ctxActor)
	if !ok {
		return models.Actor{}, false
	}
	a, ok := v.(models.Actor)
	return a, ok
}

// SetSessionCookie writes the session cookie.
func (a *App) SetSessionCookie(c *gin.Context, sessionID string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.App.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

func (a *App) ClearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.App.SecureCookies(),
	})
}

// AuthRequired resolves the session cookie to an active user, slides the
// inactivity window (rotating the id when it is old enough) and stores the
// Actor on the context.
func (a *App) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			WriteError(c, apperr.New(apperr.CodeUnauthorized, "unauthorized"))
			return
		}
		as, err := a.AppSess.Get(ctx, ck.Value)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				a.ClearSessionCookie(c)
				WriteError(c, apperr.New(apperr.CodeUnauthorized, "session expired"))
				return
			}
			WriteError(c, apperr.Wrap(apperr.CodeDependency, err, "session store unavailable"))
			return
		}

		u, err := a.Repo.FindUserByID(ctx, as.UserID)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				_ = a.AppSess.Delete(ctx, ck.Value)
				a.ClearSessionCookie(c)
				WriteError(c, apperr.New(apperr.CodeUnauthorized, "unauthorized"))
				return
			}
			WriteError(c, err)
			return
		}
		if !u.IsActive() {
			_ = a.AppSess.RevokeAllForUser(ctx, u.ID)
			a.ClearSessionCookie(c)
			WriteError(c, apperr.New(apperr.CodeUnauthorized, "account disabled"))
			return
		}

		sid, err := a.AppSess.Touch(ctx, ck.Value, as)
		if err != nil {
			a.Log.Error(ctx, "session.touch_failed", err)
		}
		// the cookie slides with the server-side TTL
		a.SetSessionCookie(c, sid, a.AppSess.TTL())

		actor := models.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
		if a.Config.Auth.IsAdminEmail(u.Email) {
			actor.Role = models.RoleAdmin
		}
		c.Set(ctxActor, actor)
		c.Request = c.Request.WithContext(a.Log.WithUserID(ctx, u.ID))
		c.Next()
	}
}

func (a *App) AdminOnly() gin.HandlerFunc {
	return requireRole(models.RoleAdmin, "admin access required")
}

func (a *App) CustomerOnly() gin.HandlerFunc {
	return requireRole(models.RoleCustomer, "customer access required")
}

func requireRole(role, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			WriteError(c, apperr.New(apperr.CodeUnauthorized, "unauthorized"))
			return
		}
		if actor.Role != role {
			WriteError(c, apperr.Forbidden(msg))
			return
		}
		c.Next()
	}
}
