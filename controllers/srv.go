package controllers

import (
	"context"
	"strconv"
	"time"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/models"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

const requestTimeout = 3 * time.Second

// Srv carries the shared dependencies; the feature controllers embed it.
type Srv struct {
	*app.App
}

func GetSrv(a *app.App) *Srv { return &Srv{App: a} }

// --- helpers ---

// reqCtx bounds a handler's storage calls.
func reqCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// actor returns the authenticated actor or writes 401.
func actor(c *gin.Context) (models.Actor, bool) {
	a, ok := app.ActorFrom(c)
	if !ok {
		app.WriteError(c, apperr.New(apperr.CodeUnauthorized, "unauthorized"))
		return models.Actor{}, false
	}
	return a, true
}

// pathID reads a UUID path parameter or writes 400.
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		app.WriteError(c, apperr.Validation("invalid "+name))
		return "", false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// issueSession records the login and hands out a fresh session cookie.
func (s *Srv) issueSession(c *gin.Context, ctx context.Context, userID string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		s.Log.Warn(ctx, "user.touch_login_failed")
	}
	id, err := s.AppSess.Create(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.CodeDependency, err, "create session failed")
	}
	s.SetSessionCookie(c, id, s.AppSess.TTL())
	return nil
}

// WebAuthn: DB user -> waUser
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { id, _ := uuid.Parse(u.user.ID); return id[:] }
func (u *waUser) WebAuthnName() string                       { return u.user.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.DisplayName() }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	u, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cs, err := s.Repo.LoadUserCredentials(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}, nil
}
