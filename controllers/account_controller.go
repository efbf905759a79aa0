package controllers

import (
	"net/http"
	"strings"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/db"
	"gamelend/models"
	"gamelend/security"

	"github.com/gin-gonic/gin"
)

const (
	MsgBadLogin        = "invalid username or password"
	MsgAccountDisabled = "account disabled"
	MsgNoPasskey       = "passkey sign-in is not available for this account"
)

// AccountController serves sign-up, sign-in and the signed-in user's own profile.
type AccountController struct{ *Srv }

func NewAccountController(s *Srv) *AccountController { return &AccountController{Srv: s} }

// sessionUser is what the client learns about itself after login.
func (ac *AccountController) sessionUser(u *models.User) app.H {
	role := u.Role
	if ac.Config.Auth.IsAdminEmail(u.Email) {
		role = models.RoleAdmin
	}
	return app.H{"user": u, "role": role, "displayName": u.DisplayName()}
}

// POST /api/auth/register
func (ac *AccountController) Register(c *gin.Context) {
	var in createUserReq
	if !app.BindJSON(c, &in) {
		return
	}
	if err := in.validate(); err != nil {
		app.WriteError(c, err)
		return
	}
	u, err := in.toUser(models.RoleCustomer)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := ac.Repo.CreateUser(ctx, models.Actor{}, u); err != nil {
		app.WriteError(c, err)
		return
	}
	if err := ac.issueSession(c, ctx, u.ID); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ac.sessionUser(u))
}

// POST /api/auth/login
func (ac *AccountController) Login(c *gin.Context) {
	var in struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	scope := "login:" + c.ClientIP() + ":" + strings.ToLower(strings.TrimSpace(in.Login))
	allowed, _, err := ac.Limiter.Allow(ctx, scope)
	if err != nil {
		// fail open while Redis is unreachable
		ac.Log.Error(ctx, "login.rate_limit_unavailable", err)
		allowed = true
	}
	if !allowed {
		app.WriteError(c, apperr.New(apperr.CodeRateLimit, "too many login attempts"))
		return
	}

	u, err := ac.Repo.FindUserByLogin(ctx, in.Login)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			app.WriteError(c, apperr.New(apperr.CodeUnauthorized, MsgBadLogin))
			return
		}
		app.WriteError(c, err)
		return
	}
	if !security.VerifyPassword(in.Password, u.PasswordHash) {
		app.WriteError(c, apperr.New(apperr.CodeUnauthorized, MsgBadLogin))
		return
	}
	if !u.IsActive() {
		app.WriteError(c, apperr.Forbidden(MsgAccountDisabled))
		return
	}

	_ = ac.Limiter.Reset(ctx, scope)
	if err := ac.issueSession(c, ctx, u.ID); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, ac.sessionUser(u))
}

// POST /api/auth/identity exchanges an identity-provider access token for a
// session, creating the customer on first sight.
func (ac *AccountController) IdentityLogin(c *gin.Context) {
	var in struct {
		AccessToken string `json:"accessToken"`
	}
	_ = c.ShouldBindJSON(&in)
	token := in.AccessToken
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	p, err := ac.Identity.Resolve(ctx, token)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	u, err := ac.Repo.FindOrCreateByAuthID(ctx, db.IdentityProfile{
		AuthID:    p.ID,
		Email:     p.Email,
		FirstName: p.FirstName(),
		LastName:  p.LastName(),
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	if !u.IsActive() {
		app.WriteError(c, apperr.Forbidden(MsgAccountDisabled))
		return
	}
	if err := ac.issueSession(c, ctx, u.ID); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, ac.sessionUser(u))
}

// POST /api/auth/logout works with or without a live session.
func (ac *AccountController) Logout(c *gin.Context) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		if err := ac.AppSess.Delete(ctx, ck.Value); err != nil {
			ac.Log.Error(ctx, "session.delete_failed", err)
		}
	}
	ac.ClearSessionCookie(c)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/auth/whoami
func (ac *AccountController) WhoAmI(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := ac.Repo.FindUserByID(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	creds, err := ac.Repo.CountCredentials(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, apperr.Persistence(err, "database error"))
		return
	}
	out := ac.sessionUser(u)
	out["credentialCount"] = creds
	c.JSON(http.StatusOK, out)
}

// PUT /api/me/profile
func (ac *AccountController) UpdateProfile(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var in struct {
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
		Gender    string `json:"gender"`
		Email     string `json:"email" binding:"required,email"`
	}
	if !app.BindJSON(c, &in) {
		return
	}
	if err := security.CheckName("first name", in.FirstName); err != nil {
		app.WriteError(c, err)
		return
	}
	if err := security.CheckName("last name", in.LastName); err != nil {
		app.WriteError(c, err)
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := ac.Repo.UpdateProfile(ctx, who, who.UserID, db.ProfileInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Gender:    in.Gender,
		Email:     in.Email,
	})
	if err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// PUT /api/me/password
func (ac *AccountController) ChangePassword(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword" binding:"required"`
		ConfirmPassword string `json:"confirmPassword" binding:"required"`
	}
	if !app.BindJSON(c, &in) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := ac.Repo.FindUserByID(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	// accounts created through the identity provider have no local password yet
	if u.PasswordHash != "" && !security.VerifyPassword(in.CurrentPassword, u.PasswordHash) {
		app.WriteError(c, apperr.Validation("current password is incorrect"))
		return
	}
	if err := security.CheckNewPassword(in.NewPassword, in.ConfirmPassword); err != nil {
		app.WriteError(c, err)
		return
	}
	hash, err := security.HashPassword(in.NewPassword)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	if err := ac.Repo.SetPasswordHash(ctx, who, who.UserID, hash); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
