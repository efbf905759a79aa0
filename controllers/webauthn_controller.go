package controllers

import (
	"context"
	"errors"
	"net/http"

	"gamelend/app"
	"gamelend/apperr"
	"gamelend/models"
	"gamelend/session"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// PasskeyController handles passkey enrolment for signed-in users and
// passwordless sign-in.
type PasskeyController struct{ *Srv }

func NewPasskeyController(s *Srv) *PasskeyController { return &PasskeyController{Srv: s} }

var regOptions = []webauthn.RegistrationOption{
	webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
		UserVerification: protocol.VerificationRequired,
	}),
}

// ===== enrolment (signed in) =====

// POST /api/credentials/add/begin
func (pc *PasskeyController) BeginAddCredential(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	wUser, err := pc.loadWAUserByID(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	opts, sd, err := pc.WA.BeginRegistration(wUser, append(regOptions, webauthn.WithExclusions(exclusions(wUser.creds)))...)
	if err != nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeInternal, err, "begin registration failed"))
		return
	}
	if err := pc.Ceremonies.SaveReg(ctx, who.UserID, sd); err != nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeDependency, err, "session store unavailable"))
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

// POST /api/credentials/add/finish
func (pc *PasskeyController) FinishAddCredential(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	wUser, err := pc.loadWAUserByID(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, err)
		return
	}
	sd, err := pc.Ceremonies.LoadReg(ctx, who.UserID)
	if err != nil {
		app.WriteError(c, ceremonyErr(err))
		return
	}
	cred, err := pc.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeValidation, err, "passkey registration failed"))
		return
	}
	if err := pc.Repo.AddCredential(ctx, &models.Credential{
		UserID:          who.UserID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}); err != nil {
		app.WriteError(c, err)
		return
	}
	pc.Ceremonies.DelReg(ctx, who.UserID)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== sign-in =====

type loginBeginReq struct {
	Username     string `json:"username"`
	Discoverable bool   `json:"discoverable"`
}

type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

// POST /webauthn/login/begin
func (pc *PasskeyController) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if !app.BindJSON(c, &req) {
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable || req.Username == "" {
		opts, sd, err = pc.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		// Unknown accounts and accounts without a passkey get the same answer.
		u, ferr := pc.Repo.FindUserByLogin(ctx, req.Username)
		if apperr.IsCode(ferr, apperr.CodeNotFound) {
			app.WriteError(c, apperr.New(apperr.CodeUnauthorized, MsgNoPasskey))
			return
		}
		if ferr != nil {
			app.WriteError(c, ferr)
			return
		}
		wUser, lerr := pc.loadWAUserByID(ctx, u.ID)
		if lerr != nil {
			app.WriteError(c, lerr)
			return
		}
		if len(wUser.creds) == 0 {
			app.WriteError(c, apperr.New(apperr.CodeUnauthorized, MsgNoPasskey))
			return
		}
		opts, sd, err = pc.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeInternal, err, "begin login failed"))
		return
	}

	sid := uuid.NewString()
	if err := pc.Ceremonies.SaveAuth(ctx, sid, sd); err != nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeDependency, err, "session store unavailable"))
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

// POST /webauthn/login/finish?sessionId=...[&username=...]
func (pc *PasskeyController) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		app.WriteError(c, apperr.Validation("missing sessionId"))
		return
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	sd, err := pc.Ceremonies.LoadAuth(ctx, sid)
	if err != nil {
		app.WriteError(c, ceremonyErr(err))
		return
	}
	// a ceremony is single use, whatever the outcome
	defer pc.Ceremonies.DelAuth(ctx, sid)

	var (
		wUser *waUser
		cred  *webauthn.Credential
	)
	if username := c.Query("username"); username != "" {
		u, ferr := pc.Repo.FindUserByLogin(ctx, username)
		if ferr != nil {
			app.WriteError(c, apperr.New(apperr.CodeUnauthorized, "passkey login failed"))
			return
		}
		if wUser, err = pc.loadWAUserByID(ctx, u.ID); err != nil {
			app.WriteError(c, err)
			return
		}
		cred, err = pc.WA.FinishLogin(wUser, *sd, c.Request)
	} else {
		var found webauthn.User
		found, cred, err = pc.WA.FinishPasskeyLogin(pc.discoverableHandler(ctx), *sd, c.Request)
		if err == nil {
			wUser, _ = found.(*waUser)
		}
	}
	if err != nil || wUser == nil {
		app.WriteError(c, apperr.Wrap(apperr.CodeUnauthorized, err, "passkey login failed"))
		return
	}
	if !wUser.user.IsActive() {
		app.WriteError(c, apperr.Forbidden(MsgAccountDisabled))
		return
	}

	if err := pc.Repo.MarkCredentialUsed(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning); err != nil {
		pc.Log.Error(ctx, "credential.mark_used_failed", err)
	}
	if err := pc.issueSession(c, ctx, wUser.user.ID); err != nil {
		app.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "user": wUser.user, "displayName": wUser.user.DisplayName()})
}

func (pc *PasskeyController) discoverableHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(rawID, _ []byte) (webauthn.User, error) {
		u, _, err := pc.Repo.FindUserByCredentialID(ctx, rawID)
		if err != nil {
			return nil, protocol.ErrBadRequest.WithDetails("credential not found")
		}
		return pc.loadWAUserByID(ctx, u.ID)
	}
}

func exclusions(creds []webauthn.Credential) []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Descriptor())
	}
	return out
}

func ceremonyErr(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return apperr.Validation("ceremony expired or invalid")
	}
	return apperr.Wrap(apperr.CodeDependency, err, "session store unavailable")
}
