package controllers_test

import (
	"net/http"
	"testing"

	"gamelend/app/apptest"
	"gamelend/controllers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasskeyLoginBegin(t *testing.T) {
	f := newFixture(t)

	w := f.h.Do(http.MethodPost, "/webauthn/login/begin", map[string]any{"discoverable": true}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := apptest.Decode(t, w)
	sid, _ := body["sessionId"].(string)
	require.NotEmpty(t, sid)
	assert.NotNil(t, body["options"])
	assert.Contains(t, f.h.Mem.Keys(), "webauthn:auth:"+sid)

	// ann has no passkey yet and nobody does not exist; both look the same
	noPasskey := f.h.Do(http.MethodPost, "/webauthn/login/begin", map[string]any{"username": "ann"}, "")
	unknown := f.h.Do(http.MethodPost, "/webauthn/login/begin", map[string]any{"username": "nobody"}, "")
	assert.Equal(t, http.StatusUnauthorized, noPasskey.Code)
	assert.Equal(t, noPasskey.Code, unknown.Code)
	assert.Equal(t, noPasskey.Body.String(), unknown.Body.String())
	assert.Equal(t, controllers.MsgNoPasskey, apptest.Decode(t, unknown)["error"].(map[string]any)["message"])
}

func TestPasskeyLoginFinishNeedsCeremony(t *testing.T) {
	f := newFixture(t)

	w := f.h.Do(http.MethodPost, "/webauthn/login/finish", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.h.Do(http.MethodPost, "/webauthn/login/finish?sessionId=unknown", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, apptest.SessionCookie(w))
}

func TestPasskeyLoginFinishRejectsBadAssertion(t *testing.T) {
	f := newFixture(t)
	w := f.h.Do(http.MethodPost, "/webauthn/login/begin", map[string]any{"discoverable": true}, "")
	require.Equal(t, http.StatusOK, w.Code)
	sid := apptest.Decode(t, w)["sessionId"].(string)

	w = f.h.Do(http.MethodPost, "/webauthn/login/finish?sessionId="+sid, `{"id":"bogus"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, apptest.SessionCookie(w))
	// the ceremony is spent
	assert.NotContains(t, f.h.Mem.Keys(), "webauthn:auth:"+sid)
}

func TestAddCredentialCeremony(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.h.Do(http.MethodPost, "/api/credentials/add/begin", nil, "").Code)

	w := f.h.Do(http.MethodPost, "/api/credentials/add/finish", `{}`, f.annSID)
	assert.Equal(t, http.StatusBadRequest, w.Code, "finish without begin")

	w = f.h.Do(http.MethodPost, "/api/credentials/add/begin", nil, f.annSID)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, apptest.Decode(t, w)["opts"])
	assert.Contains(t, f.h.Mem.Keys(), "webauthn:reg:"+f.ann.ID)

	w = f.h.Do(http.MethodPost, "/api/credentials/add/finish", `{"id":"bogus"}`, f.annSID)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	n, err := f.h.App.Repo.CountCredentials(t.Context(), f.ann.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
