package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/models"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type fakeAuthSrv struct {
	login       models.LoginRequest
	loggedOut   string
	logoutOwner string
}

func (f *fakeAuthSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.login = req
	if req.Password != "password" {
		return nil, appErrors.ErrInvalidCredentials
	}
	return &models.LoginResponse{TokenPair: models.TokenPair{AccessToken: "access", RefreshToken: "refresh"}}, nil
}

func (f *fakeAuthSrv) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.TokenPair, error) {
	return &models.TokenPair{AccessToken: "access-2"}, nil
}

func (f *fakeAuthSrv) Logout(_ context.Context, refreshToken, userID, _, _ string) error {
	f.loggedOut, f.logoutOwner = refreshToken, userID
	return nil
}

func TestAuthHandlerLogin(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)

	c, rec := testContext(http.MethodPost, "/auth/login", `{"email":"c@example.com","password":"password"}`, nil)
	c.Request.Header.Set("User-Agent", "test-agent")
	handler.Login(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test-agent", srv.login.UserAgent)

	c, rec = testContext(http.MethodPost, "/auth/login", `{"email":"c@example.com","password":"nope"}`, nil)
	handler.Login(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = testContext(http.MethodPost, "/auth/login", `not json`, nil)
	handler.Login(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLogoutUsesCaller(t *testing.T) {
	srv := &fakeAuthSrv{}
	handler := NewAuthHandler(srv)

	c, rec := testContext(http.MethodPost, "/auth/logout", `{"refresh_token":"rt"}`, nil)
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, _ = testContext(http.MethodPost, "/auth/logout", `{"refresh_token":"rt"}`, clientClaims)
	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "rt", srv.loggedOut)
	assert.Equal(t, "client-1", srv.logoutOwner)

	c, rec = testContext(http.MethodGet, "/auth/me", "", clientClaims)
	handler.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"client-1","email":"","full_name":"","role":"CLIENT"}`, string(decode(t, rec).Data))
}
