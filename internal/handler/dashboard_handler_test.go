package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type fakeDashboardSrv struct {
	resp      *dto.SupervisorDashboardResponse
	hit       bool
	err       error
	lastActor service.Actor
}

func (f *fakeDashboardSrv) Supervisor(_ context.Context, actor service.Actor) (*dto.SupervisorDashboardResponse, bool, error) {
	f.lastActor = actor
	return f.resp, f.hit, f.err
}

func TestDashboardHandlerSupervisorSuccess(t *testing.T) {
	srv := &fakeDashboardSrv{resp: &dto.SupervisorDashboardResponse{SupervisorID: "sup-1", Active: 3}, hit: true}
	handler := NewDashboardHandler(srv)
	c, rec := testContext(http.MethodGet, "/supervisor/dashboard", "", supervisorClaims)

	handler.Supervisor(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var body dto.SupervisorDashboardResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "sup-1", body.SupervisorID)
	assert.Equal(t, 3, body.Active)
	assert.Equal(t, "sup-1", srv.lastActor.UserID)
}

func TestDashboardHandlerPropagatesForbidden(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{err: appErrors.ErrForbidden})
	c, rec := testContext(http.MethodGet, "/supervisor/dashboard", "", clientClaims)

	handler.Supervisor(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDashboardHandlerWithoutServiceFails(t *testing.T) {
	handler := NewDashboardHandler(nil)
	c, rec := testContext(http.MethodGet, "/supervisor/dashboard", "", supervisorClaims)

	handler.Supervisor(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
