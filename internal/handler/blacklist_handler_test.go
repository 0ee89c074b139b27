package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
)

type fakeBlacklistSrv struct {
	added   dto.BlacklistRequest
	removed string
}

func (f *fakeBlacklistSrv) Add(_ context.Context, actor service.Actor, req dto.BlacklistRequest) (*models.BlacklistEntry, error) {
	f.added = req
	return &models.BlacklistEntry{SupervisorID: actor.UserID, DoerID: req.DoerID, Reason: req.Reason}, nil
}

func (f *fakeBlacklistSrv) Remove(_ context.Context, _ service.Actor, doerID string) error {
	f.removed = doerID
	return nil
}

func (f *fakeBlacklistSrv) List(context.Context, service.Actor) ([]models.BlacklistEntry, error) {
	return []models.BlacklistEntry{}, nil
}

func TestBlacklistHandlerRoutes(t *testing.T) {
	srv := &fakeBlacklistSrv{}
	handler := NewBlacklistHandler(srv)

	c, rec := testContext(http.MethodPost, "/supervisor/blacklist", `{"doerId":"doer-9","reason":"late twice"}`, supervisorClaims)
	handler.Add(c)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "doer-9", srv.added.DoerID)

	c, rec = testContext(http.MethodGet, "/supervisor/blacklist", "", supervisorClaims)
	handler.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(decode(t, rec).Data))

	c, _ = testContext(http.MethodDelete, "/supervisor/blacklist/doer-9", "", supervisorClaims, gin.Param{Key: "doerId", Value: "doer-9"})
	handler.Remove(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "doer-9", srv.removed)
}
