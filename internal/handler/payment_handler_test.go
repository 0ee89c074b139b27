package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type fakePaymentSrv struct {
	last dto.PaymentConfirmation
	err  error
}

func (f *fakePaymentSrv) ConfirmPayment(_ context.Context, req dto.PaymentConfirmation) (*models.Project, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Project{ID: req.ProjectID, Status: models.ProjectStatusPaid}, nil
}

func TestPaymentHandlerConfirm(t *testing.T) {
	srv := &fakePaymentSrv{}
	handler := NewPaymentHandler(srv)
	c, rec := testContext(http.MethodPost, "/payments/confirm", `{"projectId":"p1","amount":10000,"reference":"pay-1"}`, nil)

	handler.Confirm(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &body))
	assert.Equal(t, "paid", body["status"])
	assert.Equal(t, int64(10000), srv.last.Amount)
}

func TestPaymentHandlerMismatch(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentSrv{err: appErrors.ErrPaymentMismatch})
	c, rec := testContext(http.MethodPost, "/payments/confirm", `{"projectId":"p1","amount":9000,"reference":"pay-1"}`, nil)

	handler.Confirm(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, appErrors.ErrPaymentMismatch.Code, decode(t, rec).Error.Code)
}
