package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/middleware"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type fakeDeliverableSrv struct {
	lastUpload  dto.UploadDeliverableRequest
	lastBody    string
	lastSubmit  dto.SubmitWorkRequest
	downloadErr error
}

func (f *fakeDeliverableSrv) Upload(_ context.Context, _ service.Actor, projectID string, req dto.UploadDeliverableRequest, body io.Reader) (*models.Deliverable, error) {
	f.lastUpload = req
	data, _ := io.ReadAll(body)
	f.lastBody = string(data)
	return &models.Deliverable{ID: "d1", ProjectID: projectID, FileName: req.FileName}, nil
}

func (f *fakeDeliverableSrv) SubmitWork(_ context.Context, _ service.Actor, projectID string, req dto.SubmitWorkRequest) (*models.Project, error) {
	f.lastSubmit = req
	return &models.Project{ID: projectID, Status: models.ProjectStatusSubmittedForQC}, nil
}

func (f *fakeDeliverableSrv) List(context.Context, service.Actor, string) ([]dto.DeliverableResponse, error) {
	return []dto.DeliverableResponse{{ID: "d1", DownloadURL: "/api/v1/deliverables/download/tok"}}, nil
}

func (f *fakeDeliverableSrv) Download(_ context.Context, token string) (*models.Deliverable, io.ReadCloser, error) {
	if f.downloadErr != nil {
		return nil, nil, f.downloadErr
	}
	return &models.Deliverable{FileName: "essay.pdf", MimeType: "application/pdf", SizeBytes: 5}, io.NopCloser(strings.NewReader("draft")), nil
}

func multipartUpload(t *testing.T, fileName, contents string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestDeliverableHandlerUploadReadsMultipart(t *testing.T) {
	srv := &fakeDeliverableSrv{}
	handler := NewDeliverableHandler(srv, 1<<20)
	body, contentType := multipartUpload(t, "essay.pdf", "draft")

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/projects/p1/deliverables", body)
	c.Request.Header.Set("Content-Type", contentType)
	c.Request.Header.Set(IdempotencyKeyHeader, "k1")
	c.Params = gin.Params{idParam}
	c.Set(middleware.ContextUserKey, doerClaims)

	handler.Upload(c)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "essay.pdf", srv.lastUpload.FileName)
	assert.Equal(t, "application/pdf", srv.lastUpload.MimeType)
	assert.Equal(t, int64(5), srv.lastUpload.SizeBytes)
	assert.Equal(t, "k1", srv.lastUpload.IdempotencyKey)
	assert.Equal(t, "draft", srv.lastBody)
}

func TestDeliverableHandlerUploadRequiresFile(t *testing.T) {
	handler := NewDeliverableHandler(&fakeDeliverableSrv{}, 0)
	c, rec := testContext(http.MethodPost, "/projects/p1/deliverables", `{}`, doerClaims, idParam)

	handler.Upload(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeliverableHandlerSubmitWorkPrefersHeaderKey(t *testing.T) {
	srv := &fakeDeliverableSrv{}
	handler := NewDeliverableHandler(srv, 0)
	c, rec := testContext(http.MethodPost, "/projects/p1/submit-work", `{"idempotencyKey":"body-key"}`, doerClaims, idParam)
	c.Request.Header.Set(IdempotencyKeyHeader, "header-key")

	handler.SubmitWork(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "header-key", srv.lastSubmit.IdempotencyKey)
}

func TestDeliverableHandlerDownload(t *testing.T) {
	srv := &fakeDeliverableSrv{}
	handler := NewDeliverableHandler(srv, 0)
	c, rec := testContext(http.MethodGet, "/deliverables/download/tok", "", nil, gin.Param{Key: "token", Value: "tok"})

	handler.Download(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "draft", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="essay.pdf"`)

	srv.downloadErr = appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	c, rec = testContext(http.MethodGet, "/deliverables/download/bad", "", nil, gin.Param{Key: "token", Value: "bad"})
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
