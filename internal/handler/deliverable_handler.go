package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/service"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

// IdempotencyKeyHeader deduplicates retried uploads and submissions.
const IdempotencyKeyHeader = "Idempotency-Key"

type deliverableService interface {
	Upload(ctx context.Context, actor service.Actor, projectID string, req dto.UploadDeliverableRequest, body io.Reader) (*models.Deliverable, error)
	SubmitWork(ctx context.Context, actor service.Actor, projectID string, req dto.SubmitWorkRequest) (*models.Project, error)
	List(ctx context.Context, actor service.Actor, projectID string) ([]dto.DeliverableResponse, error)
	Download(ctx context.Context, token string) (*models.Deliverable, io.ReadCloser, error)
}

// DeliverableHandler handles work files.
type DeliverableHandler struct {
	service  deliverableService
	maxBytes int64
}

// NewDeliverableHandler constructs the handler. maxBytes bounds the multipart body.
func NewDeliverableHandler(svc deliverableService, maxBytes int64) *DeliverableHandler {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &DeliverableHandler{service: svc, maxBytes: maxBytes}
}

// Upload godoc
// @Summary Upload a deliverable for the current round
// @Tags Deliverables
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Project ID"
// @Param file formData file true "Deliverable"
// @Param Idempotency-Key header string false "Deduplication key"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /projects/{id}/deliverables [post]
func (h *DeliverableHandler) Upload(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	// multipart framing adds a little on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+(1<<20))
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read file"))
		return
	}
	defer file.Close()

	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(c.PostForm("idempotencyKey"))
	}
	req := dto.UploadDeliverableRequest{
		FileName:       header.Filename,
		MimeType:       header.Header.Get("Content-Type"),
		SizeBytes:      header.Size,
		IdempotencyKey: key,
	}
	deliverable, err := h.service.Upload(c.Request.Context(), actor, projectID(c), req, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, deliverable)
}

// List godoc
// @Summary List deliverables with signed download links
// @Tags Deliverables
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/deliverables [get]
func (h *DeliverableHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.List(c.Request.Context(), actor, projectID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// SubmitWork godoc
// @Summary Hand the current round to quality control
// @Tags Deliverables
// @Accept json
// @Param id path string true "Project ID"
// @Param payload body dto.SubmitWorkRequest false "Idempotency key"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/submit-work [post]
func (h *DeliverableHandler) SubmitWork(c *gin.Context) {
	var req dto.SubmitWorkRequest
	if !bindOptionalJSON(c, &req, "invalid submission payload") {
		return
	}
	if key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = key
	}
	runTransition(c, func(ctx context.Context, actor service.Actor, id string) (*models.Project, error) {
		return h.service.SubmitWork(ctx, actor, id, req)
	})
}

// Download godoc
// @Summary Download a deliverable through a signed link
// @Tags Deliverables
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /deliverables/download/{token} [get]
func (h *DeliverableHandler) Download(c *gin.Context) {
	deliverable, reader, err := h.service.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", deliverable.FileName))
	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, deliverable.SizeBytes, deliverable.MimeType, reader, nil)
}
