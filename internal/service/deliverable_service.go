package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/storage"
)

type deliverableStore interface {
	Create(ctx context.Context, deliverable *models.Deliverable) (*models.Deliverable, bool, error)
	GetByID(ctx context.Context, id string) (*models.Deliverable, error)
	GetByKey(ctx context.Context, projectID, key string) (*models.Deliverable, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Deliverable, error)
	CountForRound(ctx context.Context, projectID string, round int) (int, error)
}

type projectViewer interface {
	Get(ctx context.Context, actor Actor, projectID string) (*models.Project, error)
}

type downloadSigner interface {
	Generate(subject, key string) (string, time.Time, error)
	Parse(token string) (storage.Grant, error)
}

// DeliverableServiceConfig tunes upload limits.
type DeliverableServiceConfig struct {
	MaxUploadBytes   int64
	AllowedMIMETypes []string
	// DownloadPath prefixes signed tokens in download URLs.
	DownloadPath string
}

// DeliverableServiceParams groups constructor dependencies.
type DeliverableServiceParams struct {
	Lifecycle *Lifecycle
	Projects  projectViewer
	Store     deliverableStore
	Objects   storage.ObjectStore
	Signer    downloadSigner
	Logger    *zap.Logger
	Config    DeliverableServiceConfig
}

// DeliverableService stores work files and hands rounds over to quality control.
type DeliverableService struct {
	lifecycle *Lifecycle
	projects  projectViewer
	store     deliverableStore
	objects   storage.ObjectStore
	signer    downloadSigner
	logger    *zap.Logger
	cfg       DeliverableServiceConfig
}

var uploadStatuses = []models.ProjectStatus{
	models.ProjectStatusAssigned,
	models.ProjectStatusInProgress,
	models.ProjectStatusInRevision,
}

var reviewStatuses = []models.ProjectStatus{
	models.ProjectStatusSubmittedForQC,
	models.ProjectStatusQCInProgress,
}

// NewDeliverableService constructs the service.
func NewDeliverableService(params DeliverableServiceParams) *DeliverableService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/deliverables/download/"
	}
	return &DeliverableService{
		lifecycle: params.Lifecycle,
		projects:  params.Projects,
		store:     params.Store,
		objects:   params.Objects,
		signer:    params.Signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Upload stores a file for the current work round. The first upload of an
// assigned project starts the work.
func (s *DeliverableService) Upload(ctx context.Context, actor Actor, projectID string, req dto.UploadDeliverableRequest, body io.Reader) (*models.Deliverable, error) {
	if actor.Role != workflow.RoleDoer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned doer can upload deliverables")
	}
	fileName := path.Base(strings.ReplaceAll(strings.TrimSpace(req.FileName), "\\", "/"))
	if fileName == "" || fileName == "." || fileName == "/" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if req.SizeBytes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if req.SizeBytes > s.cfg.MaxUploadBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	if len(s.cfg.AllowedMIMETypes) > 0 && !lo.Contains(s.cfg.AllowedMIMETypes, req.MimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %q is not accepted", req.MimeType))
	}

	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()

	project, err := s.lifecycle.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if lo.FromPtr(project.DoerID) != actor.UserID {
		return nil, workflow.NotParty(project.Status, workflow.ActionSubmitWork, actor.Role)
	}
	if !lo.Contains(uploadStatuses, project.Status) {
		return nil, workflow.WithState(
			appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot upload deliverables while project is %s", project.Status)),
			project.Status, workflow.ActionSubmitWork, actor.Role)
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	} else {
		existing, err := s.store.GetByKey(ctx, project.ID, key)
		switch {
		case err == nil:
			return existing, nil
		case !errors.Is(err, sql.ErrNoRows):
			return nil, s.lifecycle.fail(ctx, err)
		}
	}

	// Objects are named by deliverable id so a replay never overwrites stored bytes.
	id := uuid.NewString()
	round := project.RevisionCount + 1
	objectKey := fmt.Sprintf("projects/%s/%d/%s-%s", project.ID, round, id, fileName)
	if err := s.objects.Put(ctx, objectKey, body, req.SizeBytes, req.MimeType); err != nil {
		return nil, s.lifecycle.fail(ctx, fmt.Errorf("store deliverable: %w", err))
	}

	deliverable, created, err := s.store.Create(ctx, &models.Deliverable{
		ID:             id,
		ProjectID:      project.ID,
		Round:          round,
		FilePath:       objectKey,
		FileName:       fileName,
		MimeType:       req.MimeType,
		SizeBytes:      req.SizeBytes,
		UploadedBy:     actor.UserID,
		IdempotencyKey: key,
	})
	if err != nil {
		if delErr := s.objects.Delete(ctx, objectKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned deliverable", zap.String("key", objectKey), zap.Error(delErr))
		}
		return nil, s.lifecycle.fail(ctx, err)
	}
	if !created {
		// A concurrent upload with the same key won; drop our copy.
		if deliverable.FilePath != objectKey {
			if delErr := s.objects.Delete(ctx, objectKey); delErr != nil {
				s.logger.Warn("failed to remove duplicate deliverable", zap.String("key", objectKey), zap.Error(delErr))
			}
		}
		return deliverable, nil
	}

	if project.Status == models.ProjectStatusAssigned {
		if _, err := s.lifecycle.applyTo(ctx, actor, project, workflow.ActionStartWork, startWorkChange); err != nil &&
			!errors.Is(err, appErrors.ErrStateChanged) {
			s.logger.Warn("first upload did not start work",
				zap.String("project_id", project.ID), zap.String("code", appErrors.CodeOf(err)), zap.Error(err))
		}
	}
	return deliverable, nil
}

// SubmitWork hands the current round to quality control. Retrying with the
// same idempotency key returns the project unchanged.
func (s *DeliverableService) SubmitWork(ctx context.Context, actor Actor, projectID string, req dto.SubmitWorkRequest) (*models.Project, error) {
	key := strings.TrimSpace(req.IdempotencyKey)

	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()

	project, err := s.lifecycle.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if outcome, done, err := s.alreadySubmitted(project, actor, key); done {
		return outcome, err
	}

	updated, err := s.lifecycle.applyTo(ctx, actor, project, workflow.ActionSubmitWork, func(project *models.Project, _ workflow.Transition) (*change, error) {
		count, err := s.store.CountForRound(ctx, project.ID, project.RevisionCount+1)
		if err != nil {
			return nil, s.lifecycle.fail(ctx, err)
		}
		if count == 0 {
			return nil, appErrors.Precondition("NO_DELIVERABLES", "upload at least one file before submitting")
		}
		now := s.lifecycle.now().UTC()
		late := project.LateSubmission || now.After(project.Deadline)
		var submissionKey *string
		if key != "" {
			submissionKey = &key
		}
		return &change{
			set: map[string]interface{}{
				"late_submission": late,
				"submission_key":  submissionKey,
			},
			payload: map[string]interface{}{"round": project.RevisionCount + 1, "files": count, "late": late},
		}, nil
	})
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, appErrors.ErrStateChanged) {
		return nil, err
	}
	current, loadErr := s.lifecycle.load(ctx, projectID)
	if loadErr != nil {
		return nil, err
	}
	if outcome, done, dupErr := s.alreadySubmitted(current, actor, key); done {
		return outcome, dupErr
	}
	return nil, err
}

// alreadySubmitted resolves a submit that arrives while the round is under review.
func (s *DeliverableService) alreadySubmitted(project *models.Project, actor Actor, key string) (*models.Project, bool, error) {
	if !lo.Contains(reviewStatuses, project.Status) || lo.FromPtr(project.DoerID) != actor.UserID {
		return nil, false, nil
	}
	if key != "" && lo.FromPtr(project.SubmissionKey) == key {
		return project, true, nil
	}
	return nil, true, workflow.WithState(
		appErrors.Clone(appErrors.ErrDuplicateSubmission, "this round is already under review"),
		project.Status, workflow.ActionSubmitWork, actor.Role)
}

// List returns the project's files with signed download links.
func (s *DeliverableService) List(ctx context.Context, actor Actor, projectID string) ([]dto.DeliverableResponse, error) {
	if _, err := s.projects.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	deliverables, err := s.store.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list deliverables")
	}
	responses := make([]dto.DeliverableResponse, 0, len(deliverables))
	for _, d := range deliverables {
		resp := dto.DeliverableResponse{
			ID:         d.ID,
			Round:      d.Round,
			FileName:   d.FileName,
			MimeType:   d.MimeType,
			SizeBytes:  d.SizeBytes,
			UploadedBy: d.UploadedBy,
			CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339),
		}
		if s.signer != nil {
			token, _, err := s.signer.Generate(d.ID, d.FilePath)
			if err != nil {
				s.logger.Warn("failed to sign deliverable link", zap.String("deliverable_id", d.ID), zap.Error(err))
			} else {
				resp.DownloadURL = s.cfg.DownloadPath + token
			}
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// Download resolves a signed token to the stored file.
func (s *DeliverableService) Download(ctx context.Context, token string) (*models.Deliverable, io.ReadCloser, error) {
	if s.signer == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "downloads are disabled")
	}
	grant, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "download link is invalid or expired")
	}
	deliverable, err := s.store.GetByID(ctx, grant.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "deliverable not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deliverable")
	}
	if deliverable.FilePath != grant.Key {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match the file")
	}
	reader, err := s.objects.Get(ctx, deliverable.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "file is no longer available")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open deliverable")
	}
	return deliverable, reader, nil
}
