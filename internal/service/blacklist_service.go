package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
)

type blacklistStore interface {
	Add(ctx context.Context, entry *models.BlacklistEntry) error
	Remove(ctx context.Context, supervisorID, doerID string) error
	List(ctx context.Context, supervisorID string) ([]models.BlacklistEntry, error)
}

// BlacklistService lets supervisors bar doers from their projects.
type BlacklistService struct {
	store     blacklistStore
	users     userLookup
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBlacklistService constructs the service.
func NewBlacklistService(store blacklistStore, users userLookup, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *BlacklistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlacklistService{store: store, users: users, audit: audit, validator: validate, logger: logger}
}

// Add bars the doer. Later assignment attempts fail with DOER_BLACKLISTED.
func (s *BlacklistService) Add(ctx context.Context, actor Actor, req dto.BlacklistRequest) (*models.BlacklistEntry, error) {
	if err := requireSupervisor(actor); err != nil {
		return nil, err
	}
	req.DoerID = strings.TrimSpace(req.DoerID)
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if s.users != nil {
		user, err := s.users.FindByID(ctx, req.DoerID)
		if err != nil || user == nil || user.Role != models.RoleDoer {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doer not found")
		}
	}

	entry := &models.BlacklistEntry{SupervisorID: actor.UserID, DoerID: req.DoerID, Reason: req.Reason}
	if err := s.store.Add(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update blacklist")
	}
	s.record(ctx, actor, "add", entry)
	return entry, nil
}

// Remove lifts the bar. Removing an absent entry succeeds.
func (s *BlacklistService) Remove(ctx context.Context, actor Actor, doerID string) error {
	if err := requireSupervisor(actor); err != nil {
		return err
	}
	doerID = strings.TrimSpace(doerID)
	if doerID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "doer id is required")
	}
	if err := s.store.Remove(ctx, actor.UserID, doerID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update blacklist")
	}
	s.record(ctx, actor, "remove", &models.BlacklistEntry{SupervisorID: actor.UserID, DoerID: doerID})
	return nil
}

// List returns the supervisor's entries.
func (s *BlacklistService) List(ctx context.Context, actor Actor) ([]models.BlacklistEntry, error) {
	if err := requireSupervisor(actor); err != nil {
		return nil, err
	}
	entries, err := s.store.List(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list blacklist")
	}
	if entries == nil {
		entries = []models.BlacklistEntry{}
	}
	return entries, nil
}

func (s *BlacklistService) record(ctx context.Context, actor Actor, op string, entry *models.BlacklistEntry) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(map[string]string{"op": op, "doer_id": entry.DoerID, "reason": entry.Reason})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     lo.ToPtr(actor.UserID),
		Action:     models.AuditActionBlacklistUpdate,
		Resource:   "doer_blacklist",
		ResourceID: lo.ToPtr(entry.DoerID),
		NewValues:  values,
		IPAddress:  "system",
		UserAgent:  "blacklist-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func requireSupervisor(actor Actor) error {
	if actor.Role != workflow.RoleSupervisor || actor.UserID == "" {
		return appErrors.Clone(appErrors.ErrForbidden, "only supervisors manage the doer blacklist")
	}
	return nil
}
