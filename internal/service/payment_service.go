package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/assignx-api/internal/dto"
	"github.com/noah-isme/assignx-api/internal/models"
	"github.com/noah-isme/assignx-api/internal/workflow"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/settlement"
)

type paymentFlagStore interface {
	Create(ctx context.Context, flag *models.PaymentFlag) error
}

// PaymentService reconciles payment confirmations against stored quotes.
type PaymentService struct {
	lifecycle *Lifecycle
	flags     paymentFlagStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment collaborator.
func NewPaymentService(lifecycle *Lifecycle, flags paymentFlagStore, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{lifecycle: lifecycle, flags: flags, validator: validate, logger: logger}
}

// ConfirmPayment moves a payment_pending project to paid when the amount
// matches its quote, locking the split. A repeated confirmation carrying the
// same reference is a no-op; a mismatch is flagged and rejected.
func (s *PaymentService) ConfirmPayment(ctx context.Context, req dto.PaymentConfirmation) (*models.Project, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}

	ctx, cancel := s.lifecycle.withTimeout(ctx)
	defer cancel()

	project, err := s.lifecycle.load(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if workflow.AtOrBeyondPaid(project.Status) && lo.FromPtr(project.PaymentReference) == req.Reference {
		return project, nil
	}

	return s.lifecycle.applyTo(ctx, SystemActor, project, workflow.ActionConfirmPayment, func(project *models.Project, _ workflow.Transition) (*change, error) {
		if project.ClientQuote == nil {
			return nil, appErrors.Precondition("SETTLEMENT_MISSING", "project has not been quoted")
		}
		if req.Amount != *project.ClientQuote {
			s.flagMismatch(ctx, project, req)
			return nil, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrPaymentMismatch, "payment amount does not match the quote"),
				map[string]interface{}{"expected": *project.ClientQuote, "received": req.Amount},
			)
		}
		split, err := settlement.Split(*project.ClientQuote)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to split quote")
		}
		return &change{
			set: map[string]interface{}{
				"client_quote":          split.ClientQuote,
				"doer_payout":           split.DoerPayout,
				"supervisor_commission": split.SupervisorCommission,
				"platform_fee":          split.PlatformFee,
				"price_locked":          true,
				"paid_at":               s.lifecycle.now().UTC(),
				"payment_reference":     req.Reference,
			},
			payload: map[string]interface{}{"amount": req.Amount, "reference": req.Reference},
		}, nil
	})
}

func (s *PaymentService) flagMismatch(ctx context.Context, project *models.Project, req dto.PaymentConfirmation) {
	s.logger.Warn("payment amount mismatch",
		zap.String("project_id", project.ID),
		zap.Int64("expected", *project.ClientQuote),
		zap.Int64("received", req.Amount),
		zap.String("reference", req.Reference),
	)
	if s.flags == nil {
		return
	}
	if err := s.flags.Create(ctx, &models.PaymentFlag{
		ProjectID:        project.ID,
		ExpectedAmount:   *project.ClientQuote,
		ReceivedAmount:   req.Amount,
		PaymentReference: req.Reference,
	}); err != nil {
		s.logger.Error("failed to persist payment flag", zap.String("project_id", project.ID), zap.Error(err))
	}
}
