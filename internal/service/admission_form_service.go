package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/pkg/bus"
	"github.com/noah-isme/sma-admission-api/pkg/clock"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type admissionFormRepository interface {
	Create(ctx context.Context, form *models.AdmissionForm) error
	FindByID(ctx context.Context, id int64) (*models.AdmissionForm, error)
	ExistsOpen(ctx context.Context, termItemID, studentID int64) (bool, error)
	Update(ctx context.Context, form *models.AdmissionForm, expected models.AdmissionFormStatus) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]int64, error)
}

type termItemReader interface {
	FindItemByID(ctx context.Context, id int64) (*models.TermItem, error)
}

type studentDirectory interface {
	StudentName(ctx context.Context, id int64) string
}

// AdmissionFormService drives the approval and payment lifecycle of admission forms.
type AdmissionFormService struct {
	repo      admissionFormRepository
	items     termItemReader
	directory studentDirectory
	clock     clock.Clock
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdmissionFormService creates the form lifecycle service.
func NewAdmissionFormService(repo admissionFormRepository, items termItemReader, directory studentDirectory, clk clock.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AdmissionFormService {
	if clk == nil {
		clk = clock.Real{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionFormService{repo: repo, items: items, directory: directory, clock: clk, metrics: metrics, validator: validate, logger: logger}
}

// Submit registers a form against an open term item.
func (s *AdmissionFormService) Submit(ctx context.Context, req dto.SubmitAdmissionFormRequest) (*models.AdmissionForm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission form payload")
	}

	item, err := s.items.FindItemByID(ctx, req.TermItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission term item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission term item")
	}
	if !item.IsOpen() {
		return nil, appErrors.Clone(appErrors.ErrWindowClosed, "admission window is not open")
	}

	exists, err := s.repo.ExistsOpen(ctx, req.TermItemID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing admission forms")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an admission form in progress for this window")
	}

	studentName := models.UnknownIdentity
	if s.directory != nil {
		studentName = s.directory.StudentName(ctx, req.StudentID)
	}

	form := &models.AdmissionForm{
		TermItemID:  req.TermItemID,
		StudentID:   req.StudentID,
		ParentID:    req.ParentID,
		StudentName: studentName,
		ClassIDs:    append([]int64{}, req.ClassIDs...),
		Status:      models.FormStatusWaitingForApprove,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, form); err != nil {
		if errors.Is(err, repository.ErrOpenFormExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an admission form in progress for this window")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit admission form")
	}
	s.metrics.RecordFormTransition(string(form.Status), 1)
	return form, nil
}

// Get returns a form by id.
func (s *AdmissionFormService) Get(ctx context.Context, id int64) (*models.AdmissionForm, error) {
	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission form")
	}
	return form, nil
}

// Decide approves or rejects a form.
func (s *AdmissionFormService) Decide(ctx context.Context, id int64, req dto.DecideAdmissionFormRequest) (*models.AdmissionForm, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if action != dto.DecisionApprove && action != dto.DecisionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be approve or reject")
	}

	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := form.Status

	switch action {
	case dto.DecisionApprove:
		if previous != models.FormStatusWaitingForApprove {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only forms waiting for approval can be approved")
		}
		var deadline time.Time
		if item, err := s.items.FindItemByID(ctx, form.TermItemID); err == nil {
			deadline = item.EndDate
		}
		form.Approve(s.clock.Now(), deadline)
	case dto.DecisionReject:
		if previous.IsTerminal() || previous == models.FormStatusPaymentInProgress {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "admission form can no longer be rejected")
		}
		form.Reject(strings.TrimSpace(req.Reason))
	}

	if err := s.save(ctx, form, previous); err != nil {
		return nil, err
	}
	return form, nil
}

// BeginPayment hands an approved form to the payment gateway.
func (s *AdmissionFormService) BeginPayment(ctx context.Context, id int64, req dto.BeginPaymentRequest) (*models.AdmissionForm, error) {
	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if form.Status != models.FormStatusWaitingForPayment {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "admission form is not waiting for payment")
	}
	txnRef := strings.TrimSpace(req.TxnRef)
	if txnRef == "" {
		txnRef = uuid.NewString()
	}
	form.BeginPayment(txnRef)
	if err := s.save(ctx, form, models.FormStatusWaitingForPayment); err != nil {
		return nil, err
	}
	return form, nil
}

// CompensatePayment reverts a form stuck in payment_in_progress back to
// waiting_for_payment. Any other status, or a missing form, is left untouched.
func (s *AdmissionFormService) CompensatePayment(ctx context.Context, id int64) (bool, error) {
	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission form")
	}
	if form.Status != models.FormStatusPaymentInProgress {
		return false, nil
	}
	form.RevertPayment()
	updated, err := s.repo.Update(ctx, form, models.FormStatusPaymentInProgress)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert admission form payment")
	}
	if updated {
		s.metrics.RecordFormTransition(string(form.Status), 1)
	}
	return updated, nil
}

// ExpireOverdue moves waiting forms whose window has ended to over_due_date.
func (s *AdmissionFormService) ExpireOverdue(ctx context.Context) (int, error) {
	ids, err := s.repo.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expire overdue admission forms")
	}
	if len(ids) > 0 {
		s.metrics.RecordFormTransition(string(models.FormStatusOverDueDate), len(ids))
		s.logger.Info("admission forms expired", zap.Int("count", len(ids)), zap.Int64s("form_ids", ids))
	}
	return len(ids), nil
}

// ExpireTick adapts ExpireOverdue to a periodic job.
func (s *AdmissionFormService) ExpireTick(ctx context.Context) error {
	_, err := s.ExpireOverdue(ctx)
	return err
}

// HandleClassProcessResult records which classes hold a seat once the saga has run.
// Forms that already reached a terminal status are left untouched.
func (s *AdmissionFormService) HandleClassProcessResult(ctx context.Context, event dto.ClassProcessResultEvent) error {
	form, err := s.repo.FindByID(ctx, event.AdmissionFormID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("class result for unknown admission form", zap.Int64("form_id", event.AdmissionFormID))
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission form")
	}

	previous := form.Status
	if previous != models.FormStatusPaymentInProgress && previous != models.FormStatusWaitingForPayment {
		s.logger.Info("ignoring class result for settled admission form",
			zap.Int64("form_id", form.ID), zap.String("status", string(previous)))
		return nil
	}
	if event.TxnRef != "" {
		ref := event.TxnRef
		form.TxnRef = &ref
	}

	form.CompleteEnrollment(event.SuccessfulClassIDs, event.Reason)
	updated, err := s.repo.Update(ctx, form, previous)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record class result")
	}
	if updated {
		s.metrics.RecordFormTransition(string(form.Status), 1)
		s.logger.Info("admission form settled",
			zap.Int64("form_id", form.ID),
			zap.String("status", string(form.Status)),
			zap.Int64s("enrolled", event.SuccessfulClassIDs),
			zap.Int64s("failed", event.FailedClassIDs),
		)
	}
	return nil
}

// ClassResultHandler adapts HandleClassProcessResult to a bus subscription.
func (s *AdmissionFormService) ClassResultHandler() bus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		var event dto.ClassProcessResultEvent
		if err := msg.Decode(&event); err != nil {
			s.logger.Error("discarding undecodable class result", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return s.HandleClassProcessResult(ctx, event)
	}
}

func (s *AdmissionFormService) save(ctx context.Context, form *models.AdmissionForm, expected models.AdmissionFormStatus) error {
	updated, err := s.repo.Update(ctx, form, expected)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission form")
	}
	if !updated {
		return appErrors.Clone(appErrors.ErrConflict, "admission form changed concurrently")
	}
	s.metrics.RecordFormTransition(string(form.Status), 1)
	return nil
}
