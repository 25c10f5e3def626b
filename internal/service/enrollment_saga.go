package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/pkg/bus"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/tracing"
)

// ReasonAllOK is reported when every requested class was enrolled.
const ReasonAllOK = "All OK"

const reasonNoActiveTerm = "no active admission term"

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type sagaTermLedger interface {
	FindActive(ctx context.Context, exec sqlx.ExtContext) (*models.AdmissionTerm, error)
	IncrementRegistered(ctx context.Context, exec sqlx.ExtContext, termID int64, n int) (bool, error)
	FindItemForForm(ctx context.Context, exec sqlx.ExtContext, formID int64) (*models.TermItem, error)
	IncrementItemRegistered(ctx context.Context, exec sqlx.ExtContext, itemID int64, n int) (bool, error)
}

type seatLedger interface {
	ReserveSeat(ctx context.Context, exec sqlx.ExtContext, classID int64, capacity int) (bool, error)
}

type paymentLedger interface {
	Claim(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string) (bool, error)
	SaveResult(ctx context.Context, exec sqlx.ExtContext, formID int64, txnRef string, payload types.JSONText) error
	Find(ctx context.Context, formID int64, txnRef string) (*models.ProcessedPayment, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, stream string, event interface{}) error
}

type paymentCompensator interface {
	CompensatePayment(ctx context.Context, id int64) (bool, error)
}

// EnrollmentSagaConfig carries the saga's capacity and topology settings.
type EnrollmentSagaConfig struct {
	ClassCapacity int
	ResultStream  string
}

// EnrollmentSaga reconciles payment outcomes with class seats and term registrations.
type EnrollmentSaga struct {
	tx          txProvider
	terms       sagaTermLedger
	seats       seatLedger
	payments    paymentLedger
	publisher   eventPublisher
	compensator paymentCompensator
	cfg         EnrollmentSagaConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewEnrollmentSaga wires the saga coordinator.
func NewEnrollmentSaga(
	tx txProvider,
	terms sagaTermLedger,
	seats seatLedger,
	payments paymentLedger,
	publisher eventPublisher,
	compensator paymentCompensator,
	cfg EnrollmentSagaConfig,
	metrics *MetricsService,
	logger *zap.Logger,
) *EnrollmentSaga {
	if cfg.ClassCapacity <= 0 {
		cfg.ClassCapacity = models.DefaultClassCapacity
	}
	if cfg.ResultStream == "" {
		cfg.ResultStream = "classes.process_result"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentSaga{
		tx:          tx,
		terms:       terms,
		seats:       seats,
		payments:    payments,
		publisher:   publisher,
		compensator: compensator,
		cfg:         cfg,
		metrics:     metrics,
		validator:   validator.New(),
		logger:      logger,
		tracer:      tracing.Tracer(),
	}
}

type seatOutcome struct {
	full     []int64
	missing  []int64
	termFull []int64
	noTerm   bool
}

// HandlePaymentSuccess reserves a seat in every paid class that still has room, bumps the
// registrations of the active term and the form's grade window once per success and
// publishes the result. A redelivered event republishes the stored result without touching
// any counter.
func (s *EnrollmentSaga) HandlePaymentSuccess(ctx context.Context, event dto.PaymentSuccessEvent) (result *dto.ClassProcessResultEvent, err error) {
	ctx, span := s.tracer.Start(ctx, "enrollment.payment_success", trace.WithAttributes(
		attribute.Int64("admission_form.id", event.AdmissionFormID),
		attribute.String("payment.txn_ref", event.TxnRef),
		attribute.Int("payment.class_count", len(event.ClassIDs)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.validator.Struct(event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment success event")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin enrollment transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	claimed, err := s.payments.Claim(ctx, tx, event.AdmissionFormID, event.TxnRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim payment")
	}
	if !claimed {
		if err = tx.Rollback(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release enrollment transaction")
		}
		span.SetAttributes(attribute.Bool("enrollment.replayed", true))
		return s.replay(ctx, event)
	}

	result, err = s.reserve(ctx, tx, event)
	if err != nil {
		return nil, err
	}

	payload, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode enrollment result")
		return nil, err
	}
	if err = s.payments.SaveResult(ctx, tx, event.AdmissionFormID, event.TxnRef, types.JSONText(payload)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enrollment result")
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit enrollment transaction")
	}

	span.SetAttributes(
		attribute.Int("enrollment.succeeded", len(result.SuccessfulClassIDs)),
		attribute.Int("enrollment.failed", len(result.FailedClassIDs)),
	)
	s.logger.Info("payment processed",
		zap.Int64("form_id", event.AdmissionFormID),
		zap.String("txn_ref", event.TxnRef),
		zap.Int64s("succeeded", result.SuccessfulClassIDs),
		zap.Int64s("failed", result.FailedClassIDs),
	)

	if err = s.publish(ctx, result); err != nil {
		return result, err
	}
	if result.AllOK() {
		s.metrics.RecordSagaEvent("payment_success", "enrolled")
	} else {
		s.metrics.RecordSagaEvent("payment_success", "partial")
	}
	return result, nil
}

func (s *EnrollmentSaga) reserve(ctx context.Context, tx *sqlx.Tx, event dto.PaymentSuccessEvent) (*dto.ClassProcessResultEvent, error) {
	result := &dto.ClassProcessResultEvent{
		AdmissionFormID:    event.AdmissionFormID,
		SuccessfulClassIDs: []int64{},
		FailedClassIDs:     []int64{},
		TxnRef:             event.TxnRef,
		Amount:             event.Amount,
	}
	classIDs := uniqueIDs(event.ClassIDs)
	var outcome seatOutcome

	term, err := s.terms.FindActive(ctx, tx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active admission term")
		}
		outcome.noTerm = true
		result.FailedClassIDs = append(result.FailedClassIDs, classIDs...)
		result.Reason = describeSeatOutcome(outcome)
		return result, nil
	}

	item, err := s.terms.FindItemForForm(ctx, tx, event.AdmissionFormID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission term item")
	}
	if item != nil && item.AdmissionTermID != term.ID {
		item = nil
	}
	if item == nil {
		s.logger.Warn("admission form is not tied to the active term, counting term registrations only",
			zap.Int64("form_id", event.AdmissionFormID), zap.Int64("term_id", term.ID))
	}

	remaining := term.RemainingSeats()
	if item != nil && item.RemainingSeats() < remaining {
		remaining = item.RemainingSeats()
	}
	for _, classID := range classIDs {
		if remaining <= 0 {
			outcome.termFull = append(outcome.termFull, classID)
			result.FailedClassIDs = append(result.FailedClassIDs, classID)
			s.metrics.RecordSeatOutcome("term_full")
			continue
		}
		reserved, err := s.seats.ReserveSeat(ctx, tx, classID, s.cfg.ClassCapacity)
		switch {
		case errors.Is(err, repository.ErrClassNotFound):
			outcome.missing = append(outcome.missing, classID)
			result.FailedClassIDs = append(result.FailedClassIDs, classID)
			s.metrics.RecordSeatOutcome("missing")
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve class seat")
		case !reserved:
			outcome.full = append(outcome.full, classID)
			result.FailedClassIDs = append(result.FailedClassIDs, classID)
			s.metrics.RecordSeatOutcome("full")
		default:
			remaining--
			result.SuccessfulClassIDs = append(result.SuccessfulClassIDs, classID)
			s.metrics.RecordSeatOutcome("reserved")
		}
	}

	ok, err := s.terms.IncrementRegistered(ctx, tx, term.ID, len(result.SuccessfulClassIDs))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term registrations")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission term registrations exceeded capacity")
	}
	if item != nil {
		ok, err = s.terms.IncrementItemRegistered(ctx, tx, item.ID, len(result.SuccessfulClassIDs))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update term item registrations")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "term item registrations exceeded capacity")
		}
	}
	result.Reason = describeSeatOutcome(outcome)
	return result, nil
}

func (s *EnrollmentSaga) replay(ctx context.Context, event dto.PaymentSuccessEvent) (*dto.ClassProcessResultEvent, error) {
	stored, err := s.payments.Find(ctx, event.AdmissionFormID, event.TxnRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load processed payment")
	}
	var result dto.ClassProcessResultEvent
	if err := json.Unmarshal(stored.Result, &result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode processed payment")
	}
	if result.AdmissionFormID == 0 {
		// Claimed by a concurrent delivery that has not committed its result yet.
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment is still being processed")
	}
	s.logger.Info("payment already processed, republishing result",
		zap.Int64("form_id", event.AdmissionFormID), zap.String("txn_ref", event.TxnRef))
	s.metrics.RecordSagaEvent("payment_success", "duplicate")
	if err := s.publish(ctx, &result); err != nil {
		return &result, err
	}
	return &result, nil
}

func (s *EnrollmentSaga) publish(ctx context.Context, result *dto.ClassProcessResultEvent) error {
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, s.cfg.ResultStream, result); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish class process result")
	}
	return nil
}

// HandlePaymentTimeout compensates a form whose payment never settled.
func (s *EnrollmentSaga) HandlePaymentTimeout(ctx context.Context, event dto.PaymentTimeoutEvent) error {
	ctx, span := s.tracer.Start(ctx, "enrollment.payment_timeout", trace.WithAttributes(
		attribute.Int64("admission_form.id", event.AdmissionFormID),
	))
	defer span.End()

	reverted, err := s.compensator.CompensatePayment(ctx, event.AdmissionFormID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Bool("enrollment.reverted", reverted))
	if reverted {
		s.metrics.RecordSagaEvent("payment_timeout", "reverted")
		s.logger.Info("payment timed out, form reverted", zap.Int64("form_id", event.AdmissionFormID))
		return nil
	}
	s.metrics.RecordSagaEvent("payment_timeout", "ignored")
	return nil
}

// PaymentSuccessHandler adapts HandlePaymentSuccess to a bus subscription.
func (s *EnrollmentSaga) PaymentSuccessHandler() bus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		var event dto.PaymentSuccessEvent
		if err := msg.Decode(&event); err != nil {
			s.logger.Error("discarding undecodable payment success event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		_, err := s.HandlePaymentSuccess(ctx, event)
		if appErrors.IsCode(err, appErrors.ErrValidation.Code) {
			s.logger.Error("discarding invalid payment success event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return err
	}
}

// PaymentTimeoutHandler adapts HandlePaymentTimeout to a bus subscription.
func (s *EnrollmentSaga) PaymentTimeoutHandler() bus.Handler {
	return func(ctx context.Context, msg bus.Message) error {
		var event dto.PaymentTimeoutEvent
		if err := msg.Decode(&event); err != nil {
			s.logger.Error("discarding undecodable payment timeout event", zap.String("message_id", msg.ID), zap.Error(err))
			return nil
		}
		return s.HandlePaymentTimeout(ctx, event)
	}
}

func describeSeatOutcome(outcome seatOutcome) string {
	if outcome.noTerm {
		return reasonNoActiveTerm
	}
	var parts []string
	if len(outcome.missing) > 0 {
		parts = append(parts, "classes not found: "+joinIDs(outcome.missing))
	}
	if len(outcome.full) > 0 {
		parts = append(parts, "classes full: "+joinIDs(outcome.full))
	}
	if len(outcome.termFull) > 0 {
		parts = append(parts, "admission term full: "+joinIDs(outcome.termFull))
	}
	if len(parts) == 0 {
		return ReasonAllOK
	}
	return strings.Join(parts, "; ")
}

func joinIDs(ids []int64) string {
	values := make([]string, len(ids))
	for i, id := range ids {
		values[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(values, ", ")
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
