package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/pkg/clock"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type admissionTermRepository interface {
	CreateWithItems(ctx context.Context, term *models.AdmissionTerm) error
	FindByID(ctx context.Context, id int64) (*models.AdmissionTerm, error)
	FindActive(ctx context.Context, exec sqlx.ExtContext) (*models.AdmissionTerm, error)
	FindItemByID(ctx context.Context, id int64) (*models.TermItem, error)
	ListOpenTerms(ctx context.Context) ([]models.AdmissionTerm, error)
	ListOpenItems(ctx context.Context) ([]models.TermItem, error)
	TransitionTerm(ctx context.Context, id int64, from, to models.TermStatus) (bool, error)
	TransitionItem(ctx context.Context, id int64, from, to models.TermStatus) (bool, error)
}

// NextTermStatus returns the status a term or term item should hold at now. A window
// moves pending -> processing once started and processing -> done once ended, one step
// per evaluation; terminal statuses never change.
func NextTermStatus(now, start, end time.Time, current models.TermStatus) models.TermStatus {
	switch current {
	case models.TermStatusPending:
		if !start.After(now) {
			return models.TermStatusProcessing
		}
	case models.TermStatusProcessing:
		if end.Before(now) {
			return models.TermStatusDone
		}
	}
	return current
}

// AdmissionTermService owns admission terms and their time-driven lifecycle.
type AdmissionTermService struct {
	repo      admissionTermRepository
	clock     clock.Clock
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdmissionTermService creates the term lifecycle service.
func NewAdmissionTermService(repo admissionTermRepository, clk clock.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AdmissionTermService {
	if clk == nil {
		clk = clock.Real{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionTermService{repo: repo, clock: clk, metrics: metrics, validator: validate, logger: logger}
}

// Create registers a term with its grade items, all starting pending.
func (s *AdmissionTermService) Create(ctx context.Context, req dto.CreateAdmissionTermRequest) (*models.AdmissionTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission term payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be before endDate")
	}

	term := &models.AdmissionTerm{
		Name:         req.Name,
		AcademicYear: req.AcademicYear,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Status:       models.TermStatusPending,
		Items:        make([]models.TermItem, 0, len(req.Items)),
	}
	for _, item := range req.Items {
		if !item.StartDate.Before(item.EndDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "item "+item.Grade+": startDate must be before endDate")
		}
		if item.StartDate.Before(req.StartDate) || item.EndDate.After(req.EndDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "item "+item.Grade+" must fall within the term window")
		}
		seats := item.ExpectedClasses * models.SeatsPerClass
		term.Items = append(term.Items, models.TermItem{
			Grade:           item.Grade,
			StartDate:       item.StartDate,
			EndDate:         item.EndDate,
			ExpectedClasses: item.ExpectedClasses,
			MaxRegistration: seats,
			Status:          models.TermStatusPending,
		})
		term.MaxRegistration += seats
	}

	if err := s.repo.CreateWithItems(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create admission term")
	}
	s.logger.Info("admission term created", zap.Int64("term_id", term.ID), zap.Int("items", len(term.Items)))
	return term, nil
}

// Get returns a term with its items.
func (s *AdmissionTermService) Get(ctx context.Context, id int64) (*models.AdmissionTerm, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission term")
	}
	return term, nil
}

// GetActive returns the term currently accepting registrations.
func (s *AdmissionTermService) GetActive(ctx context.Context) (*models.AdmissionTerm, error) {
	term, err := s.repo.FindActive(ctx, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active admission term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active admission term")
	}
	return term, nil
}

// GetItem returns a single term item.
func (s *AdmissionTermService) GetItem(ctx context.Context, id int64) (*models.TermItem, error) {
	item, err := s.repo.FindItemByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "admission term item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admission term item")
	}
	return item, nil
}

// StartItem opens a pending item ahead of its scheduled start.
func (s *AdmissionTermService) StartItem(ctx context.Context, id int64) (*models.TermItem, error) {
	return s.forceItem(ctx, id, models.TermStatusPending, models.TermStatusProcessing)
}

// EndItem closes a processing item ahead of its scheduled end.
func (s *AdmissionTermService) EndItem(ctx context.Context, id int64) (*models.TermItem, error) {
	return s.forceItem(ctx, id, models.TermStatusProcessing, models.TermStatusBlocked)
}

func (s *AdmissionTermService) forceItem(ctx context.Context, id int64, from, to models.TermStatus) (*models.TermItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != from {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "admission term item is "+string(item.Status)+", expected "+string(from))
	}
	changed, err := s.repo.TransitionItem(ctx, id, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update admission term item")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission term item changed concurrently")
	}
	item.Status = to
	s.metrics.RecordTermTransition("item", string(to))
	s.logger.Info("admission term item transitioned", zap.Int64("item_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return item, nil
}

// AdvanceStatuses evaluates every open term and item against the clock and applies at
// most one transition each. Re-running it without the clock moving is a no-op.
func (s *AdmissionTermService) AdvanceStatuses(ctx context.Context) ([]models.TermStatusChange, error) {
	now := s.clock.Now()
	var changes []models.TermStatusChange

	items, err := s.repo.ListOpenItems(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission term items")
	}
	for _, item := range items {
		next := NextTermStatus(now, item.StartDate, item.EndDate, item.Status)
		if next == item.Status {
			continue
		}
		changed, err := s.repo.TransitionItem(ctx, item.ID, item.Status, next)
		if err != nil {
			return changes, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance admission term item")
		}
		if changed {
			changes = append(changes, models.TermStatusChange{ID: item.ID, From: item.Status, To: next})
			s.metrics.RecordTermTransition("item", string(next))
		}
	}

	terms, err := s.repo.ListOpenTerms(ctx)
	if err != nil {
		return changes, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admission terms")
	}
	for _, term := range terms {
		next := NextTermStatus(now, term.StartDate, term.EndDate, term.Status)
		if next == term.Status {
			continue
		}
		changed, err := s.repo.TransitionTerm(ctx, term.ID, term.Status, next)
		if err != nil {
			return changes, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance admission term")
		}
		if changed {
			s.metrics.RecordTermTransition("term", string(next))
			s.logger.Info("admission term transitioned", zap.Int64("term_id", term.ID), zap.String("to", string(next)))
		}
	}

	if len(changes) > 0 {
		s.logger.Info("admission term items advanced", zap.Int("count", len(changes)))
	}
	return changes, nil
}

// AdvanceTick adapts AdvanceStatuses to a periodic job.
func (s *AdmissionTermService) AdvanceTick(ctx context.Context) error {
	_, err := s.AdvanceStatuses(ctx)
	return err
}
