package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/pkg/clock"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
)

type classRepository interface {
	CreateVersioned(ctx context.Context, class *models.Class, check repository.TeacherScheduleCheck) error
	FindWithSchedules(ctx context.Context, id int64) (*models.Class, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.Class, error)
}

type syllabusReader interface {
	FindByID(ctx context.Context, id int64) (*models.Syllabus, error)
}

type teacherDirectory interface {
	TeacherName(ctx context.Context, id int64) string
}

// ClassService builds classes from weekly patterns and checks schedule conflicts.
type ClassService struct {
	repo      classRepository
	syllabi   syllabusReader
	directory teacherDirectory
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService creates a class service.
func NewClassService(repo classRepository, syllabi syllabusReader, directory teacherDirectory, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if clk == nil {
		clk = clock.Real{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, syllabi: syllabi, directory: directory, clock: clk, validator: validate, logger: logger}
}

// Create validates the weekly pattern, expands it across the syllabus hours, rejects
// teacher double-booking and persists the versioned class.
func (s *ClassService) Create(ctx context.Context, req dto.CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	slots, err := validatePattern(s.clock.Now(), req.StartDate, req.Patterns)
	if err != nil {
		return nil, err
	}

	syllabus, err := s.syllabi.FindByID(ctx, req.SyllabusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "syllabus not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load syllabus")
	}
	if syllabus.HoursOfSyllabus <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "syllabus has no instructional hours")
	}

	calendar := expandPattern(req.StartDate, slots, syllabus.HoursOfSyllabus)
	startDate := dateOf(req.StartDate)

	patterns := make([]models.PatternActivity, len(slots))
	for i, slot := range slots {
		patterns[i] = slot.toModel()
	}
	class := &models.Class{
		TeacherID:     req.TeacherID,
		SyllabusID:    syllabus.ID,
		SyllabusName:  syllabus.Name,
		AcademicYear:  req.AcademicYear,
		StartDate:     startDate,
		EndDate:       calendar.EndDate,
		NumberOfWeeks: calendar.NumberOfWeeks,
		Status:        models.ClassStatusOpen,
		Patterns:      patterns,
		Schedules:     calendar.Schedules,
	}
	check := func(existing []models.TeacherActivity) error {
		if conflict := findTeacherConflict(slots, startDate, calendar.EndDate, existing); conflict != nil {
			return appErrors.Clone(appErrors.ErrScheduleConflict, conflict.Message)
		}
		return nil
	}
	if err := s.repo.CreateVersioned(ctx, class, check); err != nil {
		if appErrors.IsCode(err, appErrors.ErrScheduleConflict.Code) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	if s.directory != nil {
		class.TeacherName = s.directory.TeacherName(ctx, class.TeacherID)
	}

	s.logger.Info("class created",
		zap.Int64("class_id", class.ID),
		zap.String("name", class.Name),
		zap.Int("weeks", class.NumberOfWeeks),
	)
	return class, nil
}

// Get returns a class with its calendar and teacher name.
func (s *ClassService) Get(ctx context.Context, id int64) (*models.Class, error) {
	class, err := s.repo.FindWithSchedules(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if s.directory != nil {
		class.TeacherName = s.directory.TeacherName(ctx, class.TeacherID)
	}
	return class, nil
}

// Select adds a candidate class to a student's selection. On conflict the unmodified
// selection is returned together with a conflict error.
func (s *ClassService) Select(ctx context.Context, req dto.SelectClassRequest) (*dto.SelectClassResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid selection payload")
	}
	current := append([]int64{}, req.SelectedClassIDs...)
	unchanged := &dto.SelectClassResponse{ClassIDs: current}

	for _, id := range current {
		if id == req.ClassID {
			unchanged.Conflict = &dto.ClassConflict{ClassID: id, Message: "class is already selected"}
			return unchanged, appErrors.Clone(appErrors.ErrScheduleConflict, unchanged.Conflict.Message)
		}
	}

	classes, err := s.repo.ListByIDs(ctx, append(append([]int64{}, current...), req.ClassID))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes")
	}

	var candidate *models.Class
	selected := make([]models.Class, 0, len(current))
	for i := range classes {
		if classes[i].ID == req.ClassID {
			candidate = &classes[i]
			continue
		}
		selected = append(selected, classes[i])
	}
	if candidate == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}

	if conflict := findSelectionConflict(*candidate, selected); conflict != nil {
		unchanged.Conflict = conflict
		return unchanged, appErrors.Clone(appErrors.ErrScheduleConflict, conflict.Message)
	}
	return &dto.SelectClassResponse{ClassIDs: append(current, req.ClassID)}, nil
}
