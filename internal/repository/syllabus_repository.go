package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admission-api/internal/models"
)

// SyllabusRepository reads the curriculum reference data.
type SyllabusRepository struct {
	db *sqlx.DB
}

// NewSyllabusRepository constructs a syllabus repository.
func NewSyllabusRepository(db *sqlx.DB) *SyllabusRepository {
	return &SyllabusRepository{db: db}
}

// FindByID loads a syllabus by identifier.
func (r *SyllabusRepository) FindByID(ctx context.Context, id int64) (*models.Syllabus, error) {
	const query = `SELECT id, name, hours_of_syllabus, cost FROM syllabuses WHERE id = $1`
	var syllabus models.Syllabus
	if err := r.db.GetContext(ctx, &syllabus, query, id); err != nil {
		return nil, err
	}
	return &syllabus, nil
}
