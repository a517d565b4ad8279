package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-report-api/internal/models"
)

// ClassRepository reads class metadata needed to compute reports.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class record by ID. sql.ErrNoRows is returned unwrapped for unknown ids.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, grade_level, academic_year, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, notFoundOnMalformedID(err)
	}
	return &class, nil
}
