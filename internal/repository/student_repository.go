package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-report-api/internal/models"
)

// StudentRepository reads the class roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// ListByClass returns the students of a class ordered by name.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.Student, error) {
	const query = `SELECT id, full_name, class_id FROM students WHERE class_id = $1 ORDER BY full_name ASC, id ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, classID); err != nil {
		if isMalformedID(err) {
			return []models.Student{}, nil
		}
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// FindByID returns a student by ID. sql.ErrNoRows is returned unwrapped for unknown ids.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, full_name, class_id FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, notFoundOnMalformedID(err)
	}
	return &student, nil
}
