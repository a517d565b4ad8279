package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/school-report-api/internal/models"
)

const gradeColumns = `g.id, g.student_id, g.subject_id, s.name AS subject_name, g.class_id, g.score, g.grade_date, g.semester, g.comment, g.created_at, g.updated_at`

const upsertGradeQuery = `INSERT INTO grades (id, student_id, subject_id, class_id, score, grade_date, semester, comment, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (student_id, subject_id, grade_date)
        DO UPDATE SET class_id = EXCLUDED.class_id, score = EXCLUDED.score, semester = EXCLUDED.semester, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
        RETURNING id, created_at`

// ErrUnknownReference is returned when a grade points at a student, subject or class that does not exist.
var ErrUnknownReference = errors.New("grade references unknown student, subject or class")

// GradeRepository handles grade record persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grade records matching the filter, oldest month first.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	query := `SELECT ` + gradeColumns + `
        FROM grades g
        LEFT JOIN subjects s ON s.id = g.subject_id
        WHERE 1=1`
	var args []interface{}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND g.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND g.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND g.subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.Semester != "" {
		query += fmt.Sprintf(" AND g.semester = $%d", len(args)+1)
		args = append(args, filter.Semester)
	}
	if filter.GradeDate != "" {
		query += fmt.Sprintf(" AND g.grade_date = $%d", len(args)+1)
		args = append(args, filter.GradeDate)
	}
	query += " ORDER BY g.student_id, g.grade_date, g.subject_id"
	var records []models.GradeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		if isMalformedID(err) {
			return []models.GradeRecord{}, nil
		}
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return records, nil
}

// Upsert inserts a record or overwrites the one stored for the same student, subject and month.
func (r *GradeRepository) Upsert(ctx context.Context, record *models.GradeRecord) error {
	return upsertGrade(ctx, r.db, record)
}

// BulkUpsert writes all records in one transaction.
func (r *GradeRepository) BulkUpsert(ctx context.Context, records []models.GradeRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin grade batch: %w", err)
	}
	for i := range records {
		if err := upsertGrade(ctx, tx, &records[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("bulk upsert grade %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grades: %w", err)
	}
	return nil
}

// Delete removes a record and returns what was deleted. sql.ErrNoRows is returned for unknown ids.
func (r *GradeRepository) Delete(ctx context.Context, id string) (*models.GradeRecord, error) {
	const query = `DELETE FROM grades WHERE id = $1
        RETURNING id, student_id, subject_id, class_id, score, grade_date, semester, comment, created_at, updated_at`
	var record models.GradeRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, notFoundOnMalformedID(err)
	}
	return &record, nil
}

// DistinctMonths lists the month labels graded in a class, for report period pickers.
func (r *GradeRepository) DistinctMonths(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT DISTINCT grade_date FROM grades WHERE class_id = $1`
	var months []string
	if err := r.db.SelectContext(ctx, &months, query, classID); err != nil {
		if isMalformedID(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list grade months: %w", err)
	}
	return months, nil
}

type queryRower interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func upsertGrade(ctx context.Context, q queryRower, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	row := q.QueryRowxContext(ctx, upsertGradeQuery,
		record.ID, record.StudentID, record.SubjectID, record.ClassID, record.Score,
		strings.TrimSpace(record.GradeDate), record.Semester, record.Comment, record.CreatedAt, record.UpdatedAt)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return fmt.Errorf("upsert grade: %w: %s", ErrUnknownReference, pqErr.Constraint)
		}
		if isMalformedID(err) {
			return fmt.Errorf("upsert grade: %w: malformed id", ErrUnknownReference)
		}
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}
