package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-report-api/internal/models"
)

var gradeRowColumns = []string{"id", "student_id", "subject_id", "subject_name", "class_id", "score", "grade_date", "semester", "comment", "created_at", "updated_at"}

func floatPtr(v float64) *float64 {
	return &v
}

func TestGradeRepositoryListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows(gradeRowColumns).
		AddRow("g-1", "stu-1", "math", "Mathematics", "class-1", 42.5, "01/25", "1", nil, time.Now(), time.Now()).
		AddRow("g-2", "stu-1", "khmer", nil, "class-1", nil, "01/25", "1", "absent", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND g.class_id = $1 AND g.semester = $2 AND g.grade_date = $3 ORDER BY g.student_id, g.grade_date, g.subject_id")).
		WithArgs("class-1", "1", "01/25").
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), models.GradeRecordFilter{ClassID: "class-1", Semester: models.SemesterFirst, GradeDate: "01/25"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Mathematics", *records[0].SubjectName)
	assert.Equal(t, 42.5, records[0].ScoreValue())
	assert.Nil(t, records[1].SubjectName)
	assert.Nil(t, records[1].Score)
	assert.Equal(t, "absent", *records[1].Comment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertReturnsStoredID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	created := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, subject_id, grade_date)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "math", "class-1", 42.0, "01/25", "1", nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("existing-id", created))

	record := &models.GradeRecord{StudentID: "stu-1", SubjectID: "math", ClassID: "class-1", Score: floatPtr(42), GradeDate: "01/25", Semester: models.SemesterFirst}
	require.NoError(t, repo.Upsert(context.Background(), record))
	assert.Equal(t, "existing-id", record.ID)
	assert.Equal(t, created, record.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertUnknownReference(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "grades_subject_id_fkey"})

	err := repo.Upsert(context.Background(), &models.GradeRecord{StudentID: "stu-1", SubjectID: "nope", ClassID: "class-1", GradeDate: "01/25", Semester: models.SemesterFirst})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownReference))
}

func TestGradeRepositoryBulkUpsertRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("g-1", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.BulkUpsert(context.Background(), []models.GradeRecord{
		{StudentID: "stu-1", SubjectID: "math", ClassID: "class-1", GradeDate: "01/25", Semester: models.SemesterFirst},
		{StudentID: "stu-2", SubjectID: "math", ClassID: "class-1", GradeDate: "01/25", Semester: models.SemesterFirst},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkUpsertCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO grades")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("g-1", time.Now()))
	mock.ExpectCommit()

	records := []models.GradeRecord{{StudentID: "stu-1", SubjectID: "math", ClassID: "class-1", GradeDate: "01/25", Semester: models.SemesterFirst}}
	require.NoError(t, repo.BulkUpsert(context.Background(), records))
	assert.Equal(t, "g-1", records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM grades WHERE id = $1")).
		WithArgs("g-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "subject_id", "class_id", "score", "grade_date", "semester", "comment", "created_at", "updated_at"}).
			AddRow("g-1", "stu-1", "math", "class-1", 7.0, "02/25", "2", nil, time.Now(), time.Now()))
	deleted, err := repo.Delete(context.Background(), "g-1")
	require.NoError(t, err)
	assert.Equal(t, "class-1", deleted.ClassID)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM grades WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryDistinctMonths(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT grade_date FROM grades WHERE class_id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"grade_date"}).AddRow("02/25").AddRow("01/25"))
	months, err := NewGradeRepository(db).DistinctMonths(context.Background(), "class-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"01/25", "02/25"}, months)
	assert.NoError(t, mock.ExpectationsWereMet())
}
