package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-report-api/internal/models"
)

func TestClassRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, grade_level, academic_year, created_at, updated_at FROM classes WHERE id = $1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "grade_level", "academic_year", "created_at", "updated_at"}).
			AddRow("class-1", "7A", 7, "2024/2025", time.Now(), time.Now()))
	class, err := repo.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, models.GradeLevel(7), class.GradeLevel)

	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterLookupsTreatMalformedIDsAsMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	malformed := &pq.Error{Code: invalidTextRepresentation, Message: "invalid input syntax for type uuid"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM classes WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	_, err := NewClassRepository(db).FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	_, err = NewStudentRepository(db).FindByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE class_id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	students, err := NewStudentRepository(db).ListByClass(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, students)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	_, err = NewReportRepository(db).GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM grades WHERE id = $1")).
		WithArgs("not-a-uuid").
		WillReturnError(malformed)
	_, err = NewGradeRepository(db).Delete(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name, class_id FROM students WHERE class_id = $1 ORDER BY full_name ASC, id ASC")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "class_id"}).
			AddRow("stu-1", "Chan Dara", "class-1").
			AddRow("stu-2", "Sok Pisey", "class-1"))
	students, err := repo.ListByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Chan Dara", students[0].FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, full_name, class_id FROM students WHERE id = $1")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "class_id"}).AddRow("stu-1", "Chan Dara", "class-1"))
	student, err := NewStudentRepository(db).FindByID(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, "class-1", student.ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
