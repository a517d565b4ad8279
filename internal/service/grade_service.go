package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/school-report-api/internal/models"
	"github.com/noah-isme/school-report-api/internal/repository"
	appErrors "github.com/noah-isme/school-report-api/pkg/errors"
)

type gradeRepo interface {
	List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error)
	Upsert(ctx context.Context, record *models.GradeRecord) error
	BulkUpsert(ctx context.Context, records []models.GradeRecord) error
	Delete(ctx context.Context, id string) (*models.GradeRecord, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type reportInvalidator interface {
	InvalidateClass(ctx context.Context, classID string)
}

const (
	BulkModeAtomic         = "atomic"
	BulkModePartialOnError = "partialOnError"
)

// UpsertGradeRequest represents a single grade entry payload.
type UpsertGradeRequest struct {
	StudentID string             `json:"student_id" validate:"required"`
	SubjectID string             `json:"subject_id" validate:"required"`
	ClassID   string             `json:"class_id" validate:"required"`
	Score     *float64           `json:"score" validate:"omitempty,gte=0,lte=100"`
	GradeDate string             `json:"grade_date" validate:"required"`
	Semester  models.SemesterTag `json:"semester" validate:"required,oneof=1 2"`
	Comment   *string            `json:"comment" validate:"omitempty,max=500"`
}

// BulkGradeItem is one score within a bulk upload.
type BulkGradeItem struct {
	StudentID string   `json:"student_id" validate:"required"`
	SubjectID string   `json:"subject_id" validate:"required"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	Comment   *string  `json:"comment" validate:"omitempty,max=500"`
}

// BulkGradesRequest uploads a month of scores for one class, atomically or partially.
type BulkGradesRequest struct {
	ClassID   string             `json:"class_id" validate:"required"`
	GradeDate string             `json:"grade_date" validate:"required"`
	Semester  models.SemesterTag `json:"semester" validate:"required,oneof=1 2"`
	Mode      string             `json:"mode" validate:"omitempty,oneof=atomic partialOnError"`
	Items     []BulkGradeItem    `json:"items" validate:"required,min=1,dive"`
}

// BulkGradesResult summarises partial outcomes.
type BulkGradesResult struct {
	SuccessCount int                `json:"success_count"`
	Failures     []BulkGradeFailure `json:"failures,omitempty"`
}

// BulkGradeFailure captures a rejected bulk item.
type BulkGradeFailure struct {
	StudentID string `json:"student_id"`
	SubjectID string `json:"subject_id"`
	Reason    string `json:"reason"`
}

// GradeService manages the grade records reports are computed from.
type GradeService struct {
	grades    gradeRepo
	students  studentFinder
	reports   reportInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService. reports and metrics may be nil.
func NewGradeService(grades gradeRepo, students studentFinder, reports reportInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		grades:    grades,
		students:  students,
		reports:   reports,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns grade records. Month and semester filters are validated and canonicalised.
func (s *GradeService) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	if filter.ClassID == "" && filter.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id or student_id is required")
	}
	if filter.Semester != "" && !filter.Semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester must be 1 or 2")
	}
	if filter.GradeDate != "" {
		month, ok := models.ParseMonthLabel(filter.GradeDate)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade_date must use the MM/YY format")
		}
		filter.GradeDate = month.String()
	}
	records, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return records, nil
}

// Upsert stores one score, replacing any score for the same student, subject and month.
func (s *GradeService) Upsert(ctx context.Context, req UpsertGradeRequest) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	month, ok := models.ParseMonthLabel(req.GradeDate)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade_date must use the MM/YY format")
	}
	if err := s.ensureEnrolled(ctx, req.StudentID, req.ClassID); err != nil {
		return nil, err
	}
	record := &models.GradeRecord{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		ClassID:   req.ClassID,
		Score:     req.Score,
		GradeDate: month.String(),
		Semester:  req.Semester,
		Comment:   req.Comment,
	}
	if err := s.grades.Upsert(ctx, record); err != nil {
		return nil, translateGradeWriteError(err, "failed to upsert grade")
	}
	s.metrics.RecordGradeWrites("upsert", 1)
	s.invalidate(ctx, req.ClassID)
	return record, nil
}

// BulkUpsert stores a batch of scores for one class and month.
func (s *GradeService) BulkUpsert(ctx context.Context, req BulkGradesRequest) (*BulkGradesResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload")
	}
	month, ok := models.ParseMonthLabel(req.GradeDate)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade_date must use the MM/YY format")
	}
	atomic := req.Mode == "" || req.Mode == BulkModeAtomic

	enrolled := make(map[string]error)
	result := &BulkGradesResult{}
	records := make([]models.GradeRecord, 0, len(req.Items))
	for _, item := range req.Items {
		checkErr, seen := enrolled[item.StudentID]
		if !seen {
			checkErr = s.ensureEnrolled(ctx, item.StudentID, req.ClassID)
			enrolled[item.StudentID] = checkErr
		}
		if checkErr != nil {
			if atomic || isInternal(checkErr) {
				return nil, checkErr
			}
			result.Failures = append(result.Failures, BulkGradeFailure{StudentID: item.StudentID, SubjectID: item.SubjectID, Reason: appErrors.FromError(checkErr).Message})
			continue
		}
		record := models.GradeRecord{
			StudentID: item.StudentID,
			SubjectID: item.SubjectID,
			ClassID:   req.ClassID,
			Score:     item.Score,
			GradeDate: month.String(),
			Semester:  req.Semester,
			Comment:   item.Comment,
		}
		if atomic {
			records = append(records, record)
			continue
		}
		if err := s.grades.Upsert(ctx, &record); err != nil {
			result.Failures = append(result.Failures, BulkGradeFailure{StudentID: item.StudentID, SubjectID: item.SubjectID, Reason: translateGradeWriteError(err, "failed to upsert grade").Message})
			continue
		}
		result.SuccessCount++
	}
	if atomic {
		if err := s.grades.BulkUpsert(ctx, records); err != nil {
			return nil, translateGradeWriteError(err, "failed to bulk upsert grades")
		}
		result.SuccessCount = len(records)
	}
	s.metrics.RecordGradeWrites("bulk_upsert", result.SuccessCount)
	if result.SuccessCount > 0 {
		s.invalidate(ctx, req.ClassID)
	}
	return result, nil
}

// Delete removes a grade record.
func (s *GradeService) Delete(ctx context.Context, id string) error {
	deleted, err := s.grades.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	s.metrics.RecordGradeWrites("delete", 1)
	s.invalidate(ctx, deleted.ClassID)
	return nil
}

func (s *GradeService) ensureEnrolled(ctx context.Context, studentID, classID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", studentID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ClassID != classID {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not in class %s", studentID, classID))
	}
	return nil
}

func (s *GradeService) invalidate(ctx context.Context, classID string) {
	if s.reports == nil {
		return
	}
	s.reports.InvalidateClass(ctx, classID)
}

func translateGradeWriteError(err error, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrUnknownReference) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "grade references an unknown student, subject or class")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func isInternal(err error) bool {
	return appErrors.FromError(err).Code == appErrors.ErrInternal.Code
}
