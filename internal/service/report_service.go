package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-report-api/internal/dto"
	"github.com/noah-isme/school-report-api/internal/grading"
	"github.com/noah-isme/school-report-api/internal/models"
	appErrors "github.com/noah-isme/school-report-api/pkg/errors"
)

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type rosterReader interface {
	ListByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type gradeRecordReader interface {
	List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error)
	DistinctMonths(ctx context.Context, classID string) ([]string, error)
}

// ReportServiceConfig tunes report computation.
type ReportServiceConfig struct {
	CacheTTL time.Duration
}

// ReportService computes class grade reports from stored grade records.
type ReportService struct {
	classes  classReader
	students rosterReader
	grades   gradeRecordReader
	catalog  *grading.SemesterCatalog
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ReportServiceConfig
	now      func() time.Time
}

// NewReportService constructs ReportService. cache and metrics may be nil.
func NewReportService(classes classReader, students rosterReader, grades gradeRecordReader, catalog *grading.SemesterCatalog, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if catalog == nil {
		catalog = grading.NewSemesterCatalog(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		classes:  classes,
		students: students,
		grades:   grades,
		catalog:  catalog,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Normalize validates a report query and returns it with a canonical month label.
func (s *ReportService) Normalize(q dto.ReportQuery) (dto.ReportQuery, error) {
	q.ClassID = strings.TrimSpace(q.ClassID)
	q.StudentID = strings.TrimSpace(q.StudentID)
	if q.Type == "" {
		return q, appErrors.Clone(appErrors.ErrValidation, "report type is required")
	}
	if q.ClassID == "" {
		return q, appErrors.Clone(appErrors.ErrValidation, "class is required")
	}
	switch q.Type {
	case models.ReportTypeMonthly:
		if strings.TrimSpace(q.Month) == "" {
			return q, appErrors.Clone(appErrors.ErrValidation, "month is required for monthly reports")
		}
		month, ok := models.ParseMonthLabel(q.Month)
		if !ok {
			return q, appErrors.Clone(appErrors.ErrValidation, "month must use the MM/YY format")
		}
		q.Month = month.String()
		q.Semester = ""
	case models.ReportTypeSemester:
		if !q.Semester.Valid() {
			return q, appErrors.Clone(appErrors.ErrValidation, "semester must be 1 or 2")
		}
		q.Month = ""
	case models.ReportTypeYearly:
		q.Month = ""
		q.Semester = ""
	default:
		return q, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report type %q", q.Type))
	}
	return q, nil
}

// Build computes the report selected by q. The boolean reports whether it was served from cache.
func (s *ReportService) Build(ctx context.Context, q dto.ReportQuery) (*models.GradeReport, bool, error) {
	q, err := s.Normalize(q)
	if err != nil {
		return nil, false, err
	}

	key := reportCacheKey(q)
	var cached models.GradeReport
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	report, err := s.compute(ctx, q)
	if err != nil {
		return nil, false, err
	}
	s.metrics.ObserveReportBuild(q.Type, len(report.Students), time.Since(start))

	_ = s.cache.Set(ctx, key, report, s.cfg.CacheTTL)
	return report, false, nil
}

// Months lists the graded month labels of a class in chronological order.
func (s *ReportService) Months(ctx context.Context, classID string) ([]string, error) {
	if _, err := s.loadClass(ctx, classID); err != nil {
		return nil, err
	}
	raw, err := s.grades.DistinctMonths(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graded months")
	}
	seen := make(map[models.MonthLabel]struct{}, len(raw))
	labels := make([]models.MonthLabel, 0, len(raw))
	for _, value := range raw {
		month, ok := models.ParseMonthLabel(value)
		if !ok {
			continue
		}
		if _, dup := seen[month]; dup {
			continue
		}
		seen[month] = struct{}{}
		labels = append(labels, month)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Before(labels[j]) })
	months := make([]string, len(labels))
	for i, month := range labels {
		months[i] = month.String()
	}
	return months, nil
}

// InvalidateClass drops every cached report of a class.
func (s *ReportService) InvalidateClass(ctx context.Context, classID string) {
	if err := s.cache.Invalidate(ctx, classCachePattern(classID)); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

func (s *ReportService) compute(ctx context.Context, q dto.ReportQuery) (*models.GradeReport, error) {
	class, err := s.loadClass(ctx, q.ClassID)
	if err != nil {
		return nil, err
	}
	students, err := s.students.ListByClass(ctx, class.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	if q.StudentID != "" {
		students = filterStudent(students, q.StudentID)
		if len(students) == 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found in class")
		}
	}

	filter := models.GradeRecordFilter{ClassID: class.ID, StudentID: q.StudentID}
	if q.Type == models.ReportTypeSemester {
		filter.Semester = q.Semester
	}
	records, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	if q.Type == models.ReportTypeMonthly {
		month, _ := models.ParseMonthLabel(q.Month)
		records = grading.FilterMonth(records, month)
	}
	byStudent := make(map[string][]models.GradeRecord, len(students))
	for _, record := range records {
		byStudent[record.StudentID] = append(byStudent[record.StudentID], record)
	}

	report := &models.GradeReport{
		Type:        q.Type,
		ClassID:     class.ID,
		ClassName:   class.Name,
		GradeLevel:  class.GradeLevel,
		GeneratedAt: s.now().UTC(),
		Students:    make([]models.StudentReport, 0, len(students)),
	}
	scores := make([]float64, 0, len(students))
	for _, student := range students {
		entry, overall := s.studentReport(q, class.GradeLevel, student, byStudent[student.ID])
		report.Students = append(report.Students, entry)
		scores = append(scores, overall)
	}
	assignRanks(report.Students, scores)

	switch q.Type {
	case models.ReportTypeMonthly:
		report.Period = q.Month
		report.PeriodLabel = q.Month
	case models.ReportTypeSemester:
		report.Period = string(q.Semester)
		report.PeriodLabel = s.catalog.Name(q.Semester)
	case models.ReportTypeYearly:
		report.Period = class.AcademicYear
		report.PeriodLabel = class.AcademicYear
	}
	return report, nil
}

// studentReport runs the engine for one student and returns the entry plus the
// unrounded score used for ranking.
func (s *ReportService) studentReport(q dto.ReportQuery, level models.GradeLevel, student models.Student, records []models.GradeRecord) (models.StudentReport, float64) {
	entry := models.StudentReport{
		StudentID:        student.ID,
		StudentName:      student.FullName,
		SubjectSummaries: subjectSummaries(records, level),
	}

	switch q.Type {
	case models.ReportTypeMonthly:
		average := grading.AverageForGroup(records, level)
		entry.Monthly = &models.MonthlyAverage{
			Month:        q.Month,
			AverageScore: math.Round(average),
			LetterGrade:  grading.LetterGrade(average, level),
		}
		return entry, average
	case models.ReportTypeSemester:
		semester := s.semesterAverage(records, q.Semester, level)
		entry.Semesters = []models.SemesterAverage{semester}
		return entry, semester.AverageScore
	default:
		first := grading.SemesterAverage(records, models.SemesterFirst, level)
		second := grading.SemesterAverage(records, models.SemesterSecond, level)
		entry.Semesters = []models.SemesterAverage{
			s.describeSemester(records, models.SemesterFirst, level, first),
			s.describeSemester(records, models.SemesterSecond, level, second),
		}
		yearly := grading.YearlyAverage(first, second)
		entry.Yearly = &models.YearlyAverage{
			AverageScore: yearly,
			LetterGrade:  grading.LetterGrade(yearly, level),
		}
		return entry, yearly
	}
}

func (s *ReportService) semesterAverage(records []models.GradeRecord, tag models.SemesterTag, level models.GradeLevel) models.SemesterAverage {
	return s.describeSemester(records, tag, level, grading.SemesterAverage(records, tag, level))
}

func (s *ReportService) describeSemester(records []models.GradeRecord, tag models.SemesterTag, level models.GradeLevel, result models.SemesterResult) models.SemesterAverage {
	summary := models.SemesterAverage{
		Semester:       tag,
		SemesterName:   s.catalog.Name(tag),
		LastMonthScore: result.LastMonth,
		PreviousScore:  result.PreviousMonths,
		AverageScore:   result.Overall,
		LetterGrade:    grading.LetterGrade(result.Overall, level),
	}
	if last, ok := grading.LastMonth(records, tag); ok {
		summary.LastMonth = last.String()
	}
	return summary
}

func (s *ReportService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// subjectSummaries returns display rows ordered by month, then subject name.
func subjectSummaries(records []models.GradeRecord, level models.GradeLevel) []models.SubjectSummary {
	ordered := make([]models.GradeRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		mi, okI := models.ParseMonthLabel(ordered[i].GradeDate)
		mj, okJ := models.ParseMonthLabel(ordered[j].GradeDate)
		if okI && okJ && mi != mj {
			return mi.Before(mj)
		}
		if okI != okJ {
			return okI
		}
		return displayName(ordered[i]) < displayName(ordered[j])
	})
	summaries := make([]models.SubjectSummary, 0, len(ordered))
	for _, record := range ordered {
		summaries = append(summaries, grading.BuildSubjectSummary(record, level))
	}
	return summaries
}

func displayName(record models.GradeRecord) string {
	if record.SubjectName != nil && *record.SubjectName != "" {
		return *record.SubjectName
	}
	return grading.UnknownSubject
}

// assignRanks applies competition ranking (1, 1, 3) by descending score.
func assignRanks(students []models.StudentReport, scores []float64) {
	order := make([]int, len(students))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	for pos, idx := range order {
		if pos > 0 && scores[idx] == scores[order[pos-1]] {
			students[idx].Rank = students[order[pos-1]].Rank
			continue
		}
		students[idx].Rank = pos + 1
	}
}

func filterStudent(students []models.Student, id string) []models.Student {
	for _, student := range students {
		if student.ID == id {
			return []models.Student{student}
		}
	}
	return nil
}

func reportCacheKey(q dto.ReportQuery) string {
	period := "all"
	switch q.Type {
	case models.ReportTypeMonthly:
		period = strings.ReplaceAll(q.Month, "/", "-")
	case models.ReportTypeSemester:
		period = "s" + string(q.Semester)
	}
	key := fmt.Sprintf("reports:%s:%s:%s", q.ClassID, q.Type, period)
	if q.StudentID != "" {
		key += ":" + q.StudentID
	}
	return key
}

func classCachePattern(classID string) string {
	return fmt.Sprintf("reports:%s:*", classID)
}
