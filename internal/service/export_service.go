package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/school-report-api/internal/dto"
	"github.com/noah-isme/school-report-api/internal/models"
	"github.com/noah-isme/school-report-api/pkg/export"
	"github.com/noah-isme/school-report-api/pkg/storage"
)

type reportBuilder interface {
	Build(ctx context.Context, q dto.ReportQuery) (*models.GradeReport, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(table export.Table) ([]byte, error)
}

type pdfRenderer interface {
	Render(cards []export.Card, emptyNotice string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders grade reports and persists the files behind signed download links.
type ExportService struct {
	reports reportBuilder
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(reports reportBuilder, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		reports: reports,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate computes the job's report, renders it and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	report, _, err := s.reports.Build(ctx, dto.ReportQuery{
		Type:      job.Type,
		ClassID:   job.Params.ClassID,
		StudentID: job.Params.StudentID,
		Month:     job.Params.Month,
		Semester:  job.Params.Semester,
	})
	if err != nil {
		return nil, err
	}

	payload, err := s.Render(report, job.Params.Format)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job.ID, report, job.Params.Format), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Render encodes a computed report in the requested format.
func (s *ExportService) Render(report *models.GradeReport, format models.ReportFormat) ([]byte, error) {
	switch format {
	case models.ReportFormatCSV:
		return s.csv.Render(reportTable(report))
	case models.ReportFormatPDF:
		return s.pdf.Render(reportCards(report), fmt.Sprintf("%s: no students enrolled", reportTitle(report)))
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(jobID string, report *models.GradeReport, format models.ReportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	period := report.Period
	if period == "" {
		period = "all"
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		report.Type,
		sanitizeFilename(report.ClassName),
		sanitizeFilename(period),
		timestamp,
		sanitizeFilename(shortID(jobID)),
		format,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

var csvHeaders = []string{
	"Student ID", "Student Name", "Rank", "Subject", "Month", "Score", "Max Score",
	"Percentage", "Subject Grade", "Comment", "Average", "Average Grade",
}

// reportTable flattens a report to one row per student and subject. Students
// without grades still get a row so the class list stays complete.
func reportTable(report *models.GradeReport) export.Table {
	table := export.Table{Headers: csvHeaders}
	for _, student := range report.Students {
		average, letter := headlineAverage(report.Type, student)
		tail := []string{average, string(letter)}
		head := []string{student.StudentID, student.StudentName, strconv.Itoa(student.Rank)}
		if len(student.SubjectSummaries) == 0 {
			row := append(append([]string{}, head...), "", "", "", "", "", "", "")
			table.Rows = append(table.Rows, append(row, tail...))
			continue
		}
		for _, subject := range student.SubjectSummaries {
			row := append([]string{}, head...)
			row = append(row,
				subject.SubjectName,
				subject.GradeDate,
				formatScore(subject.Score),
				formatScore(subject.MaxScore),
				formatScore(subject.Percentage),
				string(subject.LetterGrade),
				subject.Comment,
			)
			table.Rows = append(table.Rows, append(row, tail...))
		}
	}
	return table
}

func reportCards(report *models.GradeReport) []export.Card {
	cards := make([]export.Card, 0, len(report.Students))
	for _, student := range report.Students {
		card := export.Card{
			Title: reportTitle(report),
			Subtitle: []string{
				fmt.Sprintf("Student: %s", student.StudentName),
				fmt.Sprintf("Class: %s (grade %d)", report.ClassName, report.GradeLevel),
				fmt.Sprintf("Rank: %d of %d", student.Rank, len(report.Students)),
			},
			Table: export.Table{Headers: []string{"Subject", "Month", "Score", "Percentage", "Grade", "Comment"}},
			Footer: fmt.Sprintf("Generated %s", report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST")),
		}
		for _, subject := range student.SubjectSummaries {
			card.Table.Rows = append(card.Table.Rows, []string{
				subject.SubjectName,
				subject.GradeDate,
				formatScore(subject.Score),
				formatScore(subject.Percentage) + "%",
				string(subject.LetterGrade),
				subject.Comment,
			})
		}
		card.Summary = summaryLines(student)
		cards = append(cards, card)
	}
	return cards
}

func summaryLines(student models.StudentReport) []export.SummaryLine {
	var lines []export.SummaryLine
	if student.Monthly != nil {
		lines = append(lines, export.SummaryLine{
			Label: fmt.Sprintf("Monthly average (%s)", student.Monthly.Month),
			Value: withLetter(formatScore(student.Monthly.AverageScore), student.Monthly.LetterGrade),
		})
	}
	for _, semester := range student.Semesters {
		last := "Last month"
		if semester.LastMonth != "" {
			last = fmt.Sprintf("Last month (%s)", semester.LastMonth)
		}
		lines = append(lines,
			export.SummaryLine{Label: fmt.Sprintf("%s - %s", semester.SemesterName, last), Value: formatScore(semester.LastMonthScore)},
			export.SummaryLine{Label: fmt.Sprintf("%s - Previous months", semester.SemesterName), Value: formatScore(semester.PreviousScore)},
			export.SummaryLine{Label: fmt.Sprintf("%s average", semester.SemesterName), Value: withLetter(formatScore(semester.AverageScore), semester.LetterGrade)},
		)
	}
	if student.Yearly != nil {
		lines = append(lines, export.SummaryLine{
			Label: "Yearly average",
			Value: withLetter(formatScore(student.Yearly.AverageScore), student.Yearly.LetterGrade),
		})
	}
	return lines
}

// headlineAverage picks the figure a report type is ranked on.
func headlineAverage(reportType models.ReportType, student models.StudentReport) (string, models.LetterGrade) {
	switch {
	case reportType == models.ReportTypeMonthly && student.Monthly != nil:
		return formatScore(student.Monthly.AverageScore), student.Monthly.LetterGrade
	case reportType == models.ReportTypeYearly && student.Yearly != nil:
		return formatScore(student.Yearly.AverageScore), student.Yearly.LetterGrade
	case len(student.Semesters) > 0:
		last := student.Semesters[len(student.Semesters)-1]
		return formatScore(last.AverageScore), last.LetterGrade
	}
	return "", ""
}

func reportTitle(report *models.GradeReport) string {
	kind := "Report"
	switch report.Type {
	case models.ReportTypeMonthly:
		kind = "Monthly Report"
	case models.ReportTypeSemester:
		kind = "Semester Report"
	case models.ReportTypeYearly:
		kind = "Yearly Report"
	}
	if report.PeriodLabel == "" {
		return fmt.Sprintf("%s - %s", kind, report.ClassName)
	}
	return fmt.Sprintf("%s - %s - %s", kind, report.ClassName, report.PeriodLabel)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func withLetter(value string, letter models.LetterGrade) string {
	return fmt.Sprintf("%s (%s)", value, letter)
}
