package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates the grade report granularities.
type ReportType string

const (
	ReportTypeMonthly  ReportType = "monthly"
	ReportTypeSemester ReportType = "semester"
	ReportTypeYearly   ReportType = "yearly"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// StudentReport is one student's section of a grade report.
type StudentReport struct {
	StudentID        string            `json:"student_id"`
	StudentName      string            `json:"student_name"`
	Rank             int               `json:"rank"`
	SubjectSummaries []SubjectSummary  `json:"subjects"`
	Monthly          *MonthlyAverage   `json:"monthly,omitempty"`
	Semesters        []SemesterAverage `json:"semesters,omitempty"`
	Yearly           *YearlyAverage    `json:"yearly,omitempty"`
}

// GradeReport is the structured report handed to renderers.
type GradeReport struct {
	Type        ReportType      `json:"type"`
	ClassID     string          `json:"class_id"`
	ClassName   string          `json:"class_name"`
	GradeLevel  GradeLevel      `json:"grade_level"`
	Period      string          `json:"period,omitempty"`
	PeriodLabel string          `json:"period_label"`
	GeneratedAt time.Time       `json:"generated_at"`
	Students    []StudentReport `json:"students"`
}

// ReportJob persisted background job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams stores the report scope persisted as JSONB.
type ReportJobParams struct {
	ClassID   string       `json:"classId"`
	StudentID string       `json:"studentId,omitempty"`
	Month     string       `json:"month,omitempty"`
	Semester  SemesterTag  `json:"semester,omitempty"`
	Format    ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportJobParams", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}
