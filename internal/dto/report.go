package dto

import "github.com/noah-isme/school-report-api/internal/models"

// ReportQuery selects the class and period of a computed grade report.
type ReportQuery struct {
	Type      models.ReportType  `json:"type" form:"type"`
	ClassID   string             `json:"classId" form:"-"`
	StudentID string             `json:"studentId,omitempty" form:"studentId"`
	Month     string             `json:"month,omitempty" form:"month"`
	Semester  models.SemesterTag `json:"semester,omitempty" form:"semester"`
}

// ReportRequest captures POST /reports/generate payload.
type ReportRequest struct {
	ReportQuery
	Format models.ReportFormat `json:"format"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// ReportMonthsResponse lists the graded months of a class, oldest first.
type ReportMonthsResponse struct {
	ClassID string   `json:"classId"`
	Months  []string `json:"months"`
}
