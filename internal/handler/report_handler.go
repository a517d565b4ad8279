package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/school-report-api/internal/dto"
	"github.com/noah-isme/school-report-api/internal/middleware"
	"github.com/noah-isme/school-report-api/internal/models"
	"github.com/noah-isme/school-report-api/internal/service"
	appErrors "github.com/noah-isme/school-report-api/pkg/errors"
	"github.com/noah-isme/school-report-api/pkg/response"
)

type reportComputer interface {
	Build(ctx context.Context, q dto.ReportQuery) (*models.GradeReport, bool, error)
	Months(ctx context.Context, classID string) ([]string, error)
}

type reportJobManager interface {
	CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error)
	GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*dto.ReportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler exposes computed reports and asynchronous exports.
type ReportHandler struct {
	reports reportComputer
	jobs    reportJobManager
	logger  *zap.Logger
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportComputer, jobs reportJobManager, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, jobs: jobs, logger: logger}
}

// ClassReport godoc
// @Summary Class grade report
// @Description Computes monthly, semester or yearly averages, letter grades and ranks for a class.
// @Tags Reports
// @Produce json
// @Param id path string true "Class ID"
// @Param type query string true "monthly, semester or yearly"
// @Param month query string false "Month label MM/YY (monthly)"
// @Param semester query string false "1 or 2 (semester)"
// @Param studentId query string false "Restrict to one student"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/classes/{id} [get]
func (h *ReportHandler) ClassReport(c *gin.Context) {
	var query dto.ReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	query.ClassID = c.Param("id")
	report, cached, err := h.reports.Build(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// Months godoc
// @Summary Graded months of a class
// @Tags Reports
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /reports/classes/{id}/months [get]
func (h *ReportHandler) Months(c *gin.Context) {
	classID := c.Param("id")
	months, err := h.reports.Months(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ReportMonthsResponse{ClassID: classID, Months: months}, nil)
}

// GenerateReport godoc
// @Summary Queue a report export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.ReportRequest true "Report scope and format"
// @Success 202 {object} response.Envelope
// @Router /reports/generate [post]
func (h *ReportHandler) GenerateReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resp, err := h.jobs.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp, statusLocation(c.Request.URL.Path, resp.ID))
}

// ReportStatus godoc
// @Summary Report export status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/status/{id} [get]
func (h *ReportHandler) ReportStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resp, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// DownloadReport godoc
// @Summary Download a finished export
// @Description The signed token in the path authenticates the download.
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReportHandler) DownloadReport(c *gin.Context) {
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	contentType := "text/csv; charset=utf-8"
	if download.Format == models.ReportFormatPDF {
		contentType = "application/pdf"
	}
	if err := response.Attachment(c, download.Filename, contentType, download.ExpiresAt, download.File); err != nil {
		h.logger.Warn("export download interrupted", zap.String("file", download.Filename), zap.Error(err))
	}
}

// statusLocation maps .../reports/generate to .../reports/status/{id}.
func statusLocation(generatePath, id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimSuffix(generatePath, "/generate") + "/status/" + id
}
