package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-report-api/internal/dto"
	"github.com/noah-isme/school-report-api/internal/middleware"
	"github.com/noah-isme/school-report-api/internal/models"
	"github.com/noah-isme/school-report-api/internal/service"
	appErrors "github.com/noah-isme/school-report-api/pkg/errors"
)

type reportComputerMock struct {
	report    *models.GradeReport
	cached    bool
	err       error
	months    []string
	lastQuery dto.ReportQuery
}

func (m *reportComputerMock) Build(ctx context.Context, q dto.ReportQuery) (*models.GradeReport, bool, error) {
	m.lastQuery = q
	return m.report, m.cached, m.err
}

func (m *reportComputerMock) Months(ctx context.Context, classID string) ([]string, error) {
	return m.months, m.err
}

type reportJobMock struct {
	createResp  *dto.ReportJobResponse
	createErr   error
	lastRequest dto.ReportRequest
	lastActor   string
	statusResp  *dto.ReportStatusResponse
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
}

func (m *reportJobMock) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	m.lastRequest = req
	m.lastActor = actorID
	return m.createResp, m.createErr
}

func (m *reportJobMock) GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*dto.ReportStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *reportJobMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerClassReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	computer := &reportComputerMock{
		report: &models.GradeReport{Type: models.ReportTypeMonthly, ClassID: "class-1", Period: "01/25"},
		cached: true,
	}
	handler := NewReportHandler(computer, &reportJobMock{}, nil)

	c, w := newGinContext(http.MethodGet, "/reports/classes/class-1?type=monthly&month=01/25&studentId=stu-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.ClassReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get(middleware.CacheHeader))
	assert.Equal(t, dto.ReportQuery{Type: models.ReportTypeMonthly, ClassID: "class-1", StudentID: "stu-1", Month: "01/25"}, computer.lastQuery)

	var body struct {
		Data models.GradeReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "01/25", body.Data.Period)
}

func TestReportHandlerClassReportValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	computer := &reportComputerMock{err: appErrors.Clone(appErrors.ErrValidation, "month is required for monthly reports")}
	handler := NewReportHandler(computer, &reportJobMock{}, nil)

	c, w := newGinContext(http.MethodGet, "/reports/classes/class-1?type=monthly", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.ClassReport(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestReportHandlerMonths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportComputerMock{months: []string{"12/24", "01/25"}}, &reportJobMock{}, nil)

	c, w := newGinContext(http.MethodGet, "/reports/classes/class-1/months", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.Months(c)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.ReportMonthsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"12/24", "01/25"}, body.Data.Months)
}

func TestReportHandlerGenerateReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := &reportJobMock{
		createResp: &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued, Progress: 0},
	}
	handler := NewReportHandler(&reportComputerMock{}, jobs, nil)

	payload := []byte(`{"type":"semester","classId":"class-1","semester":"2","format":"pdf"}`)
	c, w := newGinContext(http.MethodPost, "/reports/generate", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.GenerateReport(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/reports/status/job-1", w.Header().Get("Location"))
	assert.Equal(t, "admin", jobs.lastActor)
	assert.Equal(t, "class-1", jobs.lastRequest.ClassID)
	assert.Equal(t, models.SemesterSecond, jobs.lastRequest.Semester)
	assert.Equal(t, models.ReportFormatPDF, jobs.lastRequest.Format)
}

func TestReportHandlerGenerateReportRequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportComputerMock{}, &reportJobMock{}, nil)

	c, w := newGinContext(http.MethodPost, "/reports/generate", []byte(`{}`))
	handler.GenerateReport(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReportHandlerReportStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jobs := &reportJobMock{
		statusResp: &dto.ReportStatusResponse{ID: "job-1", Status: models.ReportStatusFinished, Progress: 100},
	}
	handler := NewReportHandler(&reportComputerMock{}, jobs, nil)

	c, w := newGinContext(http.MethodGet, "/reports/status/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.ReportStatus(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestReportHandlerDownloadReport(t *testing.T) {
	gin.SetMode(gin.TestMode)
	file, err := os.CreateTemp(t.TempDir(), "report*.pdf")
	require.NoError(t, err)
	_, _ = file.WriteString("%PDF-1.3")
	_, _ = file.Seek(0, 0)

	jobs := &reportJobMock{
		download: &service.ReportDownload{
			File:      file,
			Filename:  "report.pdf",
			Format:    models.ReportFormatPDF,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
	handler := NewReportHandler(&reportComputerMock{}, jobs, nil)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.DownloadReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="report.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())
}

func TestReportHandlerDownloadExpired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportComputerMock{}, &reportJobMock{downloadErr: appErrors.ErrExportExpired}, nil)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}

	handler.DownloadReport(c)
	require.Equal(t, http.StatusGone, w.Code)
}
