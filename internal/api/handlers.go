package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/middleware"
	"github.com/maternal-guard-server/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// errorResponse carries an APIError plus per-field violations.
type errorResponse struct {
	*domain.APIError
	Violations []*domain.ValidationError `json:"violations,omitempty"`
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrFeedbackDisabled):
		code, status = domain.ErrCodeDatabase, http.StatusServiceUnavailable
	case code == domain.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case code == domain.ErrCodeNotFound:
		status = http.StatusNotFound
	case code == domain.ErrCodeModelUnavailable:
		status = http.StatusServiceUnavailable
	case c.Request.Context().Err() != nil && errors.Is(err, c.Request.Context().Err()):
		status = http.StatusRequestTimeout
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("correlation_id", c.GetString(middleware.CorrelationIDKey)).Error("Request failed")
		message = "Internal server error"
	}

	c.AbortWithStatusJSON(status, errorResponse{
		APIError:   domain.NewAPIError(code, message, "", c.GetString(middleware.CorrelationIDKey)),
		Violations: domain.ValidationErrors(err),
	})
}

func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
		APIError: domain.NewAPIError(domain.ErrCodeInvalidArgument, "malformed request body", err.Error(), c.GetString(middleware.CorrelationIDKey)),
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	checks := gin.H{}
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			// Connection errors can carry hostnames.
			if s.configManager.IsProduction() {
				checks[name] = "unavailable"
			} else {
				checks[name] = err.Error()
			}
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"model":     s.modelInfo,
		"checks":    checks,
	}
	if stats, ok := s.service.CacheStats(); ok {
		body["cache"] = stats
	}

	c.JSON(code, body)
}

func (s *Server) handleBloodGroups(c *gin.Context) {
	table, err := s.service.CompatibilityTable()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blood_groups":  domain.AllBloodGroups(),
		"compatibility": table,
	})
}

type donorCheckRequest struct {
	BloodGroup string `json:"blood_group" binding:"required"`
}

func (s *Server) handleCheckDonors(c *gin.Context) {
	var req donorCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	group, err := domain.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		s.writeError(c, err)
		return
	}

	match, err := s.service.CheckDonors(c.Request.Context(), group)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.NewDonorCheckView(match))
}

func (s *Server) handleAnalyzeRisk(c *gin.Context) {
	var vitals domain.PatientVitals
	if err := c.ShouldBindJSON(&vitals); err != nil {
		s.badRequest(c, err)
		return
	}
	if g, err := domain.ParseBloodGroup(string(vitals.BloodGroup)); err == nil {
		vitals.BloodGroup = g
	}

	analysis, err := s.service.AnalyzeRisk(c.Request.Context(), &vitals)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, service.NewRiskAnalysisView(analysis))
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	a, err := s.service.GetAssessment(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleSubmitFeedback(c *gin.Context) {
	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	fb, err := s.service.SubmitFeedback(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (s *Server) handleListFeedback(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		s.writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	list, total, err := s.service.ListFeedback(c.Request.Context(), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feedback": list,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleFeedbackSummary(c *gin.Context) {
	summary, err := s.service.FeedbackSummary(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleExportFeedback(c *gin.Context) {
	store := s.service.FeedbackStore()
	if store == nil {
		s.writeError(c, service.ErrFeedbackDisabled)
		return
	}

	filename := fmt.Sprintf("risk-feedback-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := store.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Feedback export failed")
	}
}

// maxImportBytes bounds a feedback import body.
const maxImportBytes = 32 << 20

func (s *Server) handleImportFeedback(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	imported, skipped, err := s.service.ImportFeedback(c.Request.Context(), body)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"imported": imported,
		"skipped":  skipped,
	})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return n, nil
}
