package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"survey-platform/internal/auth"
	"survey-platform/internal/locking"
	"survey-platform/internal/rbac"
	"survey-platform/internal/reporting"
	"survey-platform/internal/survey"
	"survey-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Surveys *survey.Service
	Reports *reporting.Service

	// AllowLogin enables the unauthenticated token endpoint outside production.
	AllowLogin bool
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a development-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if !h.AllowLogin {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	role, ok := rbac.ParseRole(strings.TrimSpace(req.Role))
	if strings.TrimSpace(req.UserID) == "" || !ok || !rbac.Assignable(role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and a valid role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), strings.TrimSpace(req.UserID), role.String())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
	})
}

// --- Surveys ---

type createSurveyRequest struct {
	Title           string   `json:"title"`
	Questions       []string `json:"questions"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	OwnerCustomerID string   `json:"owner_customer_id"`
}

type reviewRequest struct {
	Decision string `json:"decision"`
}

type responsesRequest struct {
	Answers map[string]string `json:"answers"`
}

type surveyList struct {
	Surveys []survey.Snapshot `json:"surveys"`
	Count   int               `json:"count"`
}

// CreateSurvey drafts a survey. RBAC: lead_manager.
func (h Handlers) CreateSurvey(c *gin.Context) {
	if !h.surveysReady(c) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req createSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sv, err := h.Surveys.Create(c.Request.Context(), actor, survey.CreateInput{
		Title:           req.Title,
		Questions:       req.Questions,
		StartDate:       start,
		EndDate:         end,
		OwnerCustomerID: req.OwnerCustomerID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, survey.Export(sv))
}

func (h Handlers) ListSurveys(c *gin.Context) {
	if !h.surveysReady(c) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	f := survey.ListFilter{OwnerCustomerID: c.Query("owner_customer_id")}
	if raw := c.Query("status"); raw != "" {
		st, ok := survey.ParseStatus(raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", raw)})
			return
		}
		f.Status = st
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}

	rows, err := h.Surveys.List(c.Request.Context(), actor, f)
	if err != nil {
		writeError(c, err)
		return
	}
	out := surveyList{Surveys: make([]survey.Snapshot, 0, len(rows)), Count: len(rows)}
	for _, sv := range rows {
		out.Surveys = append(out.Surveys, survey.Export(sv))
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetSurvey(c *gin.Context) {
	if !h.surveysReady(c) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	snap, err := h.Surveys.Snapshot(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SubmitForReview hands a draft to the CoE. RBAC: lead_manager.
func (h Handlers) SubmitForReview(c *gin.Context) {
	h.transition(c, func(actor survey.Actor, id string) (survey.Survey, error) {
		return h.Surveys.SubmitForReview(c.Request.Context(), actor, id)
	})
}

// Review applies a CoE decision. RBAC: coe.
func (h Handlers) Review(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.transition(c, func(actor survey.Actor, id string) (survey.Survey, error) {
		return h.Surveys.Review(c.Request.Context(), actor, id, req.Decision)
	})
}

// Publish releases an approved survey and notifies the customer. RBAC: coe.
func (h Handlers) Publish(c *gin.Context) {
	h.transition(c, func(actor survey.Actor, id string) (survey.Survey, error) {
		return h.Surveys.Publish(c.Request.Context(), actor, id)
	})
}

// RecordResponses merges answers. RBAC: customer (owner only).
func (h Handlers) RecordResponses(c *gin.Context) {
	var req responsesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.transition(c, func(actor survey.Actor, id string) (survey.Survey, error) {
		return h.Surveys.FillResponses(c.Request.Context(), actor, id, req.Answers)
	})
}

// Complete submits the final survey. RBAC: customer (owner only).
func (h Handlers) Complete(c *gin.Context) {
	h.transition(c, func(actor survey.Actor, id string) (survey.Survey, error) {
		return h.Surveys.SubmitFinal(c.Request.Context(), actor, id)
	})
}

func (h Handlers) transition(c *gin.Context, fn func(actor survey.Actor, id string) (survey.Survey, error)) {
	if !h.surveysReady(c) {
		return
	}
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	sv, err := fn(actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, survey.Export(sv))
}

// --- Reports ---

// StatusSummary aggregates lifecycle metrics. RBAC: lead_manager, coe.
func (h Handlers) StatusSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, err := rangeFromQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.Reports.StatusSummary(c.Request.Context(), reporting.SummaryRequest{
		Range:           rng,
		OwnerCustomerID: c.Query("owner_customer_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ExportCSV streams the survey export. RBAC: lead_manager, coe.
func (h Handlers) ExportCSV(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	rng, err := rangeFromQuery(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := reporting.ExportRequest{
		Range:           rng,
		Status:          survey.Status(c.Query("status")),
		OwnerCustomerID: c.Query("owner_customer_id"),
	}

	var b strings.Builder
	if _, err := h.Reports.ExportCSV(c.Request.Context(), &b, req); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="surveys.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(b.String()))
}

// --- helpers ---

func (h Handlers) surveysReady(c *gin.Context) bool {
	if h.Surveys == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "surveys not configured"})
		return false
	}
	return true
}

// actorFrom builds the lifecycle actor from the identity set by the auth middleware.
func actorFrom(c *gin.Context) (survey.Actor, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return survey.Actor{}, false
	}
	role, ok := rbac.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return survey.Actor{}, false
	}
	return survey.Actor{ID: uid, Role: role}, true
}

// writeError maps the survey error taxonomy onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, survey.ErrValidation), errors.Is(err, reporting.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, survey.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, survey.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, survey.ErrInvalidTransition), errors.Is(err, survey.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, locking.ErrBusy):
		status = http.StatusServiceUnavailable
	}

	_ = c.Error(err)
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	body := gin.H{"error": err.Error()}
	if kind := survey.KindOf(err); kind != nil {
		body["kind"] = kindName(kind)
	}
	c.AbortWithStatusJSON(status, body)
}

func kindName(kind error) string {
	switch kind {
	case survey.ErrValidation:
		return "validation"
	case survey.ErrInvalidTransition:
		return "invalid_transition"
	case survey.ErrPermission:
		return "permission"
	case survey.ErrNotFound:
		return "not_found"
	case survey.ErrConflict:
		return "conflict"
	default:
		return ""
	}
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is required", field)
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD or RFC 3339, got %q", field, raw)
	}
	return t, nil
}

func rangeFromQuery(c *gin.Context) (reporting.TimeRange, error) {
	var r reporting.TimeRange
	if raw := c.Query("from"); raw != "" {
		t, err := parseDate("from", raw)
		if err != nil {
			return r, err
		}
		r.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseDate("to", raw)
		if err != nil {
			return r, err
		}
		r.To = t
	}
	return r, nil
}
