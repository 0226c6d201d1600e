package httpapi

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"survey-platform/internal/auth"
	"survey-platform/internal/config"
	"survey-platform/internal/locking"
	"survey-platform/internal/reporting"
	"survey-platform/internal/survey"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testIdentity reads the caller from X-Test-User / X-Test-Role headers.
func testIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), c.GetHeader("X-Test-User"), c.GetHeader("X-Test-Role"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type fixture struct {
	r        *gin.Engine
	notified []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{}
	repo := survey.NewMemoryRepo()
	notifier := notifyFunc(func(customerID string) { f.notified = append(f.notified, customerID) })
	h := Handlers{
		Surveys: survey.NewService(repo, notifier),
		Reports: reporting.NewService(repo),
	}

	r := gin.New()
	r.Use(testIdentity())
	r.POST("/surveys", h.CreateSurvey)
	r.GET("/surveys", h.ListSurveys)
	r.GET("/surveys/:id", h.GetSurvey)
	r.POST("/surveys/:id/submit", h.SubmitForReview)
	r.POST("/surveys/:id/review", h.Review)
	r.POST("/surveys/:id/publish", h.Publish)
	r.PUT("/surveys/:id/responses", h.RecordResponses)
	r.POST("/surveys/:id/complete", h.Complete)
	r.GET("/reports/summary", h.StatusSummary)
	r.GET("/reports/surveys.csv", h.ExportCSV)
	f.r = r
	return f
}

type notifyFunc func(customerID string)

func (f notifyFunc) Notify(_ context.Context, customerID, _ string) error {
	f(customerID)
	return nil
}

func (f *fixture) do(t *testing.T, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", role)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) survey.Snapshot {
	t.Helper()
	var snap survey.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap), w.Body.String())
	return snap
}

var createBody = map[string]any{
	"title":             "Onboarding feedback",
	"questions":         []string{"Q1", "Q2"},
	"start_date":        "2026-03-01",
	"end_date":          "2026-03-31",
	"owner_customer_id": "C1",
}

func TestHandlers_Lifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := decode(t, w)
	assert.Equal(t, survey.StatusDraft, snap.Status)
	assert.True(t, snap.StartDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	id := snap.ID

	w = f.do(t, http.MethodPost, "/surveys/"+id+"/submit", "lm-1", "lead_manager", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/surveys/"+id+"/review", "coe-1", "coe", map[string]string{"decision": "approve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, survey.StatusApproved, decode(t, w).Status)

	w = f.do(t, http.MethodPost, "/surveys/"+id+"/publish", "coe-1", "coe", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"C1"}, f.notified)

	w = f.do(t, http.MethodPut, "/surveys/"+id+"/responses", "C1", "customer", map[string]any{"answers": map[string]string{"Q1": "yes"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, survey.StatusInProgress, decode(t, w).Status)

	w = f.do(t, http.MethodPost, "/surveys/"+id+"/complete", "C1", "customer", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, survey.StatusCompleted, decode(t, w).Status)

	w = f.do(t, http.MethodGet, "/surveys/"+id, "C1", "customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"Q1": "yes"}, decode(t, w).Responses)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	id := decode(t, f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", createBody)).ID

	cases := []struct {
		name         string
		method, path string
		user, role   string
		body         any
		want         int
		kind         string
	}{
		{"customer cannot create", http.MethodPost, "/surveys", "C1", "customer", createBody, http.StatusForbidden, "permission"},
		{"publish draft", http.MethodPost, "/surveys/" + id + "/publish", "coe-1", "coe", nil, http.StatusConflict, "invalid_transition"},
		{"unknown decision", http.MethodPost, "/surveys/" + id + "/review", "coe-1", "coe", map[string]string{"decision": "later"}, http.StatusBadRequest, "validation"},
		{"missing survey", http.MethodGet, "/surveys/nope", "lm-1", "lead_manager", nil, http.StatusNotFound, "not_found"},
		{"foreign customer", http.MethodGet, "/surveys/" + id, "C2", "customer", nil, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, tc.method, tc.path, tc.user, tc.role, tc.body)
			require.Equal(t, tc.want, w.Code, w.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.kind, body["kind"])
		})
	}
}

func TestHandlers_BadInput(t *testing.T) {
	f := newFixture(t)

	bad := map[string]any{"title": "x", "questions": []string{"Q1"}, "start_date": "01/03/2026", "end_date": "2026-03-31", "owner_customer_id": "C1"}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", bad).Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/surveys?status=archived", "lm-1", "lead_manager", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/surveys?limit=-1", "lm-1", "lead_manager", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/surveys", "", "lead_manager", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/surveys", "u", "root", nil).Code)
}

func TestHandlers_ListScopesCustomers(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", createBody)
	other := map[string]any{}
	for k, v := range createBody {
		other[k] = v
	}
	other["owner_customer_id"] = "C2"
	f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", other)

	var out surveyList
	w := f.do(t, http.MethodGet, "/surveys", "C2", "customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "C2", out.Surveys[0].OwnerCustomerID)

	w = f.do(t, http.MethodGet, "/surveys?status=draft&limit=5", "coe-1", "coe", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
}

func TestHandlers_Reports(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/surveys", "lm-1", "lead_manager", createBody)

	w := f.do(t, http.MethodGet, "/reports/summary", "lm-1", "lead_manager", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sum reporting.StatusSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.TotalSurveys)
	assert.Equal(t, 1, sum.ByStatus[survey.StatusDraft])

	w = f.do(t, http.MethodGet, "/reports/surveys.csv", "coe-1", "coe", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Onboarding feedback", rows[1][1])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/reports/summary?from=2026-03-02&to=2026-03-01", "lm-1", "lead_manager", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/reports/surveys.csv?status=archived", "lm-1", "lead_manager", nil).Code)
}

func TestWriteError_BusyAndInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for err, want := range map[error]int{
		errors.Join(locking.ErrBusy, errors.New("deadline")): http.StatusServiceUnavailable,
		fmt.Errorf("survey: save: %w", survey.ErrConflict):  http.StatusConflict,
		errors.New("boom"):                                   http.StatusInternalServerError,
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		writeError(c, err)
		assert.Equal(t, want, w.Code, err.Error())
	}
}

func TestLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	post := func(h Handlers, body string) *httptest.ResponseRecorder {
		r := gin.New()
		r.POST("/auth/token", h.Login)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body)))
		return w
	}

	w := post(Handlers{Auth: m, AllowLogin: true}, `{"user_id":"C1","role":"customer"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	claims, err := m.Verify(out["access_token"].(string), auth.TokenTypeAccess, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "customer", claims.Role)

	assert.Equal(t, http.StatusBadRequest, post(Handlers{Auth: m, AllowLogin: true}, `{"user_id":"x","role":"system"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(Handlers{Auth: m}, `{"user_id":"C1","role":"customer"}`).Code)
}
