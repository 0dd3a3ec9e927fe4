package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/noah-isme/tuition-api/internal/models"
	appErrors "github.com/noah-isme/tuition-api/pkg/errors"
)

type stubAuthenticator map[string]*models.Principal

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*models.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token")
}

type recordingAudit struct {
	logs []models.AuditLog
}

func (r *recordingAudit) Create(_ context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return nil
}

var testAuth = stubAuthenticator{
	"admin":   {UserID: "u-admin", Roles: models.NewRoleSet(models.RoleAdmin)},
	"student": {UserID: "u-student", Roles: models.NewRoleSet(models.RoleStudent)},
	"none":    {UserID: "u-none"},
}

type envelope struct {
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func serve(t *testing.T, router *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body envelope
	if rec.Code >= 400 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestJWTAndRBACRouting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, CurrentPrincipal(c).UserID) }
	router.GET("/admin", JWT(testAuth), RequireAdmin(), ok)
	router.GET("/student", JWT(testAuth), RequireStudent(), ok)
	router.GET("/profile", JWT(testAuth), RequireAnyRole(), ok)

	cases := []struct {
		name     string
		path     string
		token    string
		status   int
		redirect string
		message  string
	}{
		{"anonymous", "/admin", "", http.StatusUnauthorized, models.RouteAuth, "authentication required"},
		{"bad token", "/admin", "forged", http.StatusUnauthorized, models.RouteAuth, "invalid token"},
		{"roleless", "/student", "none", http.StatusForbidden, models.RouteHome, "access denied"},
		{"student on admin", "/admin", "student", http.StatusForbidden, models.RouteHome, "access denied. admin only"},
		{"admin on student", "/student", "admin", http.StatusForbidden, models.RouteHome, "access denied. students only"},
		{"admin", "/admin", "admin", http.StatusOK, "", ""},
		{"student", "/student", "student", http.StatusOK, "", ""},
		{"roleless on profile", "/profile", "none", http.StatusForbidden, models.RouteHome, "access denied"},
		{"anonymous on profile", "/profile", "", http.StatusUnauthorized, models.RouteAuth, "authentication required"},
		{"student on profile", "/profile", "student", http.StatusOK, "", ""},
		{"admin on profile", "/profile", "admin", http.StatusOK, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := serve(t, router, http.MethodGet, tc.path, tc.token)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status >= 400 {
				require.NotNil(t, body.Error)
				assert.Equal(t, tc.message, body.Error.Message)
				assert.Equal(t, tc.redirect, body.Meta["redirect"])
			}
		})
	}
}

func TestFunctionJWTRendersFlatError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/functions/send-sms", FunctionJWT(testAuth), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/send-sms", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", OptionalJWT(testAuth), func(c *gin.Context) {
		if p := CurrentPrincipal(c); p != nil {
			c.String(http.StatusOK, p.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	rec, _ := serve(t, router, http.MethodGet, "/", "")
	assert.Equal(t, "anonymous", rec.Body.String())
	rec, _ = serve(t, router, http.MethodGet, "/", "forged")
	assert.Equal(t, "anonymous", rec.Body.String())
	rec, _ = serve(t, router, http.MethodGet, "/", "student")
	assert.Equal(t, "u-student", rec.Body.String())
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	audit := &recordingAudit{}
	router := gin.New()
	router.PUT("/students/:id", JWT(testAuth), Audit(audit, nil, models.AuditActionStudentUpdate, "student"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	serve(t, router, http.MethodPut, "/students/s1", "admin")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/students/s1?fail=1", nil)
	req.Header.Set("Authorization", "Bearer admin")
	router.ServeHTTP(rec, req)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, "u-admin", *audit.logs[0].UserID)
	assert.Equal(t, "s1", *audit.logs[0].ResourceID)
	assert.Equal(t, models.AuditActionStudentUpdate, audit.logs[0].Action)
}

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))

	assert.True(t, NewRateLimiter(0, 0).Allow("anyone"))
}

func TestRateLimiterSweepsIdleVisitorsOnInterval(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	now := start
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = start.Add(11 * time.Minute)
	limiter.Allow("10.0.0.2")
	assert.NotContains(t, limiter.visitors, "10.0.0.1")
	assert.Contains(t, limiter.visitors, "10.0.0.2")

	limiter.visitors["10.0.0.3"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: start}
	now = start.Add(12 * time.Minute)
	limiter.Allow("10.0.0.2")
	assert.Contains(t, limiter.visitors, "10.0.0.3", "no sweep before idle/2 has passed")

	now = start.Add(16 * time.Minute)
	limiter.Allow("10.0.0.2")
	assert.NotContains(t, limiter.visitors, "10.0.0.3")
	assert.Len(t, limiter.visitors, 1)
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/auth/login", NewRateLimiter(1, 1).Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec, _ := serve(t, router, http.MethodPost, "/auth/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, body := serve(t, router, http.MethodPost, "/auth/login", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, appErrors.ErrTooManyRequests.Code, body.Error.Code)
}

func TestResponseMetaCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	SetCacheHit(c, true)
	meta := ExtractMeta(c)
	assert.Equal(t, true, meta["cache_hit"])
}
