package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/internal/models"
)

func newTestContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	if reader != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

func withPrincipal(c *gin.Context, userID string, roles ...models.Role) *models.Principal {
	principal := &models.Principal{UserID: userID, Roles: models.NewRoleSet(roles...)}
	c.Set(middleware.ContextPrincipalKey, principal)
	return principal
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected envelope error, got %s", rec.Body.String())
	code, _ := errBody["code"].(string)
	return code
}

func ginParam(key, value string) gin.Param {
	return gin.Param{Key: key, Value: value}
}
