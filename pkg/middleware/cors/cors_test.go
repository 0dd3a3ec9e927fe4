package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.Any("/functions/send-sms", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, "/functions/send-sms", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestPreflightShortCircuits(t *testing.T) {
	w := serve(nil, http.MethodOptions, "https://tuition.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://tuition.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Client-Info")
}

func TestUnknownOriginNotEchoed(t *testing.T) {
	w := serve([]string{"https://tuition.example/"}, http.MethodPost, "https://evil.example")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAllowedOriginTrailingSlash(t *testing.T) {
	w := serve([]string{"https://tuition.example/"}, http.MethodPost, "https://tuition.example")
	assert.Equal(t, "https://tuition.example", w.Header().Get("Access-Control-Allow-Origin"))
}
