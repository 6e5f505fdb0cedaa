package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pestvision/internal/observability"
)

func TestLoggingMiddlewareLabelsByRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.GET("/v1/detections/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.CollectAndCount(observability.HTTPRequestDuration)

	for _, id := range []string{"a1", "b2", "c3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/detections/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Three distinct ids share one histogram child keyed by the route pattern.
	assert.Equal(t, before+1, testutil.CollectAndCount(observability.HTTPRequestDuration))
}

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(key string) *gin.Engine {
		r := gin.New()
		r.Use(APIKeyMiddleware(key))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("open when no key configured", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter("").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing key", func(t *testing.T) {
		w := httptest.NewRecorder()
		newRouter("secret").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(apiKeyHeader, "guess")
		w := httptest.NewRecorder()
		newRouter("secret").ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("correct key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(apiKeyHeader, "secret")
		w := httptest.NewRecorder()
		newRouter("secret").ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
