package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/gogotex/backend/go-repository/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func serve(r *gin.Engine, path string, header map[string]string) int {
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	allowed := metrics.RateLimitAllowed.WithLabelValues("memory")
	before := testutil.ToFloat64(allowed)

	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2)) // generous rate
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	// two quick requests should pass
	require.Equal(t, http.StatusOK, serve(r, "/ok", nil))
	require.Equal(t, http.StatusOK, serve(r, "/ok", nil))

	require.Equal(t, before+2, testutil.ToFloat64(allowed))
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	r := gin.New()
	// very low rate to force rejections
	r.Use(RateLimitMiddleware(2, 1))
	r.GET("/limited", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, serve(r, "/limited", nil))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "/limited", nil))

	// one token is back after half a second
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, serve(r, "/limited", nil))
}

func TestRateLimitMiddleware_KeysByClientID(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	a := map[string]string{ClientIDHeader: "client-a"}
	b := map[string]string{ClientIDHeader: "client-b"}

	require.Equal(t, http.StatusOK, serve(r, "/u", a))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "/u", a))
	// same IP, different client id
	require.Equal(t, http.StatusOK, serve(r, "/u", b))
}
