package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/signalctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetricsMiddlewareLabelsByApp(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestMetricsMiddleware("signalctl-metrics-test"))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("signalctl-metrics-test", "GET", "/ping", "204")); got != 1 {
		t.Fatalf("ping count=%v want 1", got)
	}
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("signalctl-metrics-test", "GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched count=%v want 1", got)
	}
}
