package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("pos-ledger", prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/sales/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sales/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("pos-ledger", "GET", "/api/sales/:id", "200"))
	if got != 3 {
		t.Fatalf("requests = %v, want 3", got)
	}
}

func TestBusinessCountersAndHandler(t *testing.T) {
	m := New("pos-ledger", prometheus.NewRegistry())
	m.SaleCommitted("cash", 2400)
	m.CheckoutRejected("insufficient_stock")
	m.CreditPaymentAccepted()
	m.VisionRequest("unavailable")

	if got := testutil.ToFloat64(m.salesAmount.WithLabelValues("cash")); got != 2400 {
		t.Fatalf("sales amount = %v", got)
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "pos_checkout_rejections_total") {
		t.Fatal("exposition is missing checkout rejections")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SaleCommitted("cash", 1)
	m.CheckoutRejected("x")
	m.CreditPaymentAccepted()
	m.VisionRequest("ok")
}
