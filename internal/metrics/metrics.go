package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the HTTP and checkout collectors of one service instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	serviceName string
	gatherer    prometheus.Gatherer

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sales           *prometheus.CounterVec
	salesAmount     *prometheus.CounterVec
	checkoutRejects *prometheus.CounterVec
	creditPayments  prometheus.Counter
	visionRequests  *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(serviceName string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		serviceName: serviceName,
		gatherer:    reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"service", "method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service", "method", "path", "status"}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_committed_total",
			Help: "Committed sales by payment method",
		}, []string{"payment_method"}),
		salesAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sales_amount_total",
			Help: "Sum of committed sale totals by payment method",
		}, []string{"payment_method"}),
		checkoutRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_checkout_rejections_total",
			Help: "Checkouts refused before or during commit, by reason",
		}, []string{"reason"}),
		creditPayments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_credit_payments_total",
			Help: "Accepted customer credit payments",
		}),
		visionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_vision_requests_total",
			Help: "Vision sidecar calls by outcome",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.sales,
		m.salesAmount,
		m.checkoutRejects,
		m.creditPayments,
		m.visionRequests,
	)
	return m
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(m.serviceName, c.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(m.serviceName, c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SaleCommitted(paymentMethod string, total float64) {
	if m == nil {
		return
	}
	m.sales.WithLabelValues(paymentMethod).Inc()
	m.salesAmount.WithLabelValues(paymentMethod).Add(total)
}

func (m *Metrics) CheckoutRejected(reason string) {
	if m == nil {
		return
	}
	m.checkoutRejects.WithLabelValues(reason).Inc()
}

func (m *Metrics) CreditPaymentAccepted() {
	if m == nil {
		return
	}
	m.creditPayments.Inc()
}

func (m *Metrics) VisionRequest(outcome string) {
	if m == nil {
		return
	}
	m.visionRequests.WithLabelValues(outcome).Inc()
}
