// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels stay
// bounded: method, the registered route ("unmatched" when nothing matched, so
// probing random URLs cannot add series) and the numeric status. Error
// responses are additionally counted by their stable API error code, which
// is how invalid_transition or forbidden spikes in the transaction workflow
// show up on dashboards.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "ecoprenda"
	unmatchedPath    = "unmatched"
	ctxKeyErrorCode  = "api.error_code"
)

var (
	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "http_errors_total",
		Help:      "Error responses by route and API error code.",
	}, []string{"path", "code"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		// Uploads run the image through storage and the classifier, so the
		// tail reaches past the default buckets.
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "http_requests_inflight",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpReqSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_size_bytes",
		Help:      "Declared size of request bodies in bytes (image uploads included).",
		Buckets:   []float64{1 << 10, 10 << 10, 100 << 10, 500 << 10, 1 << 20, 2 << 20, 5 << 20, 6 << 20},
	}, []string{"method", "path"})

	httpRespSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_response_size_bytes",
		Help:      "Size of HTTP responses in bytes.",
		Buckets:   []float64{200, 1 << 10, 5 << 10, 25 << 10, 100 << 10, 500 << 10, 1 << 20},
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(httpReqs, httpErrors, httpLat, httpInflight, httpReqSize, httpRespSize)
}

// SetErrorCode records the API error code of the response being written so
// Metrics can count it. The handlers' error envelope calls it.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ctxKeyErrorCode, code)
}

func errorCodeFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyErrorCode); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Metrics returns a Gin middleware that instruments every request:
//
//	ecoprenda_http_requests_total{method,path,status}
//	ecoprenda_http_errors_total{path,code}          (status >= 400)
//	ecoprenda_http_request_duration_seconds{method,path}
//	ecoprenda_http_request_size_bytes{method,path}  (when Content-Length is known)
//	ecoprenda_http_response_size_bytes{method,path} (when a body was written)
//	ecoprenda_http_requests_inflight
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method
		status := c.Writer.Status()

		httpReqs.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		if status >= 400 {
			code := errorCodeFrom(c)
			if code == "" {
				code = "status_" + strconv.Itoa(status)
			}
			httpErrors.WithLabelValues(path, code).Inc()
		}
		if n := c.Request.ContentLength; n > 0 {
			httpReqSize.WithLabelValues(method, path).Observe(float64(n))
		}
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
