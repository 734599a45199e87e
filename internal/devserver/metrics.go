package devserver

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics counts what the stub backend serves, exposed on /metrics so
// local setups can point a scraper at it.
type serverMetrics struct {
	registry  *promclient.Registry
	requests  *promclient.CounterVec
	turns     promclient.Counter
	sseEvents promclient.Counter
}

func newServerMetrics() (*serverMetrics, error) {
	registry := promclient.NewRegistry()
	m := &serverMetrics{
		registry: registry,
		requests: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: "horizon_devserver",
			Name:      "http_requests_total",
			Help:      "Requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		turns: promclient.NewCounter(promclient.CounterOpts{
			Namespace: "horizon_devserver",
			Name:      "chat_turns_total",
			Help:      "Chat turns streamed to completion.",
		}),
		sseEvents: promclient.NewCounter(promclient.CounterOpts{
			Namespace: "horizon_devserver",
			Name:      "sse_events_total",
			Help:      "SSE data frames written, keepalives excluded.",
		}),
	}
	for _, c := range []promclient.Collector{m.requests, m.turns, m.sseEvents} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

func (m *serverMetrics) handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func (m *serverMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
