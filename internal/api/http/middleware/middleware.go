// Package middleware holds the gin middleware of the status server.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/trace"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id unless the client sent one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Trace opens a server span per request.
func Trace(tracer trace.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(trace.IntAttr("http.status_code", c.Writer.Status()))
	}
}

// Log writes one line per request. Probes and scrapes are logged at debug.
func Log(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logging.Field{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("latency", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
			logging.String("request_id", c.GetString("request_id")),
		}
		l := logger.WithContext(c.Request.Context())
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			l.Error("HTTP request", fields...)
		case c.FullPath() == "/metrics" || c.FullPath() == "/health/live":
			l.Debug("HTTP request", fields...)
		default:
			l.Info("HTTP request", fields...)
		}
	}
}

// RateLimit limits each client IP to limit requests per second with the
// given burst. Idle limiters are dropped after ten minutes.
func RateLimit(limit rate.Limit, burst int) gin.HandlerFunc {
	type entry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*entry)
		sweep   time.Time
	)
	const idle = 10 * time.Minute

	return func(c *gin.Context) {
		now := time.Now()
		key := c.ClientIP()

		mu.Lock()
		if now.Sub(sweep) > idle {
			for k, e := range clients {
				if now.Sub(e.lastSeen) > idle {
					delete(clients, k)
				}
			}
			sweep = now
		}
		e, ok := clients[key]
		if !ok {
			e = &entry{limiter: rate.NewLimiter(limit, burst)}
			clients[key] = e
		}
		e.lastSeen = now
		allowed := e.limiter.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

//Personal.AI order the ending
