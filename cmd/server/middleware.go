package main

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketfeed/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// requestID propagates the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog logs every request and counts it by route.
func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, status)

		entry := log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"request_id": c.GetString("request_id"),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Warn("request failed")
		default:
			entry.Debug("request served")
		}
	}
}

// withGzip compresses responses when the client supports gzip. The
// metrics endpoint negotiates its own encoding and is left alone.
// Responses without a body keep no Content-Encoding.
func withGzip() gin.HandlerFunc {
	pool := sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.Request.Method == http.MethodHead ||
			!strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		gz := pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)
		w := &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		defer func() {
			if w.started {
				_ = gz.Close()
			}
			gz.Reset(io.Discard)
			pool.Put(gz)
		}()
		c.Header("Vary", "Accept-Encoding")
		c.Writer = w
		c.Next()
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz      *gzip.Writer
	started bool
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	if !g.started {
		g.started = true
		h := g.Header()
		h.Set("Content-Encoding", "gzip")
		h.Del("Content-Length")
	}
	return g.gz.Write(b)
}

func (g *gzipWriter) WriteString(s string) (int, error) { return g.Write([]byte(s)) }
