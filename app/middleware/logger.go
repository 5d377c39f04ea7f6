package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"stagecost/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

const maxLoggedBody = 1000

// Logger logs one line per request, with the compacted body of POSTs
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var body string
		if c.Request.Method == http.MethodPost {
			body = readBody(c)
		}

		c.Next()

		status := c.Writer.Status()
		if status == http.StatusNotFound && c.FullPath() == "" {
			return
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("uri", c.Request.RequestURI),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if body != "" {
			fields = append(fields, zap.String("body", body))
		}
		logger.Info("http request", fields...)
	}
}

func readBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(data))
	return CompressBody(data)
}

// CompressBody strips whitespace from a JSON body and truncates it
func CompressBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	compressed := pretty.Ugly(body)
	if len(compressed) > maxLoggedBody {
		return string(compressed[:maxLoggedBody]) + "..."
	}
	return string(compressed)
}
