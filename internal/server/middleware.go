package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// requestID reuses the caller's X-Request-Id or assigns a new one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("HTTP request")
		case status >= http.StatusBadRequest:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}

// recovery turns a handler panic into the generic scan failure response
func recovery(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("request_id", c.GetString(requestIDKey)).Errorf("Recovered from panic: %v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errScanFailed})
			}
		}()
		c.Next()
	}
}
