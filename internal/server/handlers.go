package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rushi053/stackradar/internal/fetch"
)

const (
	errURLRequired = "URL is required"
	errInvalidURL  = "Invalid URL format"
	errScanFailed  = "Failed to scan website. Please check the URL and try again."
	fetchFailedFmt = "Failed to fetch website: %d %s"
)

// scanRequest keeps url untyped so that a non-string value is reported as
// an invalid URL instead of a decoding failure.
type scanRequest struct {
	URL interface{} `json:"url"`
}

func (s *Server) scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.WithField("request_id", c.GetString(requestIDKey)).WithError(err).Warn("Could not decode scan request")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errScanFailed})
		return
	}
	s.runScan(c, req.URL)
}

// scanQuery serves GET /api/scan?url=...
func (s *Server) scanQuery(c *gin.Context) {
	s.runScan(c, c.Query("url"))
}

// runScan validates value, fetches the page and writes the detection result
func (s *Server) runScan(c *gin.Context, value interface{}) {
	log := s.logger.WithField("request_id", c.GetString(requestIDKey))

	if isFalsy(value) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errURLRequired})
		return
	}
	rawURL, ok := value.(string)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidURL})
		return
	}
	target, err := fetch.NormalizeURL(rawURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidURL})
		return
	}

	page, err := s.fetcher.Fetch(c.Request.Context(), target)
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			log.WithFields(logrus.Fields{"url": target, "status": statusErr.StatusCode}).Info("Upstream returned an error status")
			c.JSON(statusErr.StatusCode, gin.H{"error": fmt.Sprintf(fetchFailedFmt, statusErr.StatusCode, statusErr.Status)})
			return
		}
		log.WithError(err).WithField("url", target).Error("Scan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errScanFailed})
		return
	}

	result := s.radar.Scan(page.RequestedURL, page.HTML, page.Headers)
	log.WithFields(logrus.Fields{
		"url":          result.URL,
		"technologies": result.Categories.Count(),
	}).Info("Scan finished")
	c.JSON(http.StatusOK, result)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"technologies": len(s.radar.Technologies()),
	})
}

// isFalsy reports whether v is absent or a zero JSON scalar
func isFalsy(v interface{}) bool {
	switch value := v.(type) {
	case nil:
		return true
	case string:
		return value == ""
	case bool:
		return !value
	case float64:
		return value == 0
	default:
		return false
	}
}
