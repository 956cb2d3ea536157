package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/blob"
	"github.com/samber/lo"
)

// maxWebhookBody bounds a processor delivery.
const maxWebhookBody = 1 << 20

// webhook verifies the processor signature over the raw body, so the body is never bound.
func (s *Server) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}
	if err := s.shop.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) expireCredits(c *gin.Context) {
	report, err := s.shop.ExpireCredits(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// file serves an object of the filesystem bucket store behind a signed link.
func (s *Server) file(c *gin.Context) {
	bucket := c.Param("bucket")
	object := strings.TrimPrefix(c.Param("object"), "/")
	if err := s.files.Verify(bucket, object, c.Query("expires"), c.Query("sig")); err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid or expired link"})
		return
	}
	data, err := s.files.Read(c.Request.Context(), bucket, object)
	if errors.Is(err, blob.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	contentType := lo.CoalesceOrEmpty(mime.TypeByExtension(path.Ext(object)), "application/octet-stream")
	c.Data(http.StatusOK, contentType, data)
}
