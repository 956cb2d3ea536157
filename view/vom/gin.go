// Package vom binds view schemas to gin routes.
package vom

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/view"
	"github.com/samber/mo"
	"github.com/tidwall/gjson"
)

type valueKey struct{}

// MaxBody caps the size of a bound request body.
const MaxBody = 1 << 20

// Bind validates the request body against schema. A valid body is stored in
// the request context for Value; anything else aborts with 400.
func Bind(schema *view.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		bts := mo.TupleToResult(io.ReadAll(io.LimitReader(c.Request.Body, MaxBody)))
		if bts.IsError() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bts.Error().Error()})
			return
		}
		body := string(bts.MustGet())
		if !gjson.Valid(body) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
			return
		}
		result := schema.Validate(body)
		if result.IsError() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": result.Error().Error()})
			return
		}
		ctx := context.WithValue(c.Request.Context(), valueKey{}, result.MustGet())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Value returns the object stored by Bind, or nil when the route is not bound.
func Value(c *gin.Context) view.ValueObject {
	if vo, ok := c.Request.Context().Value(valueKey{}).(view.ValueObject); ok {
		return vo
	}
	return nil
}
