package middleware

import "github.com/gin-gonic/gin"

const metaKey = "response_meta"

// WithResponseMeta gives handlers on the route a meta map that ends up in the
// response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaKey, map[string]any{})
		c.Next()
	}
}

// ExtractMeta returns the route's meta map, or nil when WithResponseMeta is
// not installed.
func ExtractMeta(c *gin.Context) map[string]any {
	if c == nil {
		return nil
	}
	v, ok := c.Get(metaKey)
	if !ok {
		return nil
	}
	meta, _ := v.(map[string]any)
	return meta
}
