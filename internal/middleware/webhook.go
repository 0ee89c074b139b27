package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/response"
)

// WebhookSecretHeader carries the shared secret of provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret admits requests presenting the shared secret. An empty
// secret closes the route.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid webhook secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
