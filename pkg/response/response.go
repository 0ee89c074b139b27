package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/assignx-api/internal/models"
	appErrors "github.com/noah-isme/assignx-api/pkg/errors"
	"github.com/noah-isme/assignx-api/pkg/middleware/requestid"
)

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Data       any                `json:"data,omitempty"`
	Error      *appErrors.Error   `json:"error,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	Meta       map[string]any     `json:"meta,omitempty"`
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

// JSON writes data with optional pagination and a single meta map.
func JSON(c *gin.Context, status int, data any, pagination *models.Pagination, meta ...map[string]any) {
	noStore(c)
	env := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && len(meta[0]) > 0 {
		env.Meta = meta[0]
	}
	c.JSON(status, env)
}

func Created(c *gin.Context, data any) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error maps err onto its API error and tags the body with the request id
// so support can find the matching log line.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	env := Envelope{Error: appErr}
	if id := requestid.Value(c); id != "" {
		env.Meta = map[string]any{"request_id": id}
	}
	c.JSON(appErr.Status, env)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
