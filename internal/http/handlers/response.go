// Package handlers provides HTTP handler implementations for the public API.
//
// Every failure leaves through fail(), which writes the ErrorResponse
// envelope, tags the request with its stable error code for the metrics
// middleware and logs server-side failures on the request logger:
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_transition",
//	  "message": "transaction cannot confirm from RESERVADA"
//	}
//
// Successes are plain JSON bodies written by ok(), created() or noContent().
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"listing not found"`
}

// fail aborts the request with an ErrorResponse. 5xx responses are logged
// at error level; 4xx only at debug, since they are the caller's doing.
func fail(c *gin.Context, status int, code, msg string) {
	middleware.SetErrorCode(c, code)

	lg := middleware.LoggerFrom(c)
	ev := lg.Debug()
	if status >= http.StatusInternalServerError {
		ev = lg.Error()
	}
	ev.Int("status", status).Str("code", code).Str("message", msg).Msg("api error")

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail() for the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// created writes 201 with a Location header pointing at the new resource
// under the API base path, e.g. /api/v1/transactions/42.
func (h *Handlers) created(c *gin.Context, body any, collection string, id uint) {
	c.Header("Location", h.basePath+"/"+collection+"/"+strconv.FormatUint(uint64(id), 10))
	c.JSON(http.StatusCreated, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
