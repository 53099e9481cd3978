package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"market-radar/internal/domain"

	"github.com/gin-gonic/gin"
)

const requestIDKey = "requestId"

// ErrorBody is the error member of a failed response envelope.
type ErrorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// respond writes the success envelope. extra keys sit next to data.
func respond(c *gin.Context, data any, extra gin.H) {
	body := gin.H{
		"success":   true,
		"data":      data,
		"timestamp": timestamp(),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func abortWithError(c *gin.Context, status int, message string) {
	body := gin.H{
		"success": false,
		"error": ErrorBody{
			Message:    message,
			StatusCode: status,
		},
		"timestamp": timestamp(),
	}
	if id := c.GetString(requestIDKey); id != "" {
		body[requestIDKey] = id
	}
	c.AbortWithStatusJSON(status, body)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	abortWithError(c, status, err.Error())
}

func statusFor(err error) int {
	var (
		validation *domain.ValidationError
		exhausted  *domain.ExhaustedError
		upstream   *domain.UpstreamError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &exhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
