package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"market-radar/internal/domain"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxURLLength = 255

// APIKeyAuth returns a Gin middleware that enforces X-API-Key header validation.
// If key is empty, the middleware is a no-op (auth disabled).
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if provided == "" {
			abortWithError(c, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}
		if provided != key {
			abortWithError(c, http.StatusForbidden, "invalid API key")
			return
		}
		c.Next()
	}
}

// RequestID propagates X-Request-ID or mints a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// MaxURLLength rejects request URIs longer than 255 bytes with 414.
func MaxURLLength() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(c.Request.URL.RequestURI()) > maxURLLength {
			abortWithError(c, http.StatusRequestURITooLong, "Request-URI Too Long.")
			return
		}
		c.Next()
	}
}

// CORS allows the configured origins. An empty list allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "X-API-Key", "X-Request-ID")
	cfg.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// RateLimit admits each request against the governor, keyed by client IP.
// Governor failures let the request through.
func (h *Handler) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		decision, err := h.governor.Admit(c.Request.Context(), key, h.opts.RateLimit.Limit, h.opts.RateLimit.Window)
		if err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("rate governor unavailable, admitting request")
			c.Next()
			return
		}
		if h.recorder != nil {
			h.recorder.ObserveGovernor(decision.Allowed)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.ResetAt != nil {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}

		if !decision.Allowed {
			if decision.ResetAt != nil {
				wait := max(1, int(time.Until(*decision.ResetAt).Round(time.Second)/time.Second))
				c.Header("Retry-After", strconv.Itoa(wait))
			}
			writeError(c, &domain.ExhaustedError{
				Key:       key,
				Limit:     decision.Limit,
				Remaining: decision.Remaining,
				ResetAt:   decision.ResetAt,
			})
			return
		}
		c.Next()
	}
}
