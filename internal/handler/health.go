package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health godoc
// @Summary      Health check
// @Description  Returns the health status of the service
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": timestamp(),
		"uptime":    time.Since(h.startedAt).Seconds(),
	})
}

// Index godoc
// @Summary      API index
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api [get]
func (h *Handler) Index(c *gin.Context) {
	base := "/api/v1/stocks"
	c.JSON(http.StatusOK, gin.H{
		"message": "Market Radar API",
		"version": "1.0.0",
		"endpoints": gin.H{
			"quote":          base + "/quote/:symbol",
			"quotes":         base + "/quotes?symbols=",
			"historical":     base + "/historical/:symbol",
			"search":         base + "/search?keywords=",
			"overview":       base + "/overview/:symbol",
			"movingAverages": base + "/moving-averages/:symbol",
			"earnings":       base + "/earnings/:symbol",
			"riskRadar":      base + "/risk-radar/:symbol",
			"rateLimit":      base + "/rate-limit",
		},
		"documentation": "/swagger/index.html",
	})
}

// GetRateLimitStatus godoc
// @Summary      Remaining request quota
// @Description  Reports the caller's remaining requests without consuming one
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/stocks/rate-limit [get]
func (h *Handler) GetRateLimitStatus(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-rate-limit-status")
	defer span.End()

	key := c.ClientIP()
	limits := h.opts.RateLimit
	remaining, err := h.governor.Remaining(ctx, key, limits.Limit, limits.Window)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	resetAt, err := h.governor.ResetAt(ctx, key, limits.Window)
	if err != nil {
		h.fail(c, span, err)
		return
	}

	data := gin.H{
		"limit":     limits.Limit,
		"windowMs":  limits.Window.Milliseconds(),
		"remaining": remaining,
		"resetTime": resetAt,
	}
	respond(c, data, nil)
}
