package handler

import (
	"strings"

	"market-radar/internal/domain"
	"market-radar/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func (h *Handler) bindSymbol(c *gin.Context, span trace.Span) (string, bool) {
	var uri symbolURI
	if err := c.ShouldBindUri(&uri); err != nil {
		writeError(c, bindingError(err))
		return "", false
	}
	symbol := service.NormalizeSymbol(uri.Symbol)
	span.SetAttributes(attribute.String("symbol", symbol))
	return symbol, true
}

func (h *Handler) fail(c *gin.Context, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if status := statusFor(err); status >= 500 {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	writeError(c, err)
}

// GetQuote godoc
// @Summary      Get a real-time stock quote
// @Description  Returns the latest quote, cached for a short TTL
// @Tags         stocks
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol (e.g., AAPL)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      429  {object}  map[string]interface{}
// @Router       /api/v1/stocks/quote/{symbol} [get]
func (h *Handler) GetQuote(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-quote")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	quote, err := h.market.Quote(ctx, symbol)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, quote, nil)
}

// GetQuotes godoc
// @Summary      Get quotes for several symbols
// @Description  Failed symbols carry an error entry instead of failing the request
// @Tags         stocks
// @Produce      json
// @Param        symbols  query  string  true  "Comma separated tickers (e.g., AAPL,MSFT)"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/v1/stocks/quotes [get]
func (h *Handler) GetQuotes(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-quotes")
	defer span.End()

	var q quotesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err))
		return
	}

	symbols := splitList(q.Symbols)
	results := h.market.Quotes(ctx, symbols)
	data := make(map[string]any, len(results))
	requested := make([]string, 0, len(results))
	for _, res := range results {
		requested = append(requested, res.Symbol)
		if res.Err != nil {
			data[res.Symbol] = gin.H{"error": res.Err.Error()}
			continue
		}
		data[res.Symbol] = res.Quote
	}
	respond(c, data, gin.H{"symbols": requested})
}

// GetHistorical godoc
// @Summary      Get daily price history
// @Description  compact covers the last 100 days, full up to 20 years
// @Tags         stocks
// @Produce      json
// @Param        symbol      path   string  true   "Ticker symbol"
// @Param        outputsize  query  string  false  "compact or full"  default(compact)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/v1/stocks/historical/{symbol} [get]
func (h *Handler) GetHistorical(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-historical")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err))
		return
	}
	size := domain.OutputSize(q.OutputSize)
	if size == "" {
		size = domain.OutputCompact
	}

	bars, err := h.market.History(ctx, symbol, size)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, bars, gin.H{"symbol": symbol, "outputsize": size, "count": len(bars)})
}

// SearchSymbols godoc
// @Summary      Search for tickers
// @Tags         stocks
// @Produce      json
// @Param        keywords  query  string  true  "Company name or ticker fragment"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/v1/stocks/search [get]
func (h *Handler) SearchSymbols(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.search-symbols")
	defer span.End()

	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err))
		return
	}
	keywords := strings.TrimSpace(q.Keywords)
	matches, err := h.market.Search(ctx, keywords)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, matches, gin.H{"keywords": keywords, "count": len(matches)})
}

// GetOverview godoc
// @Summary      Get a company overview
// @Tags         stocks
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol"
// @Success      200  {object}  domain.CompanyOverview
// @Failure      404  {object}  map[string]interface{}
// @Router       /api/v1/stocks/overview/{symbol} [get]
func (h *Handler) GetOverview(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-overview")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	overview, err := h.market.Overview(ctx, symbol)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, overview, gin.H{"symbol": symbol})
}

// GetMovingAverages godoc
// @Summary      Get SMA and EMA series
// @Description  Computes simple and exponential moving averages over daily closes
// @Tags         analytics
// @Produce      json
// @Param        symbol   path   string  true   "Ticker symbol"
// @Param        periods  query  string  false  "Comma separated windows"  default(20,50,200)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/v1/stocks/moving-averages/{symbol} [get]
func (h *Handler) GetMovingAverages(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-moving-averages")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	var q movingAveragesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err))
		return
	}
	periods, err := parsePeriods(q.Periods)
	if err != nil {
		writeError(c, &domain.ValidationError{Field: "periods", Message: err.Error()})
		return
	}

	result, err := h.market.MovingAverages(ctx, symbol, periods)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, result, nil)
}

// GetEarnings godoc
// @Summary      Get quarterly earnings
// @Tags         stocks
// @Produce      json
// @Param        symbol  path   string  true   "Ticker symbol"
// @Param        limit   query  int     false  "Number of quarters (1-20)"  default(4)
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /api/v1/stocks/earnings/{symbol} [get]
func (h *Handler) GetEarnings(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-earnings")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	var q earningsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, bindingError(err))
		return
	}
	if q.Limit == 0 {
		q.Limit = 4
	}

	reports, err := h.market.Earnings(ctx, symbol, q.Limit)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, reports, gin.H{"symbol": symbol, "count": len(reports)})
}

// GetRiskRadar godoc
// @Summary      Get the news risk radar
// @Description  Classifies recent news by risk category and sentiment
// @Tags         analytics
// @Produce      json
// @Param        symbol  path  string  true  "Ticker symbol"
// @Success      200  {object}  map[string]interface{}
// @Failure      502  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /api/v1/stocks/risk-radar/{symbol} [get]
func (h *Handler) GetRiskRadar(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-risk-radar")
	defer span.End()

	symbol, ok := h.bindSymbol(c, span)
	if !ok {
		return
	}
	radar, err := h.market.RiskRadar(ctx, symbol)
	if err != nil {
		h.fail(c, span, err)
		return
	}
	respond(c, radar, gin.H{"symbol": symbol})
}
