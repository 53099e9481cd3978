package bot

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"market-radar/internal/domain"
	"market-radar/internal/service"
	"market-radar/internal/ta"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

const commandTimeout = 30 * time.Second

// Market is what the bot commands read from.
type Market interface {
	Quote(ctx context.Context, symbol string) (*domain.Quote, error)
	MovingAverages(ctx context.Context, symbol string, periods []int) (*service.IndicatorResult, error)
	RiskRadar(ctx context.Context, symbol string) (domain.RiskRadar, error)
}

// StartTelegramBot registers the commands and starts long polling in the
// background. An empty token skips startup.
func StartTelegramBot(token string, market Market, log zerolog.Logger) {
	log = log.With().Str("component", "telegram").Logger()
	if token == "" {
		log.Info().Msg("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Error().Err(err).Msg("failed to create Telegram bot")
		return
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})
	b.Handle("/quote", command(market, quoteReply))
	b.Handle("/ma", command(market, movingAveragesReply))
	b.Handle("/risk", command(market, riskReply))

	log.Info().Msg("Telegram bot started")
	go b.Start()
}

type replyFunc func(ctx context.Context, market Market, args []string) string

func command(market Market, reply replyFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return c.Send(reply(ctx, market, c.Args()))
	}
}

func quoteReply(ctx context.Context, market Market, args []string) string {
	if len(args) == 0 {
		return "Usage: /quote AAPL"
	}
	symbol := service.NormalizeSymbol(args[0])
	q, err := market.Quote(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error fetching quote for %s: %v", symbol, err)
	}
	return fmt.Sprintf(
		"%s\nPrice: $%.2f\nChange: %+.2f (%+.2f%%)\nRange: $%.2f - $%.2f\nVolume: %.0f\nAs of: %s",
		q.Symbol, q.Price, q.Change, q.ChangePercent, q.Low, q.High, q.Volume, q.LatestTradingDay,
	)
}

func movingAveragesReply(ctx context.Context, market Market, args []string) string {
	if len(args) == 0 {
		return "Usage: /ma AAPL [20,50,200]"
	}
	symbol := service.NormalizeSymbol(args[0])

	var periods []int
	if len(args) > 1 {
		for _, part := range strings.Split(strings.Join(args[1:], ","), ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return fmt.Sprintf("Invalid period %q: periods must be positive integers", part)
			}
			periods = append(periods, n)
		}
	}

	res, err := market.MovingAverages(ctx, symbol, periods)
	if err != nil {
		return fmt.Sprintf("Error computing moving averages for %s: %v", symbol, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s moving averages (%d bars)", res.Symbol, res.Bars)
	for _, p := range res.Periods {
		fmt.Fprintf(&sb, "\n%d: SMA %s  EMA %s", p, latest(res.SMA[p]), latest(res.EMA[p]))
	}
	return sb.String()
}

func riskReply(ctx context.Context, market Market, args []string) string {
	if len(args) == 0 {
		return "Usage: /risk AAPL"
	}
	symbol := service.NormalizeSymbol(args[0])
	radar, err := market.RiskRadar(ctx, symbol)
	if err != nil {
		return fmt.Sprintf("Error building risk radar for %s: %v", symbol, err)
	}
	if len(radar) == 0 {
		return fmt.Sprintf("No recent news found for %s", symbol)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s risk radar", symbol)
	for _, s := range radar.Ranked() {
		fmt.Fprintf(&sb, "\n%s: %d (+%d / -%d / =%d)", s.Category, s.Total, s.Positive, s.Negative, s.Neutral)
	}
	return sb.String()
}

func latest(points []ta.MovingAveragePoint) string {
	if len(points) == 0 {
		return "n/a"
	}
	v := points[len(points)-1].Value
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
