// Package dashboard renders the watchlist and risk radar as a terminal UI
// served over SSH.
package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"market-radar/internal/domain"
	"market-radar/internal/service"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	requestTimeout = 30 * time.Second
	chromeHeight   = 8
	minTableHeight = 3
)

// Market is the read-only slice of the market service the dashboard needs.
type Market interface {
	Quotes(ctx context.Context, symbols []string) []service.QuoteResult
	RiskRadar(ctx context.Context, symbol string) (domain.RiskRadar, error)
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type quotesMsg struct {
	results []service.QuoteResult
	at      time.Time
	manual  bool
}

type radarMsg struct {
	symbol string
	radar  domain.RiskRadar
	err    error
}

type tickMsg time.Time

// Model is the bubbletea model behind one SSH session.
type Model struct {
	market  Market
	symbols []string
	refresh time.Duration
	user    string

	table     table.Model
	updatedAt time.Time

	radarSymbol  string
	radar        domain.RiskRadar
	radarErr     error
	radarLoading bool
}

func NewModel(market Market, symbols []string, refresh time.Duration, user string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Symbol", Width: 8},
			{Title: "Price", Width: 10},
			{Title: "Change", Width: 9},
			{Title: "Change %", Width: 9},
			{Title: "Volume", Width: 12},
			{Title: "Day", Width: 22},
		}),
		table.WithFocused(true),
		table.WithHeight(len(symbols)+1),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return &Model{
		market:  market,
		symbols: symbols,
		refresh: refresh,
		user:    user,
		table:   t,
	}
}

// SetSize fits the quote table to the terminal.
func (m *Model) SetSize(width, height int) {
	if width > 0 {
		m.table.SetWidth(width)
	}
	if h := height - chromeHeight; h >= minTableHeight {
		m.table.SetHeight(min(h, len(m.symbols)+1))
	}
}

func (m *Model) Init() tea.Cmd {
	return m.fetchQuotes(false)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchQuotes(true)
		case "esc":
			m.radarSymbol, m.radar, m.radarErr, m.radarLoading = "", nil, nil, false
			return m, nil
		case "enter":
			row := m.table.SelectedRow()
			if len(row) == 0 {
				return m, nil
			}
			m.radarSymbol, m.radar, m.radarErr, m.radarLoading = row[0], nil, nil, true
			return m, m.fetchRadar(row[0])
		}

	case quotesMsg:
		m.table.SetRows(quoteRows(msg.results))
		m.updatedAt = msg.at
		if msg.manual {
			return m, nil
		}
		return m, tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })

	case tickMsg:
		return m, m.fetchQuotes(false)

	case radarMsg:
		if msg.symbol != m.radarSymbol {
			return m, nil
		}
		m.radar, m.radarErr, m.radarLoading = msg.radar, msg.err, false
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Market Radar"))
	if m.user != "" {
		b.WriteString(subtleStyle.Render("  " + m.user))
	}
	b.WriteString("\n\n")

	if len(m.symbols) == 0 {
		b.WriteString(subtleStyle.Render("Watchlist is empty. Set WATCHLIST_SYMBOLS to populate it."))
		b.WriteString("\n")
	} else {
		b.WriteString(panelStyle.Render(m.table.View()))
		b.WriteString("\n")
	}

	if m.radarSymbol != "" {
		b.WriteString(m.radarView())
		b.WriteString("\n")
	}

	updated := "loading..."
	if !m.updatedAt.IsZero() {
		updated = "updated " + m.updatedAt.Format("15:04:05")
	}
	b.WriteString(subtleStyle.Render(updated + "  r refresh  enter risk radar  esc close  q quit"))
	return b.String()
}

func (m *Model) radarView() string {
	header := titleStyle.Render(m.radarSymbol + " risk radar")
	switch {
	case m.radarLoading:
		return panelStyle.Render(header + "\n" + subtleStyle.Render("classifying recent news..."))
	case m.radarErr != nil:
		return panelStyle.Render(header + "\n" + errorStyle.Render(m.radarErr.Error()))
	case len(m.radar) == 0:
		return panelStyle.Render(header + "\n" + subtleStyle.Render("no recent news"))
	}

	lines := []string{header}
	for _, s := range m.radar.Ranked() {
		lines = append(lines, fmt.Sprintf("%-28s %3d  %s %s %s",
			s.Category, s.Total,
			positiveStyle.Render(fmt.Sprintf("+%d", s.Positive)),
			negativeStyle.Render(fmt.Sprintf("-%d", s.Negative)),
			subtleStyle.Render(fmt.Sprintf("=%d", s.Neutral)),
		))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) fetchQuotes(manual bool) tea.Cmd {
	market, symbols := m.market, m.symbols
	if len(symbols) == 0 {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return quotesMsg{results: market.Quotes(ctx, symbols), at: time.Now(), manual: manual}
	}
}

func (m *Model) fetchRadar(symbol string) tea.Cmd {
	market := m.market
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		radar, err := market.RiskRadar(ctx, symbol)
		return radarMsg{symbol: symbol, radar: radar, err: err}
	}
}

func quoteRows(results []service.QuoteResult) []table.Row {
	rows := make([]table.Row, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Quote == nil {
			rows = append(rows, table.Row{r.Symbol, "n/a", "", "", "", "unavailable"})
			continue
		}
		q := r.Quote
		rows = append(rows, table.Row{
			r.Symbol,
			money(q.Price),
			signed(q.Change),
			signed(q.ChangePercent) + "%",
			strconv.FormatFloat(q.Volume, 'f', 0, 64),
			q.LatestTradingDay,
		})
	}
	return rows
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + money(v)
	}
	return money(v)
}
