package riskradar

import "time"

// DefaultCategories is the closed label set used for zero-shot ranking.
var DefaultCategories = []string{
	"Mergers & Acquisitions",
	"Earnings Guidance",
	"New Product Launch",
	"Analyst Rating Change",
	"Legal & Regulatory Issues",
	"Executive Leadership Changes",
	"Market Trends & Competition",
}

const (
	DefaultMaxArticles    = 20
	DefaultLookback       = 7 * 24 * time.Hour
	DefaultArticleTimeout = 20 * time.Second
	DefaultOverrideRatio  = 1.5
	DefaultContentRunes   = 500
)

type Config struct {
	Categories     []string
	MaxArticles    int
	Lookback       time.Duration
	ArticleTimeout time.Duration
	// MaxConcurrency caps in-flight article pipelines; zero means unbounded.
	MaxConcurrency int
	// OverrideRatio is how much more confident the content sentiment must be
	// than the title sentiment to replace it.
	OverrideRatio float64
	ContentRunes  int
}

func (c Config) withDefaults() Config {
	if len(c.Categories) == 0 {
		c.Categories = DefaultCategories
	}
	if c.MaxArticles <= 0 {
		c.MaxArticles = DefaultMaxArticles
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.ArticleTimeout <= 0 {
		c.ArticleTimeout = DefaultArticleTimeout
	}
	if c.MaxConcurrency < 0 {
		c.MaxConcurrency = 0
	}
	if c.OverrideRatio <= 0 {
		c.OverrideRatio = DefaultOverrideRatio
	}
	if c.ContentRunes <= 0 {
		c.ContentRunes = DefaultContentRunes
	}
	return c
}
