package riskradar

import "market-radar/internal/domain"

// FuseSentiment keeps the title label unless the content label is more than
// ratio times as confident.
func FuseSentiment(title, content domain.SentimentScore, ratio float64) domain.SentimentScore {
	if content.Score > title.Score*ratio {
		return content
	}
	return title
}

// Fold groups classified articles by top category. Articles without an
// outcome are skipped; input order is preserved inside each category.
func Fold(articles []domain.NewsArticle, outcomes []*domain.ClassificationOutcome) domain.RiskRadar {
	radar := domain.RiskRadar{}
	for i, article := range articles {
		if i >= len(outcomes) || outcomes[i] == nil {
			continue
		}
		out := outcomes[i]
		summary, ok := radar[out.Category]
		if !ok {
			summary = domain.RiskCategorySummary{Category: out.Category, Articles: []domain.ArticleRef{}}
		}
		summary.Total++
		switch out.Sentiment {
		case domain.SentimentPositive:
			summary.Positive++
		case domain.SentimentNegative:
			summary.Negative++
		default:
			summary.Neutral++
		}
		summary.Articles = append(summary.Articles, domain.ArticleRef{
			Title:       article.Title,
			URL:         article.URL,
			Source:      article.Source,
			PublishedAt: article.PublishedAt,
			Sentiment:   out.Sentiment,
			Description: article.Description,
		})
		radar[out.Category] = summary
	}
	return radar
}
