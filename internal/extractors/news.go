package extractors

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// newsExtractor collects the news articles shown for a match.
type newsExtractor struct{}

func (e *newsExtractor) Scrape(_ context.Context, visit scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(visit.HTML))
	if err != nil {
		return nil, err
	}
	var articles scrape.List
	doc.Find(".route-statistics-news-article").Each(func(_ int, article *goquery.Selection) {
		title := strings.TrimSpace(article.Find("h2, h3, .article-title").First().Text())
		body := strings.TrimSpace(article.Find("p").Text())
		if title == "" && body == "" {
			return
		}
		entry := scrape.Object{}
		if title != "" {
			entry["title"] = scrape.String(title)
		}
		if body != "" {
			entry["text"] = scrape.String(body)
		}
		articles = append(articles, entry)
	})
	if len(articles) == 0 {
		return nil, nil
	}
	return scrape.Object{"articles": articles}, nil
}

// headToHeadExtractor reads the mutual-meetings list on the statistics
// page. There is no dedicated head-to-head page, so this extractor is the
// only source for the data type.
type headToHeadExtractor struct{}

func (e *headToHeadExtractor) Scrape(_ context.Context, visit scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(visit.HTML))
	if err != nil {
		return nil, err
	}
	var meetings scrape.List
	doc.Find(".wff_h2h_row, .head-to-head-row").Each(func(_ int, row *goquery.Selection) {
		date := strings.TrimSpace(row.Find(".wff_h2h_date, .h2h-date").Text())
		home := strings.TrimSpace(row.Find(".wff_h2h_home, .h2h-home").Text())
		away := strings.TrimSpace(row.Find(".wff_h2h_away, .h2h-away").Text())
		score := strings.TrimSpace(row.Find(".wff_h2h_score, .h2h-score").Text())
		if home == "" && away == "" {
			return
		}
		meetings = append(meetings, scrape.Object{
			"date":     stringOrNil(date),
			"homeTeam": stringOrNil(home),
			"awayTeam": stringOrNil(away),
			"score":    stringOrNil(score),
		})
	})
	if len(meetings) == 0 {
		return nil, nil
	}
	return scrape.Object{"meetings": meetings}, nil
}

func stringOrNil(s string) scrape.Value {
	if s == "" {
		return nil
	}
	return scrape.String(s)
}
