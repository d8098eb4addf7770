package extractors

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// xstatsExtractor parses the expected-goals widget. The widget renders the
// home side's metrics on the left, the away side's on the right, with the
// metric label between them.
type xstatsExtractor struct{}

// Metric labels as the widget prints them (Swedish UI).
var xstatMetrics = map[string]string{
	"förväntade mål":           "xg",
	"förväntade insläppta mål": "xgc",
	"förväntade poäng":         "xp",
}

func (e *xstatsExtractor) Scrape(_ context.Context, visit scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(visit.HTML))
	if err != nil {
		return nil, err
	}
	widget := doc.Find(".playmaker_widget_xstat").First()
	if widget.Length() == 0 {
		return nil, nil
	}

	home := scrape.Object{}
	away := scrape.Object{}
	widget.Find(".playmaker_stat_row").Each(func(_ int, row *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(row.Find(".playmaker_stat_label").Text()))
		key, ok := xstatMetrics[label]
		if !ok {
			return
		}
		home[key] = numberOrNil(row.Find(".playmaker_stat_home").Text())
		away[key] = numberOrNil(row.Find(".playmaker_stat_away").Text())
	})

	result := scrape.Object{}
	if name := strings.TrimSpace(widget.Find(".playmaker_team_home").Text()); name != "" {
		home["name"] = scrape.String(name)
	}
	if name := strings.TrimSpace(widget.Find(".playmaker_team_away").Text()); name != "" {
		away["name"] = scrape.String(name)
	}
	if !scrape.IsEmpty(home) {
		result["homeTeam"] = home
	}
	if !scrape.IsEmpty(away) {
		result["awayTeam"] = away
	}
	if period := strings.TrimSpace(widget.Find(".playmaker_period_select").Text()); period != "" {
		result["selectedPeriod"] = scrape.String(period)
	}
	if scrape.IsEmpty(result) {
		return nil, nil
	}
	return result, nil
}

func numberOrNil(raw string) scrape.Value {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return scrape.Number(n)
}
