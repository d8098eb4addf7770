package browser

import (
	"time"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// waitRule tells a navigation what to wait for before the DOM snapshot is
// taken. Selector is best-effort: its absence delays but never fails the
// navigation, because blocked pages have no widgets and the detector still
// needs their HTML.
type waitRule struct {
	Selector string
	Settle   time.Duration
	Scroll   bool
}

const defaultSettle = 5 * time.Second

// waitRules carries the per-data-type selectors of the statistics widgets.
// The Enetpulse widgets (table, lineup) render slower than the rest.
var waitRules = map[scrape.DataType]waitRule{
	scrape.DataTypeXStats:     {Selector: ".playmaker_widget_xstat", Settle: defaultSettle, Scroll: true},
	scrape.DataTypeStatistics: {Selector: ".wff_standings_table_row", Settle: defaultSettle, Scroll: true},
	scrape.DataTypeHeadToHead: {Selector: ".wff_standings_table_row", Settle: defaultSettle, Scroll: true},
	scrape.DataTypeNews:       {Selector: ".route-statistics-news-article", Settle: defaultSettle},
	scrape.DataTypeMatchInfo:  {Selector: ".match-info-product-odds", Settle: defaultSettle, Scroll: true},
	scrape.DataTypeTable:      {Selector: "#enetpulse-container", Settle: 6 * time.Second, Scroll: true},
	scrape.DataTypeLineup:     {Selector: ".wff_formation_generic_root", Settle: 6 * time.Second, Scroll: true},
	scrape.DataTypeAnalysis:   {Selector: ".route-play-draw-analyses", Settle: defaultSettle},
	scrape.DataTypeOddset:     {Selector: ".quick-bets", Settle: defaultSettle},
}

// ruleFor returns the wait rule for a data type, defaulting to a plain
// settle delay for unknown types.
func ruleFor(dt scrape.DataType) waitRule {
	if rule, ok := waitRules[dt]; ok {
		return rule
	}
	return waitRule{Settle: defaultSettle}
}
