// Package extractors hosts the per-data-type DOM extractors used when AI
// extraction yields nothing. Each extractor is a CSS-selector-driven parser
// over the rendered page; the table maps every data type to exactly one
// implementation so dispatch is exhaustive by construction.
package extractors

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// Table implements scrape.ExtractorTable.
type Table struct {
	byType map[scrape.DataType]scrape.Extractor
	logger *zap.Logger
}

// NewTable builds the extractor table and verifies every known data type has
// an entry. A missing entry is a programming error caught at startup, not a
// runtime default-case.
func NewTable(logger *zap.Logger) (*Table, error) {
	t := &Table{
		byType: map[scrape.DataType]scrape.Extractor{
			scrape.DataTypeStatistics: &statisticsExtractor{},
			scrape.DataTypeTable:      &leagueTableExtractor{},
			scrape.DataTypeHeadToHead: &headToHeadExtractor{},
			scrape.DataTypeNews:       &newsExtractor{},
			scrape.DataTypeXStats:     &xstatsExtractor{},
			scrape.DataTypeMatchInfo:  noopExtractor{name: "matchInfo"},
			scrape.DataTypeLineup:     noopExtractor{name: "lineup"},
			scrape.DataTypeAnalysis:   noopExtractor{name: "analysis"},
			scrape.DataTypeOddset:     noopExtractor{name: "oddset"},
		},
		logger: logger,
	}
	for _, dt := range scrape.AllDataTypes() {
		if _, ok := t.byType[dt]; !ok {
			return nil, fmt.Errorf("no extractor registered for data type %q", dt)
		}
	}
	return t, nil
}

// For returns the extractor for a data type.
func (t *Table) For(dt scrape.DataType) (scrape.Extractor, bool) {
	e, ok := t.byType[dt]
	return e, ok
}

// noopExtractor is a placeholder for data types whose DOM parser lives in a
// separate selector package. It honors the contract: no data, no panic.
type noopExtractor struct {
	name string
}

func (e noopExtractor) Scrape(_ context.Context, _ scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	return nil, nil
}
