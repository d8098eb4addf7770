package extractors

import (
	"context"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// statisticsExtractor parses the standings widget on the statistics page.
type statisticsExtractor struct{}

func (e *statisticsExtractor) Scrape(_ context.Context, visit scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(visit.HTML))
	if err != nil {
		return nil, err
	}
	rows := parseStandingRows(doc, ".wff_standings_table_row")
	if len(rows) == 0 {
		return nil, nil
	}
	return scrape.Object{"standings": rows}, nil
}

// leagueTableExtractor parses the Enetpulse league table widget.
type leagueTableExtractor struct{}

func (e *leagueTableExtractor) Scrape(_ context.Context, visit scrape.PageVisit, _ scrape.Request) (scrape.Object, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(visit.HTML))
	if err != nil {
		return nil, err
	}
	rows := parseStandingRows(doc, "#enetpulse-container .wff_standings_table_row")
	if len(rows) == 0 {
		// Older widget markup renders a plain table.
		rows = parseStandingRows(doc, "#enetpulse-container table tbody tr")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return scrape.Object{"table": rows}, nil
}

// parseStandingRows turns standings rows into objects. Column order is
// position, team, played, won, drawn, lost, goal difference, points; short
// rows keep whatever prefix they have.
func parseStandingRows(doc *goquery.Document, selector string) scrape.List {
	var rows scrape.List
	doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, .wff_standings_table_cell")
		if cells.Length() == 0 {
			return
		}
		var fields []string
		cells.Each(func(_ int, cell *goquery.Selection) {
			fields = append(fields, strings.TrimSpace(cell.Text()))
		})
		entry := scrape.Object{}
		labels := []string{"position", "team", "played", "won", "drawn", "lost", "goalDifference", "points"}
		for i, label := range labels {
			if i >= len(fields) {
				break
			}
			entry[label] = cellValue(label, fields[i])
		}
		if !scrape.IsEmpty(entry) {
			rows = append(rows, entry)
		}
	})
	return rows
}

// cellValue keeps team names as strings and parses the numeric columns,
// tolerating the widget's "+7" goal-difference format.
func cellValue(label, raw string) scrape.Value {
	if raw == "" {
		return nil
	}
	if label == "team" {
		return scrape.String(raw)
	}
	cleaned := strings.TrimPrefix(raw, "+")
	if n, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return scrape.Number(n)
	}
	return scrape.String(raw)
}
