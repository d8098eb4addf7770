package extractors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

func visit(html string) scrape.PageVisit {
	return scrape.PageVisit{
		RequestedURL: "https://spela.svenskaspel.se/stryktipset/statistik/statistik?event=1",
		FinalURL:     "https://spela.svenskaspel.se/stryktipset/statistik/statistik?event=1",
		StatusCode:   200,
		Title:        "Stryktipset - Svenska Spel",
		HTML:         html,
	}
}

func TestNewTableCoversEveryDataType(t *testing.T) {
	t.Parallel()

	table, err := NewTable(zap.NewNop())
	require.NoError(t, err)
	for _, dt := range scrape.AllDataTypes() {
		e, ok := table.For(dt)
		require.True(t, ok, "data type %s has no extractor", dt)
		require.NotNil(t, e)
	}
}

func TestStatisticsExtractorParsesStandings(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<div class="wff_standings_table">
		<div class="wff_standings_table_row">
			<span class="wff_standings_table_cell">1</span>
			<span class="wff_standings_table_cell">AIK</span>
			<span class="wff_standings_table_cell">12</span>
			<span class="wff_standings_table_cell">8</span>
			<span class="wff_standings_table_cell">3</span>
			<span class="wff_standings_table_cell">1</span>
			<span class="wff_standings_table_cell">+14</span>
			<span class="wff_standings_table_cell">27</span>
		</div>
		<div class="wff_standings_table_row">
			<span class="wff_standings_table_cell">2</span>
			<span class="wff_standings_table_cell">Hammarby</span>
			<span class="wff_standings_table_cell">12</span>
			<span class="wff_standings_table_cell">7</span>
			<span class="wff_standings_table_cell">4</span>
			<span class="wff_standings_table_cell">1</span>
			<span class="wff_standings_table_cell">+11</span>
			<span class="wff_standings_table_cell">25</span>
		</div>
	</div>
	</body></html>`

	e := &statisticsExtractor{}
	payload, err := e.Scrape(context.Background(), visit(html), scrape.Request{})
	require.NoError(t, err)
	require.NotNil(t, payload)

	rows, ok := payload["standings"].(scrape.List)
	require.True(t, ok)
	require.Len(t, rows, 2)

	first := rows[0].(scrape.Object)
	require.Equal(t, scrape.Number(1), first["position"])
	require.Equal(t, scrape.String("AIK"), first["team"])
	require.Equal(t, scrape.Number(14), first["goalDifference"], "plus-prefixed numbers parse")
	require.Equal(t, scrape.Number(27), first["points"])
}

func TestStatisticsExtractorEmptyPage(t *testing.T) {
	t.Parallel()

	e := &statisticsExtractor{}
	payload, err := e.Scrape(context.Background(), visit("<html><body><p>nothing here</p></body></html>"), scrape.Request{})
	require.NoError(t, err)
	require.Nil(t, payload)
	require.True(t, scrape.IsEmpty(payload))
}

func TestLeagueTableExtractorFallsBackToPlainTable(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<div id="enetpulse-container">
		<table><tbody>
			<tr><td>1</td><td>Malmö FF</td><td>10</td><td>8</td><td>1</td><td>1</td><td>+18</td><td>25</td></tr>
		</tbody></table>
	</div>
	</body></html>`

	e := &leagueTableExtractor{}
	payload, err := e.Scrape(context.Background(), visit(html), scrape.Request{})
	require.NoError(t, err)
	rows, ok := payload["table"].(scrape.List)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, scrape.String("Malmö FF"), rows[0].(scrape.Object)["team"])
}

func TestNewsExtractor(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<article class="route-statistics-news-article">
		<h2>Stor skada inför helgens match</h2>
		<p>Lagkaptenen missar mötet efter träningssmällen.</p>
	</article>
	<article class="route-statistics-news-article">
		<h3 class="article-title">Formstark hemmalag</h3>
		<p>Fem raka segrar på hemmaplan.</p>
	</article>
	</body></html>`

	e := &newsExtractor{}
	payload, err := e.Scrape(context.Background(), visit(html), scrape.Request{})
	require.NoError(t, err)

	articles, ok := payload["articles"].(scrape.List)
	require.True(t, ok)
	require.Len(t, articles, 2)
	first := articles[0].(scrape.Object)
	require.Equal(t, scrape.String("Stor skada inför helgens match"), first["title"])
	require.Contains(t, string(first["text"].(scrape.String)), "Lagkaptenen")
}

func TestHeadToHeadExtractor(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<div class="wff_h2h">
		<div class="wff_h2h_row">
			<span class="wff_h2h_date">2025-10-04</span>
			<span class="wff_h2h_home">AIK</span>
			<span class="wff_h2h_score">2-1</span>
			<span class="wff_h2h_away">Hammarby</span>
		</div>
		<div class="wff_h2h_row">
			<span class="wff_h2h_date">2025-04-12</span>
			<span class="wff_h2h_home">Hammarby</span>
			<span class="wff_h2h_score">0-0</span>
			<span class="wff_h2h_away">AIK</span>
		</div>
	</div>
	</body></html>`

	e := &headToHeadExtractor{}
	payload, err := e.Scrape(context.Background(), visit(html), scrape.Request{})
	require.NoError(t, err)

	meetings, ok := payload["meetings"].(scrape.List)
	require.True(t, ok)
	require.Len(t, meetings, 2)
	first := meetings[0].(scrape.Object)
	require.Equal(t, scrape.String("2025-10-04"), first["date"])
	require.Equal(t, scrape.String("AIK"), first["homeTeam"])
	require.Equal(t, scrape.String("2-1"), first["score"])
}

func TestXStatsExtractor(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	<div class="playmaker_widget_xstat">
		<span class="playmaker_team_home">AIK</span>
		<span class="playmaker_team_away">Hammarby</span>
		<div class="playmaker_stat_row">
			<span class="playmaker_stat_home">1,7</span>
			<span class="playmaker_stat_label">Förväntade mål</span>
			<span class="playmaker_stat_away">0,9</span>
		</div>
		<div class="playmaker_stat_row">
			<span class="playmaker_stat_home">1,1</span>
			<span class="playmaker_stat_label">Förväntade insläppta mål</span>
			<span class="playmaker_stat_away">1,4</span>
		</div>
		<div class="playmaker_stat_row">
			<span class="playmaker_stat_home">1,8</span>
			<span class="playmaker_stat_label">Förväntade poäng</span>
			<span class="playmaker_stat_away">1,0</span>
		</div>
	</div>
	</body></html>`

	e := &xstatsExtractor{}
	payload, err := e.Scrape(context.Background(), visit(html), scrape.Request{})
	require.NoError(t, err)

	home, ok := payload["homeTeam"].(scrape.Object)
	require.True(t, ok)
	require.Equal(t, scrape.String("AIK"), home["name"])
	require.Equal(t, scrape.Number(1.7), home["xg"], "decimal comma parses")
	require.Equal(t, scrape.Number(1.1), home["xgc"])
	require.Equal(t, scrape.Number(1.8), home["xp"])

	away, ok := payload["awayTeam"].(scrape.Object)
	require.True(t, ok)
	require.Equal(t, scrape.Number(0.9), away["xg"])
}

func TestXStatsExtractorMissingWidget(t *testing.T) {
	t.Parallel()

	e := &xstatsExtractor{}
	payload, err := e.Scrape(context.Background(), visit("<html><body></body></html>"), scrape.Request{})
	require.NoError(t, err)
	require.Nil(t, payload)
}
