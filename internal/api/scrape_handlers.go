package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

type scrapeRequest struct {
	MatchID     string   `json:"match_id"`
	DrawNumber  int      `json:"draw_number"`
	MatchNumber int      `json:"match_number"`
	DrawDate    string   `json:"draw_date"`
	GameType    string   `json:"game_type"`
	DataTypes   []string `json:"data_types"`
	Priority    int      `json:"priority"`
	RequestedBy string   `json:"requested_by"`
}

// submitScrape handles POST /v1/scrapes. An omitted data_types list requests
// everything; a stale request is queued, a fresh one is acknowledged but
// skipped.
func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	parsed, err := toScrapeRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	taskID, queued, err := s.queue.Enqueue(r.Context(), parsed, req.Priority)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": taskID,
		"queued":  queued,
	})
}

// getScrapeStatus handles GET /v1/scrapes/{task_id}.
func (s *Server) getScrapeStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	state, ok := s.queue.Status(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": taskID,
		"state":   state,
	})
}

type drawRequest struct {
	DrawNumber int    `json:"draw_number"`
	GameType   string `json:"game_type"`
	// CloseAt is RFC3339; empty leaves the schedule window untouched.
	CloseAt string `json:"close_at"`
	// Matches maps match numbers (as JSON keys) to match IDs.
	Matches map[string]string `json:"matches"`
}

// activateDraw handles POST /v1/draws: switch the active draw, move the
// schedule window, and harvest the draw page's statistics links.
func (s *Server) activateDraw(w http.ResponseWriter, r *http.Request) {
	if s.draws == nil {
		writeError(w, http.StatusServiceUnavailable, "draw coordination unavailable")
		return
	}
	var req drawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	activation, err := toDrawActivation(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.draws.ActivateDraw(activation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"draw_number":      activation.DrawNumber,
		"discovered_links": found,
	})
}

func toDrawActivation(req drawRequest) (scrape.DrawActivation, error) {
	if req.DrawNumber <= 0 {
		return scrape.DrawActivation{}, fmt.Errorf("draw_number must be > 0")
	}
	gameType := scrape.GameType(req.GameType)
	switch gameType {
	case scrape.GameStryktipset, scrape.GameEuropatipset, scrape.GameTopptipset:
	case "":
		gameType = scrape.GameStryktipset
	default:
		return scrape.DrawActivation{}, fmt.Errorf("unknown game_type %q", req.GameType)
	}

	var closeAt time.Time
	if req.CloseAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.CloseAt)
		if err != nil {
			return scrape.DrawActivation{}, fmt.Errorf("close_at must be RFC3339: %v", err)
		}
		closeAt = parsed
	}

	var matches map[int]string
	if len(req.Matches) > 0 {
		matches = make(map[int]string, len(req.Matches))
		for key, matchID := range req.Matches {
			n, err := strconv.Atoi(key)
			if err != nil || n <= 0 {
				return scrape.DrawActivation{}, fmt.Errorf("match number %q must be a positive integer", key)
			}
			matches[n] = matchID
		}
	}

	return scrape.DrawActivation{
		DrawNumber: req.DrawNumber,
		GameType:   gameType,
		CloseAt:    closeAt,
		Matches:    matches,
	}, nil
}

// getAnalytics handles GET /v1/analytics.
func (s *Server) getAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":     s.analytics.Summary(),
		"queue_depth": s.queue.Len(),
	})
}

// getBreaker handles GET /v1/breaker.
func (s *Server) getBreaker(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"open":                    s.breaker.Open(),
		"consecutive_rate_limits": s.breaker.ConsecutiveRateLimits(),
	})
}

func toScrapeRequest(req scrapeRequest) (scrape.Request, error) {
	if req.MatchID == "" {
		return scrape.Request{}, fmt.Errorf("match_id required")
	}
	if req.DrawNumber <= 0 {
		return scrape.Request{}, fmt.Errorf("draw_number must be > 0")
	}
	gameType := scrape.GameType(req.GameType)
	switch gameType {
	case scrape.GameStryktipset, scrape.GameEuropatipset, scrape.GameTopptipset:
	case "":
		gameType = scrape.GameStryktipset
	default:
		return scrape.Request{}, fmt.Errorf("unknown game_type %q", req.GameType)
	}

	dataTypes := scrape.AllDataTypes()
	if len(req.DataTypes) > 0 {
		dataTypes = make([]scrape.DataType, 0, len(req.DataTypes))
		for _, raw := range req.DataTypes {
			dt := scrape.DataType(raw)
			if !dt.Valid() {
				return scrape.Request{}, fmt.Errorf("unknown data_type %q", raw)
			}
			dataTypes = append(dataTypes, dt)
		}
	}

	var drawDate time.Time
	if req.DrawDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DrawDate)
		if err != nil {
			return scrape.Request{}, fmt.Errorf("draw_date must be YYYY-MM-DD: %v", err)
		}
		drawDate = parsed
	}

	return scrape.Request{
		MatchID:     req.MatchID,
		DrawNumber:  req.DrawNumber,
		MatchNumber: req.MatchNumber,
		DrawDate:    drawDate,
		GameType:    gameType,
		DataTypes:   dataTypes,
		RequestedBy: req.RequestedBy,
	}, nil
}
