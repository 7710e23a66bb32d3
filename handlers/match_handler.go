package handlers

import (
	"net/http"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/services"
)

type outcomeResponse struct {
	TournamentID string                    `json:"tournament_id"`
	Round        int                       `json:"round"`
	Status       brackets.Status           `json:"status"`
	Duplicate    bool                      `json:"duplicate,omitempty"`
	Matches      []*models.MatchDescriptor `json:"matches"`
	Byes         []string                  `json:"byes,omitempty"`
	Champion     string                    `json:"champion,omitempty"`
	Warnings     []string                  `json:"warnings,omitempty"`
}

func newOutcomeResponse(o *brackets.Outcome) outcomeResponse {
	resp := outcomeResponse{
		TournamentID: o.TournamentID,
		Round:        o.Round,
		Status:       o.Status,
		Duplicate:    o.Duplicate,
		Matches:      o.Matches,
		Byes:         o.Byes,
		Champion:     o.Champion,
	}
	if resp.Matches == nil {
		resp.Matches = []*models.MatchDescriptor{}
	}
	for _, w := range o.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

// ReportResultHandler обрабатывает POST /match-result
// Тело: {"tournamentId": "...", "matchId": "...", "winnerId": "..."}
func (h *MatchHandler) ReportResultHandler(w http.ResponseWriter, r *http.Request) {
	var input services.ReportResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	outcome, err := h.matchService.ReportResult(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"outcome": newOutcomeResponse(outcome)}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler обрабатывает GET /matches/{matchID}
func (h *MatchHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	details, err := h.matchService.GetMatch(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, details, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
