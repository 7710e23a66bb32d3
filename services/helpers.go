package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/repositories"
)

// LobbyBroadcaster pushes lobby and tournament events to connected clients.
type LobbyBroadcaster interface {
	BroadcastTournament(tournamentID, eventType string, payload interface{})
	BroadcastLobby(eventType string, payload interface{})
}

// BracketEngine is the bracket manager as seen by the services.
type BracketEngine interface {
	StartRound(ctx context.Context, req brackets.StartRequest) (*brackets.Outcome, error)
	RecordResult(ctx context.Context, tournamentID, matchID, winnerID string) (*brackets.Outcome, error)
	Restore(ctx context.Context, t *models.Tournament) (*brackets.Outcome, error)
	Resync(ctx context.Context, tournamentID string) (*brackets.Outcome, error)
	Snapshot(tournamentID string) (*brackets.BracketView, bool)
	Match(tournamentID, matchID string) (*brackets.MatchView, bool)
}

type TournamentUpdatePayload struct {
	TournamentID    string                  `json:"tournamentId"`
	RegisteredCount int                     `json:"registeredCount"`
	Status          models.TournamentStatus `json:"status,omitempty"`
}

type SitNGoUpdatedPayload struct {
	TemplateID   string `json:"templateId"`
	TournamentID string `json:"tournamentId"`
	PreviousID   string `json:"previousId"`
}

func mapRepoError(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return fmt.Errorf("%w: %s", ErrTournamentNotFound, id)
	case errors.Is(err, repositories.ErrTournamentIDExists):
		return fmt.Errorf("%w: %s", ErrTournamentIDExists, id)
	}
	return err
}

func logWarnings(logger *slog.Logger, msg, tournamentID string, warnings []error) {
	for _, w := range warnings {
		logger.Warn(msg, slog.String("tournament_id", tournamentID), slog.Any("error", w))
	}
}
