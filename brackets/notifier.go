package brackets

import (
	"context"

	"github.com/retrorumble/tournament-lobby/models"
)

// Notifier delivers bracket events to connected players.
// Implementations must be safe for concurrent use.
type Notifier interface {
	NotifyPlayer(ctx context.Context, playerID string, match *models.MatchDescriptor) error
	BroadcastChampion(ctx context.Context, tournamentID, championID string) error
}

// MatchStore is the subset of the match state store the manager writes to.
type MatchStore interface {
	Save(ctx context.Context, match *models.MatchDescriptor) error
	LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error)
}

// Progress is the durable part of a bracket, written after every transition.
type Progress struct {
	TournamentID string
	Version      int64
	CurrentRound int
	RoundWinners map[int][]string
	Champion     string
}

// ProgressRecorder persists bracket progress. Writes carrying a Version not
// newer than the stored one are ignored.
type ProgressRecorder interface {
	SaveBracketProgress(ctx context.Context, p Progress) error
}
