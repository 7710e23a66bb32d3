package brackets

import (
	"fmt"
	"time"

	"github.com/retrorumble/tournament-lobby/models"
)

// MatchConfig carries everything a descriptor needs besides its pair.
// Zero values fall back to the defaults in models.
type MatchConfig struct {
	TournamentID string
	Ruleset      models.Ruleset
	Round        int
	MatchIndex   int
	CreatedAt    time.Time
}

// BuildMatchState assembles the descriptor for one match. It performs no
// I/O and copies pair so later changes by the caller cannot leak in.
func BuildMatchState(matchID string, pair []string, cfg MatchConfig) (*models.MatchDescriptor, error) {
	if matchID == "" {
		return nil, fmt.Errorf("%w: match id is empty", ErrInvalidInput)
	}
	if len(pair) < 1 || len(pair) > MatchSize {
		return nil, fmt.Errorf("%w: match %s has %d players", ErrInvalidInput, matchID, len(pair))
	}
	players := make([]string, len(pair))
	for i, p := range pair {
		if p == "" {
			return nil, fmt.Errorf("%w: match %s has an empty player id", ErrInvalidInput, matchID)
		}
		players[i] = p
	}

	rules := cfg.Ruleset.WithDefaults()
	round := cfg.Round
	if round <= 0 {
		round = 1
	}
	index := cfg.MatchIndex
	if index < 0 {
		index = 0
	}
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return &models.MatchDescriptor{
		MatchID:      matchID,
		TournamentID: cfg.TournamentID,
		Players:      players,
		Round:        round,
		MatchIndex:   index,
		Game:         rules.Game,
		ROM:          rules.ROM,
		Core:         rules.Core,
		GoalieMode:   rules.GoalieMode,
		PeriodLength: rules.PeriodLength,
		CreatedAt:    createdAt,
	}, nil
}
