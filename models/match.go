package models

import "time"

const (
	DefaultROM          = "NHL_95.bin"
	DefaultCore         = "genesis_plus_gx"
	DefaultGoalieMode   = "manual_goalie"
	DefaultPeriodLength = 5
)

// Ruleset describes the emulator session every match of a tournament runs with.
type Ruleset struct {
	Game         string `json:"game,omitempty"`
	ROM          string `json:"rom,omitempty"`
	Core         string `json:"core,omitempty"`
	GoalieMode   string `json:"goalie_mode,omitempty"`
	PeriodLength int    `json:"period_length,omitempty"`
}

// MatchDescriptor is the immutable record of one bracket match.
// Results live in the bracket state, never here.
type MatchDescriptor struct {
	MatchID      string    `json:"match_id"`
	TournamentID string    `json:"tournament_id"`
	Players      []string  `json:"players"`
	Round        int       `json:"round"`
	MatchIndex   int       `json:"match_index"`
	Game         string    `json:"game,omitempty"`
	ROM          string    `json:"rom"`
	Core         string    `json:"core"`
	GoalieMode   string    `json:"goalie_mode"`
	PeriodLength int       `json:"period_length"`
	CreatedAt    time.Time `json:"created_at"`
}

func (m *MatchDescriptor) HasPlayer(id string) bool {
	for _, p := range m.Players {
		if p == id {
			return true
		}
	}
	return false
}

// WithDefaults fills absent emulator settings with the house defaults.
func (r Ruleset) WithDefaults() Ruleset {
	if r.ROM == "" {
		r.ROM = DefaultROM
	}
	if r.Core == "" {
		r.Core = DefaultCore
	}
	if r.GoalieMode == "" {
		r.GoalieMode = DefaultGoalieMode
	}
	if r.PeriodLength <= 0 {
		r.PeriodLength = DefaultPeriodLength
	}
	return r
}
