package models

import "time"

// TournamentStatus представляет статусы турнира.
type TournamentStatus string

const (
	StatusRegistration TournamentStatus = "registration"
	StatusActive       TournamentStatus = "active"
	StatusCompleted    TournamentStatus = "completed"
	StatusCanceled     TournamentStatus = "canceled"
)

func (s TournamentStatus) IsValid() bool {
	switch s {
	case StatusRegistration, StatusActive, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

// TournamentKind определяет, как турнир набирает игроков и когда стартует.
type TournamentKind string

const (
	KindScheduled TournamentKind = "scheduled"
	KindSitNGo    TournamentKind = "sit-n-go"
	KindFreeroll  TournamentKind = "freeroll"
)

func (k TournamentKind) IsValid() bool {
	switch k {
	case KindScheduled, KindSitNGo, KindFreeroll:
		return true
	}
	return false
}

// StartsAtCapacity reports whether the bracket starts as soon as the roster fills.
func (k TournamentKind) StartsAtCapacity() bool {
	return k == KindSitNGo || k == KindFreeroll
}

type Tournament struct {
	ID             string           `json:"id" db:"id"`
	Name           string           `json:"name" db:"name"`
	Kind           TournamentKind   `json:"kind" db:"kind"`
	Status         TournamentStatus `json:"status" db:"status"`
	Capacity       int              `json:"capacity" db:"capacity"` // 0 = без ограничения
	StartTime      *time.Time       `json:"start_time,omitempty" db:"start_time"`
	Ruleset        Ruleset          `json:"ruleset" db:"ruleset"`
	Roster         []Participant    `json:"roster" db:"roster"`
	RoundWinners   map[int][]string `json:"round_winners,omitempty" db:"round_winners"`
	CurrentRound   int              `json:"current_round" db:"current_round"`
	Champion       *string          `json:"champion,omitempty" db:"champion"`
	BracketVersion int64            `json:"bracket_version" db:"bracket_version"`
	TemplateID     *string          `json:"template_id,omitempty" db:"template_id"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

func (t *Tournament) IsFull() bool {
	return t.Capacity > 0 && len(t.Roster) >= t.Capacity
}

func (t *Tournament) HasParticipant(id string) bool {
	for _, p := range t.Roster {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ParticipantIDs returns roster ids in registration (seed) order.
func (t *Tournament) ParticipantIDs() []string {
	ids := make([]string, 0, len(t.Roster))
	for _, p := range t.Roster {
		ids = append(ids, p.ID)
	}
	return ids
}

// Clone returns a deep copy safe to hand out of a repository.
func (t *Tournament) Clone() *Tournament {
	if t == nil {
		return nil
	}
	c := *t
	c.Roster = append([]Participant(nil), t.Roster...)
	if t.RoundWinners != nil {
		c.RoundWinners = make(map[int][]string, len(t.RoundWinners))
		for r, w := range t.RoundWinners {
			c.RoundWinners[r] = append([]string(nil), w...)
		}
	}
	if t.StartTime != nil {
		st := *t.StartTime
		c.StartTime = &st
	}
	if t.Champion != nil {
		ch := *t.Champion
		c.Champion = &ch
	}
	if t.TemplateID != nil {
		tid := *t.TemplateID
		c.TemplateID = &tid
	}
	return &c
}
