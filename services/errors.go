package services

import (
	"errors"

	"github.com/retrorumble/tournament-lobby/brackets"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrValidationFailed = errors.New("validation failed")

	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrBracketNotStarted   = errors.New("tournament bracket has not started")
	ErrTournamentIDExists  = errors.New("tournament id already exists")
	ErrRegistrationNotOpen = errors.New("tournament registration is not open")
	ErrTournamentFull      = errors.New("tournament registration is full")
	ErrGuestsNotAllowed    = errors.New("guest accounts cannot join freeroll tournaments")
	ErrNotRegistered       = errors.New("player is not registered for this tournament")
	ErrNotEnoughPlayers    = errors.New("not enough players to start the tournament")

	ErrTournamentInvalidKind             = errors.New("invalid tournament kind")
	ErrTournamentInvalidCapacity         = errors.New("tournament capacity must be 0 or at least 2")
	ErrTournamentStartTimeRequired       = errors.New("tournament start time is required")
	ErrTournamentStartTimeInPast         = errors.New("tournament start time must be in the future")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
)

// Ошибки сетки пробрасываются как есть, чтобы errors.Is работал и в handlers.
var (
	ErrInvalidInput               = brackets.ErrInvalidInput
	ErrInvalidResult              = brackets.ErrInvalidResult
	ErrTournamentAlreadyCompleted = brackets.ErrTournamentAlreadyCompleted
	ErrNoRoundInProgress          = brackets.ErrNoRoundInProgress
	ErrMatchNotFound              = brackets.ErrMatchNotFound
	ErrStaleResult                = brackets.ErrStaleResult
	ErrResultConflict             = brackets.ErrResultConflict
	ErrAlreadyStarted             = brackets.ErrAlreadyStarted
	ErrPersistenceUnavailable     = brackets.ErrPersistenceUnavailable
	ErrNotificationFailed         = brackets.ErrNotificationFailed
)
