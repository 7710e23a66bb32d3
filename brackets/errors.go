package brackets

import "errors"

var (
	// Жёсткие отказы: состояние не меняется.
	ErrInvalidInput               = errors.New("invalid bracket input")
	ErrInvalidResult              = errors.New("winner is not part of this match")
	ErrTournamentAlreadyCompleted = errors.New("tournament already has a champion")
	ErrNoRoundInProgress          = errors.New("no round in progress for tournament")
	ErrMatchNotFound              = errors.New("match not found in bracket")
	ErrStaleResult                = errors.New("result refers to a finished round")
	ErrResultConflict             = errors.New("match already decided with a different winner")
	ErrAlreadyStarted             = errors.New("bracket already started")

	// Мягкие сбои ввода-вывода: прогресс продолжается, ошибка уходит в Outcome.Warnings.
	ErrPersistenceUnavailable = errors.New("match state persistence unavailable")
	ErrNotificationFailed     = errors.New("notification delivery failed")
)
