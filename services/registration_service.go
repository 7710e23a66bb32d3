package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/repositories"
	"github.com/retrorumble/tournament-lobby/utils"
)

type JoinInput struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	IsGuest     bool   `json:"is_guest"`
}

type JoinResult struct {
	Tournament        *models.Tournament `json:"tournament"`
	AlreadyRegistered bool               `json:"already_registered"`
	RegisteredCount   int                `json:"registered_count"`
	Started           bool               `json:"started"`
	Matches           int                `json:"matches,omitempty"`
	NextTable         *models.Tournament `json:"next_table,omitempty"`
}

type RegistrationService interface {
	Join(ctx context.Context, tournamentID string, input JoinInput) (*JoinResult, error)
	Leave(ctx context.Context, tournamentID, playerID string) (*models.Tournament, error)
}

type registrationService struct {
	repo        repositories.TournamentRepository
	tournaments TournamentService
	hub         LobbyBroadcaster
	locks       *utils.KeyedMutex
	autoClone   bool
	logger      *slog.Logger
	now         func() time.Time
}

func NewRegistrationService(
	repo repositories.TournamentRepository,
	tournaments TournamentService,
	hub LobbyBroadcaster,
	locks *utils.KeyedMutex,
	autoClone bool,
	logger *slog.Logger,
) RegistrationService {
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &registrationService{
		repo:        repo,
		tournaments: tournaments,
		hub:         hub,
		locks:       locks,
		autoClone:   autoClone,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *registrationService) Join(ctx context.Context, tournamentID string, input JoinInput) (*JoinResult, error) {
	playerID := strings.TrimSpace(input.PlayerID)
	if playerID == "" || playerID == brackets.Bye {
		return nil, fmt.Errorf("%w: player id is required", ErrValidationFailed)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = playerID
	}
	participant := models.Participant{
		ID:          playerID,
		DisplayName: displayName,
		IsGuest:     input.IsGuest,
		JoinedAt:    s.now(),
	}

	t, already, err := s.register(ctx, tournamentID, participant)
	if err != nil {
		return nil, err
	}
	result := &JoinResult{Tournament: t, AlreadyRegistered: already, RegisteredCount: len(t.Roster)}
	if already {
		return result, nil
	}

	s.logger.Info("player joined tournament",
		slog.String("tournament_id", tournamentID),
		slog.String("player_id", playerID),
		slog.Int("registered", len(t.Roster)))
	if s.hub != nil {
		s.hub.BroadcastTournament(tournamentID, brackets.EventTournamentUpdate, TournamentUpdatePayload{
			TournamentID:    tournamentID,
			RegisteredCount: len(t.Roster),
		})
	}

	if !t.Kind.StartsAtCapacity() || !t.IsFull() {
		return result, nil
	}

	out, err := s.tournaments.Start(ctx, tournamentID)
	switch {
	case err == nil:
		result.Started = true
		result.Matches = len(out.Matches)
	case errors.Is(err, ErrAlreadyStarted):
		result.Started = true
	default:
		// The join itself succeeded; the start is retried by the scheduler or manually.
		s.logger.Error("failed to start full tournament", slog.String("tournament_id", tournamentID), slog.Any("error", err))
	}

	if fresh, err := s.repo.GetByID(ctx, tournamentID); err == nil {
		result.Tournament = fresh
	}

	if result.Started && t.Kind == models.KindSitNGo && s.autoClone {
		clone, err := s.tournaments.CloneSitNGo(ctx, t)
		if err != nil {
			s.logger.Error("failed to clone sit-n-go table", slog.String("tournament_id", tournamentID), slog.Any("error", err))
		} else {
			result.NextTable = clone
		}
	}
	return result, nil
}

// register adds the participant under the tournament lock. A repeat join
// reports already=true and changes nothing.
func (s *registrationService) register(ctx context.Context, tournamentID string, p models.Participant) (*models.Tournament, bool, error) {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, false, mapRepoError(err, tournamentID)
	}
	if t.HasParticipant(p.ID) {
		return t, true, nil
	}
	if t.Status != models.StatusRegistration {
		return nil, false, fmt.Errorf("%w: %s is %s", ErrRegistrationNotOpen, tournamentID, t.Status)
	}
	if t.Kind == models.KindFreeroll && p.Guest() {
		return nil, false, ErrGuestsNotAllowed
	}
	if t.IsFull() {
		return nil, false, fmt.Errorf("%w: %s has %d/%d", ErrTournamentFull, tournamentID, len(t.Roster), t.Capacity)
	}

	t.Roster = append(t.Roster, p)
	if err := s.repo.UpdateRoster(ctx, tournamentID, t.Roster); err != nil {
		return nil, false, mapRepoError(err, tournamentID)
	}
	return t, false, nil
}

func (s *registrationService) Leave(ctx context.Context, tournamentID, playerID string) (*models.Tournament, error) {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapRepoError(err, tournamentID)
	}
	if t.Status != models.StatusRegistration {
		return nil, fmt.Errorf("%w: %s is %s", ErrRegistrationNotOpen, tournamentID, t.Status)
	}

	roster := make([]models.Participant, 0, len(t.Roster))
	for _, p := range t.Roster {
		if p.ID != playerID {
			roster = append(roster, p)
		}
	}
	if len(roster) == len(t.Roster) {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, playerID)
	}
	if err := s.repo.UpdateRoster(ctx, tournamentID, roster); err != nil {
		return nil, mapRepoError(err, tournamentID)
	}
	t.Roster = roster

	s.logger.Info("player left tournament",
		slog.String("tournament_id", tournamentID),
		slog.String("player_id", playerID))
	if s.hub != nil {
		s.hub.BroadcastTournament(tournamentID, brackets.EventTournamentUpdate, TournamentUpdatePayload{
			TournamentID:    tournamentID,
			RegisteredCount: len(roster),
		})
	}
	return t, nil
}
