package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/repositories"
	"github.com/retrorumble/tournament-lobby/utils"
)

const defaultSitNGoCapacity = 2

type CreateTournamentInput struct {
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name"`
	Kind      models.TournamentKind `json:"kind"`
	Capacity  int                   `json:"capacity"`
	StartTime *time.Time            `json:"start_time,omitempty"`
	Ruleset   models.Ruleset        `json:"ruleset"`
}

type ListTournamentsInput struct {
	Kind   *models.TournamentKind
	Status *models.TournamentStatus
	Limit  int
	Offset int
}

// StartTracker is told about tournaments that start at a fixed time.
type StartTracker interface {
	Track(t *models.Tournament) error
}

type TournamentService interface {
	Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	Get(ctx context.Context, id string) (*models.Tournament, error)
	List(ctx context.Context, input ListTournamentsInput) ([]models.Tournament, error)
	Start(ctx context.Context, id string) (*brackets.Outcome, error)
	CloneSitNGo(ctx context.Context, template *models.Tournament) (*models.Tournament, error)
	RestoreActive(ctx context.Context) (int, error)
	ListPendingStarts(ctx context.Context) ([]models.Tournament, error)
	DaySchedule(ctx context.Context, day time.Time) ([]models.Tournament, error)
	SetStartTracker(tracker StartTracker)
}

type tournamentService struct {
	repo    repositories.TournamentRepository
	bracket BracketEngine
	hub     LobbyBroadcaster
	locks   *utils.KeyedMutex
	tracker StartTracker
	logger  *slog.Logger
	now     func() time.Time
}

func NewTournamentService(
	repo repositories.TournamentRepository,
	bracket BracketEngine,
	hub LobbyBroadcaster,
	locks *utils.KeyedMutex,
	logger *slog.Logger,
) TournamentService {
	if locks == nil {
		locks = utils.NewKeyedMutex()
	}
	return &tournamentService{
		repo:    repo,
		bracket: bracket,
		hub:     hub,
		locks:   locks,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *tournamentService) SetStartTracker(tracker StartTracker) {
	s.tracker = tracker
}

func (s *tournamentService) Create(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	t, err := s.buildTournament(input)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, mapRepoError(err, t.ID)
	}
	s.logger.Info("tournament created",
		slog.String("tournament_id", t.ID),
		slog.String("kind", string(t.Kind)),
		slog.Int("capacity", t.Capacity))

	if s.hub != nil {
		s.hub.BroadcastLobby(brackets.EventTournamentCreated, t)
	}
	if s.tracker != nil && t.StartTime != nil {
		if err := s.tracker.Track(t); err != nil {
			s.logger.Error("failed to schedule tournament start", slog.String("tournament_id", t.ID), slog.Any("error", err))
		}
	}
	return t, nil
}

func (s *tournamentService) buildTournament(input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if !input.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrTournamentInvalidKind, input.Kind)
	}
	if input.Capacity < 0 || input.Capacity == 1 {
		return nil, ErrTournamentInvalidCapacity
	}

	id := input.ID
	if id == "" {
		id = slug.Make(name)
	} else if !slug.IsSlug(id) {
		return nil, fmt.Errorf("%w: id %q must be a slug", ErrValidationFailed, id)
	}
	if id == "" {
		id = uuid.NewString()
	}

	capacity := input.Capacity
	switch input.Kind {
	case models.KindSitNGo:
		if capacity == 0 {
			capacity = defaultSitNGoCapacity
		}
	case models.KindScheduled:
		if input.StartTime == nil {
			return nil, ErrTournamentStartTimeRequired
		}
	case models.KindFreeroll:
		if input.StartTime == nil && capacity == 0 {
			return nil, fmt.Errorf("%w: freeroll needs a start time or a capacity", ErrTournamentStartTimeRequired)
		}
	}
	var start *time.Time
	if input.StartTime != nil {
		if !input.StartTime.After(s.now()) {
			return nil, ErrTournamentStartTimeInPast
		}
		start = utils.Ptr(input.StartTime.UTC())
	}

	return &models.Tournament{
		ID:        id,
		Name:      name,
		Kind:      input.Kind,
		Status:    models.StatusRegistration,
		Capacity:  capacity,
		StartTime: start,
		Ruleset:   input.Ruleset.WithDefaults(),
		Roster:    []models.Participant{},
	}, nil
}

func (s *tournamentService) Get(ctx context.Context, id string) (*models.Tournament, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	return t, nil
}

func (s *tournamentService) List(ctx context.Context, input ListTournamentsInput) ([]models.Tournament, error) {
	filter := repositories.ListTournamentsFilter{Status: input.Status, Limit: input.Limit, Offset: input.Offset}
	if input.Kind != nil {
		if !input.Kind.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrTournamentInvalidKind, *input.Kind)
		}
		filter.Kinds = []models.TournamentKind{*input.Kind}
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidationFailed, *input.Status)
	}
	return s.repo.List(ctx, filter)
}

// Start flips a tournament to active and opens round 1. A roster below two
// players cancels the tournament instead.
func (s *tournamentService) Start(ctx context.Context, id string) (*brackets.Outcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, id)
	}
	switch t.Status {
	case models.StatusRegistration:
	case models.StatusActive:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, id)
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrTournamentInvalidStatusTransition, id, t.Status)
	}

	if len(t.Roster) < brackets.MatchSize {
		if err := s.repo.UpdateStatus(ctx, id, models.StatusCanceled); err != nil {
			return nil, mapRepoError(err, id)
		}
		s.logger.Warn("tournament canceled, not enough players",
			slog.String("tournament_id", id),
			slog.Int("registered", len(t.Roster)))
		s.broadcastStatus(t, models.StatusCanceled)
		return nil, fmt.Errorf("%w: %s has %d", ErrNotEnoughPlayers, id, len(t.Roster))
	}

	if err := s.repo.UpdateStatus(ctx, id, models.StatusActive); err != nil {
		return nil, mapRepoError(err, id)
	}
	out, err := s.bracket.StartRound(ctx, brackets.StartRequest{
		TournamentID: id,
		Ruleset:      t.Ruleset,
		Players:      t.ParticipantIDs(),
	})
	if err != nil {
		if rbErr := s.repo.UpdateStatus(ctx, id, models.StatusRegistration); rbErr != nil {
			s.logger.Error("failed to roll back tournament status", slog.String("tournament_id", id), slog.Any("error", rbErr))
		}
		return nil, fmt.Errorf("start bracket %s: %w", id, err)
	}
	logWarnings(s.logger, "bracket start side effect failed", id, out.Warnings)

	s.logger.Info("tournament started",
		slog.String("tournament_id", id),
		slog.Int("players", len(t.Roster)),
		slog.Int("matches", len(out.Matches)))
	s.broadcastStatus(t, models.StatusActive)
	return out, nil
}

func (s *tournamentService) broadcastStatus(t *models.Tournament, status models.TournamentStatus) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastTournament(t.ID, brackets.EventTournamentUpdate, TournamentUpdatePayload{
		TournamentID:    t.ID,
		RegisteredCount: len(t.Roster),
		Status:          status,
	})
}

// CloneSitNGo opens an empty copy of a sit-n-go table that just filled.
func (s *tournamentService) CloneSitNGo(ctx context.Context, template *models.Tournament) (*models.Tournament, error) {
	if template.Kind != models.KindSitNGo {
		return nil, fmt.Errorf("%w: %s is not a sit-n-go", ErrTournamentInvalidKind, template.ID)
	}
	root := template.ID
	if template.TemplateID != nil && *template.TemplateID != "" {
		root = *template.TemplateID
	}

	clone := &models.Tournament{
		ID:         fmt.Sprintf("%s-%s", root, uuid.NewString()[:8]),
		Name:       template.Name,
		Kind:       models.KindSitNGo,
		Status:     models.StatusRegistration,
		Capacity:   template.Capacity,
		Ruleset:    template.Ruleset,
		Roster:     []models.Participant{},
		TemplateID: utils.Ptr(root),
	}
	if err := s.repo.Create(ctx, clone); err != nil {
		return nil, mapRepoError(err, clone.ID)
	}
	s.logger.Info("sit-n-go table cloned",
		slog.String("template_id", root),
		slog.String("previous_id", template.ID),
		slog.String("tournament_id", clone.ID))

	if s.hub != nil {
		s.hub.BroadcastLobby(brackets.EventTournamentCreated, clone)
		s.hub.BroadcastLobby(brackets.EventSitNGoUpdated, SitNGoUpdatedPayload{
			TemplateID:   root,
			TournamentID: clone.ID,
			PreviousID:   template.ID,
		})
	}
	return clone, nil
}

// RestoreActive reloads every active bracket into memory after a restart.
func (s *tournamentService) RestoreActive(ctx context.Context) (int, error) {
	active := models.StatusActive
	list, err := s.repo.List(ctx, repositories.ListTournamentsFilter{Status: &active})
	if err != nil {
		return 0, fmt.Errorf("list active tournaments: %w", err)
	}

	restored := 0
	var errs []error
	for i := range list {
		t := &list[i]
		out, err := s.bracket.Restore(ctx, t)
		if err != nil {
			s.logger.Error("failed to restore bracket", slog.String("tournament_id", t.ID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("restore %s: %w", t.ID, err))
			continue
		}
		logWarnings(s.logger, "bracket restore side effect failed", t.ID, out.Warnings)
		restored++
	}
	return restored, errors.Join(errs...)
}

// ListPendingStarts returns tournaments still in registration that start at a fixed time.
func (s *tournamentService) ListPendingStarts(ctx context.Context) ([]models.Tournament, error) {
	status := models.StatusRegistration
	list, err := s.repo.List(ctx, repositories.ListTournamentsFilter{
		Kinds:  []models.TournamentKind{models.KindScheduled, models.KindFreeroll},
		Status: &status,
	})
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, t := range list {
		if t.StartTime != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// DaySchedule lists tournaments starting on the UTC day of day.
func (s *tournamentService) DaySchedule(ctx context.Context, day time.Time) ([]models.Tournament, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	return s.repo.List(ctx, repositories.ListTournamentsFilter{StartsAfter: &from, StartsBefore: &to})
}
