package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
)

type SchedulerConfig struct {
	// ScheduleBroadcastInterval is how often today's schedule goes to the lobby.
	ScheduleBroadcastInterval time.Duration
	// SyncInterval re-reads pending tournaments, e.g. ones created by another process.
	SyncInterval time.Duration
	StartTimeout time.Duration
}

type scheduledStart struct {
	jobID   uuid.UUID
	startAt time.Time
}

// Scheduler starts fixed-time tournaments and publishes the day's schedule.
type Scheduler struct {
	cron        gocron.Scheduler
	tournaments TournamentService
	hub         LobbyBroadcaster
	logger      *slog.Logger
	cfg         SchedulerConfig
	now         func() time.Time

	mu     sync.Mutex
	starts map[string]scheduledStart
	ctx    context.Context
}

func NewScheduler(tournaments TournamentService, hub LobbyBroadcaster, logger *slog.Logger, cfg SchedulerConfig) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if cfg.ScheduleBroadcastInterval <= 0 {
		cfg.ScheduleBroadcastInterval = time.Minute
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	return &Scheduler{
		cron:        cron,
		tournaments: tournaments,
		hub:         hub,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		starts:      make(map[string]scheduledStart),
		ctx:         context.Background(),
	}, nil
}

// Start registers the periodic jobs, schedules pending tournaments and
// starts the underlying scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if _, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.SyncInterval),
		gocron.NewTask(func() {
			if err := s.Sync(ctx); err != nil {
				s.logger.Error("scheduler: sync failed", slog.Any("error", err))
			}
		}),
		gocron.WithName("sync-pending-starts"),
	); err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	if _, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.ScheduleBroadcastInterval),
		gocron.NewTask(func() {
			if err := s.BroadcastSchedule(ctx); err != nil {
				s.logger.Error("scheduler: schedule broadcast failed", slog.Any("error", err))
			}
		}),
		gocron.WithName("broadcast-schedule"),
	); err != nil {
		return fmt.Errorf("register schedule broadcast job: %w", err)
	}

	if err := s.Sync(ctx); err != nil {
		s.logger.Error("scheduler: initial sync failed", slog.Any("error", err))
	}
	s.cron.Start()
	s.logger.Info("tournament scheduler started",
		slog.Duration("sync_interval", s.cfg.SyncInterval),
		slog.Duration("broadcast_interval", s.cfg.ScheduleBroadcastInterval))
	return nil
}

func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

// Track schedules the start of a tournament at its start time. Calling it
// again with a changed start time replaces the job; a start time already in
// the past starts the tournament right away.
func (s *Scheduler) Track(t *models.Tournament) error {
	if t.StartTime == nil || t.Status != models.StatusRegistration {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.starts[t.ID]; ok {
		if cur.startAt.Equal(*t.StartTime) {
			return nil
		}
		if err := s.cron.RemoveJob(cur.jobID); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
			return fmt.Errorf("remove previous start job of %s: %w", t.ID, err)
		}
		delete(s.starts, t.ID)
	}

	at := gocron.OneTimeJobStartImmediately()
	if t.StartTime.After(s.now()) {
		at = gocron.OneTimeJobStartDateTime(*t.StartTime)
	}
	job, err := s.cron.NewJob(
		gocron.OneTimeJob(at),
		gocron.NewTask(s.fire, t.ID),
		gocron.WithTags(t.ID),
		gocron.WithName("start-"+t.ID),
	)
	if err != nil {
		return fmt.Errorf("schedule start of %s: %w", t.ID, err)
	}
	s.starts[t.ID] = scheduledStart{jobID: job.ID(), startAt: *t.StartTime}
	s.logger.Info("tournament start scheduled",
		slog.String("tournament_id", t.ID),
		slog.Time("start_time", *t.StartTime))
	return nil
}

func (s *Scheduler) fire(tournamentID string) {
	s.mu.Lock()
	base := s.ctx
	delete(s.starts, tournamentID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.cfg.StartTimeout)
	defer cancel()

	out, err := s.tournaments.Start(ctx, tournamentID)
	switch {
	case err == nil:
		s.logger.Info("scheduled tournament started",
			slog.String("tournament_id", tournamentID),
			slog.Int("matches", len(out.Matches)))
	case errors.Is(err, ErrNotEnoughPlayers):
		s.logger.Warn("scheduled tournament canceled", slog.String("tournament_id", tournamentID), slog.Any("error", err))
	case errors.Is(err, ErrAlreadyStarted), errors.Is(err, ErrTournamentInvalidStatusTransition):
		s.logger.Info("scheduled start skipped", slog.String("tournament_id", tournamentID), slog.Any("error", err))
	default:
		s.logger.Error("scheduled tournament start failed", slog.String("tournament_id", tournamentID), slog.Any("error", err))
	}
}

// Sync schedules every pending fixed-time tournament not tracked yet.
func (s *Scheduler) Sync(ctx context.Context) error {
	pending, err := s.tournaments.ListPendingStarts(ctx)
	if err != nil {
		return fmt.Errorf("list pending starts: %w", err)
	}
	var errs []error
	for i := range pending {
		if err := s.Track(&pending[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastSchedule sends today's tournaments to the lobby.
func (s *Scheduler) BroadcastSchedule(ctx context.Context) error {
	list, err := s.tournaments.DaySchedule(ctx, s.now())
	if err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastLobby(brackets.EventTournamentSchedule, list)
	}
	return nil
}

// Pending reports how many start jobs are waiting.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}
