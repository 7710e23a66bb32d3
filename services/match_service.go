package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/repositories"
	"github.com/retrorumble/tournament-lobby/storage"
)

// ErrMatchesListFailed - общая ошибка для листинга матчей
var ErrMatchesListFailed = errors.New("failed to list matches")

type MatchReader interface {
	Load(ctx context.Context, matchID string) (*models.MatchDescriptor, error)
	LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error)
}

type ReportResultInput struct {
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
	WinnerID     string `json:"winnerId"`
}

type MatchDetails struct {
	Match  *models.MatchDescriptor `json:"match"`
	Winner string                  `json:"winner,omitempty"`
}

type MatchService interface {
	ReportResult(ctx context.Context, input ReportResultInput) (*brackets.Outcome, error)
	GetMatch(ctx context.Context, matchID string) (*MatchDetails, error)
	ListMatches(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error)
	Bracket(ctx context.Context, tournamentID string) (*brackets.BracketView, error)
	Resync(ctx context.Context, tournamentID string) (*brackets.Outcome, error)
}

type matchService struct {
	repo    repositories.TournamentRepository
	bracket BracketEngine
	store   MatchReader
	logger  *slog.Logger
}

func NewMatchService(
	repo repositories.TournamentRepository,
	bracket BracketEngine,
	store MatchReader,
	logger *slog.Logger,
) MatchService {
	return &matchService{repo: repo, bracket: bracket, store: store, logger: logger}
}

func (s *matchService) ReportResult(ctx context.Context, input ReportResultInput) (*brackets.Outcome, error) {
	input.TournamentID = strings.TrimSpace(input.TournamentID)
	input.MatchID = strings.TrimSpace(input.MatchID)
	input.WinnerID = strings.TrimSpace(input.WinnerID)
	if input.TournamentID == "" {
		if tid, _, _, ok := brackets.ParseMatchID(input.MatchID); ok {
			input.TournamentID = tid
		}
	}

	out, err := s.bracket.RecordResult(ctx, input.TournamentID, input.MatchID, input.WinnerID)
	if err != nil {
		if errors.Is(err, brackets.ErrNoRoundInProgress) {
			return nil, s.explainMissingBracket(ctx, input.TournamentID, err)
		}
		return nil, err
	}
	if out.Duplicate {
		s.logger.Info("duplicate match result ignored",
			slog.String("tournament_id", input.TournamentID),
			slog.String("match_id", input.MatchID))
		return out, nil
	}
	logWarnings(s.logger, "match result side effect failed", input.TournamentID, out.Warnings)
	if out.Champion != "" {
		s.logger.Info("tournament completed",
			slog.String("tournament_id", input.TournamentID),
			slog.String("champion", out.Champion))
	}
	return out, nil
}

// explainMissingBracket tells apart an unknown tournament from one that has
// not started or already finished before the last restart.
func (s *matchService) explainMissingBracket(ctx context.Context, tournamentID string, cause error) error {
	t, err := s.repo.GetByID(ctx, tournamentID)
	if err != nil {
		return mapRepoError(err, tournamentID)
	}
	switch t.Status {
	case models.StatusRegistration:
		return fmt.Errorf("%w: %s", ErrBracketNotStarted, tournamentID)
	case models.StatusCompleted:
		s.logger.Warn("tournament already completed",
			slog.String("tournament_id", tournamentID))
		return fmt.Errorf("%w: %s", ErrTournamentAlreadyCompleted, tournamentID)
	}
	return cause
}

func (s *matchService) GetMatch(ctx context.Context, matchID string) (*MatchDetails, error) {
	tournamentID, _, _, ok := brackets.ParseMatchID(matchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if mv, ok := s.bracket.Match(tournamentID, matchID); ok {
		return &MatchDetails{Match: mv.Match, Winner: mv.Winner}, nil
	}

	m, err := s.store.Load(ctx, matchID)
	if err != nil {
		if errors.Is(err, storage.ErrMatchStateNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	return &MatchDetails{Match: m}, nil
}

func (s *matchService) ListMatches(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error) {
	if _, err := s.repo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapRepoError(err, tournamentID)
	}
	matches, err := s.store.LoadAllForTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("%w: tournament %s: %w", ErrMatchesListFailed, tournamentID, err)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Round != matches[j].Round {
			return matches[i].Round < matches[j].Round
		}
		return matches[i].MatchIndex < matches[j].MatchIndex
	})
	return matches, nil
}

func (s *matchService) Bracket(ctx context.Context, tournamentID string) (*brackets.BracketView, error) {
	if view, ok := s.bracket.Snapshot(tournamentID); ok {
		return view, nil
	}
	if _, err := s.repo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapRepoError(err, tournamentID)
	}
	return nil, fmt.Errorf("%w: %s", ErrBracketNotStarted, tournamentID)
}

func (s *matchService) Resync(ctx context.Context, tournamentID string) (*brackets.Outcome, error) {
	out, err := s.bracket.Resync(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, brackets.ErrNoRoundInProgress) {
			return nil, s.explainMissingBracket(ctx, tournamentID, err)
		}
		return nil, err
	}
	logWarnings(s.logger, "resync failed", tournamentID, out.Warnings)
	return out, nil
}
