package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentIDExists = errors.New("tournament id already exists")
)

type ListTournamentsFilter struct {
	Kinds        []models.TournamentKind
	Status       *models.TournamentStatus
	StartsAfter  *time.Time
	StartsBefore *time.Time
	Limit        int
	Offset       int
}

type TournamentRepository interface {
	Create(ctx context.Context, tournament *models.Tournament) error
	GetByID(ctx context.Context, id string) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	UpdateRoster(ctx context.Context, id string, roster []models.Participant) error
	UpdateStatus(ctx context.Context, id string, status models.TournamentStatus) error
	// SaveBracketProgress ignores progress older than what is stored.
	SaveBracketProgress(ctx context.Context, p brackets.Progress) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const tournamentColumns = `
	id, name, kind, status, capacity, start_time, ruleset, roster,
	round_winners, current_round, champion, bracket_version, template_id, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTournament(row rowScanner) (*models.Tournament, error) {
	var (
		t                             models.Tournament
		ruleset, roster, roundWinners []byte
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.Kind, &t.Status, &t.Capacity, &t.StartTime, &ruleset, &roster,
		&roundWinners, &t.CurrentRound, &t.Champion, &t.BracketVersion, &t.TemplateID, &t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ruleset, &t.Ruleset); err != nil {
		return nil, fmt.Errorf("decode ruleset of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(roster, &t.Roster); err != nil {
		return nil, fmt.Errorf("decode roster of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(roundWinners, &t.RoundWinners); err != nil {
		return nil, fmt.Errorf("decode round winners of %s: %w", t.ID, err)
	}
	if t.Roster == nil {
		t.Roster = []models.Participant{}
	}
	return &t, nil
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	executor := r.getExecutor(nil)
	ruleset, err := json.Marshal(t.Ruleset)
	if err != nil {
		return err
	}
	if t.Roster == nil {
		t.Roster = []models.Participant{}
	}
	roster, err := json.Marshal(t.Roster)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tournaments (
			id, name, kind, status, capacity, start_time, ruleset, roster, template_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = executor.QueryRowContext(ctx, query,
		t.ID, t.Name, t.Kind, t.Status, t.Capacity, t.StartTime, ruleset, roster, t.TemplateID,
	).Scan(&t.CreatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id string) (*models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t, err := scanTournament(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	executor := r.getExecutor(nil)
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`

	args := []interface{}{}
	argID := 1

	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		query += fmt.Sprintf(" AND kind = ANY($%d)", argID)
		args = append(args, pq.Array(kinds))
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	if filter.StartsAfter != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argID)
		args = append(args, *filter.StartsAfter)
		argID++
	}
	if filter.StartsBefore != nil {
		query += fmt.Sprintf(" AND start_time < $%d", argID)
		args = append(args, *filter.StartsBefore)
		argID++
	}

	query += " ORDER BY start_time ASC NULLS LAST, created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		tournaments = append(tournaments, *t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateRoster(ctx context.Context, id string, roster []models.Participant) error {
	executor := r.getExecutor(nil)
	if roster == nil {
		roster = []models.Participant{}
	}
	raw, err := json.Marshal(roster)
	if err != nil {
		return err
	}
	result, err := executor.ExecContext(ctx, `UPDATE tournaments SET roster = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, id string, status models.TournamentStatus) error {
	executor := r.getExecutor(nil)
	result, err := executor.ExecContext(ctx, `UPDATE tournaments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) SaveBracketProgress(ctx context.Context, p brackets.Progress) error {
	executor := r.getExecutor(nil)
	winners, err := json.Marshal(p.RoundWinners)
	if err != nil {
		return err
	}
	query := `
		UPDATE tournaments SET
			current_round = $2,
			round_winners = $3,
			champion = NULLIF($4::text, ''),
			bracket_version = $5,
			status = CASE WHEN $4::text <> '' THEN 'completed' ELSE status END
		WHERE id = $1 AND bracket_version < $5`

	result, err := executor.ExecContext(ctx, query, p.TournamentID, p.CurrentRound, winners, p.Champion, p.Version)
	if err != nil {
		return r.handleTournamentError(err)
	}
	if err := checkAffectedRows(result, ErrTournamentNotFound); err == nil {
		return nil
	}

	// Zero rows: either a stale version or an unknown tournament.
	var exists bool
	if err := executor.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tournaments WHERE id = $1)`, p.TournamentID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTournamentNotFound
	}
	return nil
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrTournamentIDExists
	}
	return err
}
