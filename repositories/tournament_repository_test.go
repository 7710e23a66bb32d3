package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/db"
	"github.com/retrorumble/tournament-lobby/models"
	"github.com/retrorumble/tournament-lobby/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTournament(id string, kind models.TournamentKind, start *time.Time) *models.Tournament {
	return &models.Tournament{
		ID:        id,
		Name:      "Cup " + id,
		Kind:      kind,
		Status:    models.StatusRegistration,
		Capacity:  4,
		StartTime: start,
		Ruleset:   models.Ruleset{}.WithDefaults(),
	}
}

func runRepositoryContract(t *testing.T, repo TournamentRepository) {
	ctx := context.Background()
	base := time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, newTournament("evening", models.KindScheduled, utils.Ptr(base.Add(2*time.Hour)))))
	require.NoError(t, repo.Create(ctx, newTournament("morning", models.KindScheduled, utils.Ptr(base))))
	require.NoError(t, repo.Create(ctx, newTournament("table-1", models.KindSitNGo, nil)))

	t.Run("duplicate id", func(t *testing.T) {
		err := repo.Create(ctx, newTournament("morning", models.KindScheduled, nil))
		assert.ErrorIs(t, err, ErrTournamentIDExists)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetByID(ctx, "morning")
		require.NoError(t, err)
		assert.Equal(t, models.KindScheduled, got.Kind)
		assert.Equal(t, models.DefaultROM, got.Ruleset.ROM)
		assert.Empty(t, got.Roster)
		require.NotNil(t, got.StartTime)
		assert.True(t, base.Equal(*got.StartTime))

		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrTournamentNotFound)
	})

	t.Run("list filters and order", func(t *testing.T) {
		scheduled, err := repo.List(ctx, ListTournamentsFilter{Kinds: []models.TournamentKind{models.KindScheduled}})
		require.NoError(t, err)
		require.Len(t, scheduled, 2)
		assert.Equal(t, "morning", scheduled[0].ID)
		assert.Equal(t, "evening", scheduled[1].ID)

		window, err := repo.List(ctx, ListTournamentsFilter{StartsAfter: utils.Ptr(base.Add(time.Hour)), StartsBefore: utils.Ptr(base.Add(3 * time.Hour))})
		require.NoError(t, err)
		require.Len(t, window, 1)
		assert.Equal(t, "evening", window[0].ID)

		limited, err := repo.List(ctx, ListTournamentsFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "evening", limited[0].ID)
	})

	t.Run("roster and status", func(t *testing.T) {
		roster := []models.Participant{
			{ID: "A", DisplayName: "Alice", JoinedAt: base},
			{ID: "guest-7", DisplayName: "Guest", IsGuest: true, JoinedAt: base},
		}
		require.NoError(t, repo.UpdateRoster(ctx, "table-1", roster))
		require.NoError(t, repo.UpdateStatus(ctx, "table-1", models.StatusActive))

		got, err := repo.GetByID(ctx, "table-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, got.Status)
		assert.Equal(t, []string{"A", "guest-7"}, got.ParticipantIDs())
		assert.True(t, got.Roster[1].IsGuest)

		active := models.StatusActive
		list, err := repo.List(ctx, ListTournamentsFilter{Status: &active})
		require.NoError(t, err)
		require.Len(t, list, 1)

		assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", models.StatusActive), ErrTournamentNotFound)
		assert.ErrorIs(t, repo.UpdateRoster(ctx, "missing", nil), ErrTournamentNotFound)
	})

	t.Run("bracket progress is version guarded", func(t *testing.T) {
		require.NoError(t, repo.SaveBracketProgress(ctx, brackets.Progress{
			TournamentID: "table-1", Version: 2, CurrentRound: 2,
			RoundWinners: map[int][]string{1: {"A"}, 2: {}},
		}))
		// Older write arriving late.
		require.NoError(t, repo.SaveBracketProgress(ctx, brackets.Progress{
			TournamentID: "table-1", Version: 1, CurrentRound: 1,
			RoundWinners: map[int][]string{1: {}},
		}))

		got, err := repo.GetByID(ctx, "table-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.BracketVersion)
		assert.Equal(t, 2, got.CurrentRound)
		assert.Equal(t, []string{"A"}, got.RoundWinners[1])
		assert.Nil(t, got.Champion)

		require.NoError(t, repo.SaveBracketProgress(ctx, brackets.Progress{
			TournamentID: "table-1", Version: 3, CurrentRound: 2,
			RoundWinners: map[int][]string{1: {"A"}, 2: {"A"}}, Champion: "A",
		}))
		got, err = repo.GetByID(ctx, "table-1")
		require.NoError(t, err)
		require.NotNil(t, got.Champion)
		assert.Equal(t, "A", *got.Champion)
		assert.Equal(t, models.StatusCompleted, got.Status)

		err = repo.SaveBracketProgress(ctx, brackets.Progress{TournamentID: "missing", Version: 1})
		assert.ErrorIs(t, err, ErrTournamentNotFound)
	})
}

func TestMemoryTournamentRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryTournamentRepository())
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryTournamentRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTournament("t", models.KindFreeroll, nil)))

	got, err := repo.GetByID(ctx, "t")
	require.NoError(t, err)
	got.Roster = append(got.Roster, models.Participant{ID: "sneaky"})

	again, err := repo.GetByID(ctx, "t")
	require.NoError(t, err)
	assert.Empty(t, again.Roster)
}

func TestPostgresTournamentRepository(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	conn, err := db.Connect(dsn, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.Migrate(conn))

	_, err = conn.Exec(`TRUNCATE tournaments`)
	require.NoError(t, err)

	runRepositoryContract(t, NewPostgresTournamentRepository(conn))
}
