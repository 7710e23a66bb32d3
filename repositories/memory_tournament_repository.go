package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/retrorumble/tournament-lobby/brackets"
	"github.com/retrorumble/tournament-lobby/models"
)

// memoryTournamentRepository backs single-process setups without DATABASE_URL.
type memoryTournamentRepository struct {
	mu          sync.RWMutex
	tournaments map[string]*models.Tournament
	now         func() time.Time
}

func NewMemoryTournamentRepository() TournamentRepository {
	return &memoryTournamentRepository{
		tournaments: make(map[string]*models.Tournament),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *memoryTournamentRepository) Create(_ context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tournaments[t.ID]; exists {
		return ErrTournamentIDExists
	}
	if t.Roster == nil {
		t.Roster = []models.Participant{}
	}
	t.CreatedAt = r.now()
	r.tournaments[t.ID] = t.Clone()
	return nil
}

func (r *memoryTournamentRepository) GetByID(_ context.Context, id string) (*models.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t.Clone(), nil
}

func (r *memoryTournamentRepository) List(_ context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Tournament, 0)
	for _, t := range r.tournaments {
		if !matchesFilter(t, filter) {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.StartTime != nil && b.StartTime != nil && !a.StartTime.Equal(*b.StartTime):
			return a.StartTime.Before(*b.StartTime)
		case a.StartTime != nil && b.StartTime == nil:
			return true
		case a.StartTime == nil && b.StartTime != nil:
			return false
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.Tournament{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(t *models.Tournament, f ListTournamentsFilter) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if t.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.StartsAfter != nil && (t.StartTime == nil || t.StartTime.Before(*f.StartsAfter)) {
		return false
	}
	if f.StartsBefore != nil && (t.StartTime == nil || !t.StartTime.Before(*f.StartsBefore)) {
		return false
	}
	return true
}

func (r *memoryTournamentRepository) UpdateRoster(_ context.Context, id string, roster []models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.Roster = append([]models.Participant{}, roster...)
	return nil
}

func (r *memoryTournamentRepository) UpdateStatus(_ context.Context, id string, status models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (r *memoryTournamentRepository) SaveBracketProgress(_ context.Context, p brackets.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[p.TournamentID]
	if !ok {
		return ErrTournamentNotFound
	}
	if p.Version <= t.BracketVersion {
		return nil
	}
	t.BracketVersion = p.Version
	t.CurrentRound = p.CurrentRound
	t.RoundWinners = make(map[int][]string, len(p.RoundWinners))
	for round, w := range p.RoundWinners {
		t.RoundWinners[round] = append([]string{}, w...)
	}
	if p.Champion != "" {
		champion := p.Champion
		t.Champion = &champion
		t.Status = models.StatusCompleted
	}
	return nil
}
