package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/retrorumble/tournament-lobby/models"
)

const defaultDiskDir = "data/matches"

// diskStore keeps one JSON file per match. It is only safe within one process.
type diskStore struct {
	dir string
	mu  sync.RWMutex
}

func NewDiskStore(dir string) (MatchStore, error) {
	if dir == "" {
		dir = defaultDiskDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create match store dir %s: %w", dir, err)
	}
	return &diskStore{dir: dir}, nil
}

func (s *diskStore) Backend() string { return BackendDisk }

func (s *diskStore) Close() error { return nil }

func (s *diskStore) path(matchID string) string {
	return filepath.Join(s.dir, url.PathEscape(matchID)+".json")
}

// Save overwrites atomically via a temp file and rename.
func (s *diskStore) Save(ctx context.Context, m *models.MatchDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeMatch(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".match-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write match %s: %w", m.MatchID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(m.MatchID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename match %s: %w", m.MatchID, err)
	}
	return nil
}

func (s *diskStore) Load(ctx context.Context, matchID string) (*models.MatchDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path(matchID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMatchStateNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("read match %s: %w", matchID, err)
	}
	return decodeMatch(raw)
}

func (s *diskStore) LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read match store dir: %w", err)
	}
	out := make([]*models.MatchDescriptor, 0)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		m, err := decodeMatch(raw)
		if err != nil {
			return nil, err
		}
		if m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	return out, nil
}
