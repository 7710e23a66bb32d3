package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/retrorumble/tournament-lobby/models"
)

const (
	BackendRedis = "redis"
	BackendR2    = "r2"
	BackendDisk  = "disk"
)

var (
	ErrMatchStateNotFound = errors.New("match state not found")
	ErrUnknownBackend     = errors.New("unknown match store backend")
)

// MatchStore keeps match descriptors keyed by match id. Save is an upsert.
type MatchStore interface {
	Save(ctx context.Context, match *models.MatchDescriptor) error
	Load(ctx context.Context, matchID string) (*models.MatchDescriptor, error)
	// LoadAllForTournament returns the tournament's matches in no particular order.
	LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error)
	Backend() string
	Close() error
}

type Config struct {
	// Backend forces a backend; empty picks redis, then r2, then disk.
	Backend  string
	RedisURL string
	R2       R2Config
	Dir      string
}

// ResolveBackend picks the backend once for the lifetime of the process.
func ResolveBackend(cfg Config) string {
	switch {
	case cfg.Backend != "":
		return cfg.Backend
	case cfg.RedisURL != "":
		return BackendRedis
	case cfg.R2.BucketName != "":
		return BackendR2
	default:
		return BackendDisk
	}
}

// Open connects the configured backend. An unreachable networked backend
// is an error; there is no fallback to disk.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (MatchStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend := ResolveBackend(cfg)

	var (
		store MatchStore
		err   error
	)
	switch backend {
	case BackendRedis:
		store, err = NewRedisStore(ctx, cfg.RedisURL)
	case BackendR2:
		store, err = NewR2Store(ctx, cfg.R2)
	case BackendDisk:
		store, err = NewDiskStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s match store: %w", backend, err)
	}

	logger.Info("match store ready", slog.String("backend", store.Backend()))
	return store, nil
}

func encodeMatch(m *models.MatchDescriptor) ([]byte, error) {
	if m == nil || m.MatchID == "" {
		return nil, errors.New("match descriptor without id")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode match %s: %w", m.MatchID, err)
	}
	return raw, nil
}

func decodeMatch(raw []byte) (*models.MatchDescriptor, error) {
	var m models.MatchDescriptor
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode match state: %w", err)
	}
	return &m, nil
}
