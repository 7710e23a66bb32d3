package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/retrorumble/tournament-lobby/models"
)

func matchKey(matchID string) string           { return "matchstate:" + matchID }
func tournamentIndexKey(tourID string) string { return "matchstate:tournament:" + tourID }

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(ctx context.Context, rawURL string) (MatchStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &redisStore{rdb: rdb}, nil
}

func (s *redisStore) Backend() string { return BackendRedis }

func (s *redisStore) Close() error { return s.rdb.Close() }

// Save writes the value and its tournament index entry in one transaction.
func (s *redisStore) Save(ctx context.Context, m *models.MatchDescriptor) error {
	raw, err := encodeMatch(m)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, matchKey(m.MatchID), raw, 0)
		pipe.SAdd(ctx, tournamentIndexKey(m.TournamentID), m.MatchID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", m.MatchID, err)
	}
	return nil
}

func (s *redisStore) Load(ctx context.Context, matchID string) (*models.MatchDescriptor, error) {
	raw, err := s.rdb.Get(ctx, matchKey(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrMatchStateNotFound, matchID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", matchID, err)
	}
	return decodeMatch(raw)
}

func (s *redisStore) LoadAllForTournament(ctx context.Context, tournamentID string) ([]*models.MatchDescriptor, error) {
	ids, err := s.rdb.SMembers(ctx, tournamentIndexKey(tournamentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list %s: %w", tournamentID, err)
	}
	out := make([]*models.MatchDescriptor, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = matchKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget %s: %w", tournamentID, err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a value.
			continue
		}
		m, err := decodeMatch([]byte(raw))
		if err != nil {
			return nil, err
		}
		if m.TournamentID == tournamentID {
			out = append(out, m)
		}
	}
	return out, nil
}
