// Package snapcache keeps the last applied snapshot per game in Redis so a restarted
// session can warm-start before the ledger answers.
package snapcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-ledger-sync/internal/record"
)

const defaultTTL = 24 * time.Hour

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects using a redis:// URL and pings once.
func Open(ctx context.Context, url string, ttl time.Duration) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(rdb, ttl), nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) keySnapshot(gameID string) string {
	return "chesssync:snap:" + strings.TrimSpace(gameID)
}
func (s *Store) keyPlayerIdx(addr string) string {
	return "chesssync:index:player:" + strings.ToLower(strings.TrimSpace(addr))
}

// Save stores the record as a wire snapshot and indexes it under both seats.
func (s *Store) Save(ctx context.Context, rec *record.GameRecord) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return nil
	}
	raw, err := json.Marshal(record.FromRecord(rec))
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keySnapshot(rec.GameID), raw, s.ttl)
	for _, addr := range []string{rec.SeatOne, rec.SeatTwo} {
		if strings.TrimSpace(addr) == "" {
			continue
		}
		pipe.SAdd(ctx, s.keyPlayerIdx(addr), rec.GameID)
		pipe.Expire(ctx, s.keyPlayerIdx(addr), s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Load returns the cached snapshot, or nil when none is stored. The caller validates it
// like any other snapshot.
func (s *Store) Load(ctx context.Context, gameID string) (*record.Snapshot, error) {
	raw, err := s.rdb.Get(ctx, s.keySnapshot(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap record.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Store) Delete(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, s.keySnapshot(gameID)).Err()
}

// GamesByPlayer lists cached game ids a player is seated in.
func (s *Store) GamesByPlayer(ctx context.Context, addr string) ([]string, error) {
	return s.rdb.SMembers(ctx, s.keyPlayerIdx(addr)).Result()
}
