package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-session-server/internal/domain"
)

const defaultTTL = 24 * time.Hour

// Redis keeps listings under room:<id>, reservations under room:<id>:lock and
// the set of WAITING rooms under room:lobby.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Dial parses a redis:// URL and pings the server.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Redis) keyMeta(id string) string { return "room:" + strings.TrimSpace(id) }
func (s *Redis) keyLock(id string) string { return s.keyMeta(id) + ":lock" }
func (s *Redis) keyLobby() string         { return "room:lobby" }

func (s *Redis) Reserve(ctx context.Context, roomID string) (bool, error) {
	if strings.TrimSpace(roomID) == "" {
		return false, errors.New("empty room id")
	}
	return s.rdb.SetNX(ctx, s.keyLock(roomID), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

func (s *Redis) Publish(ctx context.Context, l Listing) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keyMeta(l.ID), raw, s.ttl)
		pipe.Expire(ctx, s.keyLock(l.ID), s.ttl)
		if l.Status == domain.StatusWaiting {
			pipe.SAdd(ctx, s.keyLobby(), l.ID)
			pipe.Expire(ctx, s.keyLobby(), s.ttl)
		} else {
			pipe.SRem(ctx, s.keyLobby(), l.ID)
		}
		return nil
	})
	return err
}

func (s *Redis) Release(ctx context.Context, roomID string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keyMeta(roomID), s.keyLock(roomID))
		pipe.SRem(ctx, s.keyLobby(), roomID)
		return nil
	})
	return err
}

func (s *Redis) Get(ctx context.Context, roomID string) (*Listing, error) {
	raw, err := s.rdb.Get(ctx, s.keyMeta(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Lobby lists WAITING rooms, oldest first. Expired members are pruned.
func (s *Redis) Lobby(ctx context.Context) ([]Listing, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyLobby()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(ids))
	for _, id := range ids {
		l, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if l == nil || l.Status != domain.StatusWaiting {
			_ = s.rdb.SRem(ctx, s.keyLobby(), id).Err()
			continue
		}
		out = append(out, *l)
	}
	sortListings(out)
	return out, nil
}

func sortListings(ls []Listing) {
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].ID < ls[j].ID
		}
		return ls[i].CreatedAt.Before(ls[j].CreatedAt)
	})
}
