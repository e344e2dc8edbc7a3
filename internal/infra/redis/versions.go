package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultVersionPrefix namespaces the decision version counters.
const DefaultVersionPrefix = "authz:ver"

// VersionStore keeps the counters that are folded into decision cache keys.
// The global counter moves on catalog changes, the per-user counter on
// grant changes. A bumped counter makes every older cache key unreachable,
// so entries never need to be enumerated or deleted.
type VersionStore struct {
	client *Client
	prefix string
}

// NewVersionStore creates a version store. An empty prefix uses DefaultVersionPrefix.
func NewVersionStore(client *Client, prefix string) (*VersionStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultVersionPrefix
	}
	return &VersionStore{client: client, prefix: prefix}, nil
}

func (s *VersionStore) globalKey() string {
	return s.prefix + ":global"
}

func (s *VersionStore) userKey(userID string) string {
	return s.prefix + ":user:" + userID
}

// Versions returns the global and user counters. Missing counters read as 0.
func (s *VersionStore) Versions(ctx context.Context, userID string) (global, user int64, err error) {
	done := Timed("versions_get")
	vals, err := s.client.client.MGet(ctx, s.globalKey(), s.userKey(userID)).Result()
	done(err)
	if err != nil {
		return 0, 0, fmt.Errorf("get versions: %w", err)
	}

	if global, err = parseVersion(vals[0]); err != nil {
		return 0, 0, err
	}
	if user, err = parseVersion(vals[1]); err != nil {
		return 0, 0, err
	}
	return global, user, nil
}

func parseVersion(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse version %q: %w", val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected version value %T", v)
	}
}

// BumpGlobal increments the global counter.
func (s *VersionStore) BumpGlobal(ctx context.Context) error {
	done := Timed("versions_bump")
	err := s.client.client.Incr(ctx, s.globalKey()).Err()
	done(err)
	if err != nil {
		return fmt.Errorf("bump global version: %w", err)
	}
	return nil
}

// BumpUsers increments the counters of several users in one round trip.
func (s *VersionStore) BumpUsers(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	done := Timed("versions_bump")
	_, err := s.client.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, id := range userIDs {
			p.Incr(ctx, s.userKey(id))
		}
		return nil
	})
	done(err)
	if err != nil {
		return fmt.Errorf("bump user versions: %w", err)
	}
	return nil
}

// ResetUser overwrites a user's counter with a value derived from the
// clock. It is the fallback when an increment failed; the new value does
// not coincide with any counter a cached decision was keyed on.
func (s *VersionStore) ResetUser(ctx context.Context, userID string) error {
	if err := s.client.client.Set(ctx, s.userKey(userID), time.Now().UnixNano(), 0).Err(); err != nil {
		return fmt.Errorf("reset user version: %w", err)
	}
	return nil
}

// ResetGlobal overwrites the global counter with a clock-derived value.
func (s *VersionStore) ResetGlobal(ctx context.Context) error {
	if err := s.client.client.Set(ctx, s.globalKey(), time.Now().UnixNano(), 0).Err(); err != nil {
		return fmt.Errorf("reset global version: %w", err)
	}
	return nil
}
