package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/tenx-cards/internal/generation"
)

// SessionCache stores finished generation sessions under a per-user key.
type SessionCache struct {
	rdb goredis.Cmdable
	ttl time.Duration
}

func NewSessionCache(rdb goredis.Cmdable, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SessionCache{rdb: rdb, ttl: ttl}
}

func sessionKey(userID, sessionID uuid.UUID) string {
	return fmt.Sprintf("gen:session:%s:%s", userID, sessionID)
}

func (c *SessionCache) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*generation.SessionView, bool, error) {
	raw, err := c.rdb.Get(ctx, sessionKey(userID, sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v generation.SessionView
	if err := json.Unmarshal(raw, &v); err != nil {
		// corrupt entry; drop it and fall back to the database
		_ = c.rdb.Del(ctx, sessionKey(userID, sessionID)).Err()
		return nil, false, nil
	}
	return &v, true, nil
}

// SetSession ignores non-terminal views.
func (c *SessionCache) SetSession(ctx context.Context, v *generation.SessionView) error {
	if v == nil || !v.Status.Terminal() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, sessionKey(v.UserID, v.ID), raw, c.ttl).Err()
}
