// Package quota tracks how many items each session dispatched today.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyTTL = 48 * time.Hour

// reserveScript grants up to ARGV[1] items under the daily cap ARGV[2] and
// moves the counter by the grant only.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
local grant = math.min(tonumber(ARGV[1]), tonumber(ARGV[2]) - used)
if grant <= 0 then
	return 0
end
redis.call('INCRBY', KEYS[1], grant)
redis.call('EXPIRE', KEYS[1], ARGV[3])
return grant
`)

// releaseScript hands back ARGV[1] unused items. The counter never goes
// below zero.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local left = redis.call('DECRBY', KEYS[1], ARGV[1])
if left <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
return left
`)

// ReleaseFunc returns unused items of a reservation to the day it was taken
// from.
type ReleaseFunc func(ctx context.Context, unused int)

type RedisQuota struct {
	client *redis.Client
	log    *zap.Logger
	now    func() time.Time
}

func NewRedisQuota(client *redis.Client, log *zap.Logger) *RedisQuota {
	return &RedisQuota{client: client, log: log, now: time.Now}
}

func (q *RedisQuota) key(sessionID uuid.UUID) string {
	return fmt.Sprintf("quota:%s:%s", sessionID, q.now().UTC().Format("20060102"))
}

// Reserve claims up to n dispatches for the session under dailyCap and
// returns the grant. Check and increment happen in one script, so concurrent
// callers never share the same remaining quota. A dailyCap <= 0 means no cap.
// Redis failures fail open to n.
func (q *RedisQuota) Reserve(ctx context.Context, sessionID uuid.UUID, n, dailyCap int) (int, ReleaseFunc) {
	noop := func(context.Context, int) {}
	if n <= 0 {
		return 0, noop
	}
	if dailyCap <= 0 {
		return n, noop
	}

	key := q.key(sessionID)
	granted, err := reserveScript.Run(ctx, q.client, []string{key}, n, dailyCap, int(keyTTL.Seconds())).Int()
	if err != nil {
		q.log.Warn("quota reserve failed, allowing full request",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return n, noop
	}

	release := func(ctx context.Context, unused int) {
		if unused <= 0 {
			return
		}
		if err := releaseScript.Run(ctx, q.client, []string{key}, min(unused, granted)).Err(); err != nil {
			q.log.Warn("quota release failed",
				zap.String("session_id", sessionID.String()),
				zap.Int("unused", unused),
				zap.Error(err),
			)
		}
	}
	return granted, release
}
