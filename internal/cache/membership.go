package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codearena/realtime/internal/database"
)

const (
	membershipKeyPrefix = "team:members:"
	redisOpTimeout      = time.Second
)

// DefaultMembershipTTL bounds how stale a cached membership snapshot may be.
// A removed member stops receiving fan-out at most this long after removal.
const DefaultMembershipTTL = 5 * time.Second

// RedisMembershipCache is a read-through cache for team membership snapshots.
// Redis failures are logged and fall through to the database, so the cache can
// only ever make membership reads faster, never wrong for longer than the TTL.
type RedisMembershipCache struct {
	rdb  *redis.Client
	repo database.Repository
	log  *log.Logger
	ttl  time.Duration
}

func NewRedisMembershipCache(rdb *redis.Client, repo database.Repository, logger *log.Logger, ttl time.Duration) *RedisMembershipCache {
	if ttl <= 0 {
		ttl = DefaultMembershipTTL
	}

	return &RedisMembershipCache{
		rdb:  rdb,
		repo: repo,
		log:  logger,
		ttl:  ttl,
	}
}

func membershipKey(teamId int) string {
	return fmt.Sprintf("%s%d", membershipKeyPrefix, teamId)
}

func (c *RedisMembershipCache) GetTeamMembers(teamId int) ([]database.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := membershipKey(teamId)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var members []database.Account
		if err := json.Unmarshal(data, &members); err == nil {
			return members, nil
		}
		c.log.Printf("corrupt cache entry for %q, refreshing", key)
	} else if err != redis.Nil {
		c.log.Printf("redis get %q: %v", key, err)
	}

	members, err := c.repo.GetTeamMembers(teamId)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(members); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Printf("redis set %q: %v", key, err)
		}
	}

	return members, nil
}

func (c *RedisMembershipCache) IsTeamMember(accountId, teamId int) (bool, error) {
	members, err := c.GetTeamMembers(teamId)
	if err != nil {
		return false, err
	}

	for _, m := range members {
		if m.Id == accountId {
			return true, nil
		}
	}

	return false, nil
}
