// Package cache keeps resolved identities in redis so authenticated requests skip the users table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"taskmanager/internal/model"
	"taskmanager/pkg/circuitbreaker"
	"taskmanager/pkg/metrics"
)

const keyPrefix = "taskmanager:user:"

type cachedUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     *string   `json:"phone"`
	Bio       string    `json:"bio"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserCache is safe to use when nil or built without a client; every call then misses.
type UserCache struct {
	rdb    *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	ttl    time.Duration
	logger *zap.Logger
}

func NewUserCache(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *UserCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cfg := circuitbreaker.DefaultConfig()
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("User cache circuit breaker changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &UserCache{
		rdb:    rdb,
		cb:     circuitbreaker.NewCircuitBreaker(cfg),
		ttl:    ttl,
		logger: logger,
	}
}

func (c *UserCache) enabled() bool {
	return c != nil && c.rdb != nil
}

// Get returns the cached user, or false on a miss or any cache failure.
func (c *UserCache) Get(ctx context.Context, id int64) (*model.User, bool) {
	if !c.enabled() {
		return nil, false
	}

	var data []byte
	err := c.cb.Execute(func() error {
		var err error
		data, err = c.rdb.Get(ctx, key(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		metrics.RecordUserCache("error")
		c.logger.Debug("User cache read failed", zap.Int64("user_id", id), zap.Error(err))
		return nil, false
	}
	if data == nil {
		metrics.RecordUserCache("miss")
		return nil, false
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		metrics.RecordUserCache("error")
		c.logger.Warn("Corrupt user cache entry", zap.Int64("user_id", id), zap.Error(err))
		return nil, false
	}
	metrics.RecordUserCache("hit")
	return &model.User{
		ID:        cu.ID,
		Username:  cu.Username,
		Email:     cu.Email,
		FirstName: cu.FirstName,
		LastName:  cu.LastName,
		Phone:     cu.Phone,
		Bio:       cu.Bio,
		CreatedAt: cu.CreatedAt,
		UpdatedAt: cu.UpdatedAt,
	}, true
}

// Set caches u without its password hash. Failures are logged and dropped.
func (c *UserCache) Set(ctx context.Context, u *model.User) {
	if !c.enabled() || u == nil {
		return
	}
	data, err := json.Marshal(cachedUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := c.cb.Execute(func() error {
		return c.rdb.Set(ctx, key(u.ID), data, c.ttl).Err()
	}); err != nil {
		c.logger.Debug("User cache write failed", zap.Int64("user_id", u.ID), zap.Error(err))
	}
}

func key(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}
