package walletlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	klog "github.com/certledger/certanchor/internal/log"
)

// Redis lock defaults.
const (
	DefaultLockTTL      = 2 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis locks wallets across processes with SET NX PX. A crashed holder's
// lock expires after TTL.
type Redis struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger zerolog.Logger
}

var _ Locker = (*Redis)(nil)

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL sets how long a lock survives without release.
func WithTTL(d time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = d }
}

// WithPollInterval sets the wait between acquisition attempts.
func WithPollInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.poll = d }
}

// NewRedis creates a distributed locker.
func NewRedis(client goredis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "certanchor:walletlock:",
		ttl:    DefaultLockTTL,
		poll:   DefaultPollInterval,
		logger: klog.WithComponent("walletlock"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewRedisClient creates a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Lock polls until the wallet key is set by us or ctx ends.
func (r *Redis) Lock(ctx context.Context, wallet string) (func(), error) {
	key := r.prefix + wallet
	token := uuid.NewString()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, wallet, ctx.Err())
		case <-timer.C:
		}

		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", wallet, err)
		}
		if ok {
			return r.unlocker(key, token), nil
		}
		timer.Reset(r.poll)
	}
}

func (r *Redis) unlocker(key, token string) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
		switch {
		case err != nil:
			r.logger.Warn().Err(err).Str("key", key).Msg("Wallet lock release failed")
		case n == 0:
			r.logger.Warn().Str("key", key).Msg("Wallet lock expired before release")
		}
	}
}
