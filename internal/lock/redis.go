package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL   = 10 * time.Minute
	defaultRetry = 200 * time.Millisecond
	keyPrefix    = "creator_ingest:lock:"
)

// Deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Pushes the expiry out only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis.
// Locks expire after TTL so a crashed holder cannot block a key forever; a
// live holder renews its lock every TTL/3 until it unlocks.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
	TTL    time.Duration
	Retry  time.Duration
}

// NewRedis returns a Locker backed by client.
func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger, TTL: defaultTTL, Retry: defaultRetry}
}

// Connect opens a client for addr and checks it with PING. addr may be a
// redis:// URL or a host:port pair.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	if password != "" {
		opt.Password = password
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := keyPrefix + key

	ticker := time.NewTicker(r.Retry)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, full, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(stop, max(r.TTL/3, time.Millisecond), func() (bool, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := extendScript.Run(ctx, r.client, []string{full}, token, r.TTL.Milliseconds()).Int()
			return n == 1, err
		}, r.logger.With("key", key))
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release even when the caller's context is already cancelled.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := unlockScript.Run(ctx, r.client, []string{full}, token).Err()
			if err != nil && !errors.Is(err, redis.Nil) {
				r.logger.Warn("release lock", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive calls extend every interval until stop is closed or extend
// reports the lock is no longer ours. Errors are logged and retried on the
// next tick.
func keepAlive(stop <-chan struct{}, every time.Duration, extend func() (bool, error), log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		held, err := extend()
		if err != nil {
			log.Warn("extend lock", "error", err)
			continue
		}
		if !held {
			log.Error("lock lost before release")
			return
		}
	}
}
