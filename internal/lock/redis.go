package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// Options configures RedLock acquisition.
type Options struct {
	// Expiry bounds how long a crashed holder can block a key.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// DefaultOptions suits request-scoped transitions that finish well under a second.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      20,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Redis is a distributed Locker backed by redsync.
type Redis struct {
	rs   *redsync.Redsync
	opts Options
	log  *slog.Logger
}

var _ Locker = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, opts Options, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	def := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = def.RetryDelay
	}
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		log:  log,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" {
		return ErrEmptyKey
	}
	mutex := r.rs.NewMutex(key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}
	defer func() {
		// Unlock even if the request context was cancelled mid-flight.
		ok, err := mutex.UnlockContext(context.WithoutCancel(ctx))
		if err != nil {
			r.log.Error("failed to release lock", "key", key, "error", err)
			return
		}
		if !ok {
			r.log.Warn("lock was not held or already expired", "key", key)
		}
	}()
	return fn(ctx)
}
