package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pollInterval = 250 * time.Millisecond

// extend the lease only while we still own it
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// release only if we still own the lease
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every bridge process pointing at the same
// Redis instance.
type Redis struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

func NewRedis(ctx context.Context, redisURL string, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client, prefix: "bridge:lock:", log: log}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, k, token, ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if ok {
			break
		}

		t := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ErrBusy
		case <-t.C:
		}
	}

	renewCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.renew(renewCtx, k, token, ttl)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done

			// the caller's context may already be done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{k}, token).Err(); err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
			}
		})
	}, nil
}

// renew pushes the expiry of a held lease out to ttl every ttl/3 until ctx
// is done, so a holder stuck in a long flood wait keeps it. A lease that was
// lost is not taken back.
func (r *Redis) renew(ctx context.Context, k, token string, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		n, err := renewScript.Run(ctx, r.client, []string{k}, token, ttl.Milliseconds()).Int()
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			r.log.Warn().Err(err).Str("key", k).Msg("failed to renew lock")
		case n == 0:
			r.log.Error().Str("key", k).Msg("lock lost before release")
			return
		}
	}
}
