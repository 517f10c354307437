package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"docbot/internal/services"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Timeout  time.Duration
}

// Redis stores records as JSON strings with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis constructs a Redis-backed store. No connection is made until the
// first command.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.Timeout,
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		}),
		prefix: opts.Prefix,
		ttl:    opts.TTL,
	}
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Save(ctx context.Context, sender string, rec Record) error {
	data, err := encode("save", sender, rec)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, Key(r.prefix, sender), data, r.ttl).Err(); err != nil {
		return &services.StateManagementError{Op: "save", Key: sender, Err: err}
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, sender string) (Record, bool, error) {
	// GETEX reads and slides the TTL in one round trip.
	data, err := r.client.GetEx(ctx, Key(r.prefix, sender), r.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, &services.StateManagementError{Op: "load", Key: sender, Err: err}
	}
	rec, err := decode("load", sender, data)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *Redis) Delete(ctx context.Context, sender string) (bool, error) {
	removed, err := r.client.Del(ctx, Key(r.prefix, sender)).Result()
	if err != nil {
		return false, &services.StateManagementError{Op: "delete", Key: sender, Err: err}
	}
	return removed > 0, nil
}

// AllActive enumerates states with SCAN so large keyspaces do not block Redis.
// Records that fail to decode are skipped.
func (r *Redis) AllActive(ctx context.Context) (map[string]Record, error) {
	out := make(map[string]Record)
	iter := r.client.Scan(ctx, 0, KeyPattern(r.prefix), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, &services.StateManagementError{Op: "list", Key: key, Err: err}
		}
		sender := senderFromKey(r.prefix, key)
		rec, err := decode("list", sender, data)
		if err != nil {
			continue
		}
		out[sender] = rec
	}
	if err := iter.Err(); err != nil {
		return nil, &services.StateManagementError{Op: "list", Err: err}
	}
	return out, nil
}

func (r *Redis) Health(ctx context.Context) bool {
	return r.Ping(ctx) == nil
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) Close() error {
	return r.client.Close()
}
