package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docbot/internal/config"
	"docbot/internal/logging"
	"docbot/internal/services"
)

// Record is the persisted conversation state of one sender.
type Record struct {
	TaskID       string          `json:"task_id"`
	TaskDir      string          `json:"task_dir"`
	WorkflowType string          `json:"workflow_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Store persists one Record per sender.
type Store interface {
	Save(ctx context.Context, sender string, rec Record) error
	// Load reports found=false with a nil error when no state exists.
	Load(ctx context.Context, sender string) (Record, bool, error)
	Delete(ctx context.Context, sender string) (bool, error)
	AllActive(ctx context.Context) (map[string]Record, error)
	Health(ctx context.Context) bool
	Backend() string
	Close() error
}

// ErrCorruptRecord marks a stored record that cannot be decoded. It concerns
// that one sender only; the backend itself is healthy.
var ErrCorruptRecord = errors.New("unreadable state record")

const keySegment = "workflow:"

// Key returns the storage key for sender.
func Key(prefix, sender string) string {
	return prefix + keySegment + sender
}

// KeyPattern returns the SCAN pattern matching every state key under prefix.
// Glob metacharacters in the prefix are escaped.
func KeyPattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix + keySegment {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}

func senderFromKey(prefix, key string) string {
	return strings.TrimPrefix(key, prefix+keySegment)
}

func encode(op, sender string, rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, &services.StateManagementError{Op: op, Key: sender, Err: fmt.Errorf("encode state: %w", err)}
	}
	return data, nil
}

func decode(op, sender string, data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, &services.StateManagementError{Op: op, Key: sender, Err: fmt.Errorf("%w: %w", ErrCorruptRecord, err)}
	}
	return rec, nil
}

// Open selects the backend once at startup. Redis is used when configured and
// reachable; otherwise an in-memory store is returned and the degradation is
// logged.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) Store {
	logger = logging.NewComponentLogger(logger, "statestore")
	ttl := cfg.StateTTL()
	if cfg.State.Backend != "redis" {
		logger.Info("using in-memory state store", logging.Duration("ttl", ttl))
		return NewMemory(ttl)
	}

	redisStore := NewRedis(RedisOptions{
		Addr:     cfg.State.RedisAddr,
		Password: cfg.State.RedisPassword,
		DB:       cfg.State.RedisDB,
		Prefix:   cfg.State.Prefix,
		TTL:      ttl,
		Timeout:  time.Duration(cfg.State.TimeoutSeconds) * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.State.TimeoutSeconds)*time.Second)
	defer cancel()
	if err := redisStore.Ping(pingCtx); err != nil {
		_ = redisStore.Close()
		logging.WarnWithContext(logger, "redis unreachable; falling back to in-memory state", "state_store_fallback",
			logging.String("redis_addr", cfg.State.RedisAddr),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "start redis or set state.backend = \"memory\""),
			logging.String(logging.FieldImpact, "conversation state is lost on restart"),
		)
		return NewMemory(ttl)
	}
	logger.Info("connected to redis state store",
		logging.String("redis_addr", cfg.State.RedisAddr),
		logging.Int("redis_db", cfg.State.RedisDB),
		logging.Duration("ttl", ttl),
	)
	return redisStore
}
