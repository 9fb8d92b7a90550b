package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/identity-bot/internal/crypto"
	"github.com/dgellow/identity-bot/internal/log"
	"github.com/dgellow/identity-bot/internal/session"
	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 10

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL bounds how long an untouched session survives; zero keeps it forever
	TTL time.Duration
}

// RedisStore keeps each session as one JSON value. Updates use optimistic
// WATCH/MULTI transactions and retry when another writer got there first.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	codec     codec
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions, encryptor crypto.Encryptor) (*RedisStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Redis", map[string]any{
		"addr": opts.Addr,
		"db":   opts.DB,
	})

	return newRedisStore(client, opts, encryptor), nil
}

func newRedisStore(client redis.UniversalClient, opts RedisOptions, encryptor crypto.Encryptor) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: opts.KeyPrefix,
		ttl:       opts.TTL,
		codec:     codec{encryptor: encryptor},
	}
}

func (s *RedisStore) redisKey(key session.Key) string {
	return s.keyPrefix + "session:" + key.ID()
}

func (s *RedisStore) load(ctx context.Context, get func(context.Context, string) *redis.StringCmd, rkey string) (*session.Session, error) {
	raw, err := get(ctx, rkey).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session from Redis: %w", err)
	}

	var doc sessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s.codec.decodeSession(doc)
}

func (s *RedisStore) Get(ctx context.Context, key session.Key) (*session.Session, error) {
	return s.load(ctx, s.client.Get, s.redisKey(key))
}

// update runs mutate inside a WATCH transaction on the session key
func (s *RedisStore) update(ctx context.Context, key session.Key, mutate func(*session.Session) error) error {
	rkey := s.redisKey(key)

	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx.Get, rkey)
		if err != nil {
			return err
		}
		if err := mutate(sess); err != nil {
			return err
		}

		doc, err := s.codec.encodeSession(key, sess)
		if err != nil {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, data, s.ttl)
			return nil
		})
		return err
	}

	for range redisMaxRetries {
		err := s.client.Watch(ctx, txf, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			log.LogTraceWithFields("storage", "Redis transaction conflict, retrying", map[string]any{
				"key": rkey,
			})
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *RedisStore) Set(ctx context.Context, key session.Key, provider string, data session.ProviderSession) error {
	return s.update(ctx, key, func(sess *session.Session) error {
		sess.SetProvider(provider, data.Clone())
		return nil
	})
}

func (s *RedisStore) UpdateProvider(ctx context.Context, key session.Key, provider string, fn func(*session.ProviderSession) error) error {
	return s.update(ctx, key, func(sess *session.Session) error {
		ps := sess.Provider(provider)
		if err := fn(&ps); err != nil {
			return err
		}
		sess.SetProvider(provider, ps)
		return nil
	})
}

func (s *RedisStore) SetDialog(ctx context.Context, key session.Key, state session.DialogState) error {
	return s.update(ctx, key, func(sess *session.Session) error {
		sess.Dialog = state
		return nil
	})
}

func (s *RedisStore) Delete(ctx context.Context, key session.Key) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
