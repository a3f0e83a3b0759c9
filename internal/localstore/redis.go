package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// MutationChannel is the pub/sub channel carrying Mutation messages.
const MutationChannel = "orderdesk:mutations"

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Redis stores values as plain strings and announces writes on MutationChannel.
type Redis struct {
	client *redis.Client
	origin string
}

// NewRedis wraps a connected client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, origin: uuid.NewString()}
}

// Origin identifies this instance in published mutations.
func (r *Redis) Origin() string {
	return r.origin
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}
	return r.publish(ctx, key)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	return r.publish(ctx, key)
}

func (r *Redis) publish(ctx context.Context, key string) error {
	msg, err := json.Marshal(Mutation{Key: key, Origin: r.origin})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, MutationChannel, msg).Err()
}

// Subscribe listens on MutationChannel and drops this instance's own writes.
func (r *Redis) Subscribe(ctx context.Context) (<-chan Mutation, error) {
	sub := r.client.Subscribe(ctx, MutationChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", MutationChannel, err)
	}

	out := make(chan Mutation, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m Mutation
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					continue
				}
				if m.Origin == r.origin {
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
