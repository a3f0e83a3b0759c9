package localstore

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Kind        string
	Dir         string
	Redis       RedisConfig
	PostgresDSN string
}

// Open builds the configured backend. The returned close func releases any
// connection and is never nil.
func Open(ctx context.Context, opts OpenOptions) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", BackendFile:
		b, err := NewFile(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return b, noop, nil
	case BackendMemory:
		return NewMemory(), noop, nil
	case BackendRedis:
		client, err := NewRedisClient(ctx, opts.Redis)
		if err != nil {
			return nil, noop, err
		}
		return NewRedis(client), client.Close, nil
	case BackendPostgres:
		db, err := OpenPostgres(opts.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		b, err := NewPostgres(db)
		if err != nil {
			return nil, noop, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, noop, err
		}
		return b, sqlDB.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", opts.Kind)
	}
}
