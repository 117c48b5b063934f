package store

import (
	"context"
	"fmt"
	"strings"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	SQLitePath    string
	BoltPath      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
}

// Open constructs the ThreadStore named by opts.Driver.
func Open(ctx context.Context, opts Options) (ThreadStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return NewSQLite(opts.SQLitePath)
	case DriverMemory:
		return NewMemory(), nil
	case DriverBolt:
		return NewBolt(opts.BoltPath)
	case DriverPostgres, "postgresql":
		return NewPostgres(ctx, opts.DatabaseURL)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
