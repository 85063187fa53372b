// Package valkey provides a Valkey-backed storage backend suitable for
// multi-instance deployments. Atomic consume and get-and-delete are
// implemented with Lua scripts so concurrent callers cannot both
// succeed.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/oidcd/oidcd/storage"
)

const (
	// DefaultKeyPrefix is prepended to every key.
	DefaultKeyPrefix = "oidcd:"

	connectionVerifyTimeout = 5 * time.Second
)

// luaConsume stamps the record envelope with a consumption timestamp in
// place, keeping the record's TTL. Only one concurrent caller succeeds.
//
// KEYS[1] = record key
// ARGV[1] = consumption time as Unix seconds
const luaConsume = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local env = cjson.decode(data)
if env.consumed then
    return 'CONSUMED'
end

env.consumed = tonumber(ARGV[1])
redis.call('SET', KEYS[1], cjson.encode(env), 'KEEPTTL')

return 'OK'
`

// luaAppend pushes a member onto a list and extends the list's expiry to
// at least the given TTL. A fresh list always receives the TTL; an
// existing list's expiry is only ever extended, never shortened.
//
// KEYS[1] = list key
// ARGV[1] = member
// ARGV[2] = TTL in milliseconds, 0 for none
const luaAppend = `
local len = redis.call('RPUSH', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
    local current = redis.call('PTTL', KEYS[1])
    if len == 1 or (current >= 0 and current < ttl) then
        redis.call('PEXPIRE', KEYS[1], ttl)
    end
end
return len
`

// Config holds connection options for the Valkey backend.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for authentication.
	Password string

	// DB is the optional database number.
	DB int

	// KeyPrefix is prepended to every key (default "oidcd:").
	KeyPrefix string

	// TLS is the optional TLS configuration.
	TLS *tls.Config

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Backend is a Valkey-backed storage backend.
type Backend struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ storage.Backend = (*Backend)(nil)

// New connects to Valkey and verifies the connection with a ping.
func New(cfg Config) (*Backend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("connected to valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Backend{client: client, prefix: prefix, logger: logger}, nil
}

// Close closes the client connection.
func (b *Backend) Close() {
	b.client.Close()
}

func (b *Backend) key(key string) string {
	return b.prefix + key
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Do(ctx, b.client.B().Get().Key(b.key(key)).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return data, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var cmd valkeygo.Completed
	if ttl > 0 {
		cmd = b.client.B().Set().Key(b.key(key)).Value(string(value)).PxMilliseconds(ttl.Milliseconds()).Build()
	} else {
		cmd = b.client.B().Set().Key(b.key(key)).Value(string(value)).Build()
	}
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Do(ctx, b.client.B().Del().Key(b.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (b *Backend) GetDel(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Do(ctx, b.client.B().Getdel().Key(b.key(key)).Build()).AsBytes()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get and delete record: %w", err)
	}
	return data, nil
}

func (b *Backend) Append(ctx context.Context, key, member string, ttl time.Duration) error {
	err := b.client.Do(ctx,
		b.client.B().Eval().Script(luaAppend).
			Numkeys(1).
			Key(b.key(key)).
			Arg(member, strconv.FormatInt(ttl.Milliseconds(), 10)).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to append list member: %w", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, key string) ([]string, error) {
	members, err := b.client.Do(ctx,
		b.client.B().Lrange().Key(b.key(key)).Start(0).Stop(-1).Build(),
	).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	if len(members) == 0 {
		return nil, storage.ErrNotFound
	}
	return members, nil
}

func (b *Backend) Consume(ctx context.Context, key string, at time.Time) error {
	result, err := b.client.Do(ctx,
		b.client.B().Eval().Script(luaConsume).
			Numkeys(1).
			Key(b.key(key)).
			Arg(strconv.FormatInt(at.Unix(), 10)).
			Build(),
	).ToString()
	if err != nil {
		return fmt.Errorf("failed to consume record: %w", err)
	}

	switch result {
	case "NOT_FOUND":
		return storage.ErrNotFound
	case "CONSUMED":
		return storage.ErrConsumed
	}
	return nil
}
