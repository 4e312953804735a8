package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/tokengate/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "tokengate:"

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second
)

// luaSetValues writes KEYS[i] = ARGV[i] for every key, deleting keys whose
// value is empty. Scripts run atomically on the server.
const luaSetValues = `
for i, key in ipairs(KEYS) do
  if ARGV[i] == '' then
    redis.call('DEL', key)
  else
    redis.call('SET', key, ARGV[i])
  end
end
return 1
`

// luaCompareAndSwap compares KEYS[1] with ARGV[1] (a missing key reads as empty)
// and, on a match, writes KEYS[i] = ARGV[i] for i >= 2.
const luaCompareAndSwap = `
local current = redis.call('GET', KEYS[1])
if not current then
  current = ''
end
if current ~= ARGV[1] then
  return 0
end
for i = 2, #KEYS do
  if ARGV[i] == '' then
    redis.call('DEL', KEYS[i])
  else
    redis.call('SET', KEYS[i], ARGV[i])
  end
end
return 1
`

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "tokengate:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed storage.Backend for clients that share a session
// across hosts.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface check
var _ storage.Backend = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
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

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
	return nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get returns the values of the keys that exist, with a single MGET.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	if err := storage.ValidateKeys(keys...); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	msgs, err := s.client.Do(ctx, s.client.B().Mget().Key(prefixed...).Build()).ToArray()
	if err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	for i, msg := range msgs {
		v, err := msg.ToString()
		if err != nil {
			if isNilError(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read value: %w", err)
		}
		out[keys[i]] = v
	}
	return out, nil
}

// Set writes all values atomically. Empty values delete.
func (s *Store) Set(ctx context.Context, values map[string]string) error {
	if err := storage.ValidateValues(values); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	keys, args := s.split(values)
	err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaSetValues).
			Numkeys(int64(len(keys))).
			Key(keys...).
			Arg(args...).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to set values: %w", err)
	}
	return nil
}

// Delete removes the keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := storage.ValidateKeys(keys...); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(prefixed...).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// CompareAndSwap runs the guard comparison and the writes in one Lua script.
func (s *Store) CompareAndSwap(ctx context.Context, guardKey, expected string, values map[string]string) (bool, error) {
	if err := storage.ValidateKeys(guardKey); err != nil {
		return false, err
	}
	if err := storage.ValidateValues(values); err != nil {
		return false, err
	}

	keys, args := s.split(values)
	keys = append([]string{s.key(guardKey)}, keys...)
	args = append([]string{expected}, args...)

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaCompareAndSwap).
			Numkeys(int64(len(keys))).
			Key(keys...).
			Arg(args...).
			Build(),
	).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to execute compare-and-swap: %w", err)
	}

	if result != 1 {
		s.logger.Debug("Compare-and-swap guard mismatch", "key", guardKey)
		return false, nil
	}
	return true, nil
}

// split returns prefixed keys and their values in matching order.
func (s *Store) split(values map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(values))
	args := make([]string, 0, len(values))
	for k, v := range values {
		keys = append(keys, s.key(k))
		args = append(args, v)
	}
	return keys, args
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
