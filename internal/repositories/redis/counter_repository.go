package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const keyPrefix = "cakey:counters:"

// nextScript increments a counter atomically, honouring the configuration hash.
// KEYS[1] = counter value key
// KEYS[2] = counter config hash
// ARGV[1] = requested step (0 means use configured step)
var nextScript = goredis.NewScript(`
local cfg = redis.call("HMGET", KEYS[2], "step", "initial", "max")
local step = tonumber(ARGV[1])
if step <= 0 then
    step = tonumber(cfg[1]) or 1
end
if step <= 0 then
    step = 1
end
local current = tonumber(redis.call("GET", KEYS[1]))
if not current then
    current = tonumber(cfg[2]) or 0
end
local nextValue = current + step
local max = tonumber(cfg[3])
if max and nextValue > max then
    return {0, max}
end
redis.call("SET", KEYS[1], nextValue)
return {1, nextValue}
`)

// CounterRepository implements repositories.CounterRepository on Redis.
type CounterRepository struct {
	client goredis.UniversalClient
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewClient opens a Redis client for the counter store.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewCounterRepository wraps an existing client.
func NewCounterRepository(client goredis.UniversalClient) (*CounterRepository, error) {
	if client == nil {
		return nil, errors.New("redis counter repository: client is required")
	}
	return &CounterRepository{client: client}, nil
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, repositories.InvalidCounterInput(counterID, "counter id is required")
	}
	if step < 0 {
		return 0, repositories.InvalidCounterInput(counterID, "step must be non-negative, got %d", step)
	}

	res, err := nextScript.Run(ctx, r.client, []string{valueKey(counterID), configKey(counterID)}, step).Int64Slice()
	if err != nil {
		return 0, repositories.CounterUnavailable(counterID, "redis increment", err)
	}
	if len(res) != 2 {
		return 0, repositories.CounterUnavailable(counterID, "redis increment", fmt.Errorf("unexpected script result %v", res))
	}
	if res[0] == 0 {
		return 0, repositories.CounterExhausted(counterID, res[1])
	}
	return res[1], nil
}

func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return repositories.InvalidCounterInput(counterID, "counter id is required")
	}

	fields := map[string]any{}
	if cfg.Step > 0 {
		fields["step"] = strconv.FormatInt(cfg.Step, 10)
	}
	if cfg.InitialValue != nil {
		fields["initial"] = strconv.FormatInt(*cfg.InitialValue, 10)
	}
	if cfg.MaxValue != nil {
		fields["max"] = strconv.FormatInt(*cfg.MaxValue, 10)
	}
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, configKey(counterID), fields).Err(); err != nil {
		return repositories.CounterUnavailable(counterID, "redis configure", err)
	}
	return nil
}

// Ping reports whether the server answers.
func (r *CounterRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func valueKey(id string) string  { return keyPrefix + id }
func configKey(id string) string { return keyPrefix + id + ":config" }
