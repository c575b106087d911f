package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// CounterRepository keeps sequences in process memory. Values reset on restart.
type CounterRepository struct {
	mu      sync.Mutex
	values  map[string]int64
	configs map[string]repositories.CounterConfig
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository returns an empty counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{
		values:  make(map[string]int64),
		configs: make(map[string]repositories.CounterConfig),
	}
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, repositories.InvalidCounterInput(counterID, "counter id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cfg := r.configs[counterID]
	if step <= 0 {
		step = cfg.Step
	}
	if step <= 0 {
		step = 1
	}
	current, ok := r.values[counterID]
	if !ok && cfg.InitialValue != nil {
		current = *cfg.InitialValue
	}
	next := current + step
	if cfg.MaxValue != nil && next > *cfg.MaxValue {
		return 0, repositories.CounterExhausted(counterID, *cfg.MaxValue)
	}
	r.values[counterID] = next
	return next, nil
}

func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return repositories.InvalidCounterInput(counterID, "counter id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[counterID] = cfg
	return nil
}
