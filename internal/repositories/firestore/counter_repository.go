package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out order-code sequence values from a counter document updated
// inside a Firestore transaction, so concurrent checkouts never observe the same value.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider, clock func() time.Time) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		clock:    clock,
	}, nil
}

// Next increments counterID by step (or its configured step when step is zero).
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.InvalidCounterInput(counterID, "counter id is required")
	}
	if step < 0 {
		return 0, repositories.InvalidCounterInput(id, "step must be non-negative, got %d", step)
	}

	now := r.clock().UTC()
	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		var doc counterDocument
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			if err := snapshot.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore counters decode %s: %w", id, err)
			}
		case codes.NotFound:
		default:
			return err
		}

		doc, err = advanceCounter(id, doc, step)
		if err != nil {
			return err
		}
		doc.UpdatedAt = now
		next = doc.CurrentValue
		return tx.Set(ref, doc)
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

func advanceCounter(id string, doc counterDocument, step int64) (counterDocument, error) {
	increment := step
	if increment <= 0 {
		increment = doc.Step
	}
	if increment <= 0 {
		increment = 1
	}
	value := doc.CurrentValue + increment
	if doc.MaxValue != nil && value > *doc.MaxValue {
		return doc, repositories.CounterExhausted(id, *doc.MaxValue)
	}
	doc.CurrentValue = value
	if doc.Step <= 0 {
		doc.Step = increment
	}
	return doc, nil
}

// Configure merges step, bounds or a starting value into the counter document. Setting
// InitialValue on a live counter rewinds it; callers only do this when seeding a new store.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.InvalidCounterInput(counterID, "counter id is required")
	}

	payload := map[string]any{"updatedAt": r.clock().UTC()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
