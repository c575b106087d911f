package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

// Identifier strategies.
const (
	// CodeStrategySequence draws codes from an atomically incremented counter.
	CodeStrategySequence = "sequence"
	// CodeStrategyCount derives the next code from the number of stored orders, never going
	// below the newest stored code. Two concurrent
	// commits can observe the same count; the store's code uniqueness check turns the second
	// insert into a conflict that the checkout coordinator retries once.
	CodeStrategyCount = "count"
)

const (
	defaultCodePrefix  = "ORD"
	defaultCodeWidth   = 4
	defaultCounterName = "orders"
)

// CodeAssigner hands out human-readable order codes.
type CodeAssigner interface {
	Assign(ctx context.Context) (string, error)
}

// CodeAssignerDeps bundles collaborators for the identifier assigner.
type CodeAssignerDeps struct {
	Strategy    string
	Prefix      string
	Width       int
	CounterName string
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type codeAssigner struct {
	strategy    string
	prefix      string
	width       int
	counterName string
	orders      repositories.OrderRepository
	counters    repositories.CounterRepository
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)

	fallbackMu   sync.Mutex
	lastFallback int64
}

// NewCodeAssigner validates deps and returns a CodeAssigner for the selected strategy.
func NewCodeAssigner(deps CodeAssignerDeps) (CodeAssigner, error) {
	strategy := strings.ToLower(strings.TrimSpace(deps.Strategy))
	if strategy == "" {
		strategy = CodeStrategySequence
	}
	switch strategy {
	case CodeStrategySequence:
		if deps.Counters == nil {
			return nil, errors.New("code assigner: counter repository is required")
		}
	case CodeStrategyCount:
		if deps.Orders == nil {
			return nil, errors.New("code assigner: order repository is required")
		}
	default:
		return nil, fmt.Errorf("code assigner: unknown strategy %q", deps.Strategy)
	}

	prefix := strings.TrimSpace(deps.Prefix)
	if prefix == "" {
		prefix = defaultCodePrefix
	}
	width := deps.Width
	if width <= 0 {
		width = defaultCodeWidth
	}
	counterName := strings.TrimSpace(deps.CounterName)
	if counterName == "" {
		counterName = defaultCounterName
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &codeAssigner{
		strategy:    strategy,
		prefix:      prefix,
		width:       width,
		counterName: counterName,
		orders:      deps.Orders,
		counters:    deps.Counters,
		clock:       clock,
		logger:      logger,
	}, nil
}

// Assign returns the next code. When the backing store cannot be reached it degrades to a
// timestamp-derived code instead of failing the checkout. An exhausted sequence is a conflict.
func (a *codeAssigner) Assign(ctx context.Context) (string, error) {
	var (
		seq int64
		err error
	)
	switch a.strategy {
	case CodeStrategyCount:
		seq, err = a.nextFromStore(ctx)
	default:
		seq, err = a.counters.Next(ctx, a.counterName, 1)
	}
	if err == nil {
		return FormatOrderCode(a.prefix, a.width, seq), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	var seqErr *repositories.CounterError
	if errors.As(err, &seqErr) {
		switch seqErr.Code {
		case repositories.CounterErrorExhausted:
			return "", fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repositories.CounterErrorInvalidInput:
			return "", fmt.Errorf("code assigner: %w", err)
		}
	}

	code := a.fallbackCode()
	a.logger(ctx, "order.code.fallback", map[string]any{
		"strategy": a.strategy,
		"code":     code,
		"error":    err.Error(),
	})
	return code, nil
}

// nextFromStore derives count+1, skipping past the newest stored code. Hard deletes shrink the
// count below the highest issued sequence, and count+1 alone would keep naming a live code.
func (a *codeAssigner) nextFromStore(ctx context.Context) (int64, error) {
	count, err := a.orders.Count(ctx)
	if err != nil {
		return 0, err
	}
	latest, err := a.orders.List(ctx, repositories.OrderListFilter{Limit: 1})
	if err != nil {
		return 0, err
	}
	if len(latest) > 0 {
		if seq, ok := ParseOrderCode(a.prefix, latest[0].Code); ok && seq > count {
			count = seq
		}
	}
	return count + 1, nil
}

// fallbackCode encodes a nanosecond timestamp that never repeats within the process.
func (a *codeAssigner) fallbackCode() string {
	a.fallbackMu.Lock()
	n := a.clock().UnixNano()
	if n <= a.lastFallback {
		n = a.lastFallback + 1
	}
	a.lastFallback = n
	a.fallbackMu.Unlock()
	return a.prefix + "-T" + strings.ToUpper(strconv.FormatInt(n, 36))
}

// FormatOrderCode renders prefix followed by seq zero-padded to width digits.
func FormatOrderCode(prefix string, width int, seq int64) string {
	return fmt.Sprintf("%s%0*d", prefix, width, seq)
}

// ParseOrderCode extracts the sequence from a code produced by FormatOrderCode. Fallback codes
// and codes with another prefix report false.
func ParseOrderCode(prefix, code string) (int64, bool) {
	digits, ok := strings.CutPrefix(code, prefix)
	if !ok || digits == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}
