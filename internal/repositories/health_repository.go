package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/Dilshan221/Cakey-sub000/internal/domain"
)

const defaultCheckTimeout = 1500 * time.Millisecond

// DependencyCheck names a backing service and how to reach it.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// HealthRepository runs dependency checks for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.ReadinessReport, error)
}

// CheckOption customises the check runner.
type CheckOption func(*checkRunner)

// WithCheckTimeout overrides the timeout used by checks that do not set their own.
func WithCheckTimeout(timeout time.Duration) CheckOption {
	return func(r *checkRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithCheckClock injects a clock for tests.
func WithCheckClock(clock func() time.Time) CheckOption {
	return func(r *checkRunner) {
		if clock != nil {
			r.now = clock
		}
	}
}

type checkRunner struct {
	deps    []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewHealthRepository validates checks up front so Collect never fails on configuration.
func NewHealthRepository(deps []DependencyCheck, opts ...CheckOption) (HealthRepository, error) {
	if len(deps) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	seen := make(map[string]struct{}, len(deps))
	for _, p := range deps {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, errors.New("health repository: check name is required")
		}
		if p.Check == nil {
			return nil, fmt.Errorf("health repository: check %s has no func", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("health repository: duplicate check %s", name)
		}
		seen[name] = struct{}{}
	}

	r := &checkRunner{
		deps:    append([]DependencyCheck(nil), deps...),
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Collect runs every check concurrently. A check that times out is an error; any other failure
// degrades the report.
func (r *checkRunner) Collect(ctx context.Context) (domain.ReadinessReport, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make(map[string]domain.DependencyHealth, len(r.deps))
	)
	for _, dep := range r.deps {
		g.Go(func() error {
			result := r.run(ctx, dep)
			mu.Lock()
			results[strings.TrimSpace(dep.Name)] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return domain.ReadinessReport{}, err
	}
	return domain.ReadinessReport{
		Status:      overallStatus(results),
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}

func (r *checkRunner) run(ctx context.Context, dep DependencyCheck) domain.DependencyHealth {
	timeout := dep.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := dep.Check(checkCtx)
	end := r.now()
	if err == nil {
		err = checkCtx.Err()
	}

	result := domain.DependencyHealth{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status, result.Detail = domain.HealthStatusError, "timeout"
	case errors.Is(err, context.Canceled):
		result.Status, result.Detail = domain.HealthStatusError, "cancelled"
	default:
		result.Status, result.Detail = domain.HealthStatusDegraded, err.Error()
	}
	return result
}

func overallStatus(results map[string]domain.DependencyHealth) string {
	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
