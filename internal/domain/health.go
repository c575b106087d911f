package domain

import "time"

// Readiness status values.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// DependencyHealth is the outcome of a single dependency check.
type DependencyHealth struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// ReadinessReport aggregates dependency checks with build metadata.
type ReadinessReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
