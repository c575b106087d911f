package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/httpx"
	"github.com/Dilshan221/Cakey-sub000/internal/platform/requestctx"
)

const intakeWindow = time.Minute

// intakeAction separates pricing lookups from order-creating calls so a storefront re-quoting
// a cart cannot use up the budget needed to place the order.
type intakeAction string

const (
	intakeQuote intakeAction = "quote"
	intakePlace intakeAction = "place"
)

// intakeLimiter meters anonymous order intake with a fixed window per bucket.
type intakeLimiter struct {
	budget    int
	window    time.Duration
	clock     func() time.Time
	mu        sync.Mutex
	buckets   map[string]intakeBucket
	nextSweep time.Time
}

type intakeBucket struct {
	used  int
	reset time.Time
}

func newIntakeLimiter(perWindow int, window time.Duration, clock func() time.Time) *intakeLimiter {
	if perWindow <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &intakeLimiter{
		budget:  perWindow,
		window:  window,
		clock:   clock,
		buckets: make(map[string]intakeBucket),
	}
}

// take spends one request from key's bucket. When the bucket is empty it reports how long
// until the window resets.
func (l *intakeLimiter) take(key string) (bool, time.Duration) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !now.Before(l.nextSweep) {
		for k, b := range l.buckets {
			if !now.Before(b.reset) {
				delete(l.buckets, k)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	bucket, ok := l.buckets[key]
	if !ok || !now.Before(bucket.reset) {
		bucket = intakeBucket{reset: now.Add(l.window)}
	}
	if bucket.used >= l.budget {
		return false, bucket.reset.Sub(now)
	}
	bucket.used++
	l.buckets[key] = bucket
	return true, 0
}

// guard throttles one intake action. Staff callers are never throttled; signed-in customers
// are metered by uid and everyone else by client IP.
func (l *intakeLimiter) guard(action intakeAction) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, signedIn := requestctx.ActorFrom(r.Context())
			if signedIn && actor.Staff {
				next.ServeHTTP(w, r)
				return
			}
			client := "ip:" + clientIP(r)
			if signedIn && actor.UID != "" {
				client = "uid:" + actor.UID
			}
			if ok, wait := l.take(string(action) + "|" + client); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many order requests, try again shortly", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host = strings.TrimSpace(host); host == "" {
		return "unknown"
	}
	return host
}
