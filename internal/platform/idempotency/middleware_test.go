package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/requestctx"
)

var fixedTime = time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC)

func orderIntake(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Location", "/orders/ORD0001")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"code":"ORD0001"}`))
	})
}

func postOrder(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req
}

func errorKind(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	kind, _ := payload["error"].(string)
	return kind
}

func TestMiddlewareReplaysCompletedOrder(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(orderIntake(&calls, http.StatusCreated))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postOrder("key-1", `{"quantity":2}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postOrder("key-1", `{"quantity":2}`))

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body %q differs from %q", second.Body.String(), first.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if second.Header().Get("Location") != "/orders/ORD0001" {
		t.Fatalf("expected stored headers to be replayed, got %v", second.Header())
	}
	if first.Header().Get(ReplayHeader) != "" {
		t.Fatalf("first response must not be marked as replay")
	}
}

func TestMiddlewareRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(orderIntake(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), postOrder("key-1", `{"quantity":2}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postOrder("key-1", `{"quantity":3}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if kind := errorKind(t, rr.Body.Bytes()); kind != "idempotency_key_conflict" {
		t.Fatalf("unexpected error kind %q", kind)
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
}

func TestMiddlewarePassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(orderIntake(&calls, http.StatusCreated))

	handler.ServeHTTP(httptest.NewRecorder(), postOrder("", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), postOrder("", `{}`))

	if calls != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", calls)
	}
	if store.Len() != 0 {
		t.Fatalf("expected no stored keys, got %d", store.Len())
	}
}

func TestMiddlewareRequiredKey(t *testing.T) {
	var calls int
	handler := Middleware(NewMemoryStore(), WithRequired())(orderIntake(&calls, http.StatusCreated))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, postOrder("", `{}`))

	if rr.Code != http.StatusBadRequest || calls != 0 {
		t.Fatalf("expected 400 without calling handler, got %d (calls=%d)", rr.Code, calls)
	}
	if kind := errorKind(t, rr.Body.Bytes()); kind != "idempotency_key_required" {
		t.Fatalf("unexpected error kind %q", kind)
	}
}

func TestMiddlewareDoesNotCacheServerErrors(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(orderIntake(&calls, http.StatusInternalServerError))

	handler.ServeHTTP(httptest.NewRecorder(), postOrder("key-1", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), postOrder("key-1", `{}`))

	if calls != 2 {
		t.Fatalf("expected retry after 500 to reach handler, got %d calls", calls)
	}
}

func TestMiddlewareScopesKeysPerActor(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(orderIntake(&calls, http.StatusCreated))

	for _, uid := range []string{"staff-1", "staff-2"} {
		req := postOrder("shared", `{}`)
		req = req.WithContext(requestctx.WithActor(req.Context(), requestctx.Actor{UID: uid, Staff: true}))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected separate scopes per actor, got %d calls", calls)
	}
}

func TestMiddlewarePendingKeyConflicts(t *testing.T) {
	store := NewMemoryStore()
	fingerprint := Fingerprint(http.MethodPost, "/orders", []byte(`{}`))
	if _, err := store.Reserve(context.Background(), "anonymous|key-1", fingerprint, time.Now(), time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	var calls int
	rr := httptest.NewRecorder()
	Middleware(store)(orderIntake(&calls, http.StatusCreated)).ServeHTTP(rr, postOrder("key-1", `{}`))

	if rr.Code != http.StatusConflict || calls != 0 {
		t.Fatalf("expected 409 in-progress, got %d (calls=%d)", rr.Code, calls)
	}
	if kind := errorKind(t, rr.Body.Bytes()); kind != "idempotency_in_progress" {
		t.Fatalf("unexpected error kind %q", kind)
	}
}

type failingStore struct {
	*MemoryStore
	reserveErr error
}

func (s failingStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if s.reserveErr != nil {
		return Reservation{}, s.reserveErr
	}
	return s.MemoryStore.Reserve(ctx, key, fingerprint, now, ttl)
}

func TestMiddlewareStoreFailureIsLogged(t *testing.T) {
	var events []string
	logger := func(_ context.Context, event string, _ map[string]any) { events = append(events, event) }
	store := failingStore{MemoryStore: NewMemoryStore(), reserveErr: errors.New("firestore down")}
	var calls int
	rr := httptest.NewRecorder()
	Middleware(store, WithLogger(logger))(orderIntake(&calls, http.StatusCreated)).ServeHTTP(rr, postOrder("key-1", `{}`))

	if rr.Code != http.StatusInternalServerError || calls != 0 {
		t.Fatalf("expected 500 without handler call, got %d (calls=%d)", rr.Code, calls)
	}
	if len(events) != 1 || events[0] != "idempotency.reserve.failed" {
		t.Fatalf("unexpected log events %v", events)
	}
}

func TestMemoryStoreCleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		if err := store.SaveResponse(ctx, key, "fp", Response{Status: http.StatusCreated}, fixedTime, time.Minute); err != nil {
			t.Fatalf("save %s: %v", key, err)
		}
	}
	if err := store.SaveResponse(ctx, "fresh", "fp", Response{Status: http.StatusCreated}, fixedTime.Add(time.Hour), time.Hour); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 2)
	if err != nil || removed != 2 {
		t.Fatalf("expected 2 removed with limit, got %d (err=%v)", removed, err)
	}
	removed, _ = store.CleanupExpired(ctx, fixedTime.Add(2*time.Minute), 0)
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("expected only the fresh key to remain, removed=%d len=%d", removed, store.Len())
	}
}

func TestMemoryStoreExpiredKeyIsReusable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.SaveResponse(ctx, "k", "fp-1", Response{Status: http.StatusCreated}, fixedTime, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	res, err := store.Reserve(ctx, "k", "fp-2", fixedTime.Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v", res.State)
	}
}
