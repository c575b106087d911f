package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Dilshan221/Cakey-sub000/internal/platform/config"
)

const stripeResource = "projects/cakey/secrets/stripe_api_key/versions/latest"

func newTestFetcher(t *testing.T, client accessClient, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{withClient(client), WithProject("cakey"), WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}
	fetcher, err := NewFetcher(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	return fetcher
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_test_remote\n"
	fetcher := newTestFetcher(t, client)

	for range 2 {
		got, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "sk_test_remote" {
			t.Fatalf("expected trimmed remote secret, got %q", got)
		}
	}
	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected one remote fetch, got %d", calls)
	}
}

func TestResolvePinnedVersion(t *testing.T) {
	client := newFakeSecretClient()
	client.values["projects/cakey/secrets/draft_signing/versions/3"] = "v3"
	fetcher := newTestFetcher(t, client)

	got, err := fetcher.Resolve(context.Background(), "secret://draft_signing?version=3")
	if err != nil || got != "v3" {
		t.Fatalf("expected pinned version, got %q (err=%v)", got, err)
	}
}

func TestResolveFallsBackWhenSecretManagerDenied(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nsecret://stripe_api_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.PermissionDenied, "denied")
	fetcher := newTestFetcher(t, client, WithFallbackFile(path))

	got, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "sk_local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("stripe_api_key=sk_local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	fetcher := newTestFetcher(t, newFakeSecretClient(), WithFallbackFile(path))

	if _, err := fetcher.Resolve(context.Background(), "secret://stripe_api_key"); err == nil {
		t.Fatal("expected NotFound to surface as an error")
	}
}

func TestResolveRejectsMalformedReferences(t *testing.T) {
	fetcher := newTestFetcher(t, newFakeSecretClient())
	for _, ref := range []string{"", "sm://x", "secret://", "plain"} {
		if _, err := fetcher.Resolve(context.Background(), ref); err == nil {
			t.Errorf("expected error for %q", ref)
		}
	}
}

func TestFetcherResolvesConfigSecrets(t *testing.T) {
	client := newFakeSecretClient()
	client.values[stripeResource] = "sk_live_from_manager"
	fetcher := newTestFetcher(t, client)

	cfg, err := config.Load(context.Background(),
		config.WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "cakey",
			"API_PSP_STRIPE_API_KEY":  "secret://stripe_api_key",
		}),
		config.WithoutSystemEnv(),
		config.WithEnvFile(""),
		config.WithSecretResolver(fetcher),
	)
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	if cfg.PSP.StripeAPIKey != "sk_live_from_manager" {
		t.Fatalf("expected resolved stripe key, got %q", cfg.PSP.StripeAPIKey)
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
