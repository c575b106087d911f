package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Dilshan221/Cakey-sub000/internal/platform/firestore"
)

const (
	keysCollection      = "idempotencyKeys"
	defaultMaxAttempts  = 5
	defaultCleanupLimit = 100
)

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders,omitempty"`
	ResponseBody    []byte              `firestore:"responseBody,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func documentFromRecord(r Record) keyDocument {
	return keyDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d keyDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}

// FirestoreStore keeps keys next to the orders they protect.
type FirestoreStore struct {
	provider    *pfirestore.Provider
	keys        *pfirestore.BaseRepository[keyDocument]
	maxAttempts int
}

var _ Store = (*FirestoreStore)(nil)

// FirestoreOption customises the store.
type FirestoreOption func(*FirestoreStore)

// WithMaxAttempts bounds transaction retries.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	store := &FirestoreStore{
		provider:    provider,
		keys:        pfirestore.NewBaseRepository[keyDocument](provider, keysCollection),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.keys.DocumentRef(ctx, documentID(key))
	if err != nil {
		return Reservation{}, err
	}

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := readKey(tx, ref)
		if err != nil {
			return err
		}
		if !found || existing.expired(now) {
			record := pendingRecord(key, fingerprint, now, ttl)
			if err := tx.Set(ref, documentFromRecord(record)); err != nil {
				return err
			}
			result = Reservation{State: ReservationStateNew, Record: record}
			return nil
		}
		if existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		state := ReservationStatePending
		if existing.Status == StatusCompleted {
			state = ReservationStateCompleted
		}
		result = Reservation{State: state, Record: existing}
		return nil
	}, pfirestore.WithTxAttempts(s.maxAttempts), pfirestore.WithTxOp("idempotency.reserve"))
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			return Reservation{}, err
		}
		return Reservation{}, pfirestore.WrapError("idempotency.reserve", err)
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.keys.DocumentRef(ctx, documentID(key))
	if err != nil {
		return err
	}

	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record, found, err := readKey(tx, ref)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = pendingRecord(key, fingerprint, now, ttl)
		}
		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = sanitizeHeaders(resp.Headers)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		record.UpdatedAt = now
		record.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, documentFromRecord(record))
	}, pfirestore.WithTxAttempts(s.maxAttempts), pfirestore.WithTxOp("idempotency.save"))
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			return err
		}
		return pfirestore.WrapError("idempotency.save", err)
	}
	return nil
}

func (s *FirestoreStore) Release(ctx context.Context, key, fingerprint string) error {
	ref, err := s.keys.DocumentRef(ctx, documentID(key))
	if err != nil {
		return err
	}
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record, found, err := readKey(tx, ref)
		if err != nil || !found || record.Fingerprint != fingerprint {
			return err
		}
		return tx.Delete(ref)
	}, pfirestore.WithTxAttempts(s.maxAttempts), pfirestore.WithTxOp("idempotency.release"))
	if err != nil {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// CleanupExpired deletes up to limit keys whose expiry has passed.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	docs, err := s.keys.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	bw := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		ref, err := s.keys.DocumentRef(ctx, doc.ID)
		if err != nil {
			bw.End()
			return 0, err
		}
		job, err := bw.Delete(ref)
		if err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	removed := 0
	var firstErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	if firstErr != nil {
		return removed, pfirestore.WrapError("idempotency.cleanup", fmt.Errorf("%d of %d deletes failed: %w", len(jobs)-removed, len(jobs), firstErr))
	}
	return removed, nil
}

func readKey(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var doc keyDocument
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency key %s: %w", ref.ID, err)
	}
	return doc.record(), true, nil
}
