package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Dilshan221/Cakey-sub000/internal/repositories"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
	defaultTxOp       = "transaction"
)

// TxFunc is executed within a Firestore transaction.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	op       string
	attempts int
	timeout  time.Duration
}

// WithTxOp names the repository operation reported by errors the transaction returns.
func WithTxOp(op string) TxOption {
	return func(cfg *txConfig) {
		if op != "" {
			cfg.op = op
		}
	}
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout caps the transaction below any longer caller deadline.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client. Contention that
// outlives the retries surfaces as a revision conflict.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	cfg := txConfig{op: defaultTxOp, attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if client == nil {
		return WrapError(cfg.op, errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError(cfg.op, errors.New("firestore: transaction function is nil"))
	}

	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	return WrapError(cfg.op, client.RunTransaction(ctx, fn, firestore.MaxAttempts(cfg.attempts)))
}

// Claim reserves Key for one order by creating Ref with Data. The document's existence is the
// claim; a second writer for the same key gets a conflict of Kind.
type Claim struct {
	Ref  *firestore.DocumentRef
	Kind repositories.ConflictKind
	Key  string
	Data any
}

// CreateClaims writes every claim in tx, or none when any key is already taken. Firestore
// requires all reads before the first write, so every claim is checked before any is created.
// Nil refs are skipped.
func CreateClaims(tx *firestore.Transaction, op string, claims ...Claim) error {
	for _, claim := range claims {
		if claim.Ref == nil {
			continue
		}
		_, err := tx.Get(claim.Ref)
		switch status.Code(err) {
		case codes.NotFound:
		case codes.OK:
			return NewClaimConflict(op, claim.Kind, claim.Key)
		default:
			return err
		}
	}
	for _, claim := range claims {
		if claim.Ref == nil {
			continue
		}
		if err := tx.Create(claim.Ref, claim.Data); err != nil {
			return err
		}
	}
	return nil
}
