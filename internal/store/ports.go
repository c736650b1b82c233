// Package store defines the ports between the ledger services and the
// persistence adapters, plus shared error values. Concrete adapters live in
// the subpackages (memory, sqlite, sheets, resilient).
package store

import (
	"context"
	"errors"

	"cozyfin/internal/core"
)

// ErrUnavailable is returned by adapters when the backing store cannot be
// reached after retries. Callers treat it as a signal to degrade rather
// than fail the request when cached data exists.
var ErrUnavailable = errors.New("store unavailable")

// Ports for outbound adapters.
type (
	TransactionWriter interface {
		// Append stores a new ledger entry and returns its assigned ID. The
		// entry's ID field may be empty on the way in.
		Append(ctx context.Context, tx core.Transaction) (id string, err error)
	}

	TransactionDeleter interface {
		// Delete removes exactly one entry by ID. Deleting an unknown ID
		// returns core.ErrNotFound.
		Delete(ctx context.Context, id string) error
	}

	TransactionLister interface {
		// List returns entries matching the filter, newest first.
		List(ctx context.Context, f core.Filter) (core.Ledger, error)
	}

	TransactionGetter interface {
		Get(ctx context.Context, id string) (core.Transaction, error)
	}

	ProfileStore interface {
		Profile(ctx context.Context, user core.UserID) (core.Profile, error)
		SaveProfile(ctx context.Context, p core.Profile) error
		Profiles(ctx context.Context) ([]core.Profile, error)
	}

	GoalStore interface {
		Goal(ctx context.Context) (core.Goal, error)
		SaveGoal(ctx context.Context, g core.Goal) error
	}

	// ReceiptStore keeps uploaded receipt images keyed by transaction ID.
	ReceiptStore interface {
		PutReceipt(ctx context.Context, txID string, contentType string, data []byte) error
		GetReceipt(ctx context.Context, txID string) (contentType string, data []byte, err error)
	}
)

// Store is the full persistence surface the HTTP layer is wired against.
type Store interface {
	TransactionWriter
	TransactionDeleter
	TransactionLister
	TransactionGetter
	ProfileStore
	GoalStore
	ReceiptStore
	Close() error
}

// PendingTx is one entry awaiting mirroring to the remote sheet.
type PendingTx struct {
	ID      string
	Deleted bool
}

// SyncTracker is the bookkeeping surface the background worker uses to find
// entries that still need mirroring and to record the outcome.
type SyncTracker interface {
	PendingSync(ctx context.Context, limit int) ([]PendingTx, error)
	Get(ctx context.Context, id string) (core.Transaction, error)
	// IsPending reports whether the entry still awaits mirroring. Queue
	// deliveries race the periodic scan; the worker checks before writing so
	// an entry reaches the mirror at most once.
	IsPending(ctx context.Context, id string) (bool, error)
	MarkSynced(ctx context.Context, id string, remoteRef string) error
	MarkSyncError(ctx context.Context, id string) error
}
