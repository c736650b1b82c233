// Package worker mirrors ledger entries from the local store to the remote
// spreadsheet. It consumes queue messages for low latency and runs a
// periodic pending scan as backup for messages lost while the broker or the
// worker was down.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cozyfin/internal/amqp"
	"cozyfin/internal/core"
	"cozyfin/internal/log"
	"cozyfin/internal/store"
)

// Mirror is the remote spreadsheet surface the worker writes to.
type Mirror interface {
	Append(ctx context.Context, tx core.Transaction) (string, error)
	DeleteByID(ctx context.Context, id string) error
}

// Consumer delivers queued sync messages. Nil-able: without a broker the
// worker falls back to polling alone.
type Consumer interface {
	ConsumeTxSync(ctx context.Context, handler func(*amqp.TxSyncMessage) error) error
}

type Config struct {
	// PollInterval is how often the backup scan runs.
	PollInterval time.Duration

	// BatchSize caps entries mirrored per scan cycle.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
	}
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be positive")
	}
	return nil
}

// Worker drains the pending-sync backlog into the mirror.
type Worker struct {
	tracker  store.SyncTracker
	mirror   Mirror
	consumer Consumer
	config   Config
	logger   *log.Logger
}

func New(tracker store.SyncTracker, mirror Mirror, consumer Consumer, cfg Config, logger *log.Logger) (*Worker, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("worker config: %w", err)
	}
	return &Worker{
		tracker:  tracker,
		mirror:   mirror,
		consumer: consumer,
		config:   cfg,
		logger:   logger.WithComponent(log.ComponentWorker),
	}, nil
}

// Run blocks until ctx is cancelled. A startup scan catches entries left
// pending by a previous crash before the queue and the ticker take over.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "mirror worker started",
		"poll_interval", w.config.PollInterval.String(),
		"batch_size", w.config.BatchSize)

	w.processPending(ctx)

	g, ctx := errgroup.WithContext(ctx)

	if w.consumer != nil {
		g.Go(func() error {
			err := w.consumer.ConsumeTxSync(ctx, func(msg *amqp.TxSyncMessage) error {
				return w.mirrorOne(ctx, store.PendingTx{ID: msg.ID, Deleted: msg.Deleted})
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume sync messages: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				w.processPending(ctx)
			}
		}
	})

	return g.Wait()
}

// processPending mirrors one batch of pending entries.
func (w *Worker) processPending(ctx context.Context) {
	pending, err := w.tracker.PendingSync(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list pending entries",
			log.FieldError, err.Error())
		return
	}
	if len(pending) == 0 {
		return
	}

	w.logger.DebugContext(ctx, "processing pending batch", "count", len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := w.mirrorOne(ctx, p); err != nil {
			w.logger.ErrorContext(ctx, "failed to mirror entry",
				log.FieldTxID, p.ID,
				"deleted", p.Deleted,
				log.FieldError, err.Error())
		}
	}
}

// mirrorOne pushes a single entry to the mirror and records the outcome.
// Returning an error requeues a queued message; poll-driven calls just log.
// The queue and the scan can deliver the same entry twice, so anything no
// longer pending is skipped instead of mirrored again.
func (w *Worker) mirrorOne(ctx context.Context, p store.PendingTx) error {
	pending, err := w.tracker.IsPending(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("sync status %s: %w", p.ID, err)
	}
	if !pending {
		w.logger.DebugContext(ctx, "entry already mirrored", log.FieldTxID, p.ID)
		return nil
	}
	if p.Deleted {
		return w.mirrorDelete(ctx, p.ID)
	}
	return w.mirrorAppend(ctx, p.ID)
}

func (w *Worker) mirrorAppend(ctx context.Context, id string) error {
	tx, err := w.tracker.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted locally before the worker got to it. The delete marker
		// has its own pending entry.
		w.logger.DebugContext(ctx, "entry gone before mirroring", log.FieldTxID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entry %s: %w", id, err)
	}

	ref, err := w.mirror.Append(ctx, tx)
	if err != nil {
		if markErr := w.tracker.MarkSyncError(ctx, id); markErr != nil {
			w.logger.WarnContext(ctx, "failed to record sync error",
				log.FieldTxID, id, log.FieldError, markErr.Error())
		}
		return fmt.Errorf("append to mirror: %w", err)
	}

	if err := w.tracker.MarkSynced(ctx, id, ref); err != nil {
		// The mirror write went through; the next scan retries the
		// bookkeeping.
		return fmt.Errorf("mark synced %s: %w", id, err)
	}

	w.logger.InfoContext(ctx, "entry mirrored",
		log.FieldTxID, id,
		"remote_ref", ref)
	return nil
}

func (w *Worker) mirrorDelete(ctx context.Context, id string) error {
	if err := w.mirror.DeleteByID(ctx, id); err != nil {
		if markErr := w.tracker.MarkSyncError(ctx, id); markErr != nil {
			w.logger.WarnContext(ctx, "failed to record sync error",
				log.FieldTxID, id, log.FieldError, markErr.Error())
		}
		return fmt.Errorf("delete from mirror: %w", err)
	}

	if err := w.tracker.MarkSynced(ctx, id, ""); err != nil {
		return fmt.Errorf("mark delete synced %s: %w", id, err)
	}

	w.logger.InfoContext(ctx, "entry removed from mirror", log.FieldTxID, id)
	return nil
}
