// Package resilient decorates a store with per-operation timeouts, retries
// with exponential backoff, and a stale-read cache so the dashboard keeps
// rendering from the last known data when the backing store is unreachable.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"cozyfin/internal/cache"
	"cozyfin/internal/core"
	"cozyfin/internal/log"
	"cozyfin/internal/store"
)

// Policy bounds how hard a single operation tries before giving up.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  3 * time.Second,
		Timeout:    30 * time.Second,
	}
}

func (p Policy) Validate() error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", p.BaseDelay)
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", p.Timeout)
	}
	return nil
}

type Store struct {
	inner    store.Store
	policy   Policy
	logger   *log.Logger
	degraded atomic.Bool

	ledgers  *cache.LRUCache[core.Ledger]
	profiles *cache.LRUCache[[]core.Profile]
	goals    *cache.LRUCache[core.Goal]
	cleanup  *cache.Manager
}

const (
	profilesKey = "profiles"
	goalKey     = "goal"

	cacheSize = 64
	cacheTTL  = time.Minute

	// Expired entries stay around as the stale fallback; the cleanup pass
	// bounds how old that fallback can get.
	cleanupInterval = time.Hour
)

var _ store.Store = (*Store)(nil)

func New(inner store.Store, policy Policy, logger *log.Logger) (*Store, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	s := &Store{
		inner:    inner,
		policy:   policy,
		logger:   logger.WithComponent(log.ComponentResilient),
		ledgers:  cache.NewLRUCache[core.Ledger](cacheSize, cacheTTL),
		profiles: cache.NewLRUCache[[]core.Profile](cacheSize, cacheTTL),
		goals:    cache.NewLRUCache[core.Goal](cacheSize, cacheTTL),
		cleanup:  cache.NewManager(),
	}
	s.cleanup.Register(s.ledgers)
	s.cleanup.Register(s.profiles)
	s.cleanup.Register(s.goals)
	s.cleanup.StartCleanup(cleanupInterval)
	return s, nil
}

// Degraded reports whether the last store operation had to fall back to
// cached data or failed outright.
func (s *Store) Degraded() bool { return s.degraded.Load() }

// retryable reports whether the error is worth another attempt. Domain
// errors are final; only infrastructure failures get retried.
func retryable(err error) bool {
	switch {
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrUnknownUser),
		errors.Is(err, core.ErrUnknownTxType),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrUnsupportedCurrency),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// do runs fn with the policy's timeout per attempt and exponential backoff
// between attempts.
func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	delay := s.policy.BaseDelay

	for attempt := 1; attempt <= s.policy.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.policy.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			s.degraded.Store(false)
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}

		s.logger.WarnContext(ctx, "store operation failed",
			log.FieldOperation, op,
			log.FieldAttempt, attempt,
			log.FieldError, err.Error())

		if attempt == s.policy.MaxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	s.degraded.Store(true)
	return fmt.Errorf("%s after %d attempts: %w: %w", op, s.policy.MaxRetries, store.ErrUnavailable, lastErr)
}

func (s *Store) Append(ctx context.Context, tx core.Transaction) (string, error) {
	var id string
	err := s.do(ctx, log.OpAppend, func(ctx context.Context) error {
		var err error
		id, err = s.inner.Append(ctx, tx)
		return err
	})
	if err != nil {
		return "", err
	}
	s.invalidateLedgers()
	return id, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.do(ctx, log.OpDelete, func(ctx context.Context) error {
		return s.inner.Delete(ctx, id)
	}); err != nil {
		return err
	}
	s.invalidateLedgers()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Transaction, error) {
	var tx core.Transaction
	err := s.do(ctx, log.OpRead, func(ctx context.Context) error {
		var err error
		tx, err = s.inner.Get(ctx, id)
		return err
	})
	return tx, err
}

func (s *Store) List(ctx context.Context, f core.Filter) (core.Ledger, error) {
	key := listKey(f)
	var ledger core.Ledger
	err := s.do(ctx, log.OpList, func(ctx context.Context) error {
		var err error
		ledger, err = s.inner.List(ctx, f)
		return err
	})
	if err == nil {
		s.ledgers.Set(key, ledger)
		return ledger, nil
	}
	if cached, ok, stale := s.ledgers.GetStale(key); ok {
		s.logger.WarnContext(ctx, "serving cached ledger",
			log.FieldOperation, log.OpList,
			log.FieldDegraded, true,
			"stale", stale)
		return cached, nil
	}
	return nil, err
}

func (s *Store) Profile(ctx context.Context, user core.UserID) (core.Profile, error) {
	ps, err := s.Profiles(ctx)
	if err != nil {
		return core.Profile{}, err
	}
	for _, p := range ps {
		if p.User == user {
			return p, nil
		}
	}
	return core.Profile{}, fmt.Errorf("profile %s: %w", user, core.ErrNotFound)
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	if err := s.do(ctx, "save_profile", func(ctx context.Context) error {
		return s.inner.SaveProfile(ctx, p)
	}); err != nil {
		return err
	}
	s.profiles.Delete(profilesKey)
	return nil
}

func (s *Store) Profiles(ctx context.Context) ([]core.Profile, error) {
	var ps []core.Profile
	err := s.do(ctx, "profiles", func(ctx context.Context) error {
		var err error
		ps, err = s.inner.Profiles(ctx)
		return err
	})
	if err == nil {
		s.profiles.Set(profilesKey, ps)
		return ps, nil
	}
	if cached, ok, stale := s.profiles.GetStale(profilesKey); ok {
		s.logger.WarnContext(ctx, "serving cached profiles",
			log.FieldDegraded, true, "stale", stale)
		return cached, nil
	}
	return nil, err
}

func (s *Store) Goal(ctx context.Context) (core.Goal, error) {
	var g core.Goal
	err := s.do(ctx, "goal", func(ctx context.Context) error {
		var err error
		g, err = s.inner.Goal(ctx)
		return err
	})
	if err == nil {
		s.goals.Set(goalKey, g)
		return g, nil
	}
	if cached, ok, stale := s.goals.GetStale(goalKey); ok {
		s.logger.WarnContext(ctx, "serving cached goal",
			log.FieldDegraded, true, "stale", stale)
		return cached, nil
	}
	return core.Goal{}, err
}

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	if err := s.do(ctx, "save_goal", func(ctx context.Context) error {
		return s.inner.SaveGoal(ctx, g)
	}); err != nil {
		return err
	}
	s.goals.Delete(goalKey)
	return nil
}

func (s *Store) PutReceipt(ctx context.Context, txID, contentType string, data []byte) error {
	return s.do(ctx, "put_receipt", func(ctx context.Context) error {
		return s.inner.PutReceipt(ctx, txID, contentType, data)
	})
}

func (s *Store) GetReceipt(ctx context.Context, txID string) (string, []byte, error) {
	var (
		ct   string
		data []byte
	)
	err := s.do(ctx, "get_receipt", func(ctx context.Context) error {
		var err error
		ct, data, err = s.inner.GetReceipt(ctx, txID)
		return err
	})
	return ct, data, err
}

func (s *Store) Close() error {
	s.cleanup.Stop()
	return s.inner.Close()
}

func (s *Store) invalidateLedgers() {
	// Any mutation can change any filtered view, so drop them all.
	s.ledgers.Purge()
}

func listKey(f core.Filter) string {
	return fmt.Sprintf("%s|%s|%d-%d", f.User, f.Type, f.Year, int(f.Month))
}
