// Package services orchestrates ledger mutations across the local store,
// balance recomputation, and the async mirror queue.
package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"cozyfin/internal/amqp"
	"cozyfin/internal/core"
	"cozyfin/internal/export"
	"cozyfin/internal/log"
	"cozyfin/internal/store"
)

// SyncPublisher queues mirror jobs. Nil-able: without a broker the ledger
// still works, only the spreadsheet mirror lags until the worker's periodic
// scan picks the entries up.
type SyncPublisher interface {
	PublishTxSync(ctx context.Context, msg *amqp.TxSyncMessage) error
}

// Event is a ledger change pushed to subscribers.
type Event struct {
	Kind string      `json:"kind"` // "created" or "deleted"
	TxID string      `json:"transaction_id"`
	User core.UserID `json:"user"`
}

// LedgerService owns every ledger mutation. The invariant it maintains: a
// profile's cached savings balance is always a full recomputation over the
// ledger that exists after the mutation, never an increment.
type LedgerService struct {
	store     store.Store
	conv      *core.Converter
	fallback  core.Money
	publisher SyncPublisher
	logger    *log.Logger

	watchMu     sync.Mutex
	watchers    map[int]chan Event
	nextWatcher int
}

func NewLedgerService(st store.Store, conv *core.Converter, fallbackMonthly core.Money, publisher SyncPublisher, logger *log.Logger) *LedgerService {
	return &LedgerService{
		store:     st,
		conv:      conv,
		fallback:  fallbackMonthly,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentLedger),
		watchers:  make(map[int]chan Event),
	}
}

// Subscribe registers a change listener. The returned channel is closed by
// the unsubscribe func; slow consumers miss events rather than block
// mutations.
func (s *LedgerService) Subscribe() (<-chan Event, func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	id := s.nextWatcher
	s.nextWatcher++
	ch := make(chan Event, 16)
	s.watchers[id] = ch

	unsubscribe := func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
	return ch, unsubscribe
}

func (s *LedgerService) notify(ev Event) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CreateInput is the raw form payload for a new ledger entry.
type CreateInput struct {
	User        string
	Type        string
	Amount      string
	Currency    string
	Category    string
	Description string
	Source      string
	Date        string
	Monthly     string
	Automatic   bool
}

// Create validates the input, stores the entry, recomputes the owner's
// balance from the updated ledger and queues the mirror job.
func (s *LedgerService) Create(ctx context.Context, in CreateInput) (core.Transaction, error) {
	tx, err := s.parseInput(in)
	if err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.Append(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	tx.ID = id

	if err := s.recomputeProfile(ctx, tx.User); err != nil {
		return core.Transaction{}, err
	}

	s.publish(ctx, amqp.NewTxSyncMessage(id))
	s.notify(Event{Kind: "created", TxID: id, User: tx.User})

	s.logger.InfoContext(ctx, "transaction created",
		log.FieldTxID, id,
		log.FieldUser, string(tx.User),
		log.FieldTxType, string(tx.Type),
		log.FieldAmountCents, tx.Amount.Cents,
		log.FieldCurrency, string(tx.Amount.Currency))

	return tx, nil
}

// Delete removes exactly one entry and recomputes the owner's balance from
// what remains.
func (s *LedgerService) Delete(ctx context.Context, id string) error {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := s.recomputeProfile(ctx, tx.User); err != nil {
		return err
	}

	s.publish(ctx, amqp.NewTxDeleteMessage(id))
	s.notify(Event{Kind: "deleted", TxID: id, User: tx.User})

	s.logger.InfoContext(ctx, "transaction deleted",
		log.FieldTxID, id,
		log.FieldUser, string(tx.User))

	return nil
}

func (s *LedgerService) parseInput(in CreateInput) (core.Transaction, error) {
	user, err := core.ParseUserID(in.User)
	if err != nil {
		return core.Transaction{}, err
	}
	typ, err := core.ParseTxType(in.Type)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseMoney(in.Amount, in.Currency)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		User:        user,
		Type:        typ,
		Amount:      amount,
		Category:    in.Category,
		Description: in.Description,
		Source:      in.Source,
		Date:        date,
		Automatic:   in.Automatic,
		CreatedAt:   time.Now().UTC(),
	}
	if in.Monthly != "" {
		cents, err := core.ParseAmountToCents(in.Monthly)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("monthly amount: %w", err)
		}
		tx.Monthly = core.Money{Cents: cents, Currency: amount.Currency}
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// recomputeProfile replaces the user's cached savings balance with a fresh
// aggregation over the full ledger.
func (s *LedgerService) recomputeProfile(ctx context.Context, user core.UserID) error {
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	ledger, err := s.store.List(ctx, core.Filter{User: user})
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	balance, err := ledger.RecomputeBalance(s.conv, user, profile.Currency)
	if err != nil {
		return fmt.Errorf("recompute balance: %w", err)
	}
	profile.Savings = balance
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *LedgerService) publish(ctx context.Context, msg *amqp.TxSyncMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTxSync(ctx, msg); err != nil {
		// The worker's periodic scan will pick the entry up anyway.
		s.logger.WarnContext(ctx, "failed to publish sync message",
			log.FieldTxID, msg.ID,
			log.FieldError, err.Error())
	}
}

// List returns ledger entries for the filter, newest first.
func (s *LedgerService) List(ctx context.Context, f core.Filter) (core.Ledger, error) {
	return s.store.List(ctx, f)
}

// UserSummary aggregates one user's ledger in their preferred currency,
// optionally restricted to a calendar month.
func (s *LedgerService) UserSummary(ctx context.Context, user core.UserID, year int, month time.Month) (core.Summary, error) {
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return core.Summary{}, err
	}
	ledger, err := s.store.List(ctx, core.Filter{User: user})
	if err != nil {
		return core.Summary{}, err
	}
	return ledger.Summarize(s.conv, user, profile.Currency, year, month)
}

// CombinedSummary is the shared USD view across both users.
func (s *LedgerService) CombinedSummary(ctx context.Context) (core.CombinedSummary, error) {
	ledger, err := s.store.List(ctx, core.Filter{})
	if err != nil {
		return core.CombinedSummary{}, err
	}
	profiles, err := s.store.Profiles(ctx)
	if err != nil {
		return core.CombinedSummary{}, err
	}
	return ledger.Combine(s.conv, profiles)
}

// GoalProgress computes the shared goal's progress and the months-to-goal
// estimate at the observed saving pace.
func (s *LedgerService) GoalProgress(ctx context.Context) (core.GoalProgress, error) {
	goal, err := s.store.Goal(ctx)
	if err != nil {
		return core.GoalProgress{}, err
	}
	combined, err := s.CombinedSummary(ctx)
	if err != nil {
		return core.GoalProgress{}, err
	}
	ledger, err := s.store.List(ctx, core.Filter{})
	if err != nil {
		return core.GoalProgress{}, err
	}
	pace, err := ledger.MonthlyPace(s.conv, core.Today(), 0)
	if err != nil {
		return core.GoalProgress{}, err
	}
	return goal.ProgressWithFallback(combined.Savings, pace, s.fallback), nil
}

// MonthlySeries is the per-month chart data for one user.
func (s *LedgerService) MonthlySeries(ctx context.Context, user core.UserID, months int) ([]core.MonthPoint, error) {
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.List(ctx, core.Filter{User: user})
	if err != nil {
		return nil, err
	}
	return ledger.MonthlySeries(s.conv, user, profile.Currency, core.Today(), months)
}

// Profile returns one user's profile with its cached balances.
func (s *LedgerService) Profile(ctx context.Context, user core.UserID) (core.Profile, error) {
	return s.store.Profile(ctx, user)
}

// UpdateProfile persists profile settings (name, avatar, currency, budget).
// Balance fields are overwritten by the next recomputation.
func (s *LedgerService) UpdateProfile(ctx context.Context, p core.Profile) error {
	if err := s.store.SaveProfile(ctx, p); err != nil {
		return err
	}
	// A currency change shifts the display of the cached balance.
	return s.recomputeProfile(ctx, p.User)
}

// AddSavingsAccount attaches a named savings destination to the profile.
func (s *LedgerService) AddSavingsAccount(ctx context.Context, user core.UserID, acct core.SavingsAccount) error {
	if err := acct.Validate(); err != nil {
		return err
	}
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return err
	}
	profile.SavingsAccounts = append(profile.SavingsAccounts, acct)
	return s.store.SaveProfile(ctx, profile)
}

// AddFixedExpense attaches a recurring monthly charge to the profile.
func (s *LedgerService) AddFixedExpense(ctx context.Context, user core.UserID, exp core.FixedExpense) error {
	if err := exp.Validate(); err != nil {
		return err
	}
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return err
	}
	profile.FixedExpenses = append(profile.FixedExpenses, exp)
	return s.store.SaveProfile(ctx, profile)
}

// AddDebt attaches a named debt to the profile and refreshes the cached
// debts total.
func (s *LedgerService) AddDebt(ctx context.Context, user core.UserID, debt core.DebtAccount) error {
	if err := debt.Validate(); err != nil {
		return err
	}
	profile, err := s.store.Profile(ctx, user)
	if err != nil {
		return err
	}
	profile.Debts = append(profile.Debts, debt)
	profile.DebtsTotal = sumDebts(profile.Debts, profile.Currency, s.conv)
	return s.store.SaveProfile(ctx, profile)
}

func sumDebts(debts []core.DebtAccount, currency core.Currency, conv *core.Converter) core.Money {
	total := core.Money{Cents: 0, Currency: currency}
	for _, d := range debts {
		converted, err := conv.Convert(d.Total, currency)
		if err != nil {
			continue
		}
		total.Cents += converted.Cents
	}
	return total
}

// Goal returns the shared goal.
func (s *LedgerService) Goal(ctx context.Context) (core.Goal, error) {
	return s.store.Goal(ctx)
}

// UpdateGoal replaces the shared goal.
func (s *LedgerService) UpdateGoal(ctx context.Context, g core.Goal) error {
	return s.store.SaveGoal(ctx, g)
}

// ExportWorkbook writes the full household workbook to w.
func (s *LedgerService) ExportWorkbook(ctx context.Context, w io.Writer) error {
	ledger, err := s.store.List(ctx, core.Filter{})
	if err != nil {
		return err
	}
	profiles, err := s.store.Profiles(ctx)
	if err != nil {
		return err
	}
	return export.WriteWorkbook(w, s.conv, ledger, profiles)
}

// ExportUserHistory writes one user's movement history workbook to w.
func (s *LedgerService) ExportUserHistory(ctx context.Context, w io.Writer, user core.UserID) error {
	ledger, err := s.store.List(ctx, core.Filter{User: user})
	if err != nil {
		return err
	}
	return export.WriteUserHistory(w, ledger, user)
}

// AttachReceipt stores a receipt image against an existing entry.
func (s *LedgerService) AttachReceipt(ctx context.Context, txID, contentType string, data []byte) error {
	if _, err := s.store.Get(ctx, txID); err != nil {
		return err
	}
	return s.store.PutReceipt(ctx, txID, contentType, data)
}

// Receipt fetches a stored receipt image.
func (s *LedgerService) Receipt(ctx context.Context, txID string) (string, []byte, error) {
	return s.store.GetReceipt(ctx, txID)
}
