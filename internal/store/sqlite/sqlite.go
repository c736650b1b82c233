// Package sqlite is the authoritative local store. Deletes are soft until
// the worker has mirrored them to the remote sheet, so the sync queue never
// loses track of a removal.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cozyfin/internal/core"
	"cozyfin/internal/store"

	_ "modernc.org/sqlite"
)

var (
	_ store.Store       = (*Store)(nil)
	_ store.SyncTracker = (*Store)(nil)
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{db: db}
	if err := s.seedDefaults(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// seedDefaults inserts the two profiles and the standing goal on first run.
func (s *Store) seedDefaults(ctx context.Context) error {
	for _, p := range core.DefaultProfiles() {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO profiles (user, name, currency, savings_cents, debts_total_cents)
			VALUES (?, ?, ?, ?, ?)`,
			string(p.User), p.Name, string(p.Currency), p.Savings.Cents, p.DebtsTotal.Cents)
		if err != nil {
			return fmt.Errorf("seed profile %s: %w", p.User, err)
		}
	}
	g := core.DefaultGoal()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO goal (id, name, target_cents, start_date, target_date)
		VALUES (1, ?, ?, ?, ?)`,
		g.Name, g.Target.Cents, g.StartDate.String(), g.TargetDate.String())
	if err != nil {
		return fmt.Errorf("seed goal: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(id, user, type, amount_cents, currency, category, description,
			 source, date, monthly_cents, monthly_currency, automatic, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.User), string(tx.Type), tx.Amount.Cents, string(tx.Amount.Currency),
		tx.Category, tx.Description, tx.Source, tx.Date.String(),
		tx.Monthly.Cents, string(tx.Monthly.Currency), boolToInt(tx.Automatic), tx.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return tx.ID, nil
}

// Delete marks the entry deleted and re-queues it for mirroring; the row is
// removed for good once the worker has propagated the delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET deleted = 1, sync_status = 'pending'
		WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE tx_id = ?`, id); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}

const txColumns = `id, user, type, amount_cents, currency, category, description,
	source, date, monthly_cents, monthly_currency, automatic, created_at`

func (s *Store) List(ctx context.Context, f core.Filter) (core.Ledger, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE deleted = 0`
	var args []any
	if f.User != "" {
		query += ` AND user = ?`
		args = append(args, string(f.User))
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Year != 0 && f.Month != 0 {
		query += ` AND date >= ? AND date < ?`
		from := core.NewDate(f.Year, f.Month, 1)
		to := core.NewDate(f.Year, f.Month, 1)
		to.Time = to.AddDate(0, 1, 0)
		args = append(args, from.String(), to.String())
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out core.Ledger
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = ? AND deleted = 0`, id)
	tx, err := scanTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTx(r rowScanner) (core.Transaction, error) {
	var (
		tx                     core.Transaction
		user, typ, cur, monCur string
		dateStr                string
		automatic              int
	)
	err := r.Scan(&tx.ID, &user, &typ, &tx.Amount.Cents, &cur, &tx.Category,
		&tx.Description, &tx.Source, &dateStr, &tx.Monthly.Cents, &monCur,
		&automatic, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.User = core.UserID(user)
	tx.Type = core.TxType(typ)
	tx.Amount.Currency = core.Currency(cur)
	if monCur != "" {
		tx.Monthly.Currency = core.Currency(monCur)
	}
	tx.Automatic = automatic != 0
	tx.Date, err = core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", dateStr, err)
	}
	return tx, nil
}

func (s *Store) Profile(ctx context.Context, user core.UserID) (core.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user, name, avatar, currency, budget_cents, savings_cents,
		       debts_total_cents, savings_accounts, fixed_expenses, debts
		FROM profiles WHERE user = ?`, string(user))
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", user, core.ErrNotFound)
	}
	return p, err
}

func (s *Store) Profiles(ctx context.Context) ([]core.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user, name, avatar, currency, budget_cents, savings_cents,
		       debts_total_cents, savings_accounts, fixed_expenses, debts
		FROM profiles ORDER BY user`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []core.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(r rowScanner) (core.Profile, error) {
	var (
		p                      core.Profile
		user, cur              string
		accounts, fixed, debts string
	)
	err := r.Scan(&user, &p.Name, &p.Avatar, &cur, &p.Budget.Cents,
		&p.Savings.Cents, &p.DebtsTotal.Cents, &accounts, &fixed, &debts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Profile{}, err
		}
		return core.Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	p.User = core.UserID(user)
	p.Currency = core.Currency(cur)
	p.Budget.Currency = p.Currency
	p.Savings.Currency = p.Currency
	p.DebtsTotal.Currency = p.Currency
	if err := json.Unmarshal([]byte(accounts), &p.SavingsAccounts); err != nil {
		return core.Profile{}, fmt.Errorf("decode savings accounts: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &p.FixedExpenses); err != nil {
		return core.Profile{}, fmt.Errorf("decode fixed expenses: %w", err)
	}
	if err := json.Unmarshal([]byte(debts), &p.Debts); err != nil {
		return core.Profile{}, fmt.Errorf("decode debts: %w", err)
	}
	return p, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	accounts, err := json.Marshal(p.SavingsAccounts)
	if err != nil {
		return fmt.Errorf("encode savings accounts: %w", err)
	}
	fixed, err := json.Marshal(p.FixedExpenses)
	if err != nil {
		return fmt.Errorf("encode fixed expenses: %w", err)
	}
	debts, err := json.Marshal(p.Debts)
	if err != nil {
		return fmt.Errorf("encode debts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles
			(user, name, avatar, currency, budget_cents, savings_cents,
			 debts_total_cents, savings_accounts, fixed_expenses, debts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			currency = excluded.currency,
			budget_cents = excluded.budget_cents,
			savings_cents = excluded.savings_cents,
			debts_total_cents = excluded.debts_total_cents,
			savings_accounts = excluded.savings_accounts,
			fixed_expenses = excluded.fixed_expenses,
			debts = excluded.debts`,
		string(p.User), p.Name, p.Avatar, string(p.Currency), p.Budget.Cents,
		p.Savings.Cents, p.DebtsTotal.Cents, string(accounts), string(fixed), string(debts))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *Store) Goal(ctx context.Context) (core.Goal, error) {
	var (
		g                   core.Goal
		startStr, targetStr string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, target_cents, start_date, target_date FROM goal WHERE id = 1`).
		Scan(&g.Name, &g.Target.Cents, &startStr, &targetStr)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultGoal(), nil
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("read goal: %w", err)
	}
	g.Target.Currency = core.USD
	if startStr != "" {
		if g.StartDate, err = core.ParseDate(startStr); err != nil {
			return core.Goal{}, fmt.Errorf("stored start date: %w", err)
		}
	}
	if targetStr != "" {
		if g.TargetDate, err = core.ParseDate(targetStr); err != nil {
			return core.Goal{}, fmt.Errorf("stored target date: %w", err)
		}
	}
	return g, nil
}

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goal (id, name, target_cents, start_date, target_date)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target_cents = excluded.target_cents,
			start_date = excluded.start_date,
			target_date = excluded.target_date`,
		g.Name, g.Target.Cents, g.StartDate.String(), g.TargetDate.String())
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (s *Store) PutReceipt(ctx context.Context, txID, contentType string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (tx_id, content_type, data) VALUES (?, ?, ?)
		ON CONFLICT(tx_id) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data`,
		txID, contentType, data)
	if err != nil {
		return fmt.Errorf("save receipt: %w", err)
	}
	return nil
}

func (s *Store) GetReceipt(ctx context.Context, txID string) (string, []byte, error) {
	var (
		ct   string
		data []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT content_type, data FROM receipts WHERE tx_id = ?`, txID).Scan(&ct, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("receipt for %s: %w", txID, core.ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read receipt: %w", err)
	}
	return ct, data, nil
}

// PendingSync returns entries whose latest state has not reached the remote
// mirror, oldest first.
func (s *Store) PendingSync(ctx context.Context, limit int) ([]store.PendingTx, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deleted FROM transactions
		WHERE sync_status = 'pending'
		ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync: %w", err)
	}
	defer rows.Close()

	var out []store.PendingTx
	for rows.Next() {
		var (
			p       store.PendingTx
			deleted int
		)
		if err := rows.Scan(&p.ID, &deleted); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		p.Deleted = deleted != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// IsPending reports whether the entry still awaits mirroring. Rows already
// marked synced, and rows hard-deleted after a mirrored delete, return false.
func (s *Store) IsPending(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT sync_status FROM transactions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sync status: %w", err)
	}
	return status != "synced", nil
}

func (s *Store) MarkSynced(ctx context.Context, id string, remoteRef string) error {
	// A mirrored delete means the row has served its purpose.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND deleted = 1`, id)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE transactions SET sync_status = 'synced', remote_ref = ?
		WHERE id = ?`, remoteRef, id)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *Store) MarkSyncError(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}
	return nil
}

// RemoteRef returns the sheet row reference recorded for a synced entry.
func (s *Store) RemoteRef(ctx context.Context, id string) (string, error) {
	var ref string
	err := s.db.QueryRowContext(ctx,
		`SELECT remote_ref FROM transactions WHERE id = ?`, id).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("remote ref: %w", err)
	}
	return ref, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
