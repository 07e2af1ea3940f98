/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements invoice.Store and invoice.TxStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  teachers:          Payee records
  class_sessions:    Reported tutoring sessions (invoice_id NULL while unbilled)
  invoices:          One row per teacher-month payout, snapshots inlined
  invoice_bonuses:   Append-only bonus credits
  invoice_extras:    Append-only extra credits/corrections
  invoice_refunds:   Append-only refund records
  invoice_changes:   Append-only audit trail, ordered by autoincrement seq
  exchange_rates:    One row per billing month
  billing_settings:  JSON documents keyed by name (tiers, fee config)

ONE-LIVE-INVOICE RULE:
  idx_invoices_active_unique enforces at most one non-adjustment,
  non-archived invoice per teacher and month. Violations surface as
  billing.ErrDuplicateInvoice.

DECIMALS AND TIMES:
  Money and hour columns are TEXT holding decimal strings; times are
  TEXT holding RFC3339 UTC. Lexicographic ordering on RFC3339 strings
  matches chronological ordering, which the period-range queries rely
  on.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/salary.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - invoice/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
)

// Store implements invoice.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// works inside and outside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Teachers (payees)
	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		payout_currency TEXT NOT NULL DEFAULT 'EGP',
		active BOOLEAN DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Class sessions; invoice_id stays NULL until an invoice links them
	CREATE TABLE IF NOT EXISTS class_sessions (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		guardian_id TEXT,
		student_name TEXT,
		occurred_on TEXT NOT NULL,
		hours TEXT NOT NULL,
		status TEXT NOT NULL,
		invoice_id TEXT,
		reported_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_teacher_date
		ON class_sessions(teacher_id, occurred_on);

	-- Unbilled lookup (hot path during generation)
	CREATE INDEX IF NOT EXISTS idx_sessions_unbilled
		ON class_sessions(teacher_id, status, occurred_on)
		WHERE invoice_id IS NULL;

	CREATE INDEX IF NOT EXISTS idx_sessions_invoice
		ON class_sessions(invoice_id) WHERE invoice_id IS NOT NULL;

	-- Invoices with generation-time snapshots inlined
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		teacher_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		exchange_rate TEXT NOT NULL,
		tier_min_hours TEXT NOT NULL,
		tier_max_hours TEXT NOT NULL,
		tier_rate_usd TEXT NOT NULL,
		fee_model TEXT NOT NULL,
		fee_value TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		covered_hours TEXT NOT NULL,
		gross_usd TEXT NOT NULL,
		gross_egp TEXT NOT NULL,
		bonuses_usd TEXT NOT NULL,
		bonuses_egp TEXT NOT NULL,
		extras_usd TEXT NOT NULL,
		extras_egp TEXT NOT NULL,
		total_usd TEXT NOT NULL,
		total_egp TEXT NOT NULL,
		transfer_fee_egp TEXT NOT NULL,
		net_egp TEXT NOT NULL,
		is_adjustment BOOLEAN DEFAULT FALSE,
		adjusts_invoice_id TEXT,
		payment_method TEXT,
		payment_proof_url TEXT,
		payment_notes TEXT,
		generated_by TEXT,
		published_at TEXT,
		paid_at TEXT,
		archived_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER DEFAULT 1
	);

	-- CRITICAL: at most one live (non-adjustment, non-archived) invoice
	-- per teacher and month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_active_unique
		ON invoices(teacher_id, year, month)
		WHERE status != 'archived' AND is_adjustment = FALSE;

	CREATE INDEX IF NOT EXISTS idx_invoices_teacher
		ON invoices(teacher_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_period
		ON invoices(year, month);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);
	CREATE INDEX IF NOT EXISTS idx_invoices_adjusts
		ON invoices(adjusts_invoice_id) WHERE adjusts_invoice_id IS NOT NULL;

	-- Bonuses (append-only)
	CREATE TABLE IF NOT EXISTS invoice_bonuses (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		source TEXT NOT NULL,
		amount_usd TEXT NOT NULL,
		amount_egp TEXT NOT NULL,
		guardian_id TEXT,
		reason TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bonuses_invoice
		ON invoice_bonuses(invoice_id);

	-- Extras (append-only)
	CREATE TABLE IF NOT EXISTS invoice_extras (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		amount_usd TEXT NOT NULL,
		amount_egp TEXT NOT NULL,
		description TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_extras_invoice
		ON invoice_extras(invoice_id);

	-- Refunds (append-only)
	CREATE TABLE IF NOT EXISTS invoice_refunds (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		amount_egp TEXT NOT NULL,
		hours TEXT NOT NULL,
		reason TEXT,
		reference TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refunds_invoice
		ON invoice_refunds(invoice_id);

	-- Change history (append-only audit trail)
	CREATE TABLE IF NOT EXISTS invoice_changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL,
		action TEXT NOT NULL,
		field TEXT,
		old_value TEXT,
		new_value TEXT,
		changed_by TEXT NOT NULL,
		changed_at TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_changes_invoice
		ON invoice_changes(invoice_id, seq);

	-- Exchange rates, one per billing month
	CREATE TABLE IF NOT EXISTS exchange_rates (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		rate TEXT NOT NULL,
		source TEXT,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (year, month)
	);

	-- Billing settings (JSON documents keyed by name)
	CREATE TABLE IF NOT EXISTS billing_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_by TEXT,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TEACHERS
// =============================================================================

func (s *Store) SaveTeacher(ctx context.Context, t invoice.Teacher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTeacher(ctx, s.db, t)
}

func (s *Store) saveTeacher(ctx context.Context, q dbtx, t invoice.Teacher) error {
	query := `
		INSERT INTO teachers (id, name, email, payout_currency, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			payout_currency = excluded.payout_currency,
			active = excluded.active
	`

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, query,
		t.ID, t.Name, nullString(t.Email), string(t.PayoutCurrency), t.Active,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetTeacher(ctx context.Context, id string) (*invoice.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getTeacher(ctx, s.db, id)
}

func (s *Store) getTeacher(ctx context.Context, q dbtx, id string) (*invoice.Teacher, error) {
	var t invoice.Teacher
	var currency, createdAt string
	var email sql.NullString

	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, payout_currency, active, created_at FROM teachers WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Name, &email, &currency, &t.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	t.Email = email.String
	t.PayoutCurrency = billing.Currency(currency)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func (s *Store) ListTeachers(ctx context.Context) ([]invoice.Teacher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTeachers(ctx, s.db)
}

func (s *Store) listTeachers(ctx context.Context, q dbtx) ([]invoice.Teacher, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, email, payout_currency, active, created_at FROM teachers ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var teachers []invoice.Teacher
	for rows.Next() {
		var t invoice.Teacher
		var currency, createdAt string
		var email sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &email, &currency, &t.Active, &createdAt); err != nil {
			return nil, err
		}
		t.Email = email.String
		t.PayoutCurrency = billing.Currency(currency)
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		teachers = append(teachers, t)
	}
	return teachers, rows.Err()
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

func (s *Store) SaveSession(ctx context.Context, sess invoice.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSession(ctx, s.db, sess)
}

func (s *Store) saveSession(ctx context.Context, q dbtx, sess invoice.ClassSession) error {
	query := `
		INSERT INTO class_sessions
		(id, teacher_id, guardian_id, student_name, occurred_on, hours, status, invoice_id, reported_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			guardian_id = excluded.guardian_id,
			student_name = excluded.student_name,
			occurred_on = excluded.occurred_on,
			hours = excluded.hours,
			status = excluded.status,
			invoice_id = excluded.invoice_id,
			reported_at = excluded.reported_at
	`

	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, query,
		sess.ID, sess.TeacherID, nullString(sess.GuardianID), nullString(sess.StudentName),
		sess.OccurredOn.Format(time.RFC3339), sess.Hours.String(), string(sess.Status),
		nullString(sess.InvoiceID),
		sess.ReportedAt.Format(time.RFC3339),
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*invoice.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSession(ctx, s.db, id)
}

func (s *Store) getSession(ctx context.Context, q dbtx, id string) (*invoice.ClassSession, error) {
	sessions, err := s.querySessions(ctx, q, sessionSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

func (s *Store) SessionsForTeacher(ctx context.Context, teacherID string) ([]invoice.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionsForTeacher(ctx, s.db, teacherID)
}

func (s *Store) sessionsForTeacher(ctx context.Context, q dbtx, teacherID string) ([]invoice.ClassSession, error) {
	return s.querySessions(ctx, q,
		sessionSelect+" WHERE teacher_id = ? ORDER BY occurred_on, id", teacherID)
}

func (s *Store) UnbilledSessions(ctx context.Context, teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unbilledSessions(ctx, s.db, teacherID, period)
}

func (s *Store) unbilledSessions(ctx context.Context, q dbtx, teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	query := sessionSelect + `
		 WHERE teacher_id = ? AND status = ? AND invoice_id IS NULL
		   AND occurred_on >= ? AND occurred_on < ?
		 ORDER BY occurred_on, id`

	return s.querySessions(ctx, q, query,
		teacherID, string(invoice.SessionCompleted),
		period.Start().Format(time.RFC3339), period.End().Format(time.RFC3339))
}

func (s *Store) LinkSessions(ctx context.Context, invoiceID string, sessionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkSessions(ctx, s.db, invoiceID, sessionIDs)
}

func (s *Store) linkSessions(ctx context.Context, q dbtx, invoiceID string, sessionIDs []string) error {
	for _, id := range sessionIDs {
		res, err := q.ExecContext(ctx,
			"UPDATE class_sessions SET invoice_id = ? WHERE id = ?",
			invoiceID, id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", billing.ErrSessionNotFound, id)
		}
	}
	return nil
}

func (s *Store) UnlinkSessions(ctx context.Context, invoiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlinkSessions(ctx, s.db, invoiceID)
}

func (s *Store) unlinkSessions(ctx context.Context, q dbtx, invoiceID string) error {
	_, err := q.ExecContext(ctx,
		"UPDATE class_sessions SET invoice_id = NULL WHERE invoice_id = ?",
		invoiceID,
	)
	return err
}

const sessionSelect = `
	SELECT id, teacher_id, guardian_id, student_name, occurred_on, hours, status, invoice_id, reported_at, created_at
	FROM class_sessions`

func (s *Store) querySessions(ctx context.Context, q dbtx, query string, args ...any) ([]invoice.ClassSession, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []invoice.ClassSession
	for rows.Next() {
		var sess invoice.ClassSession
		var guardianID, studentName, invoiceID sql.NullString
		var occurredOn, hours, status, reportedAt, createdAt string

		if err := rows.Scan(
			&sess.ID, &sess.TeacherID, &guardianID, &studentName,
			&occurredOn, &hours, &status, &invoiceID, &reportedAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		sess.GuardianID = guardianID.String
		sess.StudentName = studentName.String
		sess.OccurredOn, _ = time.Parse(time.RFC3339, occurredOn)
		sess.Hours = billing.MustParseDecimal(hours)
		sess.Status = invoice.SessionStatus(status)
		sess.InvoiceID = invoiceID.String
		sess.ReportedAt, _ = time.Parse(time.RFC3339, reportedAt)
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveInvoice(ctx, s.db, inv)
}

func (s *Store) saveInvoice(ctx context.Context, q dbtx, inv *invoice.Invoice) error {
	// Version is bumped here so every persisted write is visible in the
	// row, whichever service produced it.
	var current int
	err := q.QueryRowContext(ctx, "SELECT version FROM invoices WHERE id = ?", inv.ID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		if inv.Version == 0 {
			inv.Version = 1
		}
	case err != nil:
		return err
	default:
		inv.Version = current + 1
	}

	query := `
		INSERT INTO invoices
		(id, teacher_id, month, year, status, currency, exchange_rate,
		 tier_min_hours, tier_max_hours, tier_rate_usd, fee_model, fee_value,
		 total_hours, covered_hours,
		 gross_usd, gross_egp, bonuses_usd, bonuses_egp, extras_usd, extras_egp,
		 total_usd, total_egp, transfer_fee_egp, net_egp,
		 is_adjustment, adjusts_invoice_id,
		 payment_method, payment_proof_url, payment_notes,
		 generated_by, published_at, paid_at, archived_at,
		 created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			currency = excluded.currency,
			exchange_rate = excluded.exchange_rate,
			tier_min_hours = excluded.tier_min_hours,
			tier_max_hours = excluded.tier_max_hours,
			tier_rate_usd = excluded.tier_rate_usd,
			fee_model = excluded.fee_model,
			fee_value = excluded.fee_value,
			total_hours = excluded.total_hours,
			covered_hours = excluded.covered_hours,
			gross_usd = excluded.gross_usd,
			gross_egp = excluded.gross_egp,
			bonuses_usd = excluded.bonuses_usd,
			bonuses_egp = excluded.bonuses_egp,
			extras_usd = excluded.extras_usd,
			extras_egp = excluded.extras_egp,
			total_usd = excluded.total_usd,
			total_egp = excluded.total_egp,
			transfer_fee_egp = excluded.transfer_fee_egp,
			net_egp = excluded.net_egp,
			payment_method = excluded.payment_method,
			payment_proof_url = excluded.payment_proof_url,
			payment_notes = excluded.payment_notes,
			published_at = excluded.published_at,
			paid_at = excluded.paid_at,
			archived_at = excluded.archived_at,
			updated_at = excluded.updated_at,
			version = excluded.version
	`

	_, err = q.ExecContext(ctx, query,
		inv.ID, inv.TeacherID, int(inv.Period.Month), inv.Period.Year,
		string(inv.Status), string(inv.Currency), inv.ExchangeRate.String(),
		inv.Tier.MinHours.String(), inv.Tier.MaxHours.String(), inv.Tier.RateUSD.String(),
		string(inv.Fee.Model), inv.Fee.Value.String(),
		inv.TotalHours.String(), inv.CoveredHours.String(),
		inv.Totals.GrossUSD.String(), inv.Totals.GrossEGP.String(),
		inv.Totals.BonusesUSD.String(), inv.Totals.BonusesEGP.String(),
		inv.Totals.ExtrasUSD.String(), inv.Totals.ExtrasEGP.String(),
		inv.Totals.TotalUSD.String(), inv.Totals.TotalEGP.String(),
		inv.Totals.TransferFeeEGP.String(), inv.Totals.NetEGP.String(),
		inv.IsAdjustment, nullString(inv.AdjustsInvoiceID),
		nullString(inv.Payment.Method), nullString(inv.Payment.ProofURL), nullString(inv.Payment.Notes),
		nullString(inv.GeneratedBy),
		nullTime(inv.PublishedAt), nullTime(inv.PaidAt), nullTime(inv.ArchivedAt),
		inv.CreatedAt.Format(time.RFC3339), inv.UpdatedAt.Format(time.RFC3339),
		inv.Version,
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: teacher %s period %s", billing.ErrDuplicateInvoice, inv.TeacherID, inv.Period)
		}
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getInvoice(ctx, s.db, id)
}

func (s *Store) getInvoice(ctx context.Context, q dbtx, id string) (*invoice.Invoice, error) {
	invoices, err := s.queryInvoices(ctx, q, invoiceSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	if err := s.loadChildren(ctx, q, invoices[0]); err != nil {
		return nil, err
	}
	return invoices[0], nil
}

func (s *Store) FindActiveInvoice(ctx context.Context, teacherID string, period billing.Period) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActiveInvoice(ctx, s.db, teacherID, period)
}

func (s *Store) findActiveInvoice(ctx context.Context, q dbtx, teacherID string, period billing.Period) (*invoice.Invoice, error) {
	query := invoiceSelect + `
		 WHERE teacher_id = ? AND year = ? AND month = ?
		   AND is_adjustment = FALSE AND status != ?
		 ORDER BY created_at ASC LIMIT 1`

	invoices, err := s.queryInvoices(ctx, q, query,
		teacherID, period.Year, int(period.Month), string(billing.StatusArchived))
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, nil
	}
	if err := s.loadChildren(ctx, q, invoices[0]); err != nil {
		return nil, err
	}
	return invoices[0], nil
}

func (s *Store) ListInvoices(ctx context.Context, f invoice.Filter) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listInvoices(ctx, s.db, f)
}

func (s *Store) listInvoices(ctx context.Context, q dbtx, f invoice.Filter) ([]*invoice.Invoice, error) {
	var conds []string
	var args []any

	if f.TeacherID != "" {
		conds = append(conds, "teacher_id = ?")
		args = append(args, f.TeacherID)
	}
	if f.Month != 0 {
		conds = append(conds, "month = ?")
		args = append(args, f.Month)
	}
	if f.Year != 0 {
		conds = append(conds, "year = ?")
		args = append(args, f.Year)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}

	query := invoiceSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	invoices, err := s.queryInvoices(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if err := s.loadChildren(ctx, q, inv); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

const invoiceSelect = `
	SELECT id, teacher_id, month, year, status, currency, exchange_rate,
	       tier_min_hours, tier_max_hours, tier_rate_usd, fee_model, fee_value,
	       total_hours, covered_hours,
	       gross_usd, gross_egp, bonuses_usd, bonuses_egp, extras_usd, extras_egp,
	       total_usd, total_egp, transfer_fee_egp, net_egp,
	       is_adjustment, adjusts_invoice_id,
	       payment_method, payment_proof_url, payment_notes,
	       generated_by, published_at, paid_at, archived_at,
	       created_at, updated_at, version
	FROM invoices`

func (s *Store) queryInvoices(ctx context.Context, q dbtx, query string, args ...any) ([]*invoice.Invoice, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(rows *sql.Rows) (*invoice.Invoice, error) {
	var (
		inv                                invoice.Invoice
		month, year                        int
		status, currency, exchangeRate     string
		tierMin, tierMax, tierRate         string
		feeModel, feeValue                 string
		totalHours, coveredHours           string
		grossUSD, grossEGP                 string
		bonusesUSD, bonusesEGP             string
		extrasUSD, extrasEGP               string
		totalUSD, totalEGP, feeEGP, netEGP string
		adjustsID                          sql.NullString
		payMethod, payProof, payNotes      sql.NullString
		generatedBy                        sql.NullString
		publishedAt, paidAt, archivedAt    sql.NullString
		createdAt, updatedAt               string
	)

	err := rows.Scan(
		&inv.ID, &inv.TeacherID, &month, &year, &status, &currency, &exchangeRate,
		&tierMin, &tierMax, &tierRate, &feeModel, &feeValue,
		&totalHours, &coveredHours,
		&grossUSD, &grossEGP, &bonusesUSD, &bonusesEGP, &extrasUSD, &extrasEGP,
		&totalUSD, &totalEGP, &feeEGP, &netEGP,
		&inv.IsAdjustment, &adjustsID,
		&payMethod, &payProof, &payNotes,
		&generatedBy, &publishedAt, &paidAt, &archivedAt,
		&createdAt, &updatedAt, &inv.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}

	inv.Period = billing.Period{Month: time.Month(month), Year: year}
	inv.Status = billing.Status(status)
	inv.Currency = billing.Currency(currency)
	inv.ExchangeRate = billing.MustParseDecimal(exchangeRate)
	inv.Tier = billing.RateTier{
		MinHours: billing.MustParseDecimal(tierMin),
		MaxHours: billing.MustParseDecimal(tierMax),
		RateUSD:  billing.MustParseDecimal(tierRate),
	}
	inv.Fee = billing.TransferFeeConfig{
		Model: billing.FeeModel(feeModel),
		Value: billing.MustParseDecimal(feeValue),
	}
	inv.TotalHours = billing.MustParseDecimal(totalHours)
	inv.CoveredHours = billing.MustParseDecimal(coveredHours)
	inv.Totals = billing.Totals{
		GrossUSD:       billing.MustParseDecimal(grossUSD),
		GrossEGP:       billing.MustParseDecimal(grossEGP),
		BonusesUSD:     billing.MustParseDecimal(bonusesUSD),
		BonusesEGP:     billing.MustParseDecimal(bonusesEGP),
		ExtrasUSD:      billing.MustParseDecimal(extrasUSD),
		ExtrasEGP:      billing.MustParseDecimal(extrasEGP),
		TotalUSD:       billing.MustParseDecimal(totalUSD),
		TotalEGP:       billing.MustParseDecimal(totalEGP),
		TransferFeeEGP: billing.MustParseDecimal(feeEGP),
		NetEGP:         billing.MustParseDecimal(netEGP),
	}
	inv.AdjustsInvoiceID = adjustsID.String
	inv.Payment = invoice.Payment{
		Method:   payMethod.String,
		ProofURL: payProof.String,
		Notes:    payNotes.String,
	}
	inv.GeneratedBy = generatedBy.String
	inv.PublishedAt = parseTimePtr(publishedAt)
	inv.PaidAt = parseTimePtr(paidAt)
	inv.ArchivedAt = parseTimePtr(archivedAt)
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &inv, nil
}

// loadChildren attaches bonuses, extras, refunds, changes and linked
// session IDs to an invoice header.
func (s *Store) loadChildren(ctx context.Context, q dbtx, inv *invoice.Invoice) error {
	var err error
	if inv.Bonuses, err = s.queryBonuses(ctx, q, inv.ID); err != nil {
		return err
	}
	if inv.Extras, err = s.queryExtras(ctx, q, inv.ID); err != nil {
		return err
	}
	if inv.Refunds, err = s.queryRefunds(ctx, q, inv.ID); err != nil {
		return err
	}
	if inv.Changes, err = s.changes(ctx, q, inv.ID); err != nil {
		return err
	}

	rows, err := q.QueryContext(ctx,
		"SELECT id FROM class_sessions WHERE invoice_id = ? ORDER BY occurred_on, id",
		inv.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	inv.SessionIDs = nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		inv.SessionIDs = append(inv.SessionIDs, id)
	}
	return rows.Err()
}

// =============================================================================
// INVOICE CHILDREN
// =============================================================================

func (s *Store) AddBonus(ctx context.Context, b invoice.Bonus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBonus(ctx, s.db, b)
}

func (s *Store) addBonus(ctx context.Context, q dbtx, b invoice.Bonus) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_bonuses (id, invoice_id, source, amount_usd, amount_egp, guardian_id, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.InvoiceID, b.Source, b.AmountUSD.String(), b.AmountEGP.String(),
		nullString(b.GuardianID), nullString(b.Reason), nullString(b.CreatedBy),
		b.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) queryBonuses(ctx context.Context, q dbtx, invoiceID string) ([]invoice.Bonus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, invoice_id, source, amount_usd, amount_egp, guardian_id, reason, created_by, created_at
		FROM invoice_bonuses WHERE invoice_id = ? ORDER BY created_at, id`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bonuses []invoice.Bonus
	for rows.Next() {
		var b invoice.Bonus
		var amountUSD, amountEGP, createdAt string
		var guardianID, reason, createdBy sql.NullString
		if err := rows.Scan(&b.ID, &b.InvoiceID, &b.Source, &amountUSD, &amountEGP,
			&guardianID, &reason, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		b.AmountUSD = billing.MustParseDecimal(amountUSD)
		b.AmountEGP = billing.MustParseDecimal(amountEGP)
		b.GuardianID = guardianID.String
		b.Reason = reason.String
		b.CreatedBy = createdBy.String
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		bonuses = append(bonuses, b)
	}
	return bonuses, rows.Err()
}

func (s *Store) AddExtra(ctx context.Context, e invoice.Extra) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addExtra(ctx, s.db, e)
}

func (s *Store) addExtra(ctx context.Context, q dbtx, e invoice.Extra) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_extras (id, invoice_id, amount_usd, amount_egp, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.InvoiceID, e.AmountUSD.String(), e.AmountEGP.String(),
		nullString(e.Description), nullString(e.CreatedBy),
		e.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) queryExtras(ctx context.Context, q dbtx, invoiceID string) ([]invoice.Extra, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, invoice_id, amount_usd, amount_egp, description, created_by, created_at
		FROM invoice_extras WHERE invoice_id = ? ORDER BY created_at, id`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var extras []invoice.Extra
	for rows.Next() {
		var e invoice.Extra
		var amountUSD, amountEGP, createdAt string
		var description, createdBy sql.NullString
		if err := rows.Scan(&e.ID, &e.InvoiceID, &amountUSD, &amountEGP,
			&description, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		e.AmountUSD = billing.MustParseDecimal(amountUSD)
		e.AmountEGP = billing.MustParseDecimal(amountEGP)
		e.Description = description.String
		e.CreatedBy = createdBy.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		extras = append(extras, e)
	}
	return extras, rows.Err()
}

func (s *Store) AddRefund(ctx context.Context, r invoice.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRefund(ctx, s.db, r)
}

func (s *Store) addRefund(ctx context.Context, q dbtx, r invoice.Refund) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_refunds (id, invoice_id, amount_egp, hours, reason, reference, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.InvoiceID, r.AmountEGP.String(), r.Hours.String(),
		nullString(r.Reason), nullString(r.Reference), nullString(r.CreatedBy),
		r.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) queryRefunds(ctx context.Context, q dbtx, invoiceID string) ([]invoice.Refund, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, invoice_id, amount_egp, hours, reason, reference, created_by, created_at
		FROM invoice_refunds WHERE invoice_id = ? ORDER BY created_at, id`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []invoice.Refund
	for rows.Next() {
		var r invoice.Refund
		var amountEGP, hours, createdAt string
		var reason, reference, createdBy sql.NullString
		if err := rows.Scan(&r.ID, &r.InvoiceID, &amountEGP, &hours,
			&reason, &reference, &createdBy, &createdAt); err != nil {
			return nil, err
		}
		r.AmountEGP = billing.MustParseDecimal(amountEGP)
		r.Hours = billing.MustParseDecimal(hours)
		r.Reason = reason.String
		r.Reference = reference.String
		r.CreatedBy = createdBy.String
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

func (s *Store) AppendChange(ctx context.Context, invoiceID string, c billing.ChangeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendChange(ctx, s.db, invoiceID, c)
}

func (s *Store) appendChange(ctx context.Context, q dbtx, invoiceID string, c billing.ChangeEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_changes (invoice_id, action, field, old_value, new_value, changed_by, changed_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invoiceID, string(c.Action), nullString(c.Field),
		nullString(c.OldValue), nullString(c.NewValue),
		c.ChangedBy, c.ChangedAt.Format(time.RFC3339), nullString(c.Note),
	)
	return err
}

func (s *Store) Changes(ctx context.Context, invoiceID string) ([]billing.ChangeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changes(ctx, s.db, invoiceID)
}

func (s *Store) changes(ctx context.Context, q dbtx, invoiceID string) ([]billing.ChangeEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT action, field, old_value, new_value, changed_by, changed_at, note
		FROM invoice_changes WHERE invoice_id = ? ORDER BY seq ASC`,
		invoiceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []billing.ChangeEntry
	for rows.Next() {
		var c billing.ChangeEntry
		var action, changedAt string
		var field, oldValue, newValue, note sql.NullString
		if err := rows.Scan(&action, &field, &oldValue, &newValue, &c.ChangedBy, &changedAt, &note); err != nil {
			return nil, err
		}
		c.Action = billing.ChangeAction(action)
		c.Field = field.String
		c.OldValue = oldValue.String
		c.NewValue = newValue.String
		c.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		c.Note = note.String
		entries = append(entries, c)
	}
	return entries, rows.Err()
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (s *Store) SaveExchangeRate(ctx context.Context, r invoice.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveExchangeRate(ctx, s.db, r)
}

func (s *Store) saveExchangeRate(ctx context.Context, q dbtx, r invoice.ExchangeRate) error {
	query := `
		INSERT INTO exchange_rates (year, month, rate, source, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year, month) DO UPDATE SET
			rate = excluded.rate,
			source = excluded.source,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := q.ExecContext(ctx, query,
		r.Period.Year, int(r.Period.Month), r.Rate.String(),
		nullString(r.Source), nullString(r.Notes),
		createdAt.Format(time.RFC3339), updatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetExchangeRate(ctx context.Context, p billing.Period) (*invoice.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getExchangeRate(ctx, s.db, p)
}

func (s *Store) getExchangeRate(ctx context.Context, q dbtx, p billing.Period) (*invoice.ExchangeRate, error) {
	var rate, createdAt, updatedAt string
	var source, notes sql.NullString

	err := q.QueryRowContext(ctx,
		"SELECT rate, source, notes, created_at, updated_at FROM exchange_rates WHERE year = ? AND month = ?",
		p.Year, int(p.Month),
	).Scan(&rate, &source, &notes, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r := invoice.ExchangeRate{
		Period: p,
		Rate:   billing.MustParseDecimal(rate),
		Source: source.String,
		Notes:  notes.String,
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func (s *Store) ListExchangeRates(ctx context.Context) ([]invoice.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listExchangeRates(ctx, s.db)
}

func (s *Store) listExchangeRates(ctx context.Context, q dbtx) ([]invoice.ExchangeRate, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT year, month, rate, source, notes, created_at, updated_at FROM exchange_rates ORDER BY year DESC, month DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []invoice.ExchangeRate
	for rows.Next() {
		var year, month int
		var rate, createdAt, updatedAt string
		var source, notes sql.NullString
		if err := rows.Scan(&year, &month, &rate, &source, &notes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r := invoice.ExchangeRate{
			Period: billing.Period{Month: time.Month(month), Year: year},
			Rate:   billing.MustParseDecimal(rate),
			Source: source.String,
			Notes:  notes.String,
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) SaveSetting(ctx context.Context, key string, value []byte, updatedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSetting(ctx, s.db, key, value, updatedBy)
}

func (s *Store) saveSetting(ctx context.Context, q dbtx, key string, value []byte, updatedBy string) error {
	query := `
		INSERT INTO billing_settings (key, value, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		key, string(value), nullString(updatedBy),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSetting(ctx, s.db, key)
}

func (s *Store) getSetting(ctx context.Context, q dbtx, key string) ([]byte, error) {
	var value string
	err := q.QueryRowContext(ctx,
		"SELECT value FROM billing_settings WHERE key = ?", key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction. The store
// passed to fn reads its own uncommitted writes.
func (s *Store) WithTx(ctx context.Context, fn func(store invoice.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txs := &txStore{tx: sqlTx, parent: s}
	if err := fn(txs); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open *sql.Tx.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveTeacher(ctx context.Context, t invoice.Teacher) error {
	return ts.parent.saveTeacher(ctx, ts.tx, t)
}

func (ts *txStore) GetTeacher(ctx context.Context, id string) (*invoice.Teacher, error) {
	return ts.parent.getTeacher(ctx, ts.tx, id)
}

func (ts *txStore) ListTeachers(ctx context.Context) ([]invoice.Teacher, error) {
	return ts.parent.listTeachers(ctx, ts.tx)
}

func (ts *txStore) SaveSession(ctx context.Context, sess invoice.ClassSession) error {
	return ts.parent.saveSession(ctx, ts.tx, sess)
}

func (ts *txStore) GetSession(ctx context.Context, id string) (*invoice.ClassSession, error) {
	return ts.parent.getSession(ctx, ts.tx, id)
}

func (ts *txStore) SessionsForTeacher(ctx context.Context, teacherID string) ([]invoice.ClassSession, error) {
	return ts.parent.sessionsForTeacher(ctx, ts.tx, teacherID)
}

func (ts *txStore) UnbilledSessions(ctx context.Context, teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	return ts.parent.unbilledSessions(ctx, ts.tx, teacherID, period)
}

func (ts *txStore) LinkSessions(ctx context.Context, invoiceID string, sessionIDs []string) error {
	return ts.parent.linkSessions(ctx, ts.tx, invoiceID, sessionIDs)
}

func (ts *txStore) UnlinkSessions(ctx context.Context, invoiceID string) error {
	return ts.parent.unlinkSessions(ctx, ts.tx, invoiceID)
}

func (ts *txStore) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	return ts.parent.saveInvoice(ctx, ts.tx, inv)
}

func (ts *txStore) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	return ts.parent.getInvoice(ctx, ts.tx, id)
}

func (ts *txStore) FindActiveInvoice(ctx context.Context, teacherID string, period billing.Period) (*invoice.Invoice, error) {
	return ts.parent.findActiveInvoice(ctx, ts.tx, teacherID, period)
}

func (ts *txStore) ListInvoices(ctx context.Context, f invoice.Filter) ([]*invoice.Invoice, error) {
	return ts.parent.listInvoices(ctx, ts.tx, f)
}

func (ts *txStore) AddBonus(ctx context.Context, b invoice.Bonus) error {
	return ts.parent.addBonus(ctx, ts.tx, b)
}

func (ts *txStore) AddExtra(ctx context.Context, e invoice.Extra) error {
	return ts.parent.addExtra(ctx, ts.tx, e)
}

func (ts *txStore) AddRefund(ctx context.Context, r invoice.Refund) error {
	return ts.parent.addRefund(ctx, ts.tx, r)
}

func (ts *txStore) AppendChange(ctx context.Context, invoiceID string, c billing.ChangeEntry) error {
	return ts.parent.appendChange(ctx, ts.tx, invoiceID, c)
}

func (ts *txStore) Changes(ctx context.Context, invoiceID string) ([]billing.ChangeEntry, error) {
	return ts.parent.changes(ctx, ts.tx, invoiceID)
}

func (ts *txStore) SaveExchangeRate(ctx context.Context, r invoice.ExchangeRate) error {
	return ts.parent.saveExchangeRate(ctx, ts.tx, r)
}

func (ts *txStore) GetExchangeRate(ctx context.Context, p billing.Period) (*invoice.ExchangeRate, error) {
	return ts.parent.getExchangeRate(ctx, ts.tx, p)
}

func (ts *txStore) ListExchangeRates(ctx context.Context) ([]invoice.ExchangeRate, error) {
	return ts.parent.listExchangeRates(ctx, ts.tx)
}

func (ts *txStore) SaveSetting(ctx context.Context, key string, value []byte, updatedBy string) error {
	return ts.parent.saveSetting(ctx, ts.tx, key, value, updatedBy)
}

func (ts *txStore) GetSetting(ctx context.Context, key string) ([]byte, error) {
	return ts.parent.getSetting(ctx, ts.tx, key)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"invoice_changes", "invoice_refunds", "invoice_extras", "invoice_bonuses",
		"class_sessions", "invoices", "exchange_rates", "billing_settings", "teachers",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
