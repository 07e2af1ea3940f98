/*
store.go - Persistence interface for invoicing data

PURPOSE:
  Defines the interface between the invoicing services and the
  database. Different implementations back it with SQLite or memory.

KEY INTERFACES:
  Store:   CRUD for teachers, sessions, invoices, rates, settings
  TxStore: Transactional operations (atomic multi-table writes)

OWNERSHIP SPLIT:
  SaveInvoice persists the invoice HEADER only (identity, status,
  snapshots, hour counts, totals, payment, timestamps). Children are
  written through their own appenders (AddBonus, AddExtra, AddRefund,
  AppendChange) and session links through LinkSessions, so the change
  history stays append-only at the storage level too. GetInvoice and
  the list/find queries return fully assembled invoices, children
  included.

APPEND-ONLY CHILDREN:
  Change entries, bonuses, extras, and refunds are never updated or
  deleted. Corrections land as new entries (negative extras,
  overrides), keeping the audit trail complete.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - store/memory/memory.go: In-memory for tests and demos

SEE ALSO:
  - generate.go, mutate.go: the only callers that write
*/
package invoice

import (
	"context"

	"github.com/meridian/salary-engine/billing"
)

// =============================================================================
// FILTERS
// =============================================================================

// Filter narrows invoice listings. Zero values mean "any".
type Filter struct {
	TeacherID string
	Month     int
	Year      int
	Status    billing.Status
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of invoicing records.
type Store interface {
	// --- Teachers ---

	// SaveTeacher inserts or updates a teacher by ID.
	SaveTeacher(ctx context.Context, t Teacher) error

	// GetTeacher returns nil, nil when the teacher doesn't exist.
	GetTeacher(ctx context.Context, id string) (*Teacher, error)

	// ListTeachers returns all teachers ordered by name.
	ListTeachers(ctx context.Context) ([]Teacher, error)

	// --- Class sessions ---

	// SaveSession inserts or updates a session by ID.
	SaveSession(ctx context.Context, s ClassSession) error

	// GetSession returns nil, nil when the session doesn't exist.
	GetSession(ctx context.Context, id string) (*ClassSession, error)

	// SessionsForTeacher returns a teacher's sessions ordered by OccurredOn.
	SessionsForTeacher(ctx context.Context, teacherID string) ([]ClassSession, error)

	// UnbilledSessions returns the teacher's completed, unlinked
	// sessions whose OccurredOn falls inside the period.
	UnbilledSessions(ctx context.Context, teacherID string, period billing.Period) ([]ClassSession, error)

	// LinkSessions binds sessions to an invoice.
	LinkSessions(ctx context.Context, invoiceID string, sessionIDs []string) error

	// UnlinkSessions releases every session linked to an invoice,
	// making them billable again.
	UnlinkSessions(ctx context.Context, invoiceID string) error

	// --- Invoices ---

	// SaveInvoice inserts or updates the invoice header. Children are
	// NOT written here; see the appenders below.
	SaveInvoice(ctx context.Context, inv *Invoice) error

	// GetInvoice returns the fully assembled invoice (children and
	// session links included), or nil, nil when it doesn't exist.
	GetInvoice(ctx context.Context, id string) (*Invoice, error)

	// FindActiveInvoice returns the teacher's non-adjustment,
	// non-archived invoice for the period, or nil, nil.
	FindActiveInvoice(ctx context.Context, teacherID string, period billing.Period) (*Invoice, error)

	// ListInvoices returns assembled invoices matching the filter,
	// newest first.
	ListInvoices(ctx context.Context, f Filter) ([]*Invoice, error)

	// --- Invoice children (append-only) ---

	AddBonus(ctx context.Context, b Bonus) error
	AddExtra(ctx context.Context, e Extra) error
	AddRefund(ctx context.Context, r Refund) error
	AppendChange(ctx context.Context, invoiceID string, c billing.ChangeEntry) error

	// Changes returns an invoice's change history, oldest first.
	Changes(ctx context.Context, invoiceID string) ([]billing.ChangeEntry, error)

	// --- Exchange rates ---

	// SaveExchangeRate inserts or overwrites the rate for its period.
	SaveExchangeRate(ctx context.Context, r ExchangeRate) error

	// GetExchangeRate returns nil, nil when no rate is saved.
	GetExchangeRate(ctx context.Context, p billing.Period) (*ExchangeRate, error)

	// ListExchangeRates returns all saved rates, newest period first.
	ListExchangeRates(ctx context.Context) ([]ExchangeRate, error)

	// --- Settings (raw JSON documents, parsed by the settings package) ---

	// SaveSetting upserts a settings document under its key.
	SaveSetting(ctx context.Context, key string, value []byte, updatedBy string) error

	// GetSetting returns nil, nil when the key has never been saved.
	GetSetting(ctx context.Context, key string) ([]byte, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. Generation and every
// invoice mutation run inside WithTx so header, children, and session
// links move together or not at all.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
