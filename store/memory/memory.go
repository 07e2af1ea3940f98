// Package memory provides an in-memory Store implementation for tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Store keeps everything in maps guarded by one RWMutex. Reads hand out
// copies, so callers can never mutate stored state behind the lock.
type Store struct {
	mu sync.RWMutex

	teachers map[string]invoice.Teacher
	sessions map[string]invoice.ClassSession
	invoices map[string]invoice.Invoice // headers only; children below
	bonuses  map[string][]invoice.Bonus
	extras   map[string][]invoice.Extra
	refunds  map[string][]invoice.Refund
	changes  map[string][]billing.ChangeEntry
	rates    map[billing.Period]invoice.ExchangeRate
	settings map[string]settingRow
}

type settingRow struct {
	value     []byte
	updatedBy string
	updatedAt time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

func (m *Store) resetLocked() {
	m.teachers = make(map[string]invoice.Teacher)
	m.sessions = make(map[string]invoice.ClassSession)
	m.invoices = make(map[string]invoice.Invoice)
	m.bonuses = make(map[string][]invoice.Bonus)
	m.extras = make(map[string][]invoice.Extra)
	m.refunds = make(map[string][]invoice.Refund)
	m.changes = make(map[string][]billing.ChangeEntry)
	m.rates = make(map[billing.Period]invoice.ExchangeRate)
	m.settings = make(map[string]settingRow)
}

// Reset wipes all data. Used by scenario loading.
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// TEACHERS
// =============================================================================

func (m *Store) SaveTeacher(_ context.Context, t invoice.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTeacherLocked(t)
}

func (m *Store) saveTeacherLocked(t invoice.Teacher) error {
	m.teachers[t.ID] = t
	return nil
}

func (m *Store) GetTeacher(_ context.Context, id string) (*invoice.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getTeacherLocked(id)
}

func (m *Store) getTeacherLocked(id string) (*invoice.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Store) ListTeachers(_ context.Context) ([]invoice.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listTeachersLocked()
}

func (m *Store) listTeachersLocked() ([]invoice.Teacher, error) {
	out := make([]invoice.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// CLASS SESSIONS
// =============================================================================

func (m *Store) SaveSession(_ context.Context, s invoice.ClassSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionLocked(s)
}

func (m *Store) saveSessionLocked(s invoice.ClassSession) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *Store) GetSession(_ context.Context, id string) (*invoice.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSessionLocked(id)
}

func (m *Store) getSessionLocked(id string) (*invoice.ClassSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) SessionsForTeacher(_ context.Context, teacherID string) ([]invoice.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionsForTeacherLocked(teacherID)
}

func (m *Store) sessionsForTeacherLocked(teacherID string) ([]invoice.ClassSession, error) {
	var out []invoice.ClassSession
	for _, s := range m.sessions {
		if s.TeacherID == teacherID {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Store) UnbilledSessions(_ context.Context, teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unbilledSessionsLocked(teacherID, period)
}

func (m *Store) unbilledSessionsLocked(teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	var out []invoice.ClassSession
	for _, s := range m.sessions {
		if s.TeacherID == teacherID && s.Billable() && s.InvoiceID == "" && period.Contains(s.OccurredOn) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Store) LinkSessions(_ context.Context, invoiceID string, sessionIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkSessionsLocked(invoiceID, sessionIDs)
}

func (m *Store) linkSessionsLocked(invoiceID string, sessionIDs []string) error {
	for _, id := range sessionIDs {
		s, ok := m.sessions[id]
		if !ok {
			return fmt.Errorf("%w: %s", billing.ErrSessionNotFound, id)
		}
		s.InvoiceID = invoiceID
		m.sessions[id] = s
	}
	return nil
}

func (m *Store) UnlinkSessions(_ context.Context, invoiceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlinkSessionsLocked(invoiceID)
}

func (m *Store) unlinkSessionsLocked(invoiceID string) error {
	for id, s := range m.sessions {
		if s.InvoiceID == invoiceID {
			s.InvoiceID = ""
			m.sessions[id] = s
		}
	}
	return nil
}

func sortSessions(sessions []invoice.ClassSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].OccurredOn.Equal(sessions[j].OccurredOn) {
			return sessions[i].OccurredOn.Before(sessions[j].OccurredOn)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

// =============================================================================
// INVOICES
// =============================================================================

func (m *Store) SaveInvoice(_ context.Context, inv *invoice.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveInvoiceLocked(inv)
}

func (m *Store) saveInvoiceLocked(inv *invoice.Invoice) error {
	if existing, ok := m.invoices[inv.ID]; ok {
		inv.Version = existing.Version + 1
	} else if inv.Version == 0 {
		inv.Version = 1
	}
	header := *inv
	header.Bonuses = nil
	header.Extras = nil
	header.Refunds = nil
	header.Changes = nil
	header.SessionIDs = nil
	m.invoices[inv.ID] = header
	return nil
}

func (m *Store) GetInvoice(_ context.Context, id string) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getInvoiceLocked(id)
}

func (m *Store) getInvoiceLocked(id string) (*invoice.Invoice, error) {
	header, ok := m.invoices[id]
	if !ok {
		return nil, nil
	}
	return m.assembleLocked(header), nil
}

// assembleLocked attaches copies of children and session links.
func (m *Store) assembleLocked(header invoice.Invoice) *invoice.Invoice {
	inv := header
	inv.Bonuses = append([]invoice.Bonus(nil), m.bonuses[inv.ID]...)
	inv.Extras = append([]invoice.Extra(nil), m.extras[inv.ID]...)
	inv.Refunds = append([]invoice.Refund(nil), m.refunds[inv.ID]...)
	inv.Changes = append([]billing.ChangeEntry(nil), m.changes[inv.ID]...)

	var linked []invoice.ClassSession
	for _, s := range m.sessions {
		if s.InvoiceID == inv.ID {
			linked = append(linked, s)
		}
	}
	sortSessions(linked)
	for _, s := range linked {
		inv.SessionIDs = append(inv.SessionIDs, s.ID)
	}
	return &inv
}

func (m *Store) FindActiveInvoice(_ context.Context, teacherID string, period billing.Period) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findActiveInvoiceLocked(teacherID, period)
}

func (m *Store) findActiveInvoiceLocked(teacherID string, period billing.Period) (*invoice.Invoice, error) {
	var match *invoice.Invoice
	for id := range m.invoices {
		header := m.invoices[id]
		if header.TeacherID != teacherID || header.Period != period {
			continue
		}
		if header.IsAdjustment || header.Status == billing.StatusArchived {
			continue
		}
		if match == nil || header.CreatedAt.Before(match.CreatedAt) {
			assembled := m.assembleLocked(header)
			match = assembled
		}
	}
	return match, nil
}

func (m *Store) ListInvoices(_ context.Context, f invoice.Filter) ([]*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listInvoicesLocked(f)
}

func (m *Store) listInvoicesLocked(f invoice.Filter) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for id := range m.invoices {
		header := m.invoices[id]
		if f.TeacherID != "" && header.TeacherID != f.TeacherID {
			continue
		}
		if f.Month != 0 && int(header.Period.Month) != f.Month {
			continue
		}
		if f.Year != 0 && header.Period.Year != f.Year {
			continue
		}
		if f.Status != "" && header.Status != f.Status {
			continue
		}
		out = append(out, m.assembleLocked(header))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// =============================================================================
// INVOICE CHILDREN
// =============================================================================

func (m *Store) AddBonus(_ context.Context, b invoice.Bonus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addBonusLocked(b)
}

func (m *Store) addBonusLocked(b invoice.Bonus) error {
	m.bonuses[b.InvoiceID] = append(m.bonuses[b.InvoiceID], b)
	return nil
}

func (m *Store) AddExtra(_ context.Context, e invoice.Extra) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addExtraLocked(e)
}

func (m *Store) addExtraLocked(e invoice.Extra) error {
	m.extras[e.InvoiceID] = append(m.extras[e.InvoiceID], e)
	return nil
}

func (m *Store) AddRefund(_ context.Context, r invoice.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addRefundLocked(r)
}

func (m *Store) addRefundLocked(r invoice.Refund) error {
	m.refunds[r.InvoiceID] = append(m.refunds[r.InvoiceID], r)
	return nil
}

func (m *Store) AppendChange(_ context.Context, invoiceID string, c billing.ChangeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendChangeLocked(invoiceID, c)
}

func (m *Store) appendChangeLocked(invoiceID string, c billing.ChangeEntry) error {
	m.changes[invoiceID] = append(m.changes[invoiceID], c)
	return nil
}

func (m *Store) Changes(_ context.Context, invoiceID string) ([]billing.ChangeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changesLocked(invoiceID)
}

func (m *Store) changesLocked(invoiceID string) ([]billing.ChangeEntry, error) {
	return append([]billing.ChangeEntry(nil), m.changes[invoiceID]...), nil
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (m *Store) SaveExchangeRate(_ context.Context, r invoice.ExchangeRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveExchangeRateLocked(r)
}

func (m *Store) saveExchangeRateLocked(r invoice.ExchangeRate) error {
	if existing, ok := m.rates[r.Period]; ok {
		r.CreatedAt = existing.CreatedAt
	}
	m.rates[r.Period] = r
	return nil
}

func (m *Store) GetExchangeRate(_ context.Context, p billing.Period) (*invoice.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExchangeRateLocked(p)
}

func (m *Store) getExchangeRateLocked(p billing.Period) (*invoice.ExchangeRate, error) {
	r, ok := m.rates[p]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) ListExchangeRates(_ context.Context) ([]invoice.ExchangeRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listExchangeRatesLocked()
}

func (m *Store) listExchangeRatesLocked() ([]invoice.ExchangeRate, error) {
	out := make([]invoice.ExchangeRate, 0, len(m.rates))
	for _, r := range m.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year > out[j].Period.Year
		}
		return out[i].Period.Month > out[j].Period.Month
	})
	return out, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Store) SaveSetting(_ context.Context, key string, value []byte, updatedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSettingLocked(key, value, updatedBy)
}

func (m *Store) saveSettingLocked(key string, value []byte, updatedBy string) error {
	m.settings[key] = settingRow{
		value:     append([]byte(nil), value...),
		updatedBy: updatedBy,
		updatedAt: time.Now().UTC(),
	}
	return nil
}

func (m *Store) GetSetting(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSettingLocked(key)
}

func (m *Store) getSettingLocked(key string) ([]byte, error) {
	row, ok := m.settings[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), row.value...), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a full
// snapshot + rollback on error.
func (m *Store) WithTx(_ context.Context, fn func(invoice.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	teachers map[string]invoice.Teacher
	sessions map[string]invoice.ClassSession
	invoices map[string]invoice.Invoice
	bonuses  map[string][]invoice.Bonus
	extras   map[string][]invoice.Extra
	refunds  map[string][]invoice.Refund
	changes  map[string][]billing.ChangeEntry
	rates    map[billing.Period]invoice.ExchangeRate
	settings map[string]settingRow
}

func (m *Store) snapshotLocked() memorySnapshot {
	s := memorySnapshot{
		teachers: make(map[string]invoice.Teacher, len(m.teachers)),
		sessions: make(map[string]invoice.ClassSession, len(m.sessions)),
		invoices: make(map[string]invoice.Invoice, len(m.invoices)),
		bonuses:  make(map[string][]invoice.Bonus, len(m.bonuses)),
		extras:   make(map[string][]invoice.Extra, len(m.extras)),
		refunds:  make(map[string][]invoice.Refund, len(m.refunds)),
		changes:  make(map[string][]billing.ChangeEntry, len(m.changes)),
		rates:    make(map[billing.Period]invoice.ExchangeRate, len(m.rates)),
		settings: make(map[string]settingRow, len(m.settings)),
	}
	for k, v := range m.teachers {
		s.teachers[k] = v
	}
	for k, v := range m.sessions {
		s.sessions[k] = v
	}
	for k, v := range m.invoices {
		s.invoices[k] = v
	}
	for k, v := range m.bonuses {
		s.bonuses[k] = append([]invoice.Bonus(nil), v...)
	}
	for k, v := range m.extras {
		s.extras[k] = append([]invoice.Extra(nil), v...)
	}
	for k, v := range m.refunds {
		s.refunds[k] = append([]invoice.Refund(nil), v...)
	}
	for k, v := range m.changes {
		s.changes[k] = append([]billing.ChangeEntry(nil), v...)
	}
	for k, v := range m.rates {
		s.rates[k] = v
	}
	for k, v := range m.settings {
		s.settings[k] = v
	}
	return s
}

func (m *Store) restoreLocked(s memorySnapshot) {
	m.teachers = s.teachers
	m.sessions = s.sessions
	m.invoices = s.invoices
	m.bonuses = s.bonuses
	m.extras = s.extras
	m.refunds = s.refunds
	m.changes = s.changes
	m.rates = s.rates
	m.settings = s.settings
}

// txView runs against the parent's state while the parent holds its
// own write lock, so it calls the lock-free variants directly.
type txView struct {
	parent *Store
}

func (tv *txView) SaveTeacher(_ context.Context, t invoice.Teacher) error {
	return tv.parent.saveTeacherLocked(t)
}

func (tv *txView) GetTeacher(_ context.Context, id string) (*invoice.Teacher, error) {
	return tv.parent.getTeacherLocked(id)
}

func (tv *txView) ListTeachers(_ context.Context) ([]invoice.Teacher, error) {
	return tv.parent.listTeachersLocked()
}

func (tv *txView) SaveSession(_ context.Context, s invoice.ClassSession) error {
	return tv.parent.saveSessionLocked(s)
}

func (tv *txView) GetSession(_ context.Context, id string) (*invoice.ClassSession, error) {
	return tv.parent.getSessionLocked(id)
}

func (tv *txView) SessionsForTeacher(_ context.Context, teacherID string) ([]invoice.ClassSession, error) {
	return tv.parent.sessionsForTeacherLocked(teacherID)
}

func (tv *txView) UnbilledSessions(_ context.Context, teacherID string, period billing.Period) ([]invoice.ClassSession, error) {
	return tv.parent.unbilledSessionsLocked(teacherID, period)
}

func (tv *txView) LinkSessions(_ context.Context, invoiceID string, sessionIDs []string) error {
	return tv.parent.linkSessionsLocked(invoiceID, sessionIDs)
}

func (tv *txView) UnlinkSessions(_ context.Context, invoiceID string) error {
	return tv.parent.unlinkSessionsLocked(invoiceID)
}

func (tv *txView) SaveInvoice(_ context.Context, inv *invoice.Invoice) error {
	return tv.parent.saveInvoiceLocked(inv)
}

func (tv *txView) GetInvoice(_ context.Context, id string) (*invoice.Invoice, error) {
	return tv.parent.getInvoiceLocked(id)
}

func (tv *txView) FindActiveInvoice(_ context.Context, teacherID string, period billing.Period) (*invoice.Invoice, error) {
	return tv.parent.findActiveInvoiceLocked(teacherID, period)
}

func (tv *txView) ListInvoices(_ context.Context, f invoice.Filter) ([]*invoice.Invoice, error) {
	return tv.parent.listInvoicesLocked(f)
}

func (tv *txView) AddBonus(_ context.Context, b invoice.Bonus) error {
	return tv.parent.addBonusLocked(b)
}

func (tv *txView) AddExtra(_ context.Context, e invoice.Extra) error {
	return tv.parent.addExtraLocked(e)
}

func (tv *txView) AddRefund(_ context.Context, r invoice.Refund) error {
	return tv.parent.addRefundLocked(r)
}

func (tv *txView) AppendChange(_ context.Context, invoiceID string, c billing.ChangeEntry) error {
	return tv.parent.appendChangeLocked(invoiceID, c)
}

func (tv *txView) Changes(_ context.Context, invoiceID string) ([]billing.ChangeEntry, error) {
	return tv.parent.changesLocked(invoiceID)
}

func (tv *txView) SaveExchangeRate(_ context.Context, r invoice.ExchangeRate) error {
	return tv.parent.saveExchangeRateLocked(r)
}

func (tv *txView) GetExchangeRate(_ context.Context, p billing.Period) (*invoice.ExchangeRate, error) {
	return tv.parent.getExchangeRateLocked(p)
}

func (tv *txView) ListExchangeRates(_ context.Context) ([]invoice.ExchangeRate, error) {
	return tv.parent.listExchangeRatesLocked()
}

func (tv *txView) SaveSetting(_ context.Context, key string, value []byte, updatedBy string) error {
	return tv.parent.saveSettingLocked(key, value, updatedBy)
}

func (tv *txView) GetSetting(_ context.Context, key string) ([]byte, error) {
	return tv.parent.getSettingLocked(key)
}
