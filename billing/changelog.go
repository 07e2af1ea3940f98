/*
changelog.go - Invoice change history

PURPOSE:
  Every mutation to an invoice appends an immutable audit entry. The
  history is append-only: entries are never edited or removed, even
  when the change they record is later superseded.

SEE ALSO:
  - status.go: status transitions each append one entry
  - totals.go: overrides append one entry per field
*/
package billing

import "time"

// ChangeAction labels what kind of mutation an entry records.
type ChangeAction string

const (
	ChangeGenerated   ChangeAction = "generated"
	ChangeRegenerated ChangeAction = "regenerated"
	ChangePublished   ChangeAction = "published"
	ChangeMarkedPaid  ChangeAction = "marked_paid"
	ChangeBonusAdded  ChangeAction = "bonus_added"
	ChangeExtraAdded  ChangeAction = "extra_added"
	ChangeOverride    ChangeAction = "override"
	ChangeRefund      ChangeAction = "refund"
	ChangeArchived    ChangeAction = "archived"
)

// ChangeEntry is one audit record. Old/new values are stored as
// strings so one history table serves statuses and money alike.
// Field is set for override entries and empty otherwise.
type ChangeEntry struct {
	Action    ChangeAction
	Field     string
	OldValue  string
	NewValue  string
	ChangedBy string
	ChangedAt time.Time
	Note      string
}

// NewChange stamps an entry with the current UTC time.
func NewChange(action ChangeAction, field, oldValue, newValue, changedBy, note string) ChangeEntry {
	return ChangeEntry{
		Action:    action,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedBy: changedBy,
		ChangedAt: time.Now().UTC(),
		Note:      note,
	}
}
