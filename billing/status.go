/*
status.go - Invoice status state machine

PURPOSE:
  An invoice moves through a strict lifecycle:

    draft -> published -> paid
    draft -> archived
    published -> archived

  Paid invoices are terminal: they are never archived, edited, or
  re-published. Corrections to a paid month arrive as a separate
  adjustment invoice. Archiving is the soft delete; archived invoices
  stay readable in history but leave the active books.

IMPLEMENTATION:
  The permitted edges live in one stateless.StateMachine configuration
  so the transition table is readable in a single place. Machines are
  built per call; they carry no state between transitions.

SEE ALSO:
  - changelog.go: every transition appends a change entry
  - errors.go: InvalidTransitionError for rejected edges
*/
package billing

import "github.com/qmuntal/stateless"

// =============================================================================
// STATUS
// =============================================================================

// Status is an invoice lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusPaid      Status = "paid"
	StatusArchived  Status = "archived"
)

// Statuses lists all lifecycle states.
var Statuses = []Status{StatusDraft, StatusPublished, StatusPaid, StatusArchived}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPaid, StatusArchived:
		return true
	default:
		return false
	}
}

// =============================================================================
// TRIGGERS
// =============================================================================

// Trigger names a requested status transition.
type Trigger string

const (
	TriggerPublish  Trigger = "publish"
	TriggerMarkPaid Trigger = "mark_paid"
	TriggerArchive  Trigger = "archive"
)

// verb renders the trigger for error messages.
func (t Trigger) verb() string {
	switch t {
	case TriggerPublish:
		return "publish"
	case TriggerMarkPaid:
		return "mark paid"
	case TriggerArchive:
		return "archive"
	default:
		return string(t)
	}
}

// =============================================================================
// MACHINE
// =============================================================================

// newStatusMachine wires the permitted transition edges starting from
// the given status.
func newStatusMachine(current Status) *stateless.StateMachine {
	machine := stateless.NewStateMachine(current)

	machine.Configure(StatusDraft).
		Permit(TriggerPublish, StatusPublished).
		Permit(TriggerArchive, StatusArchived)

	machine.Configure(StatusPublished).
		Permit(TriggerMarkPaid, StatusPaid).
		Permit(TriggerArchive, StatusArchived)

	// Terminal states: no outgoing edges.
	machine.Configure(StatusPaid)
	machine.Configure(StatusArchived)

	return machine
}

// Transition applies trigger to the current status and returns the
// resulting one. Rejected edges return an InvalidTransitionError and
// leave the status unchanged.
func Transition(from Status, trigger Trigger) (Status, error) {
	machine := newStatusMachine(from)
	if err := machine.Fire(trigger); err != nil {
		return from, &InvalidTransitionError{From: from, Trigger: trigger}
	}
	return machine.MustState().(Status), nil
}

// CanTransition reports whether the edge exists without applying it.
func CanTransition(from Status, trigger Trigger) bool {
	ok, err := newStatusMachine(from).CanFire(trigger)
	return err == nil && ok
}

// CanMutate reports whether financial edits (bonuses, extras,
// overrides) are still allowed. Only draft and published invoices are
// financially mutable.
func CanMutate(s Status) bool {
	return s == StatusDraft || s == StatusPublished
}
