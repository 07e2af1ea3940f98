/*
mutate.go - Invoice lifecycle mutations

PURPOSE:
  Everything that changes an invoice after generation: publishing,
  marking paid, bonuses, extras, manual overrides, refunds, and
  archiving. Each mutation is TRANSACTIONAL: the invoice header, its
  children, and its change entry move together or not at all.

STATUS RULES ENFORCED HERE:
  - Financial edits (bonus, extra, override) require draft or published.
  - Refunds require paid.
  - Archiving soft-deletes a draft or published invoice and releases
    its sessions for the next generation run.
  - Paid is otherwise terminal.

AUDIT:
  Every mutation appends exactly one change entry per logical change
  (overrides: one per field). The history is never rewritten.

SEE ALSO:
  - generate.go: how invoices come to exist
  - billing/status.go: the transition table
  - billing/refund.go: refund pair validation
*/
package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/logger"
)

// DefaultActor is recorded when a mutation arrives without an
// explicit changedBy.
const DefaultActor = "admin"

// =============================================================================
// INPUTS
// =============================================================================

// MarkPaidInput records how an invoice was settled.
type MarkPaidInput struct {
	Method   string
	ProofURL string
	Notes    string
	Actor    string
}

// BonusInput credits a bonus in USD.
type BonusInput struct {
	Source     string
	AmountUSD  decimal.Decimal
	GuardianID string
	Reason     string
	Actor      string
}

// ExtraInput credits (or, when negative, corrects) an extra in USD.
type ExtraInput struct {
	AmountUSD   decimal.Decimal
	Description string
	Actor       string
}

// OverridesInput writes raw values into whitelisted totals fields.
type OverridesInput struct {
	Fields map[string]decimal.Decimal
	Note   string
	Actor  string
}

// RefundInput claws part of a paid invoice back.
type RefundInput struct {
	AmountEGP decimal.Decimal
	Hours     decimal.Decimal
	Reason    string
	Reference string
	Actor     string
}

// =============================================================================
// SERVICE
// =============================================================================

// Service applies lifecycle mutations to invoices.
type Service struct {
	store TxStore
	log   zerolog.Logger
}

// NewService creates a mutation service on the given store.
func NewService(store TxStore) *Service {
	return &Service{
		store: store,
		log:   logger.WithComponent("invoices"),
	}
}

// Get returns the assembled invoice or ErrInvoiceNotFound.
func (sv *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	return getInvoice(ctx, sv.store, id)
}

// List returns invoices matching the filter, newest first.
func (sv *Service) List(ctx context.Context, f Filter) ([]*Invoice, error) {
	return sv.store.ListInvoices(ctx, f)
}

// History returns the invoice's change entries, oldest first.
func (sv *Service) History(ctx context.Context, id string) ([]billing.ChangeEntry, error) {
	if _, err := getInvoice(ctx, sv.store, id); err != nil {
		return nil, err
	}
	return sv.store.Changes(ctx, id)
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

// Publish moves a draft to published, freezing its composition for
// teacher review.
func (sv *Service) Publish(ctx context.Context, id, actor string) (*Invoice, error) {
	actor = actorOrDefault(actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		next, err := billing.Transition(inv.Status, billing.TriggerPublish)
		if err != nil {
			return err
		}

		old := inv.Status
		now := time.Now().UTC()
		inv.Status = next
		inv.PublishedAt = &now
		inv.UpdatedAt = now

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangePublished, "", string(old), string(next), actor, ""))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Str("actor", actor).Msg("invoice published")
	return inv, nil
}

// MarkPaid records settlement of a published invoice.
func (sv *Service) MarkPaid(ctx context.Context, id string, in MarkPaidInput) (*Invoice, error) {
	actor := actorOrDefault(in.Actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		next, err := billing.Transition(inv.Status, billing.TriggerMarkPaid)
		if err != nil {
			return err
		}

		old := inv.Status
		now := time.Now().UTC()
		inv.Status = next
		inv.PaidAt = &now
		inv.UpdatedAt = now
		inv.Payment = Payment{Method: in.Method, ProofURL: in.ProofURL, Notes: in.Notes}

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangeMarkedPaid, "", string(old), string(next), actor,
				fmt.Sprintf("method: %s", in.Method)))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Str("method", in.Method).Msg("invoice marked paid")
	return inv, nil
}

// Archive soft-deletes a draft or published invoice. Its sessions are
// released and will be picked up by the next generation run.
func (sv *Service) Archive(ctx context.Context, id, actor string) (*Invoice, error) {
	actor = actorOrDefault(actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		next, err := billing.Transition(inv.Status, billing.TriggerArchive)
		if err != nil {
			return err
		}

		old := inv.Status
		now := time.Now().UTC()
		inv.Status = next
		inv.ArchivedAt = &now
		inv.UpdatedAt = now

		if err := s.UnlinkSessions(ctx, inv.ID); err != nil {
			return err
		}
		released := len(inv.SessionIDs)
		inv.SessionIDs = nil

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangeArchived, "", string(old), string(next), actor,
				fmt.Sprintf("%d sessions released", released)))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Str("actor", actor).Msg("invoice archived")
	return inv, nil
}

// =============================================================================
// FINANCIAL EDITS
// =============================================================================

// AddBonus credits a bonus onto a draft or published invoice.
func (sv *Service) AddBonus(ctx context.Context, id string, in BonusInput) (*Invoice, error) {
	actor := actorOrDefault(in.Actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		if !billing.CanMutate(inv.Status) {
			return &billing.ImmutableInvoiceError{Status: inv.Status}
		}

		amount := billing.Round2(in.AmountUSD)
		oldBonuses := inv.Totals.BonusesUSD
		inv.Totals.AddBonus(amount, inv.ExchangeRate)
		inv.UpdatedAt = time.Now().UTC()

		bonus := Bonus{
			ID:         uuid.NewString(),
			InvoiceID:  inv.ID,
			Source:     in.Source,
			AmountUSD:  amount,
			AmountEGP:  billing.Convert(amount, inv.ExchangeRate),
			GuardianID: in.GuardianID,
			Reason:     in.Reason,
			CreatedBy:  actor,
			CreatedAt:  inv.UpdatedAt,
		}
		if err := s.AddBonus(ctx, bonus); err != nil {
			return err
		}
		inv.Bonuses = append(inv.Bonuses, bonus)

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		note := in.Source
		if in.Reason != "" {
			note = fmt.Sprintf("%s: %s", in.Source, in.Reason)
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangeBonusAdded, billing.FieldBonusesUSD,
				oldBonuses.StringFixed(2), inv.Totals.BonusesUSD.StringFixed(2), actor, note))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Str("amount_usd", in.AmountUSD.String()).Msg("bonus added")
	return inv, nil
}

// AddExtra credits an extra onto a draft or published invoice.
// Negative amounts are allowed for corrections.
func (sv *Service) AddExtra(ctx context.Context, id string, in ExtraInput) (*Invoice, error) {
	actor := actorOrDefault(in.Actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		if !billing.CanMutate(inv.Status) {
			return &billing.ImmutableInvoiceError{Status: inv.Status}
		}

		amount := billing.Round2(in.AmountUSD)
		oldExtras := inv.Totals.ExtrasUSD
		inv.Totals.AddExtra(amount, inv.ExchangeRate)
		inv.UpdatedAt = time.Now().UTC()

		extra := Extra{
			ID:          uuid.NewString(),
			InvoiceID:   inv.ID,
			AmountUSD:   amount,
			AmountEGP:   billing.Convert(amount, inv.ExchangeRate),
			Description: in.Description,
			CreatedBy:   actor,
			CreatedAt:   inv.UpdatedAt,
		}
		if err := s.AddExtra(ctx, extra); err != nil {
			return err
		}
		inv.Extras = append(inv.Extras, extra)

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangeExtraAdded, billing.FieldExtrasUSD,
				oldExtras.StringFixed(2), inv.Totals.ExtrasUSD.StringFixed(2), actor, in.Description))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Str("amount_usd", in.AmountUSD.String()).Msg("extra added")
	return inv, nil
}

// ApplyOverrides writes raw values into whitelisted totals fields.
// Fields apply in the whitelist's order, each with its own change
// entry. Nothing is recomputed from an override, so resubmitting the
// same payload leaves the invoice identical.
func (sv *Service) ApplyOverrides(ctx context.Context, id string, in OverridesInput) (*Invoice, error) {
	actor := actorOrDefault(in.Actor)
	if len(in.Fields) == 0 {
		return nil, fmt.Errorf("no override fields given")
	}
	// Reject unknown fields before touching anything.
	allowed := make(map[string]bool, len(billing.OverridableFields()))
	for _, f := range billing.OverridableFields() {
		allowed[f] = true
	}
	for field := range in.Fields {
		if !allowed[field] {
			return nil, &billing.OverrideFieldError{Field: field}
		}
	}

	var inv *Invoice
	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		if !billing.CanMutate(inv.Status) {
			return &billing.ImmutableInvoiceError{Status: inv.Status}
		}

		for _, field := range billing.OverridableFields() {
			value, ok := in.Fields[field]
			if !ok {
				continue
			}
			old, err := inv.Totals.Set(field, value)
			if err != nil {
				return err
			}
			change := billing.NewChange(billing.ChangeOverride, field,
				old.StringFixed(2), billing.Round2(value).StringFixed(2), actor, in.Note)
			if err := s.AppendChange(ctx, inv.ID, change); err != nil {
				return err
			}
			inv.Changes = append(inv.Changes, change)
		}
		inv.UpdatedAt = time.Now().UTC()
		return s.SaveInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().Str("invoice_id", id).Int("fields", len(in.Fields)).Msg("overrides applied")
	return inv, nil
}

// =============================================================================
// REFUNDS
// =============================================================================

// Refund validates and applies a clawback against a paid invoice: the
// refund is recorded, the remaining refundable hours shrink, and the
// net payout drops by the refunded amount.
func (sv *Service) Refund(ctx context.Context, id string, in RefundInput) (*Invoice, error) {
	actor := actorOrDefault(in.Actor)
	var inv *Invoice

	err := sv.store.WithTx(ctx, func(s Store) error {
		var err error
		inv, err = getInvoice(ctx, s, id)
		if err != nil {
			return err
		}
		if inv.Status != billing.StatusPaid {
			return &billing.RefundNotAllowedError{Status: inv.Status}
		}

		validated, err := inv.RefundValidator().Validate(in.Hours, in.AmountEGP)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		oldNet := inv.Totals.NetEGP
		inv.CoveredHours = billing.Round3(inv.CoveredHours.Sub(validated.Hours))
		inv.Totals.NetEGP = billing.Round2(oldNet.Sub(validated.AmountEGP))
		inv.UpdatedAt = now

		refund := Refund{
			ID:        uuid.NewString(),
			InvoiceID: inv.ID,
			AmountEGP: validated.AmountEGP,
			Hours:     validated.Hours,
			Reason:    in.Reason,
			Reference: in.Reference,
			CreatedBy: actor,
			CreatedAt: now,
		}
		if err := s.AddRefund(ctx, refund); err != nil {
			return err
		}
		inv.Refunds = append(inv.Refunds, refund)

		if err := s.SaveInvoice(ctx, inv); err != nil {
			return err
		}
		return sv.appendChange(ctx, s, inv,
			billing.NewChange(billing.ChangeRefund, billing.FieldNetEGP,
				oldNet.StringFixed(2), inv.Totals.NetEGP.StringFixed(2), actor, in.Reason))
	})
	if err != nil {
		return nil, err
	}

	sv.log.Info().
		Str("invoice_id", id).
		Str("amount", in.AmountEGP.String()).
		Str("hours", in.Hours.String()).
		Msg("refund applied")
	return inv, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func getInvoice(ctx context.Context, s Store, id string) (*Invoice, error) {
	inv, err := s.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", billing.ErrInvoiceNotFound, id)
	}
	return inv, nil
}

func (sv *Service) appendChange(ctx context.Context, s Store, inv *Invoice, change billing.ChangeEntry) error {
	if err := s.AppendChange(ctx, inv.ID, change); err != nil {
		return err
	}
	inv.Changes = append(inv.Changes, change)
	return nil
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return DefaultActor
	}
	return actor
}
