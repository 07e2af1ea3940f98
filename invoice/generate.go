/*
generate.go - Monthly batch invoice generation

PURPOSE:
  Turns a month of unbilled class sessions into draft invoices, one per
  teacher. Re-running generation is safe: drafts absorb newly reported
  sessions, published invoices are left alone, and paid invoices get a
  separate adjustment invoice for late sessions.

OUTCOME BUCKETS:
  created  - fresh draft invoice for sessions that had none
  adjusted - existing draft regenerated, or adjustment added to a paid month
  skipped  - nothing to do (no sessions, up to date, already published)
  failed   - this teacher errored; the rest of the batch continued

PREFLIGHT:
  Generation refuses to start without an exchange rate for the period.
  Half a batch priced at a guessed rate is worse than no batch, so the
  rate check happens before any teacher is touched.

FAILURE ISOLATION:
  Each teacher runs in its own transaction. One teacher's failure rolls
  back only that teacher's writes and lands in the failed bucket; the
  loop always finishes.

SEE ALSO:
  - mutate.go: lifecycle changes after generation
  - billing/tiers.go, billing/fee.go: the math snapshotted here
*/
package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/logger"
	"github.com/meridian/salary-engine/settings"
)

// =============================================================================
// BATCH RESULT
// =============================================================================

// Outcome is one teacher's result in a generation batch.
type Outcome struct {
	TeacherID string `json:"teacherId"`
	InvoiceID string `json:"invoiceId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BatchResult buckets every teacher touched by one generation run.
type BatchResult struct {
	Period   billing.Period
	Created  []Outcome
	Adjusted []Outcome
	Skipped  []Outcome
	Failed   []Outcome

	failures *multierror.Error
}

// Err returns the combined per-teacher failures, or nil when every
// teacher succeeded or was skipped.
func (r *BatchResult) Err() error {
	return r.failures.ErrorOrNil()
}

// Total returns how many teachers the batch touched.
func (r *BatchResult) Total() int {
	return len(r.Created) + len(r.Adjusted) + len(r.Skipped) + len(r.Failed)
}

type outcomeKind int

const (
	outcomeCreated outcomeKind = iota
	outcomeAdjusted
	outcomeSkipped
)

// =============================================================================
// GENERATOR
// =============================================================================

// Generator runs monthly batch invoice generation.
type Generator struct {
	store TxStore
	log   zerolog.Logger
}

// NewGenerator creates a generator on the given store.
func NewGenerator(store TxStore) *Generator {
	return &Generator{
		store: store,
		log:   logger.WithComponent("invoicing"),
	}
}

// Run generates invoices for the period. With explicit teacherIDs only
// those teachers are processed; otherwise every active teacher is.
// The returned error covers batch-level preconditions (missing
// exchange rate, unreadable settings); per-teacher failures land in
// the result's Failed bucket instead.
func (g *Generator) Run(ctx context.Context, period billing.Period, teacherIDs []string, actor string) (*BatchResult, error) {
	rate, err := g.store.GetExchangeRate(ctx, period)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, &billing.MissingExchangeRateError{Period: period}
	}

	table, feeCfg, err := g.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Period: period}
	teachers := g.resolveTeachers(ctx, teacherIDs, result)

	g.log.Info().
		Str("period", period.String()).
		Int("teachers", len(teachers)).
		Str("exchange_rate", rate.Rate.String()).
		Msg("starting invoice generation")

	for _, teacher := range teachers {
		outcome, kind, err := g.generateOne(ctx, teacher, period, table, feeCfg, rate.Rate, actor)
		if err != nil {
			result.Failed = append(result.Failed, Outcome{TeacherID: teacher.ID, Reason: err.Error()})
			result.failures = multierror.Append(result.failures, fmt.Errorf("teacher %s: %w", teacher.ID, err))
			g.log.Error().Err(err).Str("teacher_id", teacher.ID).Msg("invoice generation failed")
			continue
		}
		switch kind {
		case outcomeCreated:
			result.Created = append(result.Created, outcome)
		case outcomeAdjusted:
			result.Adjusted = append(result.Adjusted, outcome)
		case outcomeSkipped:
			result.Skipped = append(result.Skipped, outcome)
		}
	}

	g.log.Info().
		Str("period", period.String()).
		Int("created", len(result.Created)).
		Int("adjusted", len(result.Adjusted)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("invoice generation finished")

	return result, nil
}

// loadSettings reads and validates the rate table and fee config that
// the whole batch will snapshot.
func (g *Generator) loadSettings(ctx context.Context) (billing.RateTable, billing.TransferFeeConfig, error) {
	rawTiers, err := g.store.GetSetting(ctx, settings.KeyRatePartitions)
	if err != nil {
		return nil, billing.TransferFeeConfig{}, err
	}
	table, err := settings.ParseRatePartitions(rawTiers)
	if err != nil {
		return nil, billing.TransferFeeConfig{}, err
	}

	rawFee, err := g.store.GetSetting(ctx, settings.KeyTransferFee)
	if err != nil {
		return nil, billing.TransferFeeConfig{}, err
	}
	feeCfg, err := settings.ParseTransferFee(rawFee)
	if err != nil {
		return nil, billing.TransferFeeConfig{}, err
	}

	return table, feeCfg, nil
}

// resolveTeachers maps explicit IDs to teachers, or falls back to all
// active teachers. Unknown IDs go straight to the failed bucket so one
// typo doesn't sink the rest of the request.
func (g *Generator) resolveTeachers(ctx context.Context, teacherIDs []string, result *BatchResult) []Teacher {
	if len(teacherIDs) == 0 {
		all, err := g.store.ListTeachers(ctx)
		if err != nil {
			result.failures = multierror.Append(result.failures, err)
			return nil
		}
		active := make([]Teacher, 0, len(all))
		for _, t := range all {
			if t.Active {
				active = append(active, t)
			}
		}
		return active
	}

	teachers := make([]Teacher, 0, len(teacherIDs))
	for _, id := range teacherIDs {
		t, err := g.store.GetTeacher(ctx, id)
		if err != nil {
			result.Failed = append(result.Failed, Outcome{TeacherID: id, Reason: err.Error()})
			result.failures = multierror.Append(result.failures, fmt.Errorf("teacher %s: %w", id, err))
			continue
		}
		if t == nil {
			result.Failed = append(result.Failed, Outcome{TeacherID: id, Reason: billing.ErrTeacherNotFound.Error()})
			result.failures = multierror.Append(result.failures, fmt.Errorf("teacher %s: %w", id, billing.ErrTeacherNotFound))
			continue
		}
		teachers = append(teachers, *t)
	}
	return teachers
}

// generateOne decides and applies the outcome for a single teacher.
// All writes happen inside one transaction.
func (g *Generator) generateOne(ctx context.Context, teacher Teacher, period billing.Period,
	table billing.RateTable, feeCfg billing.TransferFeeConfig, rate decimal.Decimal, actor string) (Outcome, outcomeKind, error) {

	var outcome Outcome
	var kind outcomeKind

	err := g.store.WithTx(ctx, func(s Store) error {
		sessions, err := s.UnbilledSessions(ctx, teacher.ID, period)
		if err != nil {
			return err
		}
		existing, err := s.FindActiveInvoice(ctx, teacher.ID, period)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			if len(sessions) == 0 {
				outcome, kind = Outcome{TeacherID: teacher.ID, Reason: "no unbilled sessions"}, outcomeSkipped
				return nil
			}
			inv, err := g.createInvoice(ctx, s, teacher, period, sessions, table, feeCfg, rate, actor, nil)
			if err != nil {
				return err
			}
			outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: inv.ID}, outcomeCreated
			return nil

		case existing.Status == billing.StatusDraft:
			if len(sessions) == 0 {
				outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: existing.ID, Reason: "up to date"}, outcomeSkipped
				return nil
			}
			if err := g.regenerateDraft(ctx, s, existing, sessions, table, feeCfg, rate, actor); err != nil {
				return err
			}
			outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: existing.ID}, outcomeAdjusted
			return nil

		case existing.Status == billing.StatusPublished:
			outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: existing.ID, Reason: "already published"}, outcomeSkipped
			return nil

		default: // paid
			if len(sessions) == 0 {
				outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: existing.ID, Reason: "up to date"}, outcomeSkipped
				return nil
			}
			adj, err := g.adjustPaidInvoice(ctx, s, teacher, existing, period, sessions, table, feeCfg, rate, actor)
			if err != nil {
				return err
			}
			outcome, kind = Outcome{TeacherID: teacher.ID, InvoiceID: adj.ID}, outcomeAdjusted
			return nil
		}
	})

	return outcome, kind, err
}

// createInvoice builds, saves, and links a fresh draft. adjusts is the
// paid invoice an adjustment corrects; nil for a regular invoice.
func (g *Generator) createInvoice(ctx context.Context, s Store, teacher Teacher, period billing.Period,
	sessions []ClassSession, table billing.RateTable, feeCfg billing.TransferFeeConfig,
	rate decimal.Decimal, actor string, adjusts *Invoice) (*Invoice, error) {

	hours := sumSessionHours(sessions)
	tier, err := table.Find(hours)
	if err != nil {
		return nil, err
	}

	totals := billing.NewTotals(hours, tier.RateUSD, rate)
	totals.ApplyFee(feeCfg)

	now := time.Now().UTC()
	inv := &Invoice{
		ID:           uuid.NewString(),
		TeacherID:    teacher.ID,
		Period:       period,
		Status:       billing.StatusDraft,
		Currency:     payoutCurrency(teacher),
		ExchangeRate: rate,
		Tier:         tier,
		Fee:          feeCfg,
		TotalHours:   hours,
		CoveredHours: hours,
		Totals:       totals,
		GeneratedBy:  actor,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
	if adjusts != nil {
		inv.IsAdjustment = true
		inv.AdjustsInvoiceID = adjusts.ID
	}

	if err := s.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	if err := s.LinkSessions(ctx, inv.ID, sessionIDs(sessions)); err != nil {
		return nil, err
	}
	inv.SessionIDs = sessionIDs(sessions)

	note := fmt.Sprintf("%d sessions, %s", len(sessions), billing.FormatHours(hours))
	if adjusts != nil {
		note = fmt.Sprintf("adjustment for %s: %s", adjusts.ID, note)
	}
	change := billing.NewChange(billing.ChangeGenerated, "", "", inv.Totals.NetEGP.StringFixed(2), actor, note)
	if err := s.AppendChange(ctx, inv.ID, change); err != nil {
		return nil, err
	}
	inv.Changes = append(inv.Changes, change)

	return inv, nil
}

// regenerateDraft absorbs newly reported sessions into an existing
// draft: hours and gross are rebuilt, the tier and fee re-resolve
// against the combined hours, and accumulated bonuses and extras are
// kept as they were credited.
func (g *Generator) regenerateDraft(ctx context.Context, s Store, inv *Invoice, sessions []ClassSession,
	table billing.RateTable, feeCfg billing.TransferFeeConfig, rate decimal.Decimal, actor string) error {

	added := sumSessionHours(sessions)
	combined := billing.Round2(inv.TotalHours.Add(added))
	tier, err := table.Find(combined)
	if err != nil {
		return err
	}

	oldNet := inv.Totals.NetEGP
	inv.Totals.GrossUSD, inv.Totals.GrossEGP = billing.GrossForHours(combined, tier.RateUSD, rate)
	inv.Totals.ApplyFee(feeCfg)

	inv.Tier = tier
	inv.Fee = feeCfg
	inv.ExchangeRate = rate
	inv.TotalHours = combined
	inv.CoveredHours = combined
	inv.UpdatedAt = time.Now().UTC()

	if err := s.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	if err := s.LinkSessions(ctx, inv.ID, sessionIDs(sessions)); err != nil {
		return err
	}
	inv.SessionIDs = append(inv.SessionIDs, sessionIDs(sessions)...)

	note := fmt.Sprintf("%d new sessions (+%s)", len(sessions), billing.FormatHours(added))
	change := billing.NewChange(billing.ChangeRegenerated, "",
		oldNet.StringFixed(2), inv.Totals.NetEGP.StringFixed(2), actor, note)
	if err := s.AppendChange(ctx, inv.ID, change); err != nil {
		return err
	}
	inv.Changes = append(inv.Changes, change)

	return nil
}

// adjustPaidInvoice routes late sessions for a paid month into an
// adjustment invoice: merged into an existing draft adjustment when
// one is open, otherwise a new one referencing the paid invoice.
func (g *Generator) adjustPaidInvoice(ctx context.Context, s Store, teacher Teacher, paid *Invoice,
	period billing.Period, sessions []ClassSession, table billing.RateTable,
	feeCfg billing.TransferFeeConfig, rate decimal.Decimal, actor string) (*Invoice, error) {

	drafts, err := s.ListInvoices(ctx, Filter{
		TeacherID: teacher.ID,
		Month:     int(period.Month),
		Year:      period.Year,
		Status:    billing.StatusDraft,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.IsAdjustment && d.AdjustsInvoiceID == paid.ID {
			if err := g.regenerateDraft(ctx, s, d, sessions, table, feeCfg, rate, actor); err != nil {
				return nil, err
			}
			return d, nil
		}
	}

	return g.createInvoice(ctx, s, teacher, period, sessions, table, feeCfg, rate, actor, paid)
}

// =============================================================================
// HELPERS
// =============================================================================

func sumSessionHours(sessions []ClassSession) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sessions {
		total = total.Add(s.Hours)
	}
	return billing.Round2(total)
}

func sessionIDs(sessions []ClassSession) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func payoutCurrency(t Teacher) billing.Currency {
	if t.PayoutCurrency.Supported() {
		return t.PayoutCurrency
	}
	return billing.EGP
}
