/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Pre-built scenarios populate the database with realistic salary data
  for demos and exploratory testing. Each scenario seeds teachers,
  class sessions, billing settings, and exchange rates, then drives the
  real generation and lifecycle services so the data is exactly what
  production flows would produce.

AVAILABLE SCENARIOS:
  fresh-month:    unbilled sessions waiting for the month's first
                  generation run
  payment-cycle:  last month fully worked: one invoice paid, one
                  published, one still draft
  late-classes:   a paid month plus late-reported sessions; the next
                  generation run creates an adjustment invoice

HOW SCENARIOS WORK:
  1. Reset the database
  2. Save settings (rate partitions, transfer fee) and exchange rates
  3. Create teachers and their class sessions
  4. Run the generator / lifecycle services where the scenario needs
     invoices in later states

NOTE:
  Scenarios reset the database. Development and demo environments only.

SEE ALSO:
  - handlers.go: LoadScenario endpoint wiring
  - cmd/seed.go: the same loaders from the command line
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/settings"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-month",
		Name:        "Fresh Month",
		Description: "Teachers with unbilled sessions; run generation to create the month's drafts",
	},
	{
		ID:          "payment-cycle",
		Name:        "Payment Cycle",
		Description: "Last month invoiced end to end: one paid, one published, one draft",
	},
	{
		ID:          "late-classes",
		Name:        "Late Classes",
		Description: "A paid month with late-reported sessions; regeneration creates an adjustment invoice",
	},
}

func scenarioByID(id string) *ScenarioDTO {
	for i := range scenarios {
		if scenarios[i].ID == id {
			return &scenarios[i]
		}
	}
	return nil
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScenarioListResponse{Success: true, Scenarios: scenarios})
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScenarioResponse{
		Success:  true,
		Scenario: scenarioByID(h.currentScenario),
	})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scenario := scenarioByID(req.ScenarioID)
	if scenario == nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.currentScenario = ""

	if err := h.loadScenario(ctx, req.ScenarioID); err != nil {
		h.writeDomainError(w, fmt.Errorf("failed to load scenario %q: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, ScenarioResponse{Success: true, Scenario: scenario})
}

// LoadScenarioData resets the store and loads a scenario by ID. The
// seed command uses this to share the loaders with the API.
func LoadScenarioData(ctx context.Context, store DataStore, scenarioID string) error {
	if scenarioByID(scenarioID) == nil {
		return fmt.Errorf("unknown scenario %q", scenarioID)
	}
	if err := store.Reset(ctx); err != nil {
		return err
	}
	return NewHandler(store).loadScenario(ctx, scenarioID)
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	switch id {
	case "fresh-month":
		return h.loadFreshMonthScenario(ctx)
	case "payment-cycle":
		return h.loadPaymentCycleScenario(ctx)
	case "late-classes":
		return h.loadLateClassesScenario(ctx)
	default:
		return fmt.Errorf("unknown scenario %q", id)
	}
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const seedActor = "seed"

// loadFreshMonthScenario seeds the current month right before its
// first generation run: settings, an exchange rate, three teachers
// (one inactive), and a spread of unbilled sessions.
func (h *Handler) loadFreshMonthScenario(ctx context.Context) error {
	now := time.Now().UTC()
	current := billing.PeriodOf(now)

	if err := h.seedBillingConfig(ctx, current); err != nil {
		return err
	}

	teachers := []invoice.Teacher{
		demoTeacher("teacher-aya", "Aya Hassan", "aya.hassan@meridian.test", true, now),
		demoTeacher("teacher-omar", "Omar Farouk", "omar.farouk@meridian.test", true, now),
		demoTeacher("teacher-salma", "Salma Nabil", "salma.nabil@meridian.test", false, now),
	}
	for _, t := range teachers {
		if err := h.Store.SaveTeacher(ctx, t); err != nil {
			return err
		}
	}

	// Aya stays inside the first tier; Omar's 14.5h cross into the
	// second. One canceled session shows up in listings but never
	// bills.
	sessions := []invoice.ClassSession{
		demoSession("sess-aya-1", "teacher-aya", "guardian-mostafa", "Karim", current, 2, "2"),
		demoSession("sess-aya-2", "teacher-aya", "guardian-mostafa", "Karim", current, 9, "1.5"),
		demoSession("sess-aya-3", "teacher-aya", "guardian-rania", "Nour", current, 16, "2"),
		demoSession("sess-omar-1", "teacher-omar", "guardian-tarek", "Youssef", current, 3, "6"),
		demoSession("sess-omar-2", "teacher-omar", "guardian-tarek", "Youssef", current, 11, "6"),
		demoSession("sess-omar-3", "teacher-omar", "guardian-heba", "Malak", current, 18, "2.5"),
		demoSession("sess-salma-1", "teacher-salma", "guardian-heba", "Malak", current, 5, "3"),
	}
	canceled := demoSession("sess-omar-4", "teacher-omar", "guardian-heba", "Malak", current, 20, "1")
	canceled.Status = invoice.SessionCanceled
	sessions = append(sessions, canceled)

	for _, s := range sessions {
		if err := h.Store.SaveSession(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// loadPaymentCycleScenario invoices last month end to end: Aya's
// invoice is paid (with a bonus credited first), Omar's is published
// and awaiting payout, Lina's is still a draft.
func (h *Handler) loadPaymentCycleScenario(ctx context.Context) error {
	now := time.Now().UTC()
	current := billing.PeriodOf(now)
	prior := previousPeriod(current)

	if err := h.seedBillingConfig(ctx, prior, current); err != nil {
		return err
	}

	teachers := []invoice.Teacher{
		demoTeacher("teacher-aya", "Aya Hassan", "aya.hassan@meridian.test", true, now),
		demoTeacher("teacher-omar", "Omar Farouk", "omar.farouk@meridian.test", true, now),
		demoTeacher("teacher-lina", "Lina Mahmoud", "lina.mahmoud@meridian.test", true, now),
	}
	for _, t := range teachers {
		if err := h.Store.SaveTeacher(ctx, t); err != nil {
			return err
		}
	}

	sessions := []invoice.ClassSession{
		demoSession("sess-aya-1", "teacher-aya", "guardian-mostafa", "Karim", prior, 4, "6"),
		demoSession("sess-aya-2", "teacher-aya", "guardian-rania", "Nour", prior, 14, "4"),
		demoSession("sess-omar-1", "teacher-omar", "guardian-tarek", "Youssef", prior, 6, "8"),
		demoSession("sess-omar-2", "teacher-omar", "guardian-heba", "Malak", prior, 17, "6.5"),
		demoSession("sess-lina-1", "teacher-lina", "guardian-rania", "Nour", prior, 9, "5"),
	}
	for _, s := range sessions {
		if err := h.Store.SaveSession(ctx, s); err != nil {
			return err
		}
	}

	result, err := h.Generator.Run(ctx, prior, nil, seedActor)
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}
	byTeacher := make(map[string]string, len(result.Created))
	for _, o := range result.Created {
		byTeacher[o.TeacherID] = o.InvoiceID
	}

	// Aya: bonus, publish, pay out.
	ayaID, ok := byTeacher["teacher-aya"]
	if !ok {
		return fmt.Errorf("scenario expected an invoice for teacher-aya")
	}
	_, err = h.Invoices.AddBonus(ctx, ayaID, invoice.BonusInput{
		Source:     "guardian tip",
		AmountUSD:  decimal.NewFromInt(10),
		GuardianID: "guardian-mostafa",
		Reason:     "strong exam results",
		Actor:      seedActor,
	})
	if err != nil {
		return err
	}
	if _, err := h.Invoices.Publish(ctx, ayaID, seedActor); err != nil {
		return err
	}
	_, err = h.Invoices.MarkPaid(ctx, ayaID, invoice.MarkPaidInput{
		Method:   "bank transfer",
		ProofURL: "https://proofs.meridian.test/payouts/aya-" + prior.String(),
		Notes:    "payout batch #12",
		Actor:    seedActor,
	})
	if err != nil {
		return err
	}

	// Omar: published, awaiting payout.
	omarID, ok := byTeacher["teacher-omar"]
	if !ok {
		return fmt.Errorf("scenario expected an invoice for teacher-omar")
	}
	if _, err := h.Invoices.Publish(ctx, omarID, seedActor); err != nil {
		return err
	}

	// Lina's draft stays as generated.
	return nil
}

// loadLateClassesScenario pays out last month, then reports sessions
// that arrived after the payout. Generating the month again creates an
// adjustment invoice for the late hours.
func (h *Handler) loadLateClassesScenario(ctx context.Context) error {
	now := time.Now().UTC()
	current := billing.PeriodOf(now)
	prior := previousPeriod(current)

	if err := h.seedBillingConfig(ctx, prior); err != nil {
		return err
	}

	if err := h.Store.SaveTeacher(ctx, demoTeacher("teacher-aya", "Aya Hassan", "aya.hassan@meridian.test", true, now)); err != nil {
		return err
	}

	billed := []invoice.ClassSession{
		demoSession("sess-aya-1", "teacher-aya", "guardian-mostafa", "Karim", prior, 3, "6"),
		demoSession("sess-aya-2", "teacher-aya", "guardian-rania", "Nour", prior, 12, "4"),
	}
	for _, s := range billed {
		if err := h.Store.SaveSession(ctx, s); err != nil {
			return err
		}
	}

	result, err := h.Generator.Run(ctx, prior, nil, seedActor)
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}
	if len(result.Created) != 1 {
		return fmt.Errorf("scenario expected one created invoice, got %d", len(result.Created))
	}
	invoiceID := result.Created[0].InvoiceID

	if _, err := h.Invoices.Publish(ctx, invoiceID, seedActor); err != nil {
		return err
	}
	_, err = h.Invoices.MarkPaid(ctx, invoiceID, invoice.MarkPaidInput{
		Method: "bank transfer",
		Notes:  "payout batch #12",
		Actor:  seedActor,
	})
	if err != nil {
		return err
	}

	// Sessions from the paid month, reported only after the payout.
	late := []invoice.ClassSession{
		demoSession("sess-aya-late-1", "teacher-aya", "guardian-tarek", "Youssef", prior, 24, "2"),
		demoSession("sess-aya-late-2", "teacher-aya", "guardian-tarek", "Youssef", prior, 26, "1.5"),
	}
	for _, s := range late {
		s.ReportedAt = now
		s.CreatedAt = now
		if err := h.Store.SaveSession(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seedBillingConfig saves the demo rate table, transfer fee, and an
// exchange rate for each given period.
func (h *Handler) seedBillingConfig(ctx context.Context, periods ...billing.Period) error {
	table := billing.RateTable{
		{MinHours: decimal.Zero, MaxHours: decimal.NewFromInt(10), RateUSD: decimal.NewFromInt(5)},
		{MinHours: decimal.RequireFromString("10.01"), MaxHours: decimal.NewFromInt(20), RateUSD: decimal.NewFromInt(7)},
		{MinHours: decimal.RequireFromString("20.01"), MaxHours: billing.UnlimitedHours, RateUSD: decimal.NewFromInt(10)},
	}
	rawTiers, err := settings.EncodeRatePartitions(table)
	if err != nil {
		return err
	}
	if err := h.Store.SaveSetting(ctx, settings.KeyRatePartitions, rawTiers, seedActor); err != nil {
		return err
	}

	fee := billing.TransferFeeConfig{Model: billing.FeeFlat, Value: decimal.NewFromInt(25)}
	rawFee, err := settings.EncodeTransferFee(fee)
	if err != nil {
		return err
	}
	if err := h.Store.SaveSetting(ctx, settings.KeyTransferFee, rawFee, seedActor); err != nil {
		return err
	}

	for _, p := range periods {
		err := h.Store.SaveExchangeRate(ctx, invoice.ExchangeRate{
			Period: p,
			Rate:   decimal.RequireFromString("47.85"),
			Source: "central bank monthly fixing",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func demoTeacher(id, name, email string, active bool, now time.Time) invoice.Teacher {
	return invoice.Teacher{
		ID:             id,
		Name:           name,
		Email:          email,
		PayoutCurrency: billing.EGP,
		Active:         active,
		CreatedAt:      now,
	}
}

// demoSession places a session on the given day of the period. Days
// stay below 28 so every month length works.
func demoSession(id, teacherID, guardianID, student string, p billing.Period, day int, hours string) invoice.ClassSession {
	occurred := p.Start().AddDate(0, 0, day-1).Add(14 * time.Hour)
	return invoice.ClassSession{
		ID:          id,
		TeacherID:   teacherID,
		GuardianID:  guardianID,
		StudentName: student,
		OccurredOn:  occurred,
		Hours:       decimal.RequireFromString(hours),
		Status:      invoice.SessionCompleted,
		ReportedAt:  occurred.Add(3 * time.Hour),
		CreatedAt:   occurred.Add(3 * time.Hour),
	}
}

func previousPeriod(p billing.Period) billing.Period {
	month, year := int(p.Month)-1, p.Year
	if month < 1 {
		month, year = 12, year-1
	}
	return billing.MustPeriod(month, year)
}
