/*
scenarios_test.go - Tests for the demo scenario loaders

Each scenario loads against a real store and is checked for the state
it promises: teachers, sessions, and invoices in the right statuses.
*/
package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/salary-engine/api"
	"github.com/meridian/salary-engine/billing"
	"github.com/meridian/salary-engine/invoice"
	"github.com/meridian/salary-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// scenarioPeriods returns the current billing period and the one before
// it, matching what the loaders seed against.
func scenarioPeriods() (current, prior billing.Period) {
	current = billing.PeriodOf(time.Now().UTC())
	month, year := int(current.Month)-1, current.Year
	if month < 1 {
		month, year = 12, year-1
	}
	return current, billing.MustPeriod(month, year)
}

func loadScenario(t *testing.T, a *testAPI, id string) {
	t.Helper()
	var resp api.ScenarioResponse
	code := a.post("/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: id}, &resp)
	require.Equal(t, http.StatusOK, code, "load scenario %s", id)
	require.NotNil(t, resp.Scenario)
	assert.Equal(t, id, resp.Scenario.ID)
}

// =============================================================================
// SCENARIO ENDPOINTS
// =============================================================================

func TestScenarios_ListAndCurrent(t *testing.T) {
	a := newTestAPI(t)

	// The catalog names every scenario
	var list api.ScenarioListResponse
	code := a.get("/api/scenarios", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Scenarios, 3)
	ids := make([]string, len(list.Scenarios))
	for i, s := range list.Scenarios {
		ids[i] = s.ID
	}
	assert.ElementsMatch(t, []string{"fresh-month", "payment-cycle", "late-classes"}, ids)

	// Nothing loaded yet
	var current api.ScenarioResponse
	code = a.get("/api/scenarios/current", &current)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, current.Success)
	assert.Nil(t, current.Scenario)

	// After a load, current reflects it
	loadScenario(t, a, "fresh-month")
	code = a.get("/api/scenarios/current", &current)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, current.Scenario)
	assert.Equal(t, "fresh-month", current.Scenario.ID)
}

func TestScenarios_LoadUnknown(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.post("/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "time-travel"}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, `unknown scenario "time-travel"`)
}

func TestScenarios_ResetClearsEverything(t *testing.T) {
	// GIVEN: A loaded scenario
	a := newTestAPI(t)
	loadScenario(t, a, "fresh-month")

	// WHEN: Resetting
	var msg api.MessageResponse
	code := a.post("/api/scenarios/reset", nil, &msg)

	// THEN: Data and the current-scenario marker are gone
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "database reset", msg.Message)

	var current api.ScenarioResponse
	a.get("/api/scenarios/current", &current)
	assert.Nil(t, current.Scenario)

	var teachers api.TeacherListResponse
	a.get(adminBase+"/teachers", &teachers)
	assert.Empty(t, teachers.Teachers)
}

// =============================================================================
// SCENARIO CONTENT
// =============================================================================

func TestScenarios_FreshMonth_ReadyToGenerate(t *testing.T) {
	// GIVEN: The fresh-month scenario
	a := newTestAPI(t)
	loadScenario(t, a, "fresh-month")
	current, _ := scenarioPeriods()

	// THEN: Three teachers exist, one of them inactive
	var teachers api.TeacherListResponse
	code := a.get(adminBase+"/teachers", &teachers)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, teachers.Teachers, 3)
	inactive := 0
	for _, teacher := range teachers.Teachers {
		if !teacher.Active {
			inactive++
		}
	}
	assert.Equal(t, 1, inactive)

	// And no invoices exist yet
	var invoices api.InvoiceListResponse
	a.get(adminBase+"/invoices", &invoices)
	assert.Empty(t, invoices.Invoices)

	// WHEN: Running the month's first generation
	var gen api.GenerateResponse
	code = a.post(adminBase+"/generate", api.GenerateRequest{
		Month: int(current.Month), Year: current.Year,
	}, &gen)

	// THEN: The two active teachers get drafts
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, gen.Results.Created, 2)
	assert.Empty(t, gen.Results.Failed)
}

func TestScenarios_PaymentCycle_StatusSpread(t *testing.T) {
	// GIVEN: The payment-cycle scenario
	a := newTestAPI(t)
	loadScenario(t, a, "payment-cycle")
	_, prior := scenarioPeriods()

	// THEN: Last month holds one invoice per lifecycle stage
	var invoices api.InvoiceListResponse
	path := fmt.Sprintf(adminBase+"/invoices?month=%d&year=%d", int(prior.Month), prior.Year)
	code := a.get(path, &invoices)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, invoices.Invoices, 3)

	byStatus := map[string]api.InvoiceDTO{}
	for _, inv := range invoices.Invoices {
		byStatus[inv.Status] = inv
	}
	require.Len(t, byStatus, 3, "expected one invoice in each status")

	paid, ok := byStatus["paid"]
	require.True(t, ok, "one invoice should be paid")
	assert.Equal(t, "bank transfer", paid.PaymentMethod)
	assert.NotEmpty(t, paid.PaidAt)
	require.Len(t, paid.Bonuses, 1, "the paid invoice carries the seeded bonus")

	published, ok := byStatus["published"]
	require.True(t, ok, "one invoice should be published")
	assert.NotEmpty(t, published.PublishedAt)
	assert.Empty(t, published.PaidAt)

	_, ok = byStatus["draft"]
	assert.True(t, ok, "one invoice should still be a draft")
}

func TestScenarios_LateClasses_AdjustmentReady(t *testing.T) {
	// GIVEN: The late-classes scenario
	a := newTestAPI(t)
	loadScenario(t, a, "late-classes")
	_, prior := scenarioPeriods()

	// THEN: The prior month holds exactly one invoice, already paid
	var invoices api.InvoiceListResponse
	path := fmt.Sprintf(adminBase+"/invoices?month=%d&year=%d", int(prior.Month), prior.Year)
	code := a.get(path, &invoices)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, invoices.Invoices, 1)
	paidID := invoices.Invoices[0].ID
	require.Equal(t, "paid", invoices.Invoices[0].Status)

	// WHEN: Rerunning generation for that month
	var gen api.GenerateResponse
	code = a.post(adminBase+"/generate", api.GenerateRequest{
		Month: int(prior.Month), Year: prior.Year,
	}, &gen)

	// THEN: The late sessions land on an adjustment invoice
	require.Equal(t, http.StatusOK, code)
	require.Len(t, gen.Results.Adjusted, 1)

	var detail api.InvoiceResponse
	code = a.get(adminBase+"/invoices/"+gen.Results.Adjusted[0].InvoiceID, &detail)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, detail.Invoice.IsAdjustment)
	assert.Equal(t, paidID, detail.Invoice.AdjustsInvoiceID)
	assert.Equal(t, "draft", detail.Invoice.Status)
	assertDec(t, "3.5", detail.Invoice.TotalHours, "late hours")
}

// =============================================================================
// SEEDING ENTRY POINT
// =============================================================================

func TestLoadScenarioData_SeedsThroughAnyStore(t *testing.T) {
	// GIVEN: A bare in-memory store, no HTTP in sight
	store := memory.New()
	ctx := context.Background()

	// WHEN: Seeding the payment-cycle scenario directly
	err := api.LoadScenarioData(ctx, store, "payment-cycle")

	// THEN: The store holds the same spread the endpoint produces
	require.NoError(t, err)
	invoices, err := store.ListInvoices(ctx, invoice.Filter{})
	require.NoError(t, err)
	assert.Len(t, invoices, 3)

	teachers, err := store.ListTeachers(ctx)
	require.NoError(t, err)
	assert.Len(t, teachers, 3)

	// Unknown scenarios fail without touching the store
	err = api.LoadScenarioData(ctx, store, "time-travel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}
