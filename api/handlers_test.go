/*
handlers_test.go - HTTP tests for the admin API

Tests drive the full stack: router, middleware, handlers, domain
services, and the SQLite store, with real JSON over httptest. Each
test seeds through the same endpoints an admin would use.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/salary-engine/api"
	"github.com/meridian/salary-engine/settings"
	"github.com/meridian/salary-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const adminBase = "/api/teacher-salary/admin"

type testAPI struct {
	t   *testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err, "open in-memory store")
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store), []string{"*"}))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv}
}

// do sends one JSON request and decodes the response into out (skipped
// when out is nil). Returns the HTTP status code.
func (a *testAPI) do(method, path string, body any, out any) int {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err, "encode request body")
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rdr)
	require.NoError(a.t, err, "build request")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err, "execute %s %s", method, path)
	defer resp.Body.Close()

	if out == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		require.NoError(a.t, err, "drain response body")
		return resp.StatusCode
	}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out), "decode %s %s response", method, path)
	return resp.StatusCode
}

func (a *testAPI) get(path string, out any) int {
	return a.do(http.MethodGet, path, nil, out)
}

func (a *testAPI) post(path string, body, out any) int {
	return a.do(http.MethodPost, path, body, out)
}

func (a *testAPI) put(path string, body, out any) int {
	return a.do(http.MethodPut, path, body, out)
}

// postRaw sends a literal JSON string, for bodies the request structs
// cannot produce (malformed JSON, wrong field types).
func (a *testAPI) postRaw(path, body string, out any) int {
	a.t.Helper()
	resp, err := a.srv.Client().Post(a.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(a.t, err, "execute POST %s", path)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out), "decode POST %s response", path)
	}
	return resp.StatusCode
}

// seedJulyFixture drives the setup endpoints: one teacher, a three-tier
// rate table, a flat 25 EGP transfer fee, the July 2025 exchange rate,
// and two unbilled sessions totalling 10h.
func (a *testAPI) seedJulyFixture() {
	a.t.Helper()

	code := a.post(adminBase+"/teachers", api.CreateTeacherRequest{
		ID:    "t-1",
		Name:  "Dalia Fahmy",
		Email: "dalia.fahmy@school.test",
	}, nil)
	require.Equal(a.t, http.StatusCreated, code, "create teacher")

	code = a.put(adminBase+"/settings/rate-partitions", api.RatePartitionsRequest{
		RatePartitions: []settings.RatePartitionJSON{
			{MinHours: 0, MaxHours: 10, RateUSD: 5},
			{MinHours: 10.01, MaxHours: 20, RateUSD: 7},
			{MinHours: 20.01, MaxHours: 99999, RateUSD: 10},
		},
	}, nil)
	require.Equal(a.t, http.StatusOK, code, "save rate partitions")

	code = a.put(adminBase+"/settings/transfer-fee", api.TransferFeeRequest{Model: "flat", Value: 25}, nil)
	require.Equal(a.t, http.StatusOK, code, "save transfer fee")

	code = a.post(adminBase+"/exchange-rates", api.SaveRateRequest{
		Month: 7, Year: 2025, Rate: dec("48"), Source: "central bank",
	}, nil)
	require.Equal(a.t, http.StatusOK, code, "save exchange rate")

	for i, hours := range []string{"6.5", "3.5"} {
		code = a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
			ID:         fmt.Sprintf("s-%d", i+1),
			TeacherID:  "t-1",
			GuardianID: "guardian-1",
			OccurredOn: fmt.Sprintf("2025-07-%02d", 3+i*10),
			Hours:      dec(hours),
		}, nil)
		require.Equal(a.t, http.StatusCreated, code, "report session %d", i+1)
	}
}

// generateJuly runs batch generation and returns the created invoice ID.
func (a *testAPI) generateJuly() string {
	a.t.Helper()
	var resp api.GenerateResponse
	code := a.post(adminBase+"/generate", api.GenerateRequest{Month: 7, Year: 2025}, &resp)
	require.Equal(a.t, http.StatusOK, code, "generate")
	require.Len(a.t, resp.Results.Created, 1, "one invoice created")
	return resp.Results.Created[0].InvoiceID
}

// publishAndPay walks a draft to paid.
func (a *testAPI) publishAndPay(id string) {
	a.t.Helper()
	code := a.post(adminBase+"/invoices/"+id+"/publish", nil, nil)
	require.Equal(a.t, http.StatusOK, code, "publish")
	code = a.post(adminBase+"/invoices/"+id+"/mark-paid", api.MarkPaidRequest{PaymentMethod: "wise"}, nil)
	require.Equal(a.t, http.StatusOK, code, "mark paid")
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "%s: want %s, got %s", field, want, got)
}

// =============================================================================
// HEALTH AND SETUP ENDPOINTS
// =============================================================================

func TestAPI_Health(t *testing.T) {
	a := newTestAPI(t)

	var out map[string]string
	code := a.get("/api/health", &out)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])
}

func TestAPI_CreateTeacher_AppliesDefaults(t *testing.T) {
	// GIVEN: A request naming only the required fields
	a := newTestAPI(t)

	// WHEN: Creating the teacher
	var resp api.TeacherResponse
	code := a.post(adminBase+"/teachers", api.CreateTeacherRequest{
		Name:  "Omar Farouk",
		Email: "omar@school.test",
	}, &resp)

	// THEN: Defaults fill the gaps: generated ID, EGP payout, active
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Teacher.ID, "ID should be generated")
	assert.Equal(t, "EGP", resp.Teacher.PayoutCurrency)
	assert.True(t, resp.Teacher.Active)

	// And the teacher shows up in the listing
	var list api.TeacherListResponse
	code = a.get(adminBase+"/teachers", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Teachers, 1)
	assert.Equal(t, "Omar Farouk", list.Teachers[0].Name)
}

func TestAPI_CreateTeacher_RejectsBadEmail(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/teachers", api.CreateTeacherRequest{
		Name:  "Omar Farouk",
		Email: "not-an-email",
	}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Email", "validation failure should name the field")
}

func TestAPI_ReportSession_UnknownTeacher(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
		TeacherID:  "ghost",
		OccurredOn: "2025-07-03",
		Hours:      dec("2"),
	}, &resp)

	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "teacher not found")
}

func TestAPI_ReportSession_RejectsBadDate(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()

	var resp api.ErrorResponse
	code := a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
		TeacherID:  "t-1",
		OccurredOn: "07/03/2025",
		Hours:      dec("2"),
	}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestAPI_Settings_DefaultsBeforeFirstSave(t *testing.T) {
	// GIVEN: A store where no admin has ever saved settings
	a := newTestAPI(t)

	// WHEN: Reading the settings
	var resp api.SettingsResponse
	code := a.get(adminBase+"/settings", &resp)

	// THEN: The defaults come back: one partition at $5, no fee
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	require.Len(t, resp.Settings.RatePartitions, 1)
	assert.Equal(t, settings.RatePartitionJSON{MinHours: 0, MaxHours: 99999, RateUSD: 5}, resp.Settings.RatePartitions[0])
	assert.Equal(t, "none", resp.Settings.TransferFee.Model)
}

func TestAPI_Settings_RoundTrip(t *testing.T) {
	// GIVEN: Saved partitions and a flat fee
	a := newTestAPI(t)
	a.seedJulyFixture()

	// WHEN: Reading the settings back
	var resp api.SettingsResponse
	code := a.get(adminBase+"/settings", &resp)

	// THEN: The documents echo what was saved
	require.Equal(t, http.StatusOK, code)
	require.Len(t, resp.Settings.RatePartitions, 3)
	assert.Equal(t, settings.RatePartitionJSON{MinHours: 10.01, MaxHours: 20, RateUSD: 7}, resp.Settings.RatePartitions[1])
	assert.Equal(t, settings.TransferFeeJSON{Model: "flat", Value: 25}, resp.Settings.TransferFee)
}

func TestAPI_SaveRatePartitions_RejectsGap(t *testing.T) {
	// GIVEN: A table with a hole between 10 and 12 hours
	a := newTestAPI(t)

	// WHEN: Saving it
	var resp api.ErrorResponse
	code := a.put(adminBase+"/settings/rate-partitions", api.RatePartitionsRequest{
		RatePartitions: []settings.RatePartitionJSON{
			{MinHours: 0, MaxHours: 10, RateUSD: 5},
			{MinHours: 12, MaxHours: 99999, RateUSD: 7},
		},
	}, &resp)

	// THEN: The save is rejected and the table stays untouched
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "no gaps or overlaps")

	var current api.SettingsResponse
	a.get(adminBase+"/settings", &current)
	assert.Len(t, current.Settings.RatePartitions, 1, "defaults should still be in effect")
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func TestAPI_ExchangeRates_SaveAndList(t *testing.T) {
	a := newTestAPI(t)

	var saved api.MessageResponse
	code := a.post(adminBase+"/exchange-rates", api.SaveRateRequest{
		Month: 7, Year: 2025, Rate: dec("48"), Source: "central bank",
	}, &saved)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, saved.Message, "2025-07")

	code = a.post(adminBase+"/exchange-rates", api.SaveRateRequest{
		Month: 8, Year: 2025, Rate: dec("48.65"),
	}, nil)
	require.Equal(t, http.StatusOK, code)

	// Newest period first
	var list api.RateListResponse
	code = a.get(adminBase+"/exchange-rates", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Rates, 2)
	assert.Equal(t, 8, list.Rates[0].Month)
	assertDec(t, "48.65", list.Rates[0].Rate, "august rate")
	assertDec(t, "48", list.Rates[1].Rate, "july rate")
}

func TestAPI_ExchangeRates_RejectsNonPositiveRate(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/exchange-rates", api.SaveRateRequest{
		Month: 7, Year: 2025, Rate: dec("0"),
	}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
}

// =============================================================================
// GENERATION
// =============================================================================

func TestAPI_Generate_CreatesDraft(t *testing.T) {
	// GIVEN: The seeded July fixture
	a := newTestAPI(t)
	a.seedJulyFixture()

	// WHEN: Running batch generation
	var resp api.GenerateResponse
	code := a.post(adminBase+"/generate", api.GenerateRequest{Month: 7, Year: 2025}, &resp)

	// THEN: One invoice lands in the created bucket; the others render
	//       as empty arrays, not null
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, 7, resp.Results.Month)
	assert.Equal(t, 2025, resp.Results.Year)
	require.Len(t, resp.Results.Created, 1)
	assert.Equal(t, "t-1", resp.Results.Created[0].TeacherID)
	assert.NotEmpty(t, resp.Results.Created[0].InvoiceID)
	assert.NotNil(t, resp.Results.Adjusted)
	assert.NotNil(t, resp.Results.Skipped)
	assert.NotNil(t, resp.Results.Failed)
	assert.Equal(t, 1, resp.Results.Total)

	// And the detail carries the full financial breakdown
	var detail api.InvoiceResponse
	code = a.get(adminBase+"/invoices/"+resp.Results.Created[0].InvoiceID, &detail)
	require.Equal(t, http.StatusOK, code)

	inv := detail.Invoice
	assert.Equal(t, "draft", inv.Status)
	assert.Equal(t, "EGP", inv.Currency)
	assert.Equal(t, 7, inv.Month)
	assert.Equal(t, 2025, inv.Year)
	assertDec(t, "48", inv.ExchangeRate, "exchangeRate")
	assert.Equal(t, settings.RatePartitionJSON{MinHours: 0, MaxHours: 10, RateUSD: 5}, inv.Tier)
	assert.Equal(t, settings.TransferFeeJSON{Model: "flat", Value: 25}, inv.TransferFee)
	assertDec(t, "10", inv.TotalHours, "totalHours")
	assertDec(t, "10", inv.CoveredHours, "coveredHours")
	assertDec(t, "50", inv.GrossAmountUSD, "grossAmountUSD")
	assertDec(t, "2400", inv.GrossAmountEGP, "grossAmountEGP")
	assertDec(t, "50", inv.TotalUSD, "totalUSD")
	assertDec(t, "2400", inv.TotalEGP, "totalEGP")
	assertDec(t, "25", inv.TransferFeeEGP, "transferFeeEGP")
	assertDec(t, "2375", inv.NetAmountEGP, "netAmountEGP")
	assert.ElementsMatch(t, []string{"s-1", "s-2"}, inv.SessionIDs)
	assert.False(t, inv.IsAdjustment)
	assert.Equal(t, "admin", inv.GeneratedBy)
	assert.Equal(t, 1, inv.Version)
	assert.NotEmpty(t, inv.CreatedAt)
	assert.Empty(t, inv.PublishedAt)
}

func TestAPI_Generate_MissingRate(t *testing.T) {
	// GIVEN: Sessions to bill but no exchange rate for the month
	a := newTestAPI(t)
	code := a.post(adminBase+"/teachers", api.CreateTeacherRequest{
		ID: "t-1", Name: "Dalia Fahmy", Email: "dalia@school.test",
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	code = a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
		TeacherID: "t-1", OccurredOn: "2025-07-03", Hours: dec("2"),
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	// WHEN: Generating
	var resp api.ErrorResponse
	code = a.post(adminBase+"/generate", api.GenerateRequest{Month: 7, Year: 2025}, &resp)

	// THEN: The whole batch is blocked with a pointer to the fix
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "2025-07")
	assert.Contains(t, resp.Message, "save one before generating")
}

func TestAPI_Generate_RejectsBadPeriod(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/generate", api.GenerateRequest{Month: 13, Year: 2025}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)

	// Non-numeric month never reaches validation
	code = a.postRaw(adminBase+"/generate", `{"month": "July", "year": 2025}`, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "invalid request body")
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAPI_PublishAndMarkPaid_Flow(t *testing.T) {
	// GIVEN: A generated draft
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// WHEN: Publishing with an explicit actor
	var published api.InvoiceResponse
	code := a.post(adminBase+"/invoices/"+id+"/publish", api.ActorRequest{ChangedBy: "ops"}, &published)

	// THEN: The invoice is published and stamped
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "published", published.Invoice.Status)
	assert.NotEmpty(t, published.Invoice.PublishedAt)
	assert.Equal(t, 2, published.Invoice.Version)

	// WHEN: Recording the payout
	var paid api.InvoiceResponse
	code = a.post(adminBase+"/invoices/"+id+"/mark-paid", api.MarkPaidRequest{
		PaymentMethod:   "wise",
		PaymentProofURL: "https://proofs.school.test/batch-7/t-1.pdf",
		Notes:           "payout batch #7",
	}, &paid)

	// THEN: Payment details land on the invoice
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", paid.Invoice.Status)
	assert.Equal(t, "wise", paid.Invoice.PaymentMethod)
	assert.Equal(t, "https://proofs.school.test/batch-7/t-1.pdf", paid.Invoice.PaymentProofURL)
	assert.Equal(t, "payout batch #7", paid.Invoice.PaymentNotes)
	assert.NotEmpty(t, paid.Invoice.PaidAt)
	assert.Equal(t, 3, paid.Invoice.Version)

	// And the history shows the whole journey, oldest first
	var history api.HistoryResponse
	code = a.get(adminBase+"/invoices/"+id+"/history", &history)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, history.History, 3)
	assert.Equal(t, "generated", history.History[0].Action)
	assert.Equal(t, "admin", history.History[0].ChangedBy)
	assert.Equal(t, "published", history.History[1].Action)
	assert.Equal(t, "draft", history.History[1].OldValue)
	assert.Equal(t, "published", history.History[1].NewValue)
	assert.Equal(t, "ops", history.History[1].ChangedBy)
	assert.Equal(t, "marked_paid", history.History[2].Action)
	assert.Equal(t, "method: wise", history.History[2].Note)
}

func TestAPI_Publish_PaidInvoice(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()
	a.publishAndPay(id)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/invoices/"+id+"/publish", nil, &resp)

	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "cannot publish a paid invoice", resp.Message)
}

func TestAPI_MarkPaid_RequiresMethod(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()
	code := a.post(adminBase+"/invoices/"+id+"/publish", nil, nil)
	require.Equal(t, http.StatusOK, code)

	var resp api.ErrorResponse
	code = a.post(adminBase+"/invoices/"+id+"/mark-paid", api.MarkPaidRequest{}, &resp)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp.Message, "PaymentMethod")
}

// =============================================================================
// FINANCIAL EDITS
// =============================================================================

func TestAPI_AddBonus_Flow(t *testing.T) {
	// GIVEN: A draft invoice netting 2375 EGP
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// WHEN: Crediting a $10 bonus through the amountUSD field
	var resp api.InvoiceResponse
	code := a.post(adminBase+"/invoices/"+id+"/bonuses", api.BonusRequest{
		Source:     "referral",
		AmountUSD:  decPtr("10"),
		GuardianID: "guardian-1",
		Reason:     "great feedback",
	}, &resp)

	// THEN: The bonus converts and cascades into the totals
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "10", resp.Invoice.BonusesUSD, "bonusesUSD")
	assertDec(t, "480", resp.Invoice.BonusesEGP, "bonusesEGP")
	assertDec(t, "60", resp.Invoice.TotalUSD, "totalUSD")
	assertDec(t, "2855", resp.Invoice.NetAmountEGP, "netAmountEGP")
	require.Len(t, resp.Invoice.Bonuses, 1)
	assert.Equal(t, "referral", resp.Invoice.Bonuses[0].Source)
	assertDec(t, "480", resp.Invoice.Bonuses[0].AmountEGP, "bonus amountEGP")

	// And the grossAmountUSD alias credits the same way
	code = a.post(adminBase+"/invoices/"+id+"/bonuses", api.BonusRequest{
		Source:         "retention",
		GrossAmountUSD: decPtr("5"),
	}, &resp)
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "15", resp.Invoice.BonusesUSD, "bonusesUSD after alias")
	assert.Len(t, resp.Invoice.Bonuses, 2)
}

func TestAPI_AddBonus_RejectsAmbiguousAmount(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// Both aliases at once
	var resp api.ErrorResponse
	code := a.post(adminBase+"/invoices/"+id+"/bonuses", api.BonusRequest{
		Source:         "referral",
		AmountUSD:      decPtr("10"),
		GrossAmountUSD: decPtr("10"),
	}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "provide exactly one of amountUSD and grossAmountUSD", resp.Message)

	// Neither
	code = a.post(adminBase+"/invoices/"+id+"/bonuses", api.BonusRequest{Source: "referral"}, &resp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "provide exactly one of amountUSD and grossAmountUSD", resp.Message)
}

func TestAPI_AddExtra_NegativeDeduction(t *testing.T) {
	// GIVEN: A draft invoice netting 2375 EGP
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// WHEN: Recording a $5 deduction
	var resp api.InvoiceResponse
	code := a.post(adminBase+"/invoices/"+id+"/extras", api.ExtraRequest{
		AmountUSD:   dec("-5"),
		Description: "equipment deduction",
	}, &resp)

	// THEN: The negative extra reduces the totals
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "-5", resp.Invoice.ExtrasUSD, "extrasUSD")
	assertDec(t, "-240", resp.Invoice.ExtrasEGP, "extrasEGP")
	assertDec(t, "45", resp.Invoice.TotalUSD, "totalUSD")
	assertDec(t, "2135", resp.Invoice.NetAmountEGP, "netAmountEGP")

	// A zero amount has no meaning
	var errResp api.ErrorResponse
	code = a.post(adminBase+"/invoices/"+id+"/extras", api.ExtraRequest{
		AmountUSD:   dec("0"),
		Description: "noop",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "amountUSD must be non-zero", errResp.Message)
}

func TestAPI_ApplyOverrides_Flow(t *testing.T) {
	// GIVEN: A draft invoice
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// WHEN: Overriding the net directly
	var resp api.InvoiceResponse
	code := a.post(adminBase+"/invoices/"+id+"/overrides", api.OverridesRequest{
		Overrides: map[string]decimal.Decimal{"netAmountEGP": dec("2200")},
		Note:      "manual correction",
	}, &resp)

	// THEN: The named field changes, nothing cascades
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "2200", resp.Invoice.NetAmountEGP, "netAmountEGP")
	assertDec(t, "2400", resp.Invoice.GrossAmountEGP, "grossAmountEGP untouched")

	// Unknown fields reject the whole payload
	var errResp api.ErrorResponse
	code = a.post(adminBase+"/invoices/"+id+"/overrides", api.OverridesRequest{
		Overrides: map[string]decimal.Decimal{"salary": dec("1")},
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Message, `"salary"`)

	// An empty map is a validation failure
	code = a.postRaw(adminBase+"/invoices/"+id+"/overrides", `{"overrides": {}}`, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_FinancialEdit_PaidInvoice(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()
	a.publishAndPay(id)

	var resp api.ErrorResponse
	code := a.post(adminBase+"/invoices/"+id+"/bonuses", api.BonusRequest{
		Source:    "referral",
		AmountUSD: decPtr("10"),
	}, &resp)

	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, resp.Message, "invoice is paid")
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestAPI_Refund_Flow(t *testing.T) {
	// GIVEN: A paid invoice covering 10h at net 2375 EGP
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()
	a.publishAndPay(id)

	// WHEN: The amount and hours disagree
	var errResp api.ErrorResponse
	code := a.post("/api/invoices/"+id+"/refund", api.RefundRequest{
		RefundAmount: dec("470"),
		RefundHours:  dec("2"),
		Reason:       "guardian complaint",
	}, &errResp)

	// THEN: The request bounces with the expected amount in the message
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, errResp.Success)
	assert.Contains(t, errResp.Message, "475.00")

	// WHEN: The figures agree (2h x $5 x 48 minus the prorated fee)
	var resp api.InvoiceResponse
	code = a.post("/api/invoices/"+id+"/refund", api.RefundRequest{
		RefundAmount:    dec("475"),
		RefundHours:     dec("2"),
		Reason:          "guardian complaint",
		RefundReference: "ticket-4411",
	}, &resp)

	// THEN: The refund claws back the net and reduces coverage
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "1900", resp.Invoice.NetAmountEGP, "netAmountEGP")
	assertDec(t, "8", resp.Invoice.CoveredHours, "coveredHours")
	assertDec(t, "10", resp.Invoice.TotalHours, "totalHours unchanged")
	require.Len(t, resp.Invoice.Refunds, 1)
	assert.Equal(t, "ticket-4411", resp.Invoice.Refunds[0].Reference)
	assertDec(t, "475", resp.Invoice.Refunds[0].AmountEGP, "refund amountEGP")
}

func TestAPI_Refund_UnpaidInvoice(t *testing.T) {
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	var resp api.ErrorResponse
	code := a.post("/api/invoices/"+id+"/refund", api.RefundRequest{
		RefundAmount: dec("475"),
		RefundHours:  dec("2"),
		Reason:       "guardian complaint",
	}, &resp)

	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "refunds apply to paid invoices only (invoice is draft)", resp.Message)
}

// =============================================================================
// ARCHIVE
// =============================================================================

func TestAPI_Archive_ReleasesSessions(t *testing.T) {
	// GIVEN: A generated draft linking two sessions
	a := newTestAPI(t)
	a.seedJulyFixture()
	id := a.generateJuly()

	// WHEN: Archiving it
	var resp api.InvoiceResponse
	code := a.do(http.MethodDelete, adminBase+"/invoices/"+id, nil, &resp)

	// THEN: The invoice is archived and its sessions are released
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "archived", resp.Invoice.Status)
	assert.NotEmpty(t, resp.Invoice.ArchivedAt)
	assert.Empty(t, resp.Invoice.SessionIDs)

	var sessions api.SessionListResponse
	code = a.get(adminBase+"/teachers/t-1/class-sessions", &sessions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sessions.Sessions, 2)
	for _, s := range sessions.Sessions {
		assert.Empty(t, s.InvoiceID, "session %s should be unbilled again", s.ID)
	}

	// And regeneration starts fresh with a new invoice
	newID := a.generateJuly()
	assert.NotEqual(t, id, newID)
}

// =============================================================================
// LISTING AND LOOKUP
// =============================================================================

func TestAPI_ListInvoices_Filters(t *testing.T) {
	// GIVEN: July invoices for two teachers
	a := newTestAPI(t)
	a.seedJulyFixture()
	code := a.post(adminBase+"/teachers", api.CreateTeacherRequest{
		ID: "t-2", Name: "Omar Farouk", Email: "omar@school.test",
	}, nil)
	require.Equal(t, http.StatusCreated, code)
	code = a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
		TeacherID: "t-2", OccurredOn: "2025-07-08", Hours: dec("2"),
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	var gen api.GenerateResponse
	code = a.post(adminBase+"/generate", api.GenerateRequest{Month: 7, Year: 2025}, &gen)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, gen.Results.Created, 2)

	// Filter by month and year
	var list api.InvoiceListResponse
	code = a.get(adminBase+"/invoices?month=7&year=2025", &list)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list.Invoices, 2)

	// Filter by teacher
	code = a.get(adminBase+"/invoices?teacherId=t-1", &list)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list.Invoices, 1)
	assert.Equal(t, "t-1", list.Invoices[0].TeacherID)

	// Filter by status
	code = a.get(adminBase+"/invoices?status=draft", &list)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, list.Invoices, 2)
	code = a.get(adminBase+"/invoices?status=paid", &list)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, list.Invoices)

	// Bad filters fail fast
	var errResp api.ErrorResponse
	code = a.get(adminBase+"/invoices?status=bogus", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, errResp.Message, `unknown status "bogus"`)
	code = a.get(adminBase+"/invoices?month=abc", &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "month must be a number", errResp.Message)
}

func TestAPI_GetInvoice_NotFound(t *testing.T) {
	a := newTestAPI(t)

	var resp api.ErrorResponse
	code := a.get(adminBase+"/invoices/ghost", &resp)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "invoice not found")

	code = a.get(adminBase+"/invoices/ghost/history", &resp)
	assert.Equal(t, http.StatusNotFound, code)
}

// =============================================================================
// ADJUSTMENTS OVER HTTP
// =============================================================================

func TestAPI_LateSessions_AdjustmentFlow(t *testing.T) {
	// GIVEN: July paid out, then a 4h session reported late
	a := newTestAPI(t)
	a.seedJulyFixture()
	paidID := a.generateJuly()
	a.publishAndPay(paidID)

	code := a.post(adminBase+"/class-sessions", api.ReportSessionRequest{
		ID: "s-late", TeacherID: "t-1", OccurredOn: "2025-07-25", Hours: dec("4"),
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	// WHEN: Rerunning generation for July
	var resp api.GenerateResponse
	code = a.post(adminBase+"/generate", api.GenerateRequest{Month: 7, Year: 2025}, &resp)

	// THEN: The paid invoice stays put; an adjustment carries the late hours
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Results.Created)
	require.Len(t, resp.Results.Adjusted, 1)
	adjID := resp.Results.Adjusted[0].InvoiceID
	require.NotEqual(t, paidID, adjID)

	var detail api.InvoiceResponse
	code = a.get(adminBase+"/invoices/"+adjID, &detail)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, detail.Invoice.IsAdjustment)
	assert.Equal(t, paidID, detail.Invoice.AdjustsInvoiceID)
	assert.Equal(t, "draft", detail.Invoice.Status)
	assertDec(t, "4", detail.Invoice.TotalHours, "totalHours")
	assertDec(t, "935", detail.Invoice.NetAmountEGP, "netAmountEGP")

	var paid api.InvoiceResponse
	code = a.get(adminBase+"/invoices/"+paidID, &paid)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", paid.Invoice.Status)
	assertDec(t, "2375", paid.Invoice.NetAmountEGP, "paid invoice untouched")
}

// =============================================================================
// HELPERS
// =============================================================================

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
