/*
handlers_test.go - HTTP-level tests for the billing API

Tests run against the full router (middleware included) over the
in-memory store, with actors injected through the gateway headers.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinswerk/billing-engine/billing"
	"github.com/vereinswerk/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router http.Handler
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	clock := &billing.FixedClock{Current: time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)}
	svc := billing.NewService(store, clock, billing.NoHolidays{}, "DE", nil)

	ctx := context.Background()
	require.NoError(t, store.SaveQuarter(ctx, billing.Quarter{
		ID: "q1-2024", Name: "Q1 2024",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}))

	return &testAPI{
		router: NewRouter(NewHandler(svc, nil)),
		store:  store,
	}
}

type actorHeaders map[string]string

var (
	asWorker = actorHeaders{"X-Actor-ID": "w1"}
	asHead   = actorHeaders{"X-Actor-ID": "head1", "X-Managed-Departments": "math, music"}
	asOffice = actorHeaders{"X-Actor-ID": "office1", "X-Actor-Office": "true"}
)

func (a *testAPI) do(t *testing.T, method, path string, body any, headers actorHeaders) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func (a *testAPI) createEntry(t *testing.T, headers actorHeaders, date, start, end, dept string) EntryDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/entries", EntryRequest{
		Date: date, Start: start, End: end, DepartmentID: dept, Label: "course",
	}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decode[EntryDTO](t, rec)
}

func (a *testAPI) assemble(t *testing.T, headers actorHeaders, entryIDs ...string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/statements", AssembleRequest{EntryIDs: entryIDs}, headers)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	resp := decode[map[string][]string](t, rec)
	require.Len(t, resp["statement_ids"], 1)
	return resp["statement_ids"][0]
}

// =============================================================================
// ACTOR RESOLUTION
// =============================================================================

func TestAPI_MissingActorHeader_Unauthorized(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/entries/drafts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "missing actor identity", resp.Error)
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func TestAPI_CreateEntry(t *testing.T) {
	// GIVEN: A worker posting 09:00-11:30 in math
	// WHEN: Creating the entry over HTTP
	// THEN: 201 with the server-derived duration

	api := newTestAPI(t)

	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:30", "math")
	assert.Equal(t, "2.5", entry.Duration)
	assert.Equal(t, "w1", entry.OwnerID)
	assert.Empty(t, entry.StatementID)
}

func TestAPI_CreateEntry_BadTimeFormat_Unprocessable(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/entries", EntryRequest{
		Date: "2024-03-15", Start: "9 o'clock", End: "11:00", DepartmentID: "math",
	}, asWorker)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_CreateEntry_EndBeforeStart_Unprocessable(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/entries", EntryRequest{
		Date: "2024-03-15", Start: "11:00", End: "09:00", DepartmentID: "math",
	}, asWorker)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_UpdateEntry_AuditTrailExposed(t *testing.T) {
	// GIVEN: A created entry
	// WHEN: Updating the end time with a comment and reading the audit
	// THEN: The trail lists the corrected fields with the comment

	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")

	rec := api.do(t, http.MethodPut, "/api/entries/"+entry.ID, EntryRequest{
		Date: "2024-03-15", Start: "09:00", End: "12:00", DepartmentID: "math",
		Label: "course", Comment: "forgot the last hour",
	}, asWorker)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/entries/"+entry.ID+"/audit", nil, asWorker)
	require.Equal(t, http.StatusOK, rec.Code)

	trail := decode[[]AuditDTO](t, rec)
	require.Len(t, trail, 2)
	assert.Equal(t, "forgot the last hour", trail[0].Comment)
}

func TestAPI_DeleteDraft_NoContent(t *testing.T) {
	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")

	rec := api.do(t, http.MethodDelete, "/api/entries/"+entry.ID, nil, asWorker)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/entries/"+entry.ID, nil, asWorker)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// STATEMENT WORKFLOW
// =============================================================================

func TestAPI_FullApprovalChain(t *testing.T) {
	// GIVEN: A worker's draft entry
	// WHEN: Assembling and walking the chain over HTTP
	// THEN: Each role's call advances the statement; the final view is
	//       Paid with the complete ledger

	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:30", "math")
	stmtID := api.assemble(t, asWorker, entry.ID)

	rec := api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/approve", nil, asHead)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/finalize", nil, asOffice)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[FinalizeResponse](t, rec)
	assert.Equal(t, int(billing.StatusReadyForPayment), resp.Status)

	rec = api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/finalize", nil, asOffice)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[FinalizeResponse](t, rec)
	assert.Equal(t, int(billing.StatusPaid), resp.Status)

	rec = api.do(t, http.MethodGet, "/api/statements/"+stmtID, nil, asWorker)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[StatementDTO](t, rec)
	assert.Equal(t, int(billing.StatusPaid), view.Status)
	assert.Equal(t, "Q1 2024", view.QuarterName)
	assert.Len(t, view.History, 4)
	assert.Equal(t, "2.5", view.TotalHours)
}

func TestAPI_ApproveTwice_Conflict(t *testing.T) {
	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")
	stmtID := api.assemble(t, asWorker, entry.ID)

	rec := api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/approve", nil, asHead)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/approve", nil, asHead)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Finalize_WorkerForbidden(t *testing.T) {
	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")
	stmtID := api.assemble(t, asWorker, entry.ID)

	rec := api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/finalize", nil, asWorker)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_Reject_ShortReason_Unprocessable(t *testing.T) {
	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")
	stmtID := api.assemble(t, asWorker, entry.ID)

	rec := api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/reject", RejectRequest{Reason: "no"}, asHead)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_UnknownStatement_NotFound(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/statements/missing/approve", nil, asHead)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_FinalizeBulk_ReportsCount(t *testing.T) {
	api := newTestAPI(t)
	entry := api.createEntry(t, asWorker, "2024-03-15", "09:00", "11:00", "math")
	stmtID := api.assemble(t, asWorker, entry.ID)

	rec := api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/approve", nil, asHead)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/statements/"+stmtID+"/finalize", nil, asOffice)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/statements/finalize-bulk",
		BulkFinalizeRequest{StatementIDs: []string{stmtID}}, asOffice)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[BulkFinalizeResponse](t, rec)
	assert.Equal(t, 1, resp.Finalized)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_InfraFailure_OpaqueWithCorrelationID(t *testing.T) {
	// GIVEN: A store that fails on the ledger write
	// WHEN: Creating an entry
	// THEN: 500 with a correlation id and no cause in the body

	api := newTestAPI(t)
	api.store.AppendEntryStatusHook = func(billing.StatusLogEntry) error {
		return errors.New("disk full: /var/lib/billing")
	}

	rec := api.do(t, http.MethodPost, "/api/entries", EntryRequest{
		Date: "2024-03-15", Start: "09:00", End: "11:00", DepartmentID: "math",
	}, asWorker)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal error", resp.Error)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

// =============================================================================
// RATES
// =============================================================================

func TestAPI_RateRollover(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/rates", UpdateRateRequest{
		WorkerID: "w1", DepartmentID: "math", Amount: "12.00", ValidFrom: "2024-01-01",
	}, asHead)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	rate := decode[RateDTO](t, rec)
	assert.Equal(t, "12.00", rate.Amount)
	assert.Empty(t, rate.ValidTo)

	rec = api.do(t, http.MethodGet, "/api/rates/history?worker_id=w1&department_id=math", nil, asWorker)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]RateDTO](t, rec)
	assert.Len(t, history, 1)
}

func TestAPI_RateRollover_BadAmount_Unprocessable(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/rates", UpdateRateRequest{
		WorkerID: "w1", DepartmentID: "math", Amount: "twelve", ValidFrom: "2024-01-01",
	}, asHead)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
