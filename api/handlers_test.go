package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/warp/procurement-engine/cache"
	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/store/memory"
	"github.com/warp/procurement-engine/workflow"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testAPI struct {
	store  *memory.Store
	router http.Handler
}

func newTestAPI() *testAPI {
	store := memory.New()
	h := NewHandler(store, cache.Noop{}, zerolog.Nop())
	return &testAPI{store: store, router: NewRouter(h, "*")}
}

// do sends a JSON request with the test org header and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Org-ID", "org-1")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func (a *testAPI) createRequisition(t *testing.T) RequisitionResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/requisitions", map[string]any{
		"requester_id": "user-1",
		"kind":         "restock",
		"warehouse_id": "wh-1",
		"items": []map[string]any{
			{"material_id": "matA", "quantity": "2", "est_unit_price": "10.00"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create requisition: status %d, body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[RequisitionResponse](t, rec)
}

func (a *testAPI) transitionRequisition(t *testing.T, id, from, to string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/requisitions/"+id+"/transition", map[string]any{
		"from": from, "to": to, "actor_id": "actor-1",
	})
}

// =============================================================================
// TESTS
// =============================================================================

func TestOrgHeaderIsRequired(t *testing.T) {
	a := newTestAPI()

	// GIVEN: A request without the X-Org-ID header
	// WHEN: Hitting any endpoint
	// THEN: 400 before any store access
	req := httptest.NewRequest(http.MethodGet, "/api/requisitions", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	body := decodeBody[ErrorResponse](t, rec)
	if body.Error == "" {
		t.Error("expected an error message in the envelope")
	}
}

func TestCreateRequisitionEndpoint(t *testing.T) {
	a := newTestAPI()

	created := a.createRequisition(t)
	if created.Number != "REQ-000001" {
		t.Errorf("expected REQ-000001, got %s", created.Number)
	}
	if created.State != "created" || created.Status != "created" {
		t.Errorf("unexpected state/status: %s / %s", created.State, created.Status)
	}
	if len(created.Items) != 1 || created.Items[0].MaterialID != "matA" {
		t.Errorf("expected the persisted item echoed back, got %+v", created.Items)
	}
}

func TestCreateRequisitionValidationError(t *testing.T) {
	a := newTestAPI()

	// A restock requisition without a warehouse fails with 400.
	rec := a.do(t, http.MethodPost, "/api/requisitions", map[string]any{
		"requester_id": "user-1",
		"kind":         "restock",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

func TestRequisitionToQuotingFlow(t *testing.T) {
	a := newTestAPI()
	ctx := context.Background()

	// GIVEN: A created requisition
	created := a.createRequisition(t)

	// WHEN: Walking it to forwarded and starting a quotation cycle
	for _, step := range [][2]string{
		{"created", "pending_approval"},
		{"pending_approval", "approved"},
		{"approved", "forwarded"},
	} {
		rec := a.transitionRequisition(t, created.ID, step[0], step[1])
		if rec.Code != http.StatusOK {
			t.Fatalf("transition %s -> %s: status %d, body %s", step[0], step[1], rec.Code, rec.Body.String())
		}
	}

	rec := a.do(t, http.MethodPost, "/api/quotations", map[string]any{
		"requisition_id": created.ID,
		"actor_id":       "buyer-1",
		"suppliers": []map[string]any{
			{"supplier_id": "sup-1"},
			{"supplier_id": "sup-2"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start cycle: status %d, body %s", rec.Code, rec.Body.String())
	}

	// THEN: The requisition is quoting with four audit entries
	req, err := a.store.GetRequisition(ctx, "org-1", created.ID)
	if err != nil {
		t.Fatalf("get requisition: %v", err)
	}
	if req.State != procurement.ReqQuoting {
		t.Errorf("expected quoting, got %s", req.State)
	}

	kind := procurement.KindRequisition
	logs, err := a.store.ListLogs(ctx, "org-1", workflow.LogFilter{EntityKind: &kind, EntityID: &created.ID})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 4 {
		t.Errorf("expected 4 log entries, got %d", len(logs))
	}
}

func TestTransitionErrorMapping(t *testing.T) {
	a := newTestAPI()
	created := a.createRequisition(t)

	// Illegal edge: 400.
	if rec := a.transitionRequisition(t, created.ID, "created", "finalized"); rec.Code != http.StatusBadRequest {
		t.Errorf("illegal edge: expected 400, got %d", rec.Code)
	}

	// Unknown entity: 404.
	if rec := a.transitionRequisition(t, "nope", "created", "pending_approval"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown entity: expected 404, got %d", rec.Code)
	}

	// Stale observed state: 409.
	if rec := a.transitionRequisition(t, created.ID, "created", "pending_approval"); rec.Code != http.StatusOK {
		t.Fatalf("legal transition failed: %d", rec.Code)
	}
	if rec := a.transitionRequisition(t, created.ID, "created", "cancelled"); rec.Code != http.StatusConflict {
		t.Errorf("stale state: expected 409, got %d", rec.Code)
	}
}

func TestUpdateAfterSubmitIsRejected(t *testing.T) {
	a := newTestAPI()
	created := a.createRequisition(t)
	if rec := a.transitionRequisition(t, created.ID, "created", "pending_approval"); rec.Code != http.StatusOK {
		t.Fatalf("transition failed: %d", rec.Code)
	}

	rec := a.do(t, http.MethodPut, "/api/requisitions/"+created.ID, map[string]any{
		"warehouse_id": "wh-2",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a locked requisition, got %d", rec.Code)
	}
}

func TestListRequisitionsFiltersByState(t *testing.T) {
	a := newTestAPI()
	a.createRequisition(t)
	second := a.createRequisition(t)
	if rec := a.transitionRequisition(t, second.ID, "created", "pending_approval"); rec.Code != http.StatusOK {
		t.Fatalf("transition failed: %d", rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/api/requisitions?state=pending_approval", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	list := decodeBody[[]RequisitionResponse](t, rec)
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("expected only the pending requisition, got %d rows", len(list))
	}
}

func TestDuplicateEndpoint(t *testing.T) {
	a := newTestAPI()
	created := a.createRequisition(t)

	rec := a.do(t, http.MethodPost, "/api/requisitions/"+created.ID+"/duplicate", map[string]any{
		"requester_id": "user-2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("duplicate: status %d, body %s", rec.Code, rec.Body.String())
	}
	clone := decodeBody[RequisitionResponse](t, rec)
	if clone.ID == created.ID || clone.Number == created.Number {
		t.Errorf("expected a fresh id and number, got %s / %s", clone.ID, clone.Number)
	}
	if clone.RequesterID != "user-2" || len(clone.Items) != 1 {
		t.Errorf("clone incomplete: %+v", clone)
	}
}

func TestFollowUpEndpoints(t *testing.T) {
	a := newTestAPI()
	created := a.createRequisition(t)

	rec := a.do(t, http.MethodGet, "/api/follow-up", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list follow-ups: status %d", rec.Code)
	}
	records := decodeBody[[]procurement.FollowUpRecord](t, rec)
	if len(records) != 1 || records[0].RequisitionID != created.ID {
		t.Errorf("expected one record for %s, got %+v", created.ID, records)
	}
	if records[0].Quotation.Status != procurement.StageNotStarted {
		t.Errorf("expected not_started quotation stage, got %s", records[0].Quotation.Status)
	}

	if rec := a.do(t, http.MethodGet, "/api/follow-up/"+created.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("detail: status %d", rec.Code)
	}
	if rec := a.do(t, http.MethodGet, "/api/follow-up/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("detail for unknown id: expected 404, got %d", rec.Code)
	}
}

func TestStartCycleSupplierCountMapsTo400(t *testing.T) {
	a := newTestAPI()
	created := a.createRequisition(t)
	for _, step := range [][2]string{
		{"created", "pending_approval"},
		{"pending_approval", "approved"},
		{"approved", "forwarded"},
	} {
		if rec := a.transitionRequisition(t, created.ID, step[0], step[1]); rec.Code != http.StatusOK {
			t.Fatalf("transition failed: %d", rec.Code)
		}
	}

	rec := a.do(t, http.MethodPost, "/api/quotations", map[string]any{
		"requisition_id": created.ID,
		"actor_id":       "buyer-1",
		"suppliers":      []map[string]any{{"supplier_id": "sup-1"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a single supplier, got %d (body %s)", rec.Code, rec.Body.String())
	}
}

// fakeCache serves a canned projection and counts how it was used.
type fakeCache struct {
	records   []procurement.FollowUpRecord
	gets      int
	sets      int
	invalidations int
}

func (c *fakeCache) Get(_ context.Context, _ string) ([]procurement.FollowUpRecord, error) {
	c.gets++
	if c.records == nil {
		return nil, cache.ErrMiss
	}
	return c.records, nil
}

func (c *fakeCache) Set(_ context.Context, _ string, records []procurement.FollowUpRecord) error {
	c.sets++
	c.records = records
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, _ string) error {
	c.invalidations++
	c.records = nil
	return nil
}

func TestFollowUpListUsesCache(t *testing.T) {
	store := memory.New()
	fake := &fakeCache{}
	h := NewHandler(store, fake, zerolog.Nop())
	a := &testAPI{store: store, router: NewRouter(h, "*")}

	a.createRequisition(t)

	// First read misses and fills the cache.
	if rec := a.do(t, http.MethodGet, "/api/follow-up", nil); rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if fake.gets != 1 || fake.sets != 1 {
		t.Fatalf("expected miss then fill, got %d gets / %d sets", fake.gets, fake.sets)
	}

	// Second read is served from the cache without recomputing.
	if rec := a.do(t, http.MethodGet, "/api/follow-up", nil); rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if fake.gets != 2 || fake.sets != 1 {
		t.Errorf("expected a cache hit, got %d gets / %d sets", fake.gets, fake.sets)
	}

	// A write invalidates; the next read recomputes.
	a.createRequisition(t)
	if fake.invalidations == 0 {
		t.Error("expected creation to invalidate the follow-up cache")
	}
	if rec := a.do(t, http.MethodGet, "/api/follow-up", nil); rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if fake.sets != 2 {
		t.Errorf("expected a refill after invalidation, got %d sets", fake.sets)
	}
}

func TestHealthz(t *testing.T) {
	a := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	a := newTestAPI()
	req := httptest.NewRequest(http.MethodPost, "/api/requisitions", bytes.NewBufferString("{nope"))
	req.Header.Set("X-Org-ID", "org-1")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}
