package procurement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/store/memory"
	"github.com/warp/procurement-engine/workflow"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const testOrg = "org-1"

type services struct {
	store        *memory.Store
	requisitions *procurement.RequisitionService
	quotations   *procurement.QuotationService
	orders       *procurement.OrderService
	invoices     *procurement.InvoiceService
}

func newServices() *services {
	store := memory.New()
	validator := procurement.NewValidator()
	numbers := workflow.NewNumberGenerator(store)
	log := zerolog.Nop()
	return &services{
		store:        store,
		requisitions: &procurement.RequisitionService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		quotations:   &procurement.QuotationService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		orders:       &procurement.OrderService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		invoices:     &procurement.InvoiceService{Store: store, Log: log},
	}
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func restockInput(items ...procurement.RequisitionItemInput) procurement.CreateRequisitionInput {
	return procurement.CreateRequisitionInput{
		OrgID:       testOrg,
		RequesterID: "user-1",
		Kind:        procurement.KindRestock,
		WarehouseID: "wh-1",
		Items:       items,
	}
}

func itemInput(material, qty, price string) procurement.RequisitionItemInput {
	return procurement.RequisitionItemInput{MaterialID: material, Quantity: dec(qty), EstUnitPrice: dec(price)}
}

func (s *services) logsFor(t *testing.T, kind workflow.Kind, entityID string) []workflow.LogEntry {
	t.Helper()
	logs, err := s.store.ListLogs(context.Background(), testOrg, workflow.LogFilter{EntityKind: &kind, EntityID: &entityID})
	require.NoError(t, err)
	return logs
}

// forward walks a fresh requisition to the forwarded state.
func (s *services) forward(t *testing.T, reqID string, from procurement.State) {
	t.Helper()
	ctx := context.Background()
	steps := []struct{ from, to procurement.State }{
		{procurement.ReqCreated, procurement.ReqPendingApproval},
		{procurement.ReqPendingApproval, procurement.ReqApproved},
		{procurement.ReqApproved, procurement.ReqForwarded},
	}
	for _, step := range steps {
		if step.from != from {
			continue
		}
		_, err := s.requisitions.Transition(ctx, procurement.TransitionInput{
			OrgID: testOrg, EntityID: reqID, From: step.from, To: step.to, ActorID: "approver-1",
		})
		require.NoError(t, err)
		from = step.to
	}
	require.Equal(t, procurement.ReqForwarded, from)
}

// =============================================================================
// REQUISITION LIFECYCLE
// =============================================================================

func TestCreateRequisitionValidatesKindFields(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	// GIVEN: A restock requisition without a destination warehouse
	// WHEN: Creating
	// THEN: MissingFieldError and nothing persisted
	_, err := s.requisitions.Create(ctx, procurement.CreateRequisitionInput{
		OrgID: testOrg, RequesterID: "user-1", Kind: procurement.KindRestock,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrMissingRequiredField))

	_, err = s.requisitions.Create(ctx, procurement.CreateRequisitionInput{
		OrgID: testOrg, RequesterID: "user-1", Kind: procurement.KindDirectPurchase,
	})
	require.Error(t, err)
	var mf *workflow.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "delivery_address", mf.Field)

	reqs, err := s.requisitions.List(ctx, testOrg, procurement.RequisitionFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs, "validation failures must not persist anything")
}

func TestCreateRequisitionAssignsSequentialNumbers(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	first, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	second, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	assert.Equal(t, "REQ-000001", first.Number)
	assert.Equal(t, "REQ-000002", second.Number)
	assert.Equal(t, procurement.ReqCreated, first.State)
	assert.Equal(t, "created", first.Status)
}

func TestCreateEmergencyRequisitionSkipsCreatedState(t *testing.T) {
	s := newServices()

	req, err := s.requisitions.Create(context.Background(), procurement.CreateRequisitionInput{
		OrgID: testOrg, RequesterID: "user-1", Kind: procurement.KindEmergency,
		Items: []procurement.RequisitionItemInput{itemInput("matA", "1", "10")},
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.ReqPendingApproval, req.State)
	assert.Equal(t, "pending_approval", req.Status)
}

func TestCreateRequisitionAggregatesDuplicateMaterials(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(
		itemInput("matA", "2", "10"),
		itemInput("matA", "3", "12"),
		itemInput("matB", "1", "4"),
	))
	require.NoError(t, err)

	items, err := s.store.ListRequisitionItems(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byMaterial := map[string]decimal.Decimal{}
	for _, it := range items {
		byMaterial[it.MaterialID] = it.Quantity
	}
	assert.True(t, byMaterial["matA"].Equal(dec("5")), "duplicates should sum, got %s", byMaterial["matA"])
}

func TestTransitionAppendsExactlyOneLogEntry(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	moved, err := s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqPendingApproval,
		ActorID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.ReqPendingApproval, moved.State)

	logs := s.logsFor(t, "requisition", req.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, workflow.State("created"), logs[0].FromState)
	assert.Equal(t, workflow.State("pending_approval"), logs[0].ToState)
	assert.Equal(t, "user-1", logs[0].ActorID)
}

func TestTransitionRejectsIllegalEdgeWithoutSideEffects(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqFinalized,
		ActorID: "user-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))

	stored, err := s.store.GetRequisition(ctx, testOrg, req.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.ReqCreated, stored.State, "rejected transition must not mutate state")
	assert.Empty(t, s.logsFor(t, "requisition", req.ID), "rejected transition must not log")
}

func TestTransitionDetectsStaleObservedState(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	// Another actor moves it first.
	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqPendingApproval, ActorID: "user-2",
	})
	require.NoError(t, err)

	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqCancelled, ActorID: "user-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrConcurrentModification))
	assert.True(t, workflow.IsRetryable(err))
}

func TestApproveWritesApprovalRecord(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqPendingApproval, ActorID: "user-1",
	})
	require.NoError(t, err)
	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqPendingApproval, To: procurement.ReqApproved,
		ActorID: "boss-1", Payload: map[string]any{"level": 2, "notes": "within budget"},
	})
	require.NoError(t, err)

	approvals, err := s.store.ListApprovals(ctx, testOrg, "requisition", req.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, procurement.DecisionApproved, approvals[0].Decision)
	assert.Equal(t, 2, approvals[0].Level)
	assert.Equal(t, "boss-1", approvals[0].ApproverID)
	assert.Equal(t, "within budget", approvals[0].Notes)
}

func TestRejectMapsToCancelledStatusLabel(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqPendingApproval, ActorID: "user-1",
	})
	require.NoError(t, err)

	rejected, err := s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqPendingApproval, To: procurement.ReqRejected, ActorID: "boss-1",
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.ReqRejected, rejected.State)
	assert.Equal(t, "cancelled", rejected.Status, "rejection surfaces as the cancelled label")
}

func TestUpdateOnlyAllowedInCreatedState(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	_, err = s.requisitions.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: req.ID,
		From: procurement.ReqCreated, To: procurement.ReqPendingApproval, ActorID: "user-1",
	})
	require.NoError(t, err)

	_, err = s.requisitions.Update(ctx, procurement.UpdateRequisitionInput{
		OrgID: testOrg, RequisitionID: req.ID, WarehouseID: "wh-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrNotEditable))
}

func TestUpdateReconcilesItemRows(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(
		itemInput("matA", "2", "10"),
		itemInput("matB", "1", "3"),
	))
	require.NoError(t, err)

	// Drop matB, bump matA, add matC.
	_, err = s.requisitions.Update(ctx, procurement.UpdateRequisitionInput{
		OrgID: testOrg, RequisitionID: req.ID, WarehouseID: "wh-1",
		Items: []procurement.RequisitionItemInput{
			itemInput("matA", "4", "10"),
			itemInput("matC", "1", "7"),
		},
	})
	require.NoError(t, err)

	items, err := s.store.ListRequisitionItems(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byMaterial := map[string]procurement.RequisitionItem{}
	for _, it := range items {
		byMaterial[it.MaterialID] = it
	}
	assert.True(t, byMaterial["matA"].Quantity.Equal(dec("4")))
	assert.Contains(t, byMaterial, "matC")
	assert.NotContains(t, byMaterial, "matB")
}

func TestDuplicateClonesHeaderAndItems(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	src, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "2", "10")))
	require.NoError(t, err)

	clone, err := s.requisitions.Duplicate(ctx, testOrg, src.ID, "user-2")
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, clone.ID)
	assert.NotEqual(t, src.Number, clone.Number)
	assert.Equal(t, procurement.ReqCreated, clone.State)
	assert.Equal(t, "user-2", clone.RequesterID)
	assert.Equal(t, src.WarehouseID, clone.WarehouseID)

	items, err := s.store.ListRequisitionItems(ctx, clone.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "matA", items[0].MaterialID)
}

// =============================================================================
// QUOTATION CYCLES
// =============================================================================

func TestStartCycleEnforcesSupplierCount(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)

	// One supplier is too few for a restock requisition.
	_, err = s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidSupplierCount))

	// Seven is too many.
	var seven []procurement.SupplierInvite
	for i := 0; i < 7; i++ {
		seven = append(seven, procurement.SupplierInvite{SupplierID: string(rune('a' + i))})
	}
	_, err = s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID, Suppliers: seven,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidSupplierCount))

	// No cycle was persisted by either rejection.
	_, err = s.store.GetCycleByRequisition(ctx, testOrg, req.ID)
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestStartCycleEmergencyInvitesExactlyOne(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, procurement.CreateRequisitionInput{
		OrgID: testOrg, RequesterID: "user-1", Kind: procurement.KindEmergency,
		Items: []procurement.RequisitionItemInput{itemInput("matA", "1", "10")},
	})
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqPendingApproval)

	_, err = s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidSupplierCount))

	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "QC-000001", cycle.Number)
}

func TestStartCycleMovesRequisitionToQuoting(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)

	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.NoError(t, err)

	stored, err := s.store.GetRequisition(ctx, testOrg, req.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.ReqQuoting, stored.State)

	quotes, err := s.store.ListSupplierQuotes(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)

	// The quoting transition log carries the cycle id.
	logs := s.logsFor(t, "requisition", req.ID)
	last := logs[len(logs)-1]
	assert.Equal(t, workflow.State("quoting"), last.ToState)
	assert.Equal(t, cycle.ID, last.Payload["quotation_cycle_id"])
}

func TestStartCycleRequiresForwardedState(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)

	_, err = s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrConcurrentModification))
}

func TestInviteSupplierIsIdempotent(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)
	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.NoError(t, err)

	require.NoError(t, s.quotations.InviteSupplier(ctx, testOrg, cycle.ID, procurement.SupplierInvite{SupplierID: "sup-1"}))
	require.NoError(t, s.quotations.InviteSupplier(ctx, testOrg, cycle.ID, procurement.SupplierInvite{SupplierID: "sup-3"}))

	quotes, err := s.store.ListSupplierQuotes(ctx, cycle.ID)
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
}

func TestUpsertQuoteFallsBackToCycleAndSupplier(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)
	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.NoError(t, err)

	// A stale quote id still lands on sup-1's row.
	quote, err := s.quotations.UpsertQuoteResponse(ctx, procurement.QuoteResponseInput{
		OrgID: testOrg, QuoteID: "gone", CycleID: cycle.ID, SupplierID: "sup-1",
		TotalPrice: dec("150.00"), LeadDays: 5, State: procurement.QuoteComplete,
	})
	require.NoError(t, err)
	assert.Equal(t, "sup-1", quote.SupplierID)
	assert.True(t, quote.TotalPrice.Equal(dec("150.00")))
	assert.Equal(t, procurement.QuoteComplete, quote.State)

	// Without cycle/supplier there is nothing to match against.
	_, err = s.quotations.UpsertQuoteResponse(ctx, procurement.QuoteResponseInput{
		OrgID: testOrg, QuoteID: "gone", TotalPrice: dec("1"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrMissingRequiredField))
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

// approvedCycle builds a requisition with an approved cycle and winning quote.
func (s *services) approvedCycle(t *testing.T) (reqID, cycleID string) {
	t.Helper()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(
		itemInput("matA", "2", "10"),
		itemInput("matB", "1", "30"),
	))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)

	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.NoError(t, err)

	_, err = s.quotations.UpsertQuoteResponse(ctx, procurement.QuoteResponseInput{
		OrgID: testOrg, CycleID: cycle.ID, SupplierID: "sup-1",
		TotalPrice: dec("45.00"), State: procurement.QuoteApproved,
	})
	require.NoError(t, err)

	for _, step := range []struct{ from, to procurement.State }{
		{procurement.QuoteOpen, procurement.QuoteComplete},
		{procurement.QuoteComplete, procurement.QuotePendingApproval},
		{procurement.QuotePendingApproval, procurement.QuoteApproved},
	} {
		_, err = s.quotations.Transition(ctx, procurement.TransitionInput{
			OrgID: testOrg, EntityID: cycle.ID, From: step.from, To: step.to, ActorID: "boss-1",
		})
		require.NoError(t, err)
	}
	return req.ID, cycle.ID
}

func TestCreateOrderFromApprovedQuote(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	_, cycleID := s.approvedCycle(t)

	order, err := s.orders.Create(ctx, procurement.CreateOrderInput{
		OrgID: testOrg, ActorID: "buyer-1", CycleID: cycleID, SupplierID: "sup-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "PO-000001", order.Number)
	assert.Equal(t, procurement.OrderOpen, order.State)
	assert.Equal(t, "draft", order.Status)

	items, err := s.store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 2, "order items copied from the requisition")

	// Estimated value is 2*10 + 1*30 = 50; the 45.00 quote scales prices by 0.9.
	byMaterial := map[string]procurement.PurchaseOrderItem{}
	for _, it := range items {
		byMaterial[it.MaterialID] = it
	}
	assert.True(t, byMaterial["matA"].UnitPrice.Equal(dec("9")), "got %s", byMaterial["matA"].UnitPrice)
	assert.True(t, byMaterial["matB"].UnitPrice.Equal(dec("27")), "got %s", byMaterial["matB"].UnitPrice)
	assert.True(t, byMaterial["matA"].DeliveredQty.IsZero())
}

func TestCreateOrderRejectsUnapprovedCycle(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	req, err := s.requisitions.Create(ctx, restockInput(itemInput("matA", "1", "10")))
	require.NoError(t, err)
	s.forward(t, req.ID, procurement.ReqCreated)
	cycle, err := s.quotations.StartCycle(ctx, procurement.StartCycleInput{
		OrgID: testOrg, ActorID: "buyer-1", RequisitionID: req.ID,
		Suppliers: []procurement.SupplierInvite{{SupplierID: "sup-1"}, {SupplierID: "sup-2"}},
	})
	require.NoError(t, err)

	_, err = s.orders.Create(ctx, procurement.CreateOrderInput{
		OrgID: testOrg, ActorID: "buyer-1", CycleID: cycle.ID, SupplierID: "sup-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
}

func TestOrderLifecycle(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	_, cycleID := s.approvedCycle(t)

	order, err := s.orders.Create(ctx, procurement.CreateOrderInput{
		OrgID: testOrg, ActorID: "buyer-1", CycleID: cycleID, SupplierID: "sup-1",
	})
	require.NoError(t, err)

	for _, step := range []struct{ from, to procurement.State }{
		{procurement.OrderOpen, procurement.OrderApproved},
		{procurement.OrderApproved, procurement.OrderDelivered},
		{procurement.OrderDelivered, procurement.OrderFinalized},
	} {
		_, err = s.orders.Transition(ctx, procurement.TransitionInput{
			OrgID: testOrg, EntityID: order.ID, From: step.from, To: step.to, ActorID: "boss-1",
		})
		require.NoError(t, err)
	}

	logs := s.logsFor(t, "purchase_order", order.ID)
	assert.Len(t, logs, 3)

	// Skipping delivered is rejected.
	_, err = s.orders.Transition(ctx, procurement.TransitionInput{
		OrgID: testOrg, EntityID: order.ID, From: procurement.OrderFinalized, To: procurement.OrderOpen, ActorID: "boss-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
}

// =============================================================================
// INVOICE ENTRIES
// =============================================================================

func TestRecordInvoiceAndCompare(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	_, cycleID := s.approvedCycle(t)

	order, err := s.orders.Create(ctx, procurement.CreateOrderInput{
		OrgID: testOrg, ActorID: "buyer-1", CycleID: cycleID, SupplierID: "sup-1",
	})
	require.NoError(t, err)
	orderItems, err := s.store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)

	var lines []procurement.InvoiceItemInput
	for _, oi := range orderItems {
		lines = append(lines, procurement.InvoiceItemInput{
			OrderItemID: oi.ID,
			MaterialID:  oi.MaterialID,
			Quantity:    oi.Quantity,
			UnitPrice:   oi.UnitPrice,
			Total:       oi.UnitPrice.Mul(oi.Quantity),
		})
	}

	entry, err := s.invoices.Record(ctx, procurement.RecordInvoiceInput{
		OrgID: testOrg, ActorID: "clerk-1", OrderID: order.ID, SupplierID: "sup-1",
		InvoiceNumber: "NF-123", DeclaredTotal: dec("45.00"), Items: lines,
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.ReconNotProcessed, entry.Recon)

	result, err := s.invoices.Compare(ctx, testOrg, entry.ID, procurement.DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, procurement.ReconReconciled, result.Status)

	stored, err := s.store.GetInvoiceEntry(ctx, testOrg, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.ReconReconciled, stored.Recon)
}

func TestRecordInvoiceRequiresNumberAndOrder(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	_, err := s.invoices.Record(ctx, procurement.RecordInvoiceInput{
		OrgID: testOrg, OrderID: "missing",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrMissingRequiredField))

	_, err = s.invoices.Record(ctx, procurement.RecordInvoiceInput{
		OrgID: testOrg, OrderID: "missing", InvoiceNumber: "NF-1",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestCompareDivergentInvoiceFlagsEntry(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	_, cycleID := s.approvedCycle(t)

	order, err := s.orders.Create(ctx, procurement.CreateOrderInput{
		OrgID: testOrg, ActorID: "buyer-1", CycleID: cycleID, SupplierID: "sup-1",
	})
	require.NoError(t, err)
	orderItems, err := s.store.ListOrderItems(ctx, order.ID)
	require.NoError(t, err)

	// Overbill every line by 10%.
	var lines []procurement.InvoiceItemInput
	for _, oi := range orderItems {
		lines = append(lines, procurement.InvoiceItemInput{
			OrderItemID: oi.ID,
			MaterialID:  oi.MaterialID,
			Quantity:    oi.Quantity,
			UnitPrice:   oi.UnitPrice.Mul(dec("1.1")),
		})
	}

	entry, err := s.invoices.Record(ctx, procurement.RecordInvoiceInput{
		OrgID: testOrg, ActorID: "clerk-1", OrderID: order.ID, SupplierID: "sup-1",
		InvoiceNumber: "NF-124", Items: lines,
	})
	require.NoError(t, err)

	result, err := s.invoices.Compare(ctx, testOrg, entry.ID, procurement.DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, procurement.ReconDivergent, result.Status)
	assert.Equal(t, len(orderItems), result.Divergent)

	stored, err := s.store.GetInvoiceEntry(ctx, testOrg, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.ReconDivergent, stored.Recon)
}
