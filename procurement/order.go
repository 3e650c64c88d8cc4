/*
order.go - Purchase order service

PURPOSE:
  Creates the commercial commitment from an approved supplier quote and
  drives it through open -> approved -> delivered -> finalized. Order items
  are copied from the originating requisition's items, priced from the
  winning quote when a total is available, with delivered-quantity tracking
  starting at zero.
*/
package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/procurement-engine/workflow"
)

// CreateOrderInput creates a purchase order from one accepted quote.
type CreateOrderInput struct {
	OrgID        string
	ActorID      string
	CycleID      string
	SupplierID   string
	PromisedDate string
	SpecialTerms string
	Notes        string
}

type OrderService struct {
	Store     Store
	Validator *workflow.Validator
	Numbers   *workflow.NumberGenerator
	Log       zerolog.Logger
}

// Create builds the order from an approved cycle's winning quote. The cycle
// must be approved and the supplier must hold an approved quote in it.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*PurchaseOrder, error) {
	cycle, err := s.Store.GetQuotationCycle(ctx, in.OrgID, in.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.State != QuoteApproved {
		return nil, &workflow.InvalidTransitionError{Kind: KindQuotation, EntityID: cycle.ID, From: cycle.State, To: QuoteApproved}
	}
	quote, err := s.Store.GetSupplierQuoteBySupplier(ctx, cycle.ID, in.SupplierID)
	if err != nil {
		return nil, err
	}
	if quote.State != QuoteApproved {
		return nil, fmt.Errorf("supplier %s quote is %s, not approved: %w", in.SupplierID, quote.State, workflow.ErrInvalidTransition)
	}

	order := PurchaseOrder{
		ID:           uuid.NewString(),
		OrgID:        in.OrgID,
		CycleID:      cycle.ID,
		SupplierID:   in.SupplierID,
		State:        OrderOpen,
		Status:       "draft",
		PromisedDate: in.PromisedDate,
		SpecialTerms: in.SpecialTerms,
		Notes:        in.Notes,
		CreatedAt:    time.Now().UTC(),
	}
	number, err := s.Numbers.Generate(ctx, NumberOrder, in.OrgID, func(number string) error {
		order.Number = number
		return s.Store.CreatePurchaseOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	order.Number = number

	reqItems, err := s.Store.ListRequisitionItems(ctx, cycle.RequisitionID)
	if err != nil {
		return &order, err
	}

	prices := allocateQuotePrices(reqItems, quote.TotalPrice)
	var failed []workflow.ItemFailure
	written := 0
	for i, ri := range reqItems {
		item := PurchaseOrderItem{
			ID:           uuid.NewString(),
			OrderID:      order.ID,
			MaterialID:   ri.MaterialID,
			Quantity:     ri.Quantity,
			Unit:         ri.Unit,
			UnitPrice:    prices[i],
			Notes:        ri.Notes,
			WarehouseID:  ri.WarehouseID,
			DeliveredQty: decimal.Zero,
		}
		if err := s.Store.CreateOrderItem(ctx, item); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: ri.MaterialID, Err: err})
			continue
		}
		written++
	}

	s.Log.Info().
		Str("order_id", order.ID).
		Str("number", order.Number).
		Str("supplier_id", in.SupplierID).
		Int("items", written).
		Msg("purchase order created")

	if len(failed) > 0 {
		return &order, &workflow.PartialFailureError{Op: "create order items", Succeeded: written, Failed: failed}
	}
	return &order, nil
}

// Transition moves the order along its lifecycle and appends the audit entry.
func (s *OrderService) Transition(ctx context.Context, in TransitionInput) (*PurchaseOrder, error) {
	order, err := s.Store.GetPurchaseOrder(ctx, in.OrgID, in.EntityID)
	if err != nil {
		return nil, err
	}
	if order.State != in.From {
		return nil, &workflow.StaleStateError{Kind: KindPurchaseOrder, EntityID: order.ID, Expected: in.From, Actual: order.State}
	}
	if err := s.Validator.Enforce(KindPurchaseOrder, order.ID, in.From, in.To); err != nil {
		return nil, err
	}

	if err := s.Store.SetOrderState(ctx, in.OrgID, order.ID, in.From, in.To, statusLabel(KindPurchaseOrder, in.To)); err != nil {
		return nil, err
	}
	if err := appendTransition(ctx, s.Store, KindPurchaseOrder, in); err != nil {
		return nil, err
	}

	order.State = in.To
	order.Status = statusLabel(KindPurchaseOrder, in.To)
	s.Log.Info().
		Str("order_id", order.ID).
		Str("from", string(in.From)).
		Str("to", string(in.To)).
		Msg("purchase order transitioned")
	return order, nil
}

// List returns all purchase orders for an organization.
func (s *OrderService) List(ctx context.Context, orgID string) ([]PurchaseOrder, error) {
	return s.Store.ListPurchaseOrders(ctx, orgID)
}

// allocateQuotePrices spreads a quote's total across the requisition items
// proportionally to their estimated value, falling back to the estimates
// themselves when the quote has no total or the estimates sum to zero.
func allocateQuotePrices(items []RequisitionItem, quoteTotal decimal.Decimal) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(items))

	estTotal := decimal.Zero
	for _, it := range items {
		estTotal = estTotal.Add(it.EstUnitPrice.Mul(it.Quantity))
	}

	if quoteTotal.IsZero() || estTotal.IsZero() {
		for i, it := range items {
			prices[i] = it.EstUnitPrice
		}
		return prices
	}

	ratio := quoteTotal.Div(estTotal)
	for i, it := range items {
		prices[i] = it.EstUnitPrice.Mul(ratio).Round(4)
	}
	return prices
}
