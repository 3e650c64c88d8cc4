/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes for the REST surface. Kept separate from domain types so the
  wire format can evolve without touching the engine. Quantities and prices
  travel as decimal strings.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/procurement-engine/procurement"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ItemRequest is one desired item row on a requisition.
type ItemRequest struct {
	ItemID       string          `json:"item_id,omitempty"`
	MaterialID   string          `json:"material_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit,omitempty"`
	EstUnitPrice decimal.Decimal `json:"est_unit_price"`
	Notes        string          `json:"notes,omitempty"`
	WarehouseID  string          `json:"warehouse_id,omitempty"`
}

// CreateRequisitionRequest opens a requisition.
type CreateRequisitionRequest struct {
	RequesterID    string          `json:"requester_id"`
	Kind           string          `json:"kind"`
	Priority       string          `json:"priority,omitempty"`
	CostCenterID   string          `json:"cost_center_id,omitempty"`
	ProjectID      string          `json:"project_id,omitempty"`
	WarehouseID    string          `json:"warehouse_id,omitempty"`
	DeliveryAddr   string          `json:"delivery_address,omitempty"`
	NeedByDate     string          `json:"need_by_date,omitempty"`
	Justification  string          `json:"justification,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	EstimatedTotal decimal.Decimal `json:"estimated_total"`
	Items          []ItemRequest   `json:"items"`
}

// UpdateRequisitionRequest rewrites the editable fields and the item set.
type UpdateRequisitionRequest struct {
	Priority       string          `json:"priority,omitempty"`
	CostCenterID   string          `json:"cost_center_id,omitempty"`
	ProjectID      string          `json:"project_id,omitempty"`
	WarehouseID    string          `json:"warehouse_id,omitempty"`
	DeliveryAddr   string          `json:"delivery_address,omitempty"`
	NeedByDate     string          `json:"need_by_date,omitempty"`
	Justification  string          `json:"justification,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	EstimatedTotal decimal.Decimal `json:"estimated_total"`
	Items          []ItemRequest   `json:"items"`
}

// TransitionRequest moves an entity along its lifecycle.
type TransitionRequest struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	ActorID string         `json:"actor_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// DuplicateRequest clones a requisition for a new requester.
type DuplicateRequest struct {
	RequesterID string `json:"requester_id"`
}

// SupplierInviteRequest is one supplier invited into a cycle.
type SupplierInviteRequest struct {
	SupplierID string `json:"supplier_id"`
	LeadDays   int    `json:"lead_days,omitempty"`
	Terms      string `json:"terms,omitempty"`
}

// StartCycleRequest opens a quotation cycle over a forwarded requisition.
type StartCycleRequest struct {
	RequisitionID string                  `json:"requisition_id"`
	ActorID       string                  `json:"actor_id"`
	Suppliers     []SupplierInviteRequest `json:"suppliers"`
	ReplyDeadline string                  `json:"reply_deadline,omitempty"`
	Notes         string                  `json:"notes,omitempty"`
}

// QuoteResponseRequest records or revises a supplier's bid.
type QuoteResponseRequest struct {
	CycleID    string          `json:"cycle_id,omitempty"`
	SupplierID string          `json:"supplier_id,omitempty"`
	TotalPrice decimal.Decimal `json:"total_price"`
	LeadDays   int             `json:"lead_days,omitempty"`
	Terms      string          `json:"terms,omitempty"`
	State      string          `json:"state"`
}

// CreateOrderRequest creates a purchase order from an approved quote.
type CreateOrderRequest struct {
	ActorID      string `json:"actor_id"`
	CycleID      string `json:"cycle_id"`
	SupplierID   string `json:"supplier_id"`
	PromisedDate string `json:"promised_date,omitempty"`
	SpecialTerms string `json:"special_terms,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// InvoiceItemRequest is one received line on an incoming invoice.
type InvoiceItemRequest struct {
	OrderItemID string          `json:"order_item_id,omitempty"`
	MaterialID  string          `json:"material_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	NCM         string          `json:"ncm,omitempty"`
	CFOP        string          `json:"cfop,omitempty"`
	CST         string          `json:"cst,omitempty"`
}

// RecordInvoiceRequest registers an invoice received against an order.
type RecordInvoiceRequest struct {
	ActorID       string               `json:"actor_id"`
	OrderID       string               `json:"order_id"`
	SupplierID    string               `json:"supplier_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Series        string               `json:"series,omitempty"`
	AccessKey     string               `json:"access_key,omitempty"`
	IssueDate     string               `json:"issue_date,omitempty"`
	ReceiptDate   string               `json:"receipt_date,omitempty"`
	DeclaredTotal decimal.Decimal      `json:"declared_total"`
	XMLPayload    string               `json:"xml_payload,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Items         []InvoiceItemRequest `json:"items"`
}

// CompareRequest overrides the default tolerances for one comparison.
// Zero values fall back to the defaults.
type CompareRequest struct {
	PriceTolerance decimal.Decimal `json:"price_tolerance"`
	QtyTolerance   decimal.Decimal `json:"qty_tolerance"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PartialFailureResponse reports a multi-row operation that only partly
// applied: the parent entity exists, the named rows do not.
type PartialFailureResponse struct {
	Data    any                `json:"data"`
	Partial PartialFailureBody `json:"partial_failure"`
}

type PartialFailureBody struct {
	Op        string           `json:"op"`
	Succeeded int              `json:"succeeded"`
	Failed    []FailedItemBody `json:"failed"`
}

type FailedItemBody struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// RequisitionResponse is the wire shape of a requisition with its items.
type RequisitionResponse struct {
	ID             string           `json:"id"`
	Number         string           `json:"number"`
	Kind           string           `json:"kind"`
	State          string           `json:"state"`
	Status         string           `json:"status"`
	Priority       string           `json:"priority,omitempty"`
	RequesterID    string           `json:"requester_id"`
	CostCenterID   string           `json:"cost_center_id,omitempty"`
	ProjectID      string           `json:"project_id,omitempty"`
	WarehouseID    string           `json:"warehouse_id,omitempty"`
	DeliveryAddr   string           `json:"delivery_address,omitempty"`
	NeedByDate     string           `json:"need_by_date,omitempty"`
	Justification  string           `json:"justification,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	EstimatedTotal decimal.Decimal  `json:"estimated_total"`
	CreatedAt      time.Time        `json:"created_at"`
	Items          []ItemResponse   `json:"items,omitempty"`
}

// ItemResponse is one persisted item row.
type ItemResponse struct {
	ID           string          `json:"id"`
	MaterialID   string          `json:"material_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit"`
	EstUnitPrice decimal.Decimal `json:"est_unit_price"`
	Notes        string          `json:"notes,omitempty"`
	WarehouseID  string          `json:"warehouse_id,omitempty"`
}

func toRequisitionResponse(r *procurement.Requisition, items []procurement.RequisitionItem) RequisitionResponse {
	resp := RequisitionResponse{
		ID:             r.ID,
		Number:         r.Number,
		Kind:           string(r.Kind),
		State:          string(r.State),
		Status:         r.Status,
		Priority:       r.Priority,
		RequesterID:    r.RequesterID,
		CostCenterID:   r.CostCenterID,
		ProjectID:      r.ProjectID,
		WarehouseID:    r.WarehouseID,
		DeliveryAddr:   r.DeliveryAddr,
		NeedByDate:     r.NeedByDate,
		Justification:  r.Justification,
		Notes:          r.Notes,
		EstimatedTotal: r.EstimatedTotal,
		CreatedAt:      r.CreatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, ItemResponse{
			ID:           it.ID,
			MaterialID:   it.MaterialID,
			Quantity:     it.Quantity,
			Unit:         it.Unit,
			EstUnitPrice: it.EstUnitPrice,
			Notes:        it.Notes,
			WarehouseID:  it.WarehouseID,
		})
	}
	return resp
}
