/*
Package procurement implements the procurement workflow engine: requisition,
quotation cycle, purchase order and invoice-entry lifecycles, line-item
reconciliation, invoice/order tolerance matching, and the follow-up
read-model spanning all stages.

KEY CONCEPTS IN THIS FILE (types.go):
  - The five chained business entities and their owned line items
  - Requisition kinds and priorities
  - Downstream read-only records (Payable, StockEntry) and Approval history

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every quantity and price
  2. Explicitness: the loosely-typed record payloads of the surrounding
     application become tagged structs here; every field read or written
     by the engine is named
  3. Auditability: entities are mutated only through service operations
     that log each transition

SEE ALSO:
  - states.go: Workflow states and transition tables
  - store.go: Persistence interfaces over these types
*/
package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUISITION - Entry point of the procurement lifecycle
// =============================================================================

// RequisitionKind distinguishes why materials are being requested.
type RequisitionKind string

const (
	KindRestock        RequisitionKind = "restock"         // requires destination warehouse
	KindDirectPurchase RequisitionKind = "direct_purchase" // requires delivery address
	KindEmergency      RequisitionKind = "emergency"       // skips the created state
)

// Requisition identifies a need for materials or services.
type Requisition struct {
	ID             string
	OrgID          string
	Number         string
	Kind           RequisitionKind
	State          State
	Status         string // free-text label derived from State
	Priority       string
	RequesterID    string
	CostCenterID   string
	ProjectID      string
	WarehouseID    string // destination, required when Kind == KindRestock
	DeliveryAddr   string // required when Kind == KindDirectPurchase
	NeedByDate     string
	Justification  string
	Notes          string
	EstimatedTotal decimal.Decimal
	CreatedAt      time.Time
}

// RequisitionItem is one material row. At most one row per
// (requisition, material) - duplicates are aggregated before persisting.
type RequisitionItem struct {
	ID            string
	RequisitionID string
	MaterialID    string
	Quantity      decimal.Decimal
	Unit          string
	EstUnitPrice  decimal.Decimal
	Notes         string
	WarehouseID   string
}

// =============================================================================
// QUOTATION CYCLE - Sourcing round over one requisition
// =============================================================================

// QuotationCycle is created when a requisition enters sourcing.
type QuotationCycle struct {
	ID            string
	OrgID         string
	RequisitionID string
	Number        string
	State         State
	Status        string
	ReplyDeadline string
	Notes         string
	CreatedAt     time.Time
}

// SupplierQuote is one invited supplier's bid within a cycle.
type SupplierQuote struct {
	ID         string
	CycleID    string
	SupplierID string
	TotalPrice decimal.Decimal
	LeadDays   int
	Terms      string
	State      State
	Status     string
	UpdatedAt  time.Time
}

// =============================================================================
// PURCHASE ORDER - Commitment created from one accepted quote
// =============================================================================

type PurchaseOrder struct {
	ID           string
	OrgID        string
	CycleID      string
	SupplierID   string
	Number       string
	State        State
	Status       string
	PromisedDate string
	SpecialTerms string
	Notes        string
	CreatedAt    time.Time
}

// PurchaseOrderItem mirrors RequisitionItem plus delivered-quantity tracking.
type PurchaseOrderItem struct {
	ID           string
	OrderID      string
	MaterialID   string
	Quantity     decimal.Decimal
	Unit         string
	UnitPrice    decimal.Decimal
	Notes        string
	WarehouseID  string
	DeliveredQty decimal.Decimal
}

// =============================================================================
// INVOICE ENTRY - Goods/invoice receipt against a purchase order
// =============================================================================

// ReconciliationStatus classifies an invoice entry against its order.
type ReconciliationStatus string

const (
	ReconNotProcessed ReconciliationStatus = "not_processed"
	ReconDivergent    ReconciliationStatus = "divergent"
	ReconReconciled   ReconciliationStatus = "reconciled"
)

type InvoiceEntry struct {
	ID            string
	OrgID         string
	OrderID       string
	SupplierID    string
	InvoiceNumber string
	Series        string
	AccessKey     string
	IssueDate     string
	ReceiptDate   string
	DeclaredTotal decimal.Decimal
	Recon         ReconciliationStatus
	XMLPayload    string
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
}

// InvoiceEntryItem is one received line. OrderItemID links it to the
// ordered line it claims to fulfill; unlinked lines are always divergent.
type InvoiceEntryItem struct {
	ID          string
	InvoiceID   string
	OrderItemID string
	MaterialID  string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
	NCM         string
	CFOP        string
	CST         string
}

// =============================================================================
// DOWNSTREAM READ-ONLY RECORDS - Written by other subsystems
// =============================================================================

// Payable is the finance record derived from a finalized order. The engine
// only reads it for the follow-up projection.
type Payable struct {
	ID        string
	OrgID     string
	OrderID   string
	Status    string
	DueDate   string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// StockEntry is the warehouse receipt derived from an invoice entry.
type StockEntry struct {
	ID        string
	OrgID     string
	InvoiceID string
	Status    string
	CreatedAt time.Time
}

// =============================================================================
// APPROVAL HISTORY - Per-stage decision records
// =============================================================================

// ApprovalDecision is the outcome of one approval level.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// Approval is one decision at one level for one lifecycle stage.
type Approval struct {
	ID         string
	OrgID      string
	EntityKind string
	EntityID   string
	Level      int
	ApproverID string
	Decision   ApprovalDecision
	Notes      string
	DecidedAt  time.Time
}
