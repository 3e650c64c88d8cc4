/*
store.go - Persistence interfaces for the procurement engine

PURPOSE:
  Defines the interface between the domain logic and the database. The
  surrounding application talks to a generic record-oriented persistence
  layer; inside the engine that contract becomes typed interfaces, one per
  aggregate, so every field read or written is explicit.

ERROR CONTRACT:
  - Get* returns workflow.ErrNotFound (possibly wrapped) for missing rows.
  - Create* of a numbered document returns workflow.ErrDuplicateNumber when
    the number uniqueness constraint rejects the insert.
  - Set*State performs a compare-and-swap on the workflow state and returns
    workflow.ErrConcurrentModification when the stored state no longer
    matches the expected one. Last-writer-wins is explicitly rejected for
    workflow state.
  - Store implementations never swallow errors; every failure is returned
    to the immediate caller unchanged.

IMPLEMENTATIONS:
  - store/memory:   In-memory, for tests and development
  - store/sqlite:   Embedded SQLite (WAL)
  - store/postgres: PostgreSQL via the pgx stdlib driver

SEE ALSO:
  - workflow/audit.go: AuditLog, embedded below
  - workflow/numbering.go: Counter, embedded below
*/
package procurement

import (
	"context"

	"github.com/warp/procurement-engine/workflow"
)

// Store is the full persistence surface the engine depends on.
type Store interface {
	RequisitionStore
	QuotationStore
	OrderStore
	InvoiceStore
	DownstreamStore

	workflow.AuditLog
	workflow.Counter
}

// RequisitionFilter narrows requisition lists. Nil fields match everything.
type RequisitionFilter struct {
	State        *State
	Kind         *RequisitionKind
	RequesterID  *string
	CostCenterID *string
}

type RequisitionStore interface {
	CreateRequisition(ctx context.Context, r Requisition) error
	GetRequisition(ctx context.Context, orgID, id string) (*Requisition, error)
	ListRequisitions(ctx context.Context, orgID string, f RequisitionFilter) ([]Requisition, error)
	// UpdateRequisitionHeader rewrites the editable header fields. Workflow
	// state and number are never touched here.
	UpdateRequisitionHeader(ctx context.Context, r Requisition) error
	// SetRequisitionState is a compare-and-swap from -> to. An empty status
	// leaves the stored label unchanged.
	SetRequisitionState(ctx context.Context, orgID, id string, from, to State, status string) error

	CreateRequisitionItem(ctx context.Context, item RequisitionItem) error
	UpdateRequisitionItem(ctx context.Context, item RequisitionItem) error
	DeleteRequisitionItem(ctx context.Context, itemID string) error
	ListRequisitionItems(ctx context.Context, requisitionID string) ([]RequisitionItem, error)
	// GetRequisitionItemByMaterial supports the pre-insert recheck that
	// absorbs races between aggregation and insert.
	GetRequisitionItemByMaterial(ctx context.Context, requisitionID, materialID string) (*RequisitionItem, error)
}

type QuotationStore interface {
	CreateQuotationCycle(ctx context.Context, c QuotationCycle) error
	GetQuotationCycle(ctx context.Context, orgID, id string) (*QuotationCycle, error)
	GetCycleByRequisition(ctx context.Context, orgID, requisitionID string) (*QuotationCycle, error)
	SetQuotationState(ctx context.Context, orgID, id string, from, to State, status string) error

	CreateSupplierQuote(ctx context.Context, q SupplierQuote) error
	GetSupplierQuote(ctx context.Context, quoteID string) (*SupplierQuote, error)
	GetSupplierQuoteBySupplier(ctx context.Context, cycleID, supplierID string) (*SupplierQuote, error)
	UpdateSupplierQuote(ctx context.Context, q SupplierQuote) error
	ListSupplierQuotes(ctx context.Context, cycleID string) ([]SupplierQuote, error)
}

type OrderStore interface {
	CreatePurchaseOrder(ctx context.Context, o PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, orgID, id string) (*PurchaseOrder, error)
	GetOrderByCycle(ctx context.Context, orgID, cycleID string) (*PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, orgID string) ([]PurchaseOrder, error)
	SetOrderState(ctx context.Context, orgID, id string, from, to State, status string) error

	CreateOrderItem(ctx context.Context, item PurchaseOrderItem) error
	ListOrderItems(ctx context.Context, orderID string) ([]PurchaseOrderItem, error)
}

type InvoiceStore interface {
	CreateInvoiceEntry(ctx context.Context, e InvoiceEntry) error
	GetInvoiceEntry(ctx context.Context, orgID, id string) (*InvoiceEntry, error)
	GetInvoiceByOrder(ctx context.Context, orgID, orderID string) (*InvoiceEntry, error)
	SetInvoiceReconciliation(ctx context.Context, orgID, id string, status ReconciliationStatus) error

	CreateInvoiceItem(ctx context.Context, item InvoiceEntryItem) error
	ListInvoiceItems(ctx context.Context, invoiceID string) ([]InvoiceEntryItem, error)
}

// DownstreamStore covers records written by other subsystems (finance,
// warehouse, approvals) that the engine reads for projections. The create
// methods exist for those writers and for tests.
type DownstreamStore interface {
	CreatePayable(ctx context.Context, p Payable) error
	GetPayableByOrder(ctx context.Context, orgID, orderID string) (*Payable, error)

	CreateStockEntry(ctx context.Context, s StockEntry) error
	GetStockEntryByInvoice(ctx context.Context, orgID, invoiceID string) (*StockEntry, error)

	CreateApproval(ctx context.Context, a Approval) error
	ListApprovals(ctx context.Context, orgID, entityKind, entityID string) ([]Approval, error)
}
