/*
invoice.go - Invoice entry recording and reconciliation

PURPOSE:
  Records a received goods/invoice entry against a purchase order and runs
  the tolerance comparison. Recording writes the entry and its lines
  (sequentially, partial failures reported); comparison is the pure function
  in compare.go plus one explicit status write here. Divergence is a result,
  never an error.
*/
package procurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/procurement-engine/workflow"
)

// InvoiceItemInput is one received line on an incoming invoice.
type InvoiceItemInput struct {
	OrderItemID string // optional link to the ordered line
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

// RecordInvoiceInput registers an invoice received against an order.
type RecordInvoiceInput struct {
	OrgID         string
	ActorID       string
	OrderID       string
	SupplierID    string
	InvoiceNumber string
	Series        string
	AccessKey     string
	IssueDate     string
	ReceiptDate   string
	DeclaredTotal decimal.Decimal
	XMLPayload    string
	Notes         string
	Items         []InvoiceItemInput
}

type InvoiceService struct {
	Store Store
	Log   zerolog.Logger
}

// Record persists the invoice entry and its lines. The entry starts
// not_processed; reconciliation is a separate explicit step.
func (s *InvoiceService) Record(ctx context.Context, in RecordInvoiceInput) (*InvoiceEntry, error) {
	if in.InvoiceNumber == "" {
		return nil, &workflow.MissingFieldError{Field: "invoice_number"}
	}
	if _, err := s.Store.GetPurchaseOrder(ctx, in.OrgID, in.OrderID); err != nil {
		return nil, err
	}

	entry := InvoiceEntry{
		ID:            uuid.NewString(),
		OrgID:         in.OrgID,
		OrderID:       in.OrderID,
		SupplierID:    in.SupplierID,
		InvoiceNumber: in.InvoiceNumber,
		Series:        in.Series,
		AccessKey:     in.AccessKey,
		IssueDate:     in.IssueDate,
		ReceiptDate:   in.ReceiptDate,
		DeclaredTotal: in.DeclaredTotal,
		Recon:         ReconNotProcessed,
		XMLPayload:    in.XMLPayload,
		Notes:         in.Notes,
		CreatedBy:     in.ActorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.CreateInvoiceEntry(ctx, entry); err != nil {
		return nil, err
	}

	var failed []workflow.ItemFailure
	written := 0
	for _, li := range in.Items {
		item := InvoiceEntryItem{
			ID:          uuid.NewString(),
			InvoiceID:   entry.ID,
			OrderItemID: li.OrderItemID,
			MaterialID:  li.MaterialID,
			Description: li.Description,
			Quantity:    li.Quantity,
			Unit:        li.Unit,
			UnitPrice:   li.UnitPrice,
			Total:       li.Total,
			NCM:         li.NCM,
			CFOP:        li.CFOP,
			CST:         li.CST,
		}
		if err := s.Store.CreateInvoiceItem(ctx, item); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: li.MaterialID, Err: err})
			continue
		}
		written++
	}

	s.Log.Info().
		Str("invoice_id", entry.ID).
		Str("order_id", in.OrderID).
		Str("number", in.InvoiceNumber).
		Int("items", written).
		Msg("invoice entry recorded")

	if len(failed) > 0 {
		return &entry, &workflow.PartialFailureError{Op: "create invoice items", Succeeded: written, Failed: failed}
	}
	return &entry, nil
}

// Compare runs the tolerance comparison for an invoice against its order
// and persists the resulting reconciliation status. The comparison itself
// is pure; only the status write touches the store.
func (s *InvoiceService) Compare(ctx context.Context, orgID, invoiceID string, tol Tolerance) (*ComparisonResult, error) {
	entry, err := s.Store.GetInvoiceEntry(ctx, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	orderItems, err := s.Store.ListOrderItems(ctx, entry.OrderID)
	if err != nil {
		return nil, err
	}
	invoiceItems, err := s.Store.ListInvoiceItems(ctx, entry.ID)
	if err != nil {
		return nil, err
	}

	result := CompareLines(orderItems, invoiceItems, tol)
	if err := s.Store.SetInvoiceReconciliation(ctx, orgID, entry.ID, result.Status); err != nil {
		return nil, err
	}

	s.Log.Info().
		Str("invoice_id", entry.ID).
		Str("status", string(result.Status)).
		Int("matched", result.Matched).
		Int("divergent", result.Divergent).
		Msg("invoice compared against order")
	return &result, nil
}
