// Package memory provides an in-memory Store implementation (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/workflow"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of procurement.Store
// =============================================================================

type Store struct {
	mu sync.RWMutex

	requisitions map[string]procurement.Requisition
	reqItems     map[string]procurement.RequisitionItem
	cycles       map[string]procurement.QuotationCycle
	quotes       map[string]procurement.SupplierQuote
	orders       map[string]procurement.PurchaseOrder
	orderItems   map[string]procurement.PurchaseOrderItem
	invoices     map[string]procurement.InvoiceEntry
	invItems     map[string]procurement.InvoiceEntryItem
	payables     map[string]procurement.Payable
	stockEntries map[string]procurement.StockEntry
	approvals    []procurement.Approval
	logs         []workflow.LogEntry

	counters map[string]int64 // (org, kind) -> last value
	numbers  map[string]bool  // (org, kind, number) -> taken

	insertSeq int64 // preserves insertion order for list calls
	order     map[string]int64
}

var _ procurement.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		requisitions: make(map[string]procurement.Requisition),
		reqItems:     make(map[string]procurement.RequisitionItem),
		cycles:       make(map[string]procurement.QuotationCycle),
		quotes:       make(map[string]procurement.SupplierQuote),
		orders:       make(map[string]procurement.PurchaseOrder),
		orderItems:   make(map[string]procurement.PurchaseOrderItem),
		invoices:     make(map[string]procurement.InvoiceEntry),
		invItems:     make(map[string]procurement.InvoiceEntryItem),
		payables:     make(map[string]procurement.Payable),
		stockEntries: make(map[string]procurement.StockEntry),
		counters:     make(map[string]int64),
		numbers:      make(map[string]bool),
		order:        make(map[string]int64),
	}
}

func (s *Store) nextSeq(id string) {
	s.insertSeq++
	s.order[id] = s.insertSeq
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func (s *Store) CreateRequisition(_ context.Context, r procurement.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	numberKey := r.OrgID + "/" + string(procurement.NumberRequisition) + "/" + r.Number
	if s.numbers[numberKey] {
		return fmt.Errorf("requisition number %s: %w", r.Number, workflow.ErrDuplicateNumber)
	}
	s.numbers[numberKey] = true
	s.requisitions[r.ID] = r
	s.nextSeq(r.ID)
	return nil
}

func (s *Store) GetRequisition(_ context.Context, orgID, id string) (*procurement.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requisitions[id]
	if !ok || r.OrgID != orgID {
		return nil, fmt.Errorf("requisition %s: %w", id, workflow.ErrNotFound)
	}
	out := r
	return &out, nil
}

func (s *Store) ListRequisitions(_ context.Context, orgID string, f procurement.RequisitionFilter) ([]procurement.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.Requisition
	for _, r := range s.requisitions {
		if r.OrgID != orgID {
			continue
		}
		if f.State != nil && r.State != *f.State {
			continue
		}
		if f.Kind != nil && r.Kind != *f.Kind {
			continue
		}
		if f.RequesterID != nil && r.RequesterID != *f.RequesterID {
			continue
		}
		if f.CostCenterID != nil && r.CostCenterID != *f.CostCenterID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) UpdateRequisitionHeader(_ context.Context, r procurement.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.requisitions[r.ID]
	if !ok || current.OrgID != r.OrgID {
		return fmt.Errorf("requisition %s: %w", r.ID, workflow.ErrNotFound)
	}
	// Workflow state, number and creation metadata are not header fields.
	r.State = current.State
	r.Status = current.Status
	r.Number = current.Number
	r.CreatedAt = current.CreatedAt
	s.requisitions[r.ID] = r
	return nil
}

func (s *Store) SetRequisitionState(_ context.Context, orgID, id string, from, to procurement.State, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requisitions[id]
	if !ok || r.OrgID != orgID {
		return fmt.Errorf("requisition %s: %w", id, workflow.ErrNotFound)
	}
	if r.State != from {
		return fmt.Errorf("requisition %s is %s, expected %s: %w", id, r.State, from, workflow.ErrConcurrentModification)
	}
	r.State = to
	if status != "" {
		r.Status = status
	}
	s.requisitions[id] = r
	return nil
}

func (s *Store) CreateRequisitionItem(_ context.Context, item procurement.RequisitionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reqItems {
		if existing.RequisitionID == item.RequisitionID && existing.MaterialID == item.MaterialID {
			return fmt.Errorf("material %s already present on requisition %s: %w",
				item.MaterialID, item.RequisitionID, workflow.ErrDuplicateKey)
		}
	}
	s.reqItems[item.ID] = item
	s.nextSeq(item.ID)
	return nil
}

func (s *Store) UpdateRequisitionItem(_ context.Context, item procurement.RequisitionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reqItems[item.ID]; !ok {
		return fmt.Errorf("requisition item %s: %w", item.ID, workflow.ErrNotFound)
	}
	s.reqItems[item.ID] = item
	return nil
}

func (s *Store) DeleteRequisitionItem(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reqItems, itemID)
	return nil
}

func (s *Store) ListRequisitionItems(_ context.Context, requisitionID string) ([]procurement.RequisitionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.RequisitionItem
	for _, item := range s.reqItems {
		if item.RequisitionID == requisitionID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) GetRequisitionItemByMaterial(_ context.Context, requisitionID, materialID string) (*procurement.RequisitionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.reqItems {
		if item.RequisitionID == requisitionID && item.MaterialID == materialID {
			out := item
			return &out, nil
		}
	}
	return nil, fmt.Errorf("material %s on requisition %s: %w", materialID, requisitionID, workflow.ErrNotFound)
}

// =============================================================================
// QUOTATION CYCLES
// =============================================================================

func (s *Store) CreateQuotationCycle(_ context.Context, c procurement.QuotationCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	numberKey := c.OrgID + "/" + string(procurement.NumberQuotation) + "/" + c.Number
	if s.numbers[numberKey] {
		return fmt.Errorf("cycle number %s: %w", c.Number, workflow.ErrDuplicateNumber)
	}
	s.numbers[numberKey] = true
	s.cycles[c.ID] = c
	s.nextSeq(c.ID)
	return nil
}

func (s *Store) GetQuotationCycle(_ context.Context, orgID, id string) (*procurement.QuotationCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cycles[id]
	if !ok || c.OrgID != orgID {
		return nil, fmt.Errorf("quotation cycle %s: %w", id, workflow.ErrNotFound)
	}
	out := c
	return &out, nil
}

func (s *Store) GetCycleByRequisition(_ context.Context, orgID, requisitionID string) (*procurement.QuotationCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cycles {
		if c.OrgID == orgID && c.RequisitionID == requisitionID {
			out := c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("cycle for requisition %s: %w", requisitionID, workflow.ErrNotFound)
}

func (s *Store) SetQuotationState(_ context.Context, orgID, id string, from, to procurement.State, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cycles[id]
	if !ok || c.OrgID != orgID {
		return fmt.Errorf("quotation cycle %s: %w", id, workflow.ErrNotFound)
	}
	if c.State != from {
		return fmt.Errorf("cycle %s is %s, expected %s: %w", id, c.State, from, workflow.ErrConcurrentModification)
	}
	c.State = to
	if status != "" {
		c.Status = status
	}
	s.cycles[id] = c
	return nil
}

func (s *Store) CreateSupplierQuote(_ context.Context, q procurement.SupplierQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.ID] = q
	s.nextSeq(q.ID)
	return nil
}

func (s *Store) GetSupplierQuote(_ context.Context, quoteID string) (*procurement.SupplierQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[quoteID]
	if !ok {
		return nil, fmt.Errorf("supplier quote %s: %w", quoteID, workflow.ErrNotFound)
	}
	out := q
	return &out, nil
}

func (s *Store) GetSupplierQuoteBySupplier(_ context.Context, cycleID, supplierID string) (*procurement.SupplierQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.quotes {
		if q.CycleID == cycleID && q.SupplierID == supplierID {
			out := q
			return &out, nil
		}
	}
	return nil, fmt.Errorf("quote for supplier %s in cycle %s: %w", supplierID, cycleID, workflow.ErrNotFound)
}

func (s *Store) UpdateSupplierQuote(_ context.Context, q procurement.SupplierQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quotes[q.ID]; !ok {
		return fmt.Errorf("supplier quote %s: %w", q.ID, workflow.ErrNotFound)
	}
	s.quotes[q.ID] = q
	return nil
}

func (s *Store) ListSupplierQuotes(_ context.Context, cycleID string) ([]procurement.SupplierQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.SupplierQuote
	for _, q := range s.quotes {
		if q.CycleID == cycleID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

func (s *Store) CreatePurchaseOrder(_ context.Context, o procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	numberKey := o.OrgID + "/" + string(procurement.NumberOrder) + "/" + o.Number
	if s.numbers[numberKey] {
		return fmt.Errorf("order number %s: %w", o.Number, workflow.ErrDuplicateNumber)
	}
	s.numbers[numberKey] = true
	s.orders[o.ID] = o
	s.nextSeq(o.ID)
	return nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, orgID, id string) (*procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok || o.OrgID != orgID {
		return nil, fmt.Errorf("purchase order %s: %w", id, workflow.ErrNotFound)
	}
	out := o
	return &out, nil
}

func (s *Store) GetOrderByCycle(_ context.Context, orgID, cycleID string) (*procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.OrgID == orgID && o.CycleID == cycleID {
			out := o
			return &out, nil
		}
	}
	return nil, fmt.Errorf("order for cycle %s: %w", cycleID, workflow.ErrNotFound)
}

func (s *Store) ListPurchaseOrders(_ context.Context, orgID string) ([]procurement.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.PurchaseOrder
	for _, o := range s.orders {
		if o.OrgID == orgID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *Store) SetOrderState(_ context.Context, orgID, id string, from, to procurement.State, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.OrgID != orgID {
		return fmt.Errorf("purchase order %s: %w", id, workflow.ErrNotFound)
	}
	if o.State != from {
		return fmt.Errorf("order %s is %s, expected %s: %w", id, o.State, from, workflow.ErrConcurrentModification)
	}
	o.State = to
	if status != "" {
		o.Status = status
	}
	s.orders[id] = o
	return nil
}

func (s *Store) CreateOrderItem(_ context.Context, item procurement.PurchaseOrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderItems[item.ID] = item
	s.nextSeq(item.ID)
	return nil
}

func (s *Store) ListOrderItems(_ context.Context, orderID string) ([]procurement.PurchaseOrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.PurchaseOrderItem
	for _, item := range s.orderItems {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

// =============================================================================
// INVOICE ENTRIES
// =============================================================================

func (s *Store) CreateInvoiceEntry(_ context.Context, e procurement.InvoiceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[e.ID] = e
	s.nextSeq(e.ID)
	return nil
}

func (s *Store) GetInvoiceEntry(_ context.Context, orgID, id string) (*procurement.InvoiceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.invoices[id]
	if !ok || e.OrgID != orgID {
		return nil, fmt.Errorf("invoice entry %s: %w", id, workflow.ErrNotFound)
	}
	out := e
	return &out, nil
}

func (s *Store) GetInvoiceByOrder(_ context.Context, orgID, orderID string) (*procurement.InvoiceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.invoices {
		if e.OrgID == orgID && e.OrderID == orderID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("invoice for order %s: %w", orderID, workflow.ErrNotFound)
}

func (s *Store) SetInvoiceReconciliation(_ context.Context, orgID, id string, status procurement.ReconciliationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.invoices[id]
	if !ok || e.OrgID != orgID {
		return fmt.Errorf("invoice entry %s: %w", id, workflow.ErrNotFound)
	}
	e.Recon = status
	s.invoices[id] = e
	return nil
}

func (s *Store) CreateInvoiceItem(_ context.Context, item procurement.InvoiceEntryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invItems[item.ID] = item
	s.nextSeq(item.ID)
	return nil
}

func (s *Store) ListInvoiceItems(_ context.Context, invoiceID string) ([]procurement.InvoiceEntryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.InvoiceEntryItem
	for _, item := range s.invItems {
		if item.InvoiceID == invoiceID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

// =============================================================================
// DOWNSTREAM RECORDS
// =============================================================================

func (s *Store) CreatePayable(_ context.Context, p procurement.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payables[p.ID] = p
	return nil
}

func (s *Store) GetPayableByOrder(_ context.Context, orgID, orderID string) (*procurement.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payables {
		if p.OrgID == orgID && p.OrderID == orderID {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("payable for order %s: %w", orderID, workflow.ErrNotFound)
}

func (s *Store) CreateStockEntry(_ context.Context, e procurement.StockEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stockEntries[e.ID] = e
	return nil
}

func (s *Store) GetStockEntryByInvoice(_ context.Context, orgID, invoiceID string) (*procurement.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.stockEntries {
		if e.OrgID == orgID && e.InvoiceID == invoiceID {
			out := e
			return &out, nil
		}
	}
	return nil, fmt.Errorf("stock entry for invoice %s: %w", invoiceID, workflow.ErrNotFound)
}

func (s *Store) CreateApproval(_ context.Context, a procurement.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals = append(s.approvals, a)
	return nil
}

func (s *Store) ListApprovals(_ context.Context, orgID, entityKind, entityID string) ([]procurement.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []procurement.Approval
	for _, a := range s.approvals {
		if a.OrgID == orgID && a.EntityKind == entityKind && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

// =============================================================================
// WORKFLOW LOG + COUNTER
// =============================================================================

func (s *Store) AppendLog(_ context.Context, entry workflow.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) ListLogs(_ context.Context, orgID string, f workflow.LogFilter) ([]workflow.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []workflow.LogEntry
	for _, e := range s.logs {
		if e.OrgID != orgID {
			continue
		}
		if f.EntityKind != nil && e.EntityKind != *f.EntityKind {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) NextNumber(_ context.Context, kind workflow.NumberKind, orgID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := orgID + "/" + string(kind)
	s.counters[key]++
	return fmt.Sprintf("%s-%06d", kind, s.counters[key]), nil
}
