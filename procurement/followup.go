/*
followup.go - Cross-entity follow-up projection

PURPOSE:
  Builds the denormalized read-model joining Requisition -> QuotationCycle ->
  PurchaseOrder -> Payable -> StockEntry for status tracking. The projection
  is recomputed per query, never persisted. Joins are performed stage by
  stage with explicit "not started" markers instead of nulls, so the caller
  always knows which fields are guaranteed present.

LAZINESS:
  List views never fetch approval history; Detail() adds it on demand for a
  single requisition, keeping list query cost bounded.
*/
package procurement

import (
	"context"
)

// StageStatus says how far a downstream stage has progressed.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageInProgress StageStatus = "in_progress"
	StageDone       StageStatus = "done"
	StageRejected   StageStatus = "rejected"
)

// Stage is one lifecycle stage in a follow-up record. ID and the other
// fields are only meaningful when Status != StageNotStarted.
type Stage struct {
	Status StageStatus
	ID     string
	Number string
	State  State
}

// FollowUpRecord is one requisition's view across all five stages.
type FollowUpRecord struct {
	RequisitionID string
	Number        string
	Kind          RequisitionKind
	State         State
	Priority      string
	RequesterID   string
	Quotation     Stage
	Order         Stage
	Payable       Stage
	StockEntry    Stage
}

// StageApprovals is the approval history of one stage.
type StageApprovals struct {
	Stage     string
	EntityID  string
	Approvals []Approval
}

// FollowUpDetail is one record plus its lazily fetched approval history.
type FollowUpDetail struct {
	Record    FollowUpRecord
	Approvals []StageApprovals
}

// FollowUpFilters narrows the projection.
type FollowUpFilters struct {
	State       *State
	Kind        *RequisitionKind
	RequesterID *string
}

// Projector computes follow-up records on demand. Read-only: it never
// writes through the store.
type Projector struct {
	Store Store
}

// Project builds one record per matching requisition. Downstream stages are
// resolved sequentially; a stage that does not exist yet is reported as
// not_started and later stages are not queried at all.
func (p *Projector) Project(ctx context.Context, orgID string, f FollowUpFilters) ([]FollowUpRecord, error) {
	reqs, err := p.Store.ListRequisitions(ctx, orgID, RequisitionFilter{
		State:       f.State,
		Kind:        f.Kind,
		RequesterID: f.RequesterID,
	})
	if err != nil {
		return nil, err
	}

	records := make([]FollowUpRecord, 0, len(reqs))
	for _, req := range reqs {
		rec, err := p.project(ctx, req)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Projector) project(ctx context.Context, req Requisition) (FollowUpRecord, error) {
	rec := FollowUpRecord{
		RequisitionID: req.ID,
		Number:        req.Number,
		Kind:          req.Kind,
		State:         req.State,
		Priority:      req.Priority,
		RequesterID:   req.RequesterID,
		Quotation:     Stage{Status: StageNotStarted},
		Order:         Stage{Status: StageNotStarted},
		Payable:       Stage{Status: StageNotStarted},
		StockEntry:    Stage{Status: StageNotStarted},
	}

	cycle, err := p.Store.GetCycleByRequisition(ctx, req.OrgID, req.ID)
	if errIsNotFound(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	rec.Quotation = Stage{Status: cycleStageStatus(cycle.State), ID: cycle.ID, Number: cycle.Number, State: cycle.State}

	order, err := p.Store.GetOrderByCycle(ctx, req.OrgID, cycle.ID)
	if errIsNotFound(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	rec.Order = Stage{Status: orderStageStatus(order.State), ID: order.ID, Number: order.Number, State: order.State}

	payable, err := p.Store.GetPayableByOrder(ctx, req.OrgID, order.ID)
	switch {
	case err == nil:
		rec.Payable = Stage{Status: StageInProgress, ID: payable.ID, State: State(payable.Status)}
		if payable.Status == "paid" {
			rec.Payable.Status = StageDone
		}
	case !errIsNotFound(err):
		return rec, err
	}

	invoice, err := p.Store.GetInvoiceByOrder(ctx, req.OrgID, order.ID)
	if errIsNotFound(err) {
		return rec, nil
	}
	if err != nil {
		return rec, err
	}
	stock, err := p.Store.GetStockEntryByInvoice(ctx, req.OrgID, invoice.ID)
	switch {
	case err == nil:
		rec.StockEntry = Stage{Status: StageDone, ID: stock.ID, State: State(stock.Status)}
	case !errIsNotFound(err):
		return rec, err
	}

	return rec, nil
}

// Detail returns one projected record with per-stage approval history.
func (p *Projector) Detail(ctx context.Context, orgID, requisitionID string) (*FollowUpDetail, error) {
	req, err := p.Store.GetRequisition(ctx, orgID, requisitionID)
	if err != nil {
		return nil, err
	}
	rec, err := p.project(ctx, *req)
	if err != nil {
		return nil, err
	}

	detail := &FollowUpDetail{Record: rec}

	stages := []struct {
		name string
		kind string
		id   string
	}{
		{"requisition", string(KindRequisition), rec.RequisitionID},
		{"quotation", string(KindQuotation), rec.Quotation.ID},
		{"order", string(KindPurchaseOrder), rec.Order.ID},
	}
	for _, st := range stages {
		if st.id == "" {
			continue
		}
		approvals, err := p.Store.ListApprovals(ctx, orgID, st.kind, st.id)
		if err != nil {
			return nil, err
		}
		if len(approvals) > 0 {
			detail.Approvals = append(detail.Approvals, StageApprovals{Stage: st.name, EntityID: st.id, Approvals: approvals})
		}
	}
	return detail, nil
}

func cycleStageStatus(s State) StageStatus {
	switch s {
	case QuoteApproved:
		return StageDone
	case QuoteRejected:
		return StageRejected
	default:
		return StageInProgress
	}
}

func orderStageStatus(s State) StageStatus {
	switch s {
	case OrderFinalized:
		return StageDone
	case OrderRejected:
		return StageRejected
	default:
		return StageInProgress
	}
}
