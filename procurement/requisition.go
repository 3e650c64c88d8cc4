/*
requisition.go - Requisition lifecycle service

PURPOSE:
  Creates, edits and transitions requisitions. Creation validates
  kind-specific required fields BEFORE any persistence call, draws a
  document number through the bounded-retry generator, and writes item
  rows sequentially so each row's failure is independently retryable.
  Every successful transition appends exactly one workflow log entry in
  the same logical operation; approve/reject decisions also append an
  approval record for the follow-up history.

SEE ALSO:
  - items.go: Item reconciliation used by Update
  - states.go: Transition table and status labels
*/
package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/procurement-engine/workflow"
)

// =============================================================================
// INPUTS
// =============================================================================

// RequisitionItemInput is one desired item row.
type RequisitionItemInput struct {
	ItemID       string // optional; stale ids fall back to material matching
	MaterialID   string
	Quantity     decimal.Decimal
	Unit         string
	EstUnitPrice decimal.Decimal
	Notes        string
	WarehouseID  string
}

// CreateRequisitionInput carries everything needed to open a requisition.
type CreateRequisitionInput struct {
	OrgID          string
	RequesterID    string
	Kind           RequisitionKind
	Priority       string
	CostCenterID   string
	ProjectID      string
	WarehouseID    string
	DeliveryAddr   string
	NeedByDate     string
	Justification  string
	Notes          string
	EstimatedTotal decimal.Decimal
	Items          []RequisitionItemInput
}

// UpdateRequisitionInput rewrites the editable header fields and reconciles
// the item set. Only requisitions in an editable state accept it.
type UpdateRequisitionInput struct {
	OrgID          string
	RequisitionID  string
	Priority       string
	CostCenterID   string
	ProjectID      string
	WarehouseID    string
	DeliveryAddr   string
	NeedByDate     string
	Justification  string
	Notes          string
	EstimatedTotal decimal.Decimal
	Items          []RequisitionItemInput
}

// TransitionInput is shared by all four lifecycle services.
type TransitionInput struct {
	OrgID    string
	EntityID string
	From     State
	To       State
	ActorID  string
	Payload  map[string]any
}

// =============================================================================
// SERVICE
// =============================================================================

type RequisitionService struct {
	Store     Store
	Validator *workflow.Validator
	Numbers   *workflow.NumberGenerator
	Log       zerolog.Logger
}

// Create opens a requisition. Restock requisitions require a destination
// warehouse, direct purchases a delivery address; either violation fails
// before anything is persisted. Emergency requisitions skip the created
// state and open pending approval.
func (s *RequisitionService) Create(ctx context.Context, in CreateRequisitionInput) (*Requisition, error) {
	if in.Kind == KindRestock && in.WarehouseID == "" {
		return nil, &workflow.MissingFieldError{Field: "warehouse_id", Reason: "restock requisitions need a destination warehouse"}
	}
	if in.Kind == KindDirectPurchase && in.DeliveryAddr == "" {
		return nil, &workflow.MissingFieldError{Field: "delivery_address", Reason: "direct purchases need a delivery address"}
	}

	state := ReqCreated
	status := "created"
	if in.Kind == KindEmergency {
		state = ReqPendingApproval
		status = "pending_approval"
	}

	req := Requisition{
		ID:             uuid.NewString(),
		OrgID:          in.OrgID,
		Kind:           in.Kind,
		State:          state,
		Status:         status,
		Priority:       in.Priority,
		RequesterID:    in.RequesterID,
		CostCenterID:   in.CostCenterID,
		ProjectID:      in.ProjectID,
		WarehouseID:    in.WarehouseID,
		DeliveryAddr:   in.DeliveryAddr,
		NeedByDate:     in.NeedByDate,
		Justification:  in.Justification,
		Notes:          in.Notes,
		EstimatedTotal: in.EstimatedTotal,
		CreatedAt:      time.Now().UTC(),
	}

	number, err := s.Numbers.Generate(ctx, NumberRequisition, in.OrgID, func(number string) error {
		req.Number = number
		return s.Store.CreateRequisition(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	req.Number = number

	items := AggregateItems(toItems(req.ID, in.Items))
	var failed []workflow.ItemFailure
	written := 0
	for _, item := range items {
		item.ID = uuid.NewString()
		if err := s.Store.CreateRequisitionItem(ctx, item); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: item.MaterialID, Err: err})
			continue
		}
		written++
	}

	s.Log.Info().
		Str("requisition_id", req.ID).
		Str("number", req.Number).
		Str("kind", string(req.Kind)).
		Int("items", written).
		Msg("requisition created")

	if len(failed) > 0 {
		return &req, &workflow.PartialFailureError{Op: "create requisition items", Succeeded: written, Failed: failed}
	}
	return &req, nil
}

// Update rewrites header fields and reconciles items. Only the created
// state is editable; once a requisition enters approval it is immutable
// except through transitions.
func (s *RequisitionService) Update(ctx context.Context, in UpdateRequisitionInput) (*Requisition, error) {
	req, err := s.Store.GetRequisition(ctx, in.OrgID, in.RequisitionID)
	if err != nil {
		return nil, err
	}
	if req.State != ReqCreated {
		return nil, fmt.Errorf("requisition %s is in state %s: %w", req.ID, req.State, workflow.ErrNotEditable)
	}

	req.Priority = in.Priority
	req.CostCenterID = in.CostCenterID
	req.ProjectID = in.ProjectID
	req.WarehouseID = in.WarehouseID
	req.DeliveryAddr = in.DeliveryAddr
	req.NeedByDate = in.NeedByDate
	req.Justification = in.Justification
	req.Notes = in.Notes
	req.EstimatedTotal = in.EstimatedTotal
	if err := s.Store.UpdateRequisitionHeader(ctx, *req); err != nil {
		return nil, err
	}

	existing, err := s.Store.ListRequisitionItems(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	plan := PlanItems(existing, toItems(req.ID, in.Items))
	if err := applyItemPlan(ctx, s.Store, req.ID, uuid.NewString, plan); err != nil {
		return req, err
	}

	s.Log.Info().Str("requisition_id", req.ID).Msg("requisition updated")
	return req, nil
}

// Transition moves a requisition along its lifecycle and appends the audit
// entry. The observed from-state must still be the persisted state at write
// time; losers of that race get ErrConcurrentModification and must re-fetch.
func (s *RequisitionService) Transition(ctx context.Context, in TransitionInput) (*Requisition, error) {
	req, err := s.Store.GetRequisition(ctx, in.OrgID, in.EntityID)
	if err != nil {
		return nil, err
	}
	if req.State != in.From {
		return nil, &workflow.StaleStateError{Kind: KindRequisition, EntityID: req.ID, Expected: in.From, Actual: req.State}
	}
	if err := s.Validator.Enforce(KindRequisition, req.ID, in.From, in.To); err != nil {
		return nil, err
	}

	if err := s.Store.SetRequisitionState(ctx, in.OrgID, req.ID, in.From, in.To, statusLabel(KindRequisition, in.To)); err != nil {
		return nil, err
	}
	if err := appendTransition(ctx, s.Store, KindRequisition, in); err != nil {
		return nil, err
	}

	req.State = in.To
	if label := statusLabel(KindRequisition, in.To); label != "" {
		req.Status = label
	}

	s.Log.Info().
		Str("requisition_id", req.ID).
		Str("from", string(in.From)).
		Str("to", string(in.To)).
		Str("actor", in.ActorID).
		Msg("requisition transitioned")
	return req, nil
}

// Duplicate clones a requisition (header and items) into a fresh one in the
// created state with a new number. Used to re-run a rejected or finalized
// purchase without retyping it.
func (s *RequisitionService) Duplicate(ctx context.Context, orgID, requisitionID, requesterID string) (*Requisition, error) {
	src, err := s.Store.GetRequisition(ctx, orgID, requisitionID)
	if err != nil {
		return nil, err
	}
	items, err := s.Store.ListRequisitionItems(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	in := CreateRequisitionInput{
		OrgID:          orgID,
		RequesterID:    requesterID,
		Kind:           src.Kind,
		Priority:       src.Priority,
		CostCenterID:   src.CostCenterID,
		ProjectID:      src.ProjectID,
		WarehouseID:    src.WarehouseID,
		DeliveryAddr:   src.DeliveryAddr,
		NeedByDate:     src.NeedByDate,
		Justification:  src.Justification,
		Notes:          src.Notes,
		EstimatedTotal: src.EstimatedTotal,
	}
	for _, item := range items {
		in.Items = append(in.Items, RequisitionItemInput{
			MaterialID:   item.MaterialID,
			Quantity:     item.Quantity,
			Unit:         item.Unit,
			EstUnitPrice: item.EstUnitPrice,
			Notes:        item.Notes,
			WarehouseID:  item.WarehouseID,
		})
	}
	return s.Create(ctx, in)
}

// List returns requisitions for an organization.
func (s *RequisitionService) List(ctx context.Context, orgID string, f RequisitionFilter) ([]Requisition, error) {
	return s.Store.ListRequisitions(ctx, orgID, f)
}

// =============================================================================
// SHARED TRANSITION PLUMBING
// =============================================================================

// appendTransition writes the workflow log entry for a committed transition
// and, for approval decisions, the approval history record.
func appendTransition(ctx context.Context, store Store, kind workflow.Kind, in TransitionInput) error {
	payload := in.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	err := store.AppendLog(ctx, workflow.LogEntry{
		ID:         uuid.NewString(),
		OrgID:      in.OrgID,
		EntityKind: kind,
		EntityID:   in.EntityID,
		FromState:  in.From,
		ToState:    in.To,
		ActorID:    in.ActorID,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	decision, ok := approvalDecision(in.To)
	if !ok {
		return nil
	}
	level := 1
	if v, ok := payload["level"].(int); ok && v > 0 {
		level = v
	}
	notes, _ := payload["notes"].(string)
	return store.CreateApproval(ctx, Approval{
		ID:         uuid.NewString(),
		OrgID:      in.OrgID,
		EntityKind: string(kind),
		EntityID:   in.EntityID,
		Level:      level,
		ApproverID: in.ActorID,
		Decision:   decision,
		Notes:      notes,
		DecidedAt:  time.Now().UTC(),
	})
}

func approvalDecision(to State) (ApprovalDecision, bool) {
	switch to {
	case ReqApproved: // same value as QuoteApproved and OrderApproved
		return DecisionApproved, true
	case ReqRejected: // same value as QuoteRejected and OrderRejected
		return DecisionRejected, true
	default:
		return "", false
	}
}

func toItems(requisitionID string, inputs []RequisitionItemInput) []RequisitionItem {
	items := make([]RequisitionItem, len(inputs))
	for i, in := range inputs {
		unit := in.Unit
		if unit == "" {
			unit = "UN"
		}
		items[i] = RequisitionItem{
			ID:            in.ItemID,
			RequisitionID: requisitionID,
			MaterialID:    in.MaterialID,
			Quantity:      in.Quantity,
			Unit:          unit,
			EstUnitPrice:  in.EstUnitPrice,
			Notes:         in.Notes,
			WarehouseID:   in.WarehouseID,
		}
	}
	return items
}

// errIsNotFound is a small readability helper for fallback paths.
func errIsNotFound(err error) bool { return errors.Is(err, workflow.ErrNotFound) }
