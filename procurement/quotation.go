/*
quotation.go - Quotation cycle service

PURPOSE:
  Starts the sourcing round for a forwarded requisition: one cycle record,
  one invitation row per supplier, then the requisition's forwarded->quoting
  transition, all in the same logical operation. Invitations are written
  sequentially so each row's failure is independently observable; a partial
  failure is reported with exactly which suppliers failed, the cycle is NOT
  rolled back, and the caller retries only the gap via InviteSupplier.

SUPPLIER COUNT:
  Emergency requisitions invite exactly one supplier; all other kinds invite
  between two and six. Violations fail before anything is persisted.

SEE ALSO:
  - requisition.go: appendTransition, TransitionInput
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

// SupplierInvite is one supplier invited into a cycle.
type SupplierInvite struct {
	SupplierID string
	LeadDays   int
	Terms      string
}

// StartCycleInput opens a quotation cycle over a forwarded requisition.
type StartCycleInput struct {
	OrgID         string
	ActorID       string
	RequisitionID string
	Suppliers     []SupplierInvite
	ReplyDeadline string
	Notes         string
}

// QuoteResponseInput records or revises a supplier's bid. QuoteID may be
// stale or empty; the row is then matched by (cycle, supplier) instead.
type QuoteResponseInput struct {
	OrgID      string
	QuoteID    string
	CycleID    string
	SupplierID string
	TotalPrice decimal.Decimal
	LeadDays   int
	Terms      string
	State      State
}

type QuotationService struct {
	Store     Store
	Validator *workflow.Validator
	Numbers   *workflow.NumberGenerator
	Log       zerolog.Logger
}

// StartCycle creates the cycle, invites the suppliers, and moves the
// requisition into quoting. On partial invitation failure the created cycle
// is returned together with a PartialFailureError naming the failed
// suppliers; the transition is still performed so the cycle stays actionable.
func (s *QuotationService) StartCycle(ctx context.Context, in StartCycleInput) (*QuotationCycle, error) {
	req, err := s.Store.GetRequisition(ctx, in.OrgID, in.RequisitionID)
	if err != nil {
		return nil, err
	}
	if err := checkSupplierCount(req.Kind, len(in.Suppliers)); err != nil {
		return nil, err
	}
	if req.State != ReqForwarded {
		return nil, &workflow.StaleStateError{Kind: KindRequisition, EntityID: req.ID, Expected: ReqForwarded, Actual: req.State}
	}

	cycle := QuotationCycle{
		ID:            uuid.NewString(),
		OrgID:         in.OrgID,
		RequisitionID: req.ID,
		State:         QuoteOpen,
		Status:        string(QuoteOpen),
		ReplyDeadline: in.ReplyDeadline,
		Notes:         in.Notes,
		CreatedAt:     time.Now().UTC(),
	}
	number, err := s.Numbers.Generate(ctx, NumberQuotation, in.OrgID, func(number string) error {
		cycle.Number = number
		return s.Store.CreateQuotationCycle(ctx, cycle)
	})
	if err != nil {
		return nil, err
	}
	cycle.Number = number

	var failed []workflow.ItemFailure
	invited := 0
	for _, sup := range in.Suppliers {
		if err := s.invite(ctx, cycle.ID, sup); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: sup.SupplierID, Err: err})
			continue
		}
		invited++
	}

	_, err = (&RequisitionService{Store: s.Store, Validator: s.Validator, Numbers: s.Numbers, Log: s.Log}).
		Transition(ctx, TransitionInput{
			OrgID:    in.OrgID,
			EntityID: req.ID,
			From:     ReqForwarded,
			To:       ReqQuoting,
			ActorID:  in.ActorID,
			Payload:  map[string]any{"quotation_cycle_id": cycle.ID},
		})
	if err != nil {
		return &cycle, err
	}

	s.Log.Info().
		Str("cycle_id", cycle.ID).
		Str("requisition_id", req.ID).
		Int("suppliers", invited).
		Msg("quotation cycle started")

	if len(failed) > 0 {
		return &cycle, &workflow.PartialFailureError{Op: "invite suppliers", Succeeded: invited, Failed: failed}
	}
	return &cycle, nil
}

// InviteSupplier adds one supplier to an existing cycle, used to close the
// gap after a partial StartCycle failure. Re-inviting an already-invited
// supplier is a no-op.
func (s *QuotationService) InviteSupplier(ctx context.Context, orgID, cycleID string, sup SupplierInvite) error {
	if _, err := s.Store.GetQuotationCycle(ctx, orgID, cycleID); err != nil {
		return err
	}
	if _, err := s.Store.GetSupplierQuoteBySupplier(ctx, cycleID, sup.SupplierID); err == nil {
		return nil
	} else if !errIsNotFound(err) {
		return err
	}
	return s.invite(ctx, cycleID, sup)
}

func (s *QuotationService) invite(ctx context.Context, cycleID string, sup SupplierInvite) error {
	return s.Store.CreateSupplierQuote(ctx, SupplierQuote{
		ID:         uuid.NewString(),
		CycleID:    cycleID,
		SupplierID: sup.SupplierID,
		LeadDays:   sup.LeadDays,
		Terms:      sup.Terms,
		State:      QuoteOpen,
		Status:     string(QuoteOpen),
		UpdatedAt:  time.Now().UTC(),
	})
}

// UpsertQuoteResponse records a supplier's bid. A stale or missing quote id
// falls back to matching by (cycle, supplier) so re-submission stays
// idempotent.
func (s *QuotationService) UpsertQuoteResponse(ctx context.Context, in QuoteResponseInput) (*SupplierQuote, error) {
	var quote *SupplierQuote
	var err error

	if in.QuoteID != "" {
		quote, err = s.Store.GetSupplierQuote(ctx, in.QuoteID)
		if err != nil && !errIsNotFound(err) {
			return nil, err
		}
	}
	if quote == nil {
		if in.CycleID == "" || in.SupplierID == "" {
			return nil, &workflow.MissingFieldError{Field: "cycle_id/supplier_id", Reason: "needed to match a quote without a valid id"}
		}
		quote, err = s.Store.GetSupplierQuoteBySupplier(ctx, in.CycleID, in.SupplierID)
		if err != nil {
			return nil, err
		}
	}

	quote.TotalPrice = in.TotalPrice
	quote.LeadDays = in.LeadDays
	if in.Terms != "" {
		quote.Terms = in.Terms
	}
	quote.State = in.State
	quote.Status = string(in.State)
	quote.UpdatedAt = time.Now().UTC()

	if err := s.Store.UpdateSupplierQuote(ctx, *quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// Transition moves the cycle along its lifecycle and appends the audit entry.
func (s *QuotationService) Transition(ctx context.Context, in TransitionInput) (*QuotationCycle, error) {
	cycle, err := s.Store.GetQuotationCycle(ctx, in.OrgID, in.EntityID)
	if err != nil {
		return nil, err
	}
	if cycle.State != in.From {
		return nil, &workflow.StaleStateError{Kind: KindQuotation, EntityID: cycle.ID, Expected: in.From, Actual: cycle.State}
	}
	if err := s.Validator.Enforce(KindQuotation, cycle.ID, in.From, in.To); err != nil {
		return nil, err
	}

	if err := s.Store.SetQuotationState(ctx, in.OrgID, cycle.ID, in.From, in.To, statusLabel(KindQuotation, in.To)); err != nil {
		return nil, err
	}
	if err := appendTransition(ctx, s.Store, KindQuotation, in); err != nil {
		return nil, err
	}

	cycle.State = in.To
	cycle.Status = statusLabel(KindQuotation, in.To)
	s.Log.Info().
		Str("cycle_id", cycle.ID).
		Str("from", string(in.From)).
		Str("to", string(in.To)).
		Msg("quotation cycle transitioned")
	return cycle, nil
}

func checkSupplierCount(kind RequisitionKind, n int) error {
	if kind == KindEmergency {
		if n != 1 {
			return fmt.Errorf("emergency requisitions invite exactly 1 supplier, got %d: %w", n, workflow.ErrInvalidSupplierCount)
		}
		return nil
	}
	if n < 2 || n > 6 {
		return fmt.Errorf("requisitions invite between 2 and 6 suppliers, got %d: %w", n, workflow.ErrInvalidSupplierCount)
	}
	return nil
}
