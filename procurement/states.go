/*
states.go - Workflow states, transition tables, status labels

PURPOSE:
  Defines the finite-state lifecycles of the three workflow-driven entities
  and the free-text status labels the surrounding application derives from
  them. Terminal states have no outgoing edges.

TABLES:
  Requisition:    created -> pending_approval -> approved -> forwarded
                  -> quoting -> finalized, with cancellation edges;
                  rejected / finalized / cancelled terminal
  QuotationCycle: open -> complete -> pending_approval -> approved;
                  rejected reachable from every non-terminal state
  PurchaseOrder:  open -> approved -> delivered -> finalized;
                  rejected terminal

SEE ALSO:
  - workflow/transition.go: The validator consuming these tables
*/
package procurement

import "github.com/warp/procurement-engine/workflow"

// State aliases workflow.State so domain code reads naturally.
type State = workflow.State

// Entity kinds registered with the transition validator and used in
// workflow logs and approval records.
const (
	KindRequisition   workflow.Kind = "requisition"
	KindQuotation     workflow.Kind = "quotation_cycle"
	KindPurchaseOrder workflow.Kind = "purchase_order"
)

// Requisition states.
const (
	ReqCreated         State = "created"
	ReqPendingApproval State = "pending_approval"
	ReqApproved        State = "approved"
	ReqRejected        State = "rejected"
	ReqForwarded       State = "forwarded"
	ReqQuoting         State = "quoting"
	ReqFinalized       State = "finalized"
	ReqCancelled       State = "cancelled"
)

// Quotation cycle states. Supplier quotes reuse the same value set for
// their per-supplier state.
const (
	QuoteOpen            State = "open"
	QuoteComplete        State = "complete"
	QuotePendingApproval State = "pending_approval"
	QuoteApproved        State = "approved"
	QuoteRejected        State = "rejected"
)

// Purchase order states.
const (
	OrderOpen      State = "open"
	OrderApproved  State = "approved"
	OrderRejected  State = "rejected"
	OrderDelivered State = "delivered"
	OrderFinalized State = "finalized"
)

// Document number kinds drawn from the counter service.
const (
	NumberRequisition workflow.NumberKind = "REQ"
	NumberQuotation   workflow.NumberKind = "QC"
	NumberOrder       workflow.NumberKind = "PO"
)

// TransitionTables returns the full adjacency tables for all entity kinds.
func TransitionTables() map[workflow.Kind]workflow.Table {
	return map[workflow.Kind]workflow.Table{
		KindRequisition: {
			ReqCreated:         {ReqPendingApproval, ReqCancelled},
			ReqPendingApproval: {ReqApproved, ReqRejected},
			ReqApproved:        {ReqForwarded, ReqCancelled},
			ReqForwarded:       {ReqQuoting, ReqCancelled},
			ReqQuoting:         {ReqFinalized},
		},
		KindQuotation: {
			QuoteOpen:            {QuoteComplete, QuoteRejected},
			QuoteComplete:        {QuotePendingApproval, QuoteRejected},
			QuotePendingApproval: {QuoteApproved, QuoteRejected},
		},
		KindPurchaseOrder: {
			OrderOpen:      {OrderApproved, OrderRejected},
			OrderApproved:  {OrderDelivered},
			OrderDelivered: {OrderFinalized},
		},
	}
}

// NewValidator builds a transition validator over the procurement tables.
func NewValidator() *workflow.Validator {
	return workflow.NewValidator(TransitionTables())
}

// statusLabel maps a workflow state to the status label persisted alongside
// it. An empty return means "leave the stored label unchanged".
func statusLabel(kind workflow.Kind, to State) string {
	switch kind {
	case KindRequisition:
		switch to {
		case ReqPendingApproval:
			return "pending_approval"
		case ReqApproved:
			return "approved"
		case ReqRejected:
			return "cancelled"
		default:
			return ""
		}
	case KindPurchaseOrder:
		if to == OrderOpen {
			return "draft"
		}
		return string(to)
	default:
		return string(to)
	}
}
