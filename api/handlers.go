/*
handlers.go - HTTP API handlers for the procurement engine

PURPOSE:
  Exposes the procurement engine via REST API. Handles HTTP
  request/response, JSON serialization and org scoping, and delegates to
  the domain services.

ENDPOINTS:
  Requisitions:
    GET    /api/requisitions                    List (filterable)
    POST   /api/requisitions                    Create
    PUT    /api/requisitions/{id}               Update header + items
    POST   /api/requisitions/{id}/transition    Lifecycle transition
    POST   /api/requisitions/{id}/duplicate     Clone into a fresh one

  Quotations:
    POST   /api/quotations                      Start cycle + invite suppliers
    POST   /api/quotations/{id}/suppliers       Invite one more supplier
    PUT    /api/quotations/quotes/{id}          Upsert a supplier's bid
    POST   /api/quotations/{id}/transition      Lifecycle transition

  Orders:
    POST   /api/orders                          Create from approved quote
    POST   /api/orders/{id}/transition          Lifecycle transition

  Invoices:
    POST   /api/invoices                        Record invoice entry + lines
    POST   /api/invoices/{id}/compare           Tolerance comparison

  Follow-up:
    GET    /api/follow-up                       Projected list (cached)
    GET    /api/follow-up/{requisitionID}       Detail with approvals

ORG SCOPING:
  Every request carries an X-Org-ID header; requests without one are
  rejected with 400 before touching the store.

ERROR HANDLING:
  - 400: missing/invalid input, illegal transitions, supplier count, not editable
  - 404: entity not found
  - 409: concurrent modification
  - 503: number generation exhausted (caller should retry)
  - 207: partial child-row failure (parent exists, failed rows named)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/procurement-engine/cache"
	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Requisitions *procurement.RequisitionService
	Quotations   *procurement.QuotationService
	Orders       *procurement.OrderService
	Invoices     *procurement.InvoiceService
	Projector    *procurement.Projector
	Cache        cache.FollowUpCache
	Log          zerolog.Logger
}

// NewHandler wires the services over one store.
func NewHandler(store procurement.Store, followUps cache.FollowUpCache, log zerolog.Logger) *Handler {
	validator := procurement.NewValidator()
	numbers := workflow.NewNumberGenerator(store)
	return &Handler{
		Requisitions: &procurement.RequisitionService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		Quotations:   &procurement.QuotationService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		Orders:       &procurement.OrderService{Store: store, Validator: validator, Numbers: numbers, Log: log},
		Invoices:     &procurement.InvoiceService{Store: store, Log: log},
		Projector:    &procurement.Projector{Store: store},
		Cache:        followUps,
		Log:          log,
	}
}

// orgID extracts the organization scope. Empty means the request is
// rejected before any store access.
func orgID(r *http.Request) string {
	return r.Header.Get("X-Org-ID")
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func (h *Handler) CreateRequisition(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req CreateRequisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	in := procurement.CreateRequisitionInput{
		OrgID:          org,
		RequesterID:    req.RequesterID,
		Kind:           procurement.RequisitionKind(req.Kind),
		Priority:       req.Priority,
		CostCenterID:   req.CostCenterID,
		ProjectID:      req.ProjectID,
		WarehouseID:    req.WarehouseID,
		DeliveryAddr:   req.DeliveryAddr,
		NeedByDate:     req.NeedByDate,
		Justification:  req.Justification,
		Notes:          req.Notes,
		EstimatedTotal: req.EstimatedTotal,
		Items:          toItemInputs(req.Items),
	}
	created, err := h.Requisitions.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, created, err)
		return
	}
	h.invalidateFollowUps(r, org)
	items, _ := h.Requisitions.Store.ListRequisitionItems(r.Context(), created.ID)
	writeJSON(w, http.StatusCreated, toRequisitionResponse(created, items))
}

func (h *Handler) ListRequisitions(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	f := procurement.RequisitionFilter{}
	if v := r.URL.Query().Get("state"); v != "" {
		state := procurement.State(v)
		f.State = &state
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := procurement.RequisitionKind(v)
		f.Kind = &kind
	}
	if v := r.URL.Query().Get("requester_id"); v != "" {
		f.RequesterID = &v
	}
	if v := r.URL.Query().Get("cost_center_id"); v != "" {
		f.CostCenterID = &v
	}

	reqs, err := h.Requisitions.List(r.Context(), org, f)
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	out := make([]RequisitionResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequisitionResponse(&reqs[i], nil))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) UpdateRequisition(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req UpdateRequisitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	updated, err := h.Requisitions.Update(r.Context(), procurement.UpdateRequisitionInput{
		OrgID:          org,
		RequisitionID:  chi.URLParam(r, "id"),
		Priority:       req.Priority,
		CostCenterID:   req.CostCenterID,
		ProjectID:      req.ProjectID,
		WarehouseID:    req.WarehouseID,
		DeliveryAddr:   req.DeliveryAddr,
		NeedByDate:     req.NeedByDate,
		Justification:  req.Justification,
		Notes:          req.Notes,
		EstimatedTotal: req.EstimatedTotal,
		Items:          toItemInputs(req.Items),
	})
	if err != nil {
		h.writeServiceError(w, r, updated, err)
		return
	}
	items, _ := h.Requisitions.Store.ListRequisitionItems(r.Context(), updated.ID)
	writeJSON(w, http.StatusOK, toRequisitionResponse(updated, items))
}

func (h *Handler) TransitionRequisition(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(in procurement.TransitionInput) (any, error) {
		return h.Requisitions.Transition(r.Context(), in)
	})
}

func (h *Handler) DuplicateRequisition(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req DuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	clone, err := h.Requisitions.Duplicate(r.Context(), org, chi.URLParam(r, "id"), req.RequesterID)
	if err != nil {
		h.writeServiceError(w, r, clone, err)
		return
	}
	h.invalidateFollowUps(r, org)
	items, _ := h.Requisitions.Store.ListRequisitionItems(r.Context(), clone.ID)
	writeJSON(w, http.StatusCreated, toRequisitionResponse(clone, items))
}

// =============================================================================
// QUOTATIONS
// =============================================================================

func (h *Handler) StartQuotationCycle(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req StartCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	in := procurement.StartCycleInput{
		OrgID:         org,
		ActorID:       req.ActorID,
		RequisitionID: req.RequisitionID,
		ReplyDeadline: req.ReplyDeadline,
		Notes:         req.Notes,
	}
	for _, s := range req.Suppliers {
		in.Suppliers = append(in.Suppliers, procurement.SupplierInvite{
			SupplierID: s.SupplierID,
			LeadDays:   s.LeadDays,
			Terms:      s.Terms,
		})
	}

	cycle, err := h.Quotations.StartCycle(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, cycle, err)
		return
	}
	h.invalidateFollowUps(r, org)
	writeJSON(w, http.StatusCreated, cycle)
}

func (h *Handler) InviteSupplier(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req SupplierInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	err := h.Quotations.InviteSupplier(r.Context(), org, chi.URLParam(r, "id"), procurement.SupplierInvite{
		SupplierID: req.SupplierID,
		LeadDays:   req.LeadDays,
		Terms:      req.Terms,
	})
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpsertQuoteResponse(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req QuoteResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	quote, err := h.Quotations.UpsertQuoteResponse(r.Context(), procurement.QuoteResponseInput{
		OrgID:      org,
		QuoteID:    chi.URLParam(r, "id"),
		CycleID:    req.CycleID,
		SupplierID: req.SupplierID,
		TotalPrice: req.TotalPrice,
		LeadDays:   req.LeadDays,
		Terms:      req.Terms,
		State:      procurement.State(req.State),
	})
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) TransitionQuotation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(in procurement.TransitionInput) (any, error) {
		return h.Quotations.Transition(r.Context(), in)
	})
}

// =============================================================================
// ORDERS
// =============================================================================

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	order, err := h.Orders.Create(r.Context(), procurement.CreateOrderInput{
		OrgID:        org,
		ActorID:      req.ActorID,
		CycleID:      req.CycleID,
		SupplierID:   req.SupplierID,
		PromisedDate: req.PromisedDate,
		SpecialTerms: req.SpecialTerms,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, r, order, err)
		return
	}
	h.invalidateFollowUps(r, org)
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(in procurement.TransitionInput) (any, error) {
		return h.Orders.Transition(r.Context(), in)
	})
}

// =============================================================================
// INVOICES
// =============================================================================

func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req RecordInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	in := procurement.RecordInvoiceInput{
		OrgID:         org,
		ActorID:       req.ActorID,
		OrderID:       req.OrderID,
		SupplierID:    req.SupplierID,
		InvoiceNumber: req.InvoiceNumber,
		Series:        req.Series,
		AccessKey:     req.AccessKey,
		IssueDate:     req.IssueDate,
		ReceiptDate:   req.ReceiptDate,
		DeclaredTotal: req.DeclaredTotal,
		XMLPayload:    req.XMLPayload,
		Notes:         req.Notes,
	}
	for _, li := range req.Items {
		in.Items = append(in.Items, procurement.InvoiceItemInput{
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
		})
	}

	entry, err := h.Invoices.Record(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, entry, err)
		return
	}
	h.invalidateFollowUps(r, org)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) CompareInvoice(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	tol := procurement.DefaultTolerance()
	if r.ContentLength > 0 {
		var req CompareRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
			return
		}
		if !req.PriceTolerance.IsZero() {
			tol.Price = req.PriceTolerance
		}
		if !req.QtyTolerance.IsZero() {
			tol.Qty = req.QtyTolerance
		}
	}

	result, err := h.Invoices.Compare(r.Context(), org, chi.URLParam(r, "id"), tol)
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// FOLLOW-UP
// =============================================================================

func (h *Handler) ListFollowUps(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	f := procurement.FollowUpFilters{}
	if v := r.URL.Query().Get("state"); v != "" {
		state := procurement.State(v)
		f.State = &state
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		kind := procurement.RequisitionKind(v)
		f.Kind = &kind
	}
	if v := r.URL.Query().Get("requester_id"); v != "" {
		f.RequesterID = &v
	}

	key := cache.Key(org, f)
	if records, err := h.Cache.Get(r.Context(), key); err == nil {
		writeJSON(w, http.StatusOK, records)
		return
	}

	records, err := h.Projector.Project(r.Context(), org, f)
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	if err := h.Cache.Set(r.Context(), key, records); err != nil {
		h.Log.Warn().Err(err).Msg("follow-up cache write failed")
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) GetFollowUpDetail(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	detail, err := h.Projector.Detail(r.Context(), org, chi.URLParam(r, "requisitionID"))
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

// transition is the shared shape of the three transition endpoints.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, run func(procurement.TransitionInput) (any, error)) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "X-Org-ID header is required"})
		return
	}
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return
	}

	entity, err := run(procurement.TransitionInput{
		OrgID:    org,
		EntityID: chi.URLParam(r, "id"),
		From:     procurement.State(req.From),
		To:       procurement.State(req.To),
		ActorID:  req.ActorID,
		Payload:  req.Payload,
	})
	if err != nil {
		h.writeServiceError(w, r, nil, err)
		return
	}
	h.invalidateFollowUps(r, org)
	writeJSON(w, http.StatusOK, entity)
}

func (h *Handler) invalidateFollowUps(r *http.Request, org string) {
	if err := h.Cache.Invalidate(r.Context(), org); err != nil {
		h.Log.Warn().Err(err).Str("org", org).Msg("follow-up cache invalidation failed")
	}
}

// writeServiceError maps domain errors to HTTP status codes. A partial
// failure is not collapsed into a plain error: the parent entity is
// returned alongside the failed row keys.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, entity any, err error) {
	var partial *workflow.PartialFailureError
	if errors.As(err, &partial) {
		body := PartialFailureResponse{
			Data: entity,
			Partial: PartialFailureBody{
				Op:        partial.Op,
				Succeeded: partial.Succeeded,
			},
		}
		for _, f := range partial.Failed {
			body.Partial.Failed = append(body.Partial.Failed, FailedItemBody{Key: f.Key, Error: f.Err.Error()})
		}
		writeJSON(w, http.StatusMultiStatus, body)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case workflow.IsClientError(err):
		status = http.StatusBadRequest
	case workflow.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, workflow.ErrNumberGenerationExhausted):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toItemInputs(items []ItemRequest) []procurement.RequisitionItemInput {
	out := make([]procurement.RequisitionItemInput, len(items))
	for i, it := range items {
		out[i] = procurement.RequisitionItemInput{
			ItemID:       it.ItemID,
			MaterialID:   it.MaterialID,
			Quantity:     it.Quantity,
			Unit:         it.Unit,
			EstUnitPrice: it.EstUnitPrice,
			Notes:        it.Notes,
			WarehouseID:  it.WarehouseID,
		}
	}
	return out
}
