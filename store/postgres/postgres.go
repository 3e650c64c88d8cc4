/*
Package postgres provides a PostgreSQL-backed implementation of
procurement.Store using the pgx stdlib driver.

PURPOSE:
  Production persistence. Mirrors store/sqlite table by table; the dialect
  differences are $n placeholders, TIMESTAMPTZ columns, and unique-violation
  detection through pgconn error codes.

ERROR MAPPING:
  Unique violations (SQLSTATE 23505) on numbered tables surface as
  workflow.ErrDuplicateNumber; on child-row tables as
  workflow.ErrDuplicateKey. Everything else is returned unchanged.

SEE ALSO:
  - procurement/store.go: Interface definitions and error contract
  - store/sqlite: Embedded variant, with the schema commentary
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"github.com/warp/procurement-engine/procurement"
	"github.com/warp/procurement-engine/workflow"
)

const uniqueViolationCode = "23505"

// Store implements procurement.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ procurement.Store = (*Store)(nil)

// New connects to the database at dsn, verifies the connection and migrates
// the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS requisitions (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		number TEXT NOT NULL,
		kind TEXT NOT NULL,
		workflow_state TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT '',
		requester_id TEXT NOT NULL,
		cost_center_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		warehouse_id TEXT NOT NULL DEFAULT '',
		delivery_addr TEXT NOT NULL DEFAULT '',
		need_by_date TEXT NOT NULL DEFAULT '',
		justification TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		estimated_total TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(org_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_requisitions_org_state
		ON requisitions(org_id, workflow_state);

	CREATE TABLE IF NOT EXISTS requisition_items (
		id TEXT PRIMARY KEY,
		requisition_id TEXT NOT NULL REFERENCES requisitions(id),
		material_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		est_unit_price TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		warehouse_id TEXT NOT NULL DEFAULT '',
		UNIQUE(requisition_id, material_id)
	);

	CREATE TABLE IF NOT EXISTS quotation_cycles (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		requisition_id TEXT NOT NULL REFERENCES requisitions(id),
		number TEXT NOT NULL,
		workflow_state TEXT NOT NULL,
		status TEXT NOT NULL,
		reply_deadline TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(org_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_cycles_requisition
		ON quotation_cycles(org_id, requisition_id);

	CREATE TABLE IF NOT EXISTS supplier_quotes (
		id TEXT PRIMARY KEY,
		cycle_id TEXT NOT NULL REFERENCES quotation_cycles(id),
		supplier_id TEXT NOT NULL,
		total_price TEXT NOT NULL DEFAULT '0',
		lead_days INTEGER NOT NULL DEFAULT 0,
		terms TEXT NOT NULL DEFAULT '',
		workflow_state TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(cycle_id, supplier_id)
	);

	CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		cycle_id TEXT NOT NULL REFERENCES quotation_cycles(id),
		supplier_id TEXT NOT NULL,
		number TEXT NOT NULL,
		workflow_state TEXT NOT NULL,
		status TEXT NOT NULL,
		promised_date TEXT NOT NULL DEFAULT '',
		special_terms TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(org_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_orders_cycle
		ON purchase_orders(org_id, cycle_id);

	CREATE TABLE IF NOT EXISTS purchase_order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES purchase_orders(id),
		material_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		unit_price TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		warehouse_id TEXT NOT NULL DEFAULT '',
		delivered_qty TEXT NOT NULL DEFAULT '0',
		UNIQUE(order_id, material_id)
	);

	CREATE TABLE IF NOT EXISTS invoice_entries (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		order_id TEXT NOT NULL REFERENCES purchase_orders(id),
		supplier_id TEXT NOT NULL,
		invoice_number TEXT NOT NULL,
		series TEXT NOT NULL DEFAULT '',
		access_key TEXT NOT NULL DEFAULT '',
		issue_date TEXT NOT NULL DEFAULT '',
		receipt_date TEXT NOT NULL DEFAULT '',
		declared_total TEXT NOT NULL DEFAULT '0',
		recon_status TEXT NOT NULL,
		xml_payload TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_order
		ON invoice_entries(org_id, order_id);

	CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoice_entries(id),
		order_item_id TEXT NOT NULL DEFAULT '',
		material_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		ncm TEXT NOT NULL DEFAULT '',
		cfop TEXT NOT NULL DEFAULT '',
		cst TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL,
		due_date TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_entries (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		invoice_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		approver_id TEXT NOT NULL,
		decision TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		decided_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_entity
		ON approvals(org_id, entity_kind, entity_id);

	CREATE TABLE IF NOT EXISTS workflow_logs (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_entity
		ON workflow_logs(org_id, entity_kind, entity_id);

	CREATE TABLE IF NOT EXISTS document_counters (
		org_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		value BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY(org_id, kind)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func dec(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func (s *Store) CreateRequisition(ctx context.Context, r procurement.Requisition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requisitions (
			id, org_id, number, kind, workflow_state, status, priority,
			requester_id, cost_center_id, project_id, warehouse_id, delivery_addr,
			need_by_date, justification, notes, estimated_total, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.OrgID, r.Number, string(r.Kind), string(r.State), r.Status, r.Priority,
		r.RequesterID, r.CostCenterID, r.ProjectID, r.WarehouseID, r.DeliveryAddr,
		r.NeedByDate, r.Justification, r.Notes, r.EstimatedTotal.String(), r.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("requisition number %s: %w", r.Number, workflow.ErrDuplicateNumber)
	}
	return err
}

const requisitionColumns = `id, org_id, number, kind, workflow_state, status, priority,
	requester_id, cost_center_id, project_id, warehouse_id, delivery_addr,
	need_by_date, justification, notes, estimated_total, created_at`

func scanRequisition(row interface{ Scan(...any) error }) (*procurement.Requisition, error) {
	var r procurement.Requisition
	var kind, state, total string
	err := row.Scan(&r.ID, &r.OrgID, &r.Number, &kind, &state, &r.Status, &r.Priority,
		&r.RequesterID, &r.CostCenterID, &r.ProjectID, &r.WarehouseID, &r.DeliveryAddr,
		&r.NeedByDate, &r.Justification, &r.Notes, &total, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = procurement.RequisitionKind(kind)
	r.State = procurement.State(state)
	r.EstimatedTotal = dec(total)
	return &r, nil
}

func (s *Store) GetRequisition(ctx context.Context, orgID, id string) (*procurement.Requisition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requisitionColumns+` FROM requisitions WHERE id = $1 AND org_id = $2`, id, orgID)
	r, err := scanRequisition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requisition %s: %w", id, workflow.ErrNotFound)
	}
	return r, err
}

func (s *Store) ListRequisitions(ctx context.Context, orgID string, f procurement.RequisitionFilter) ([]procurement.Requisition, error) {
	query := `SELECT ` + requisitionColumns + ` FROM requisitions WHERE org_id = $1`
	args := []any{orgID}
	if f.State != nil {
		args = append(args, string(*f.State))
		query += fmt.Sprintf(` AND workflow_state = $%d`, len(args))
	}
	if f.Kind != nil {
		args = append(args, string(*f.Kind))
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if f.RequesterID != nil {
		args = append(args, *f.RequesterID)
		query += fmt.Sprintf(` AND requester_id = $%d`, len(args))
	}
	if f.CostCenterID != nil {
		args = append(args, *f.CostCenterID)
		query += fmt.Sprintf(` AND cost_center_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at, number`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.Requisition
	for rows.Next() {
		r, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRequisitionHeader(ctx context.Context, r procurement.Requisition) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requisitions SET
			priority = $1, cost_center_id = $2, project_id = $3, warehouse_id = $4,
			delivery_addr = $5, need_by_date = $6, justification = $7, notes = $8,
			estimated_total = $9
		WHERE id = $10 AND org_id = $11`,
		r.Priority, r.CostCenterID, r.ProjectID, r.WarehouseID,
		r.DeliveryAddr, r.NeedByDate, r.Justification, r.Notes,
		r.EstimatedTotal.String(), r.ID, r.OrgID)
	if err != nil {
		return err
	}
	return notFoundIfZero(res, "requisition", r.ID)
}

func (s *Store) SetRequisitionState(ctx context.Context, orgID, id string, from, to procurement.State, status string) error {
	return s.casState(ctx, "requisitions", "requisition", orgID, id, from, to, status)
}

func (s *Store) CreateRequisitionItem(ctx context.Context, item procurement.RequisitionItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requisition_items (id, requisition_id, material_id, quantity, unit, est_unit_price, notes, warehouse_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.RequisitionID, item.MaterialID, item.Quantity.String(),
		item.Unit, item.EstUnitPrice.String(), item.Notes, item.WarehouseID)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("material %s already present on requisition %s: %w",
			item.MaterialID, item.RequisitionID, workflow.ErrDuplicateKey)
	}
	return err
}

func (s *Store) UpdateRequisitionItem(ctx context.Context, item procurement.RequisitionItem) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE requisition_items SET
			material_id = $1, quantity = $2, unit = $3, est_unit_price = $4, notes = $5, warehouse_id = $6
		WHERE id = $7`,
		item.MaterialID, item.Quantity.String(), item.Unit, item.EstUnitPrice.String(),
		item.Notes, item.WarehouseID, item.ID)
	if err != nil {
		return err
	}
	return notFoundIfZero(res, "requisition item", item.ID)
}

func (s *Store) DeleteRequisitionItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM requisition_items WHERE id = $1`, itemID)
	return err
}

const reqItemColumns = `id, requisition_id, material_id, quantity, unit, est_unit_price, notes, warehouse_id`

func scanReqItem(row interface{ Scan(...any) error }) (*procurement.RequisitionItem, error) {
	var it procurement.RequisitionItem
	var qty, price string
	err := row.Scan(&it.ID, &it.RequisitionID, &it.MaterialID, &qty, &it.Unit, &price, &it.Notes, &it.WarehouseID)
	if err != nil {
		return nil, err
	}
	it.Quantity = dec(qty)
	it.EstUnitPrice = dec(price)
	return &it, nil
}

func (s *Store) ListRequisitionItems(ctx context.Context, requisitionID string) ([]procurement.RequisitionItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reqItemColumns+` FROM requisition_items WHERE requisition_id = $1 ORDER BY material_id`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.RequisitionItem
	for rows.Next() {
		it, err := scanReqItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

func (s *Store) GetRequisitionItemByMaterial(ctx context.Context, requisitionID, materialID string) (*procurement.RequisitionItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reqItemColumns+` FROM requisition_items WHERE requisition_id = $1 AND material_id = $2`,
		requisitionID, materialID)
	it, err := scanReqItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("material %s on requisition %s: %w", materialID, requisitionID, workflow.ErrNotFound)
	}
	return it, err
}

// =============================================================================
// QUOTATION CYCLES
// =============================================================================

func (s *Store) CreateQuotationCycle(ctx context.Context, c procurement.QuotationCycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quotation_cycles (id, org_id, requisition_id, number, workflow_state, status, reply_deadline, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.OrgID, c.RequisitionID, c.Number, string(c.State), c.Status,
		c.ReplyDeadline, c.Notes, c.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("cycle number %s: %w", c.Number, workflow.ErrDuplicateNumber)
	}
	return err
}

const cycleColumns = `id, org_id, requisition_id, number, workflow_state, status, reply_deadline, notes, created_at`

func scanCycle(row interface{ Scan(...any) error }) (*procurement.QuotationCycle, error) {
	var c procurement.QuotationCycle
	var state string
	err := row.Scan(&c.ID, &c.OrgID, &c.RequisitionID, &c.Number, &state, &c.Status,
		&c.ReplyDeadline, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.State = procurement.State(state)
	return &c, nil
}

func (s *Store) GetQuotationCycle(ctx context.Context, orgID, id string) (*procurement.QuotationCycle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM quotation_cycles WHERE id = $1 AND org_id = $2`, id, orgID)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quotation cycle %s: %w", id, workflow.ErrNotFound)
	}
	return c, err
}

func (s *Store) GetCycleByRequisition(ctx context.Context, orgID, requisitionID string) (*procurement.QuotationCycle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM quotation_cycles
		 WHERE org_id = $1 AND requisition_id = $2 ORDER BY created_at DESC LIMIT 1`,
		orgID, requisitionID)
	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle for requisition %s: %w", requisitionID, workflow.ErrNotFound)
	}
	return c, err
}

func (s *Store) SetQuotationState(ctx context.Context, orgID, id string, from, to procurement.State, status string) error {
	return s.casState(ctx, "quotation_cycles", "quotation cycle", orgID, id, from, to, status)
}

func (s *Store) CreateSupplierQuote(ctx context.Context, q procurement.SupplierQuote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO supplier_quotes (id, cycle_id, supplier_id, total_price, lead_days, terms, workflow_state, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.ID, q.CycleID, q.SupplierID, q.TotalPrice.String(), q.LeadDays, q.Terms,
		string(q.State), q.Status, q.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("supplier %s already invited to cycle %s: %w", q.SupplierID, q.CycleID, workflow.ErrDuplicateKey)
	}
	return err
}

const quoteColumns = `id, cycle_id, supplier_id, total_price, lead_days, terms, workflow_state, status, updated_at`

func scanQuote(row interface{ Scan(...any) error }) (*procurement.SupplierQuote, error) {
	var q procurement.SupplierQuote
	var price, state string
	err := row.Scan(&q.ID, &q.CycleID, &q.SupplierID, &price, &q.LeadDays, &q.Terms, &state, &q.Status, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.TotalPrice = dec(price)
	q.State = procurement.State(state)
	return &q, nil
}

func (s *Store) GetSupplierQuote(ctx context.Context, quoteID string) (*procurement.SupplierQuote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM supplier_quotes WHERE id = $1`, quoteID)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("supplier quote %s: %w", quoteID, workflow.ErrNotFound)
	}
	return q, err
}

func (s *Store) GetSupplierQuoteBySupplier(ctx context.Context, cycleID, supplierID string) (*procurement.SupplierQuote, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM supplier_quotes WHERE cycle_id = $1 AND supplier_id = $2`, cycleID, supplierID)
	q, err := scanQuote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quote for supplier %s in cycle %s: %w", supplierID, cycleID, workflow.ErrNotFound)
	}
	return q, err
}

func (s *Store) UpdateSupplierQuote(ctx context.Context, q procurement.SupplierQuote) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE supplier_quotes SET
			total_price = $1, lead_days = $2, terms = $3, workflow_state = $4, status = $5, updated_at = $6
		WHERE id = $7`,
		q.TotalPrice.String(), q.LeadDays, q.Terms, string(q.State), q.Status, q.UpdatedAt, q.ID)
	if err != nil {
		return err
	}
	return notFoundIfZero(res, "supplier quote", q.ID)
}

func (s *Store) ListSupplierQuotes(ctx context.Context, cycleID string) ([]procurement.SupplierQuote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM supplier_quotes WHERE cycle_id = $1 ORDER BY supplier_id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.SupplierQuote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

func (s *Store) CreatePurchaseOrder(ctx context.Context, o procurement.PurchaseOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, org_id, cycle_id, supplier_id, number, workflow_state, status, promised_date, special_terms, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.OrgID, o.CycleID, o.SupplierID, o.Number, string(o.State), o.Status,
		o.PromisedDate, o.SpecialTerms, o.Notes, o.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("order number %s: %w", o.Number, workflow.ErrDuplicateNumber)
	}
	return err
}

const orderColumns = `id, org_id, cycle_id, supplier_id, number, workflow_state, status, promised_date, special_terms, notes, created_at`

func scanOrder(row interface{ Scan(...any) error }) (*procurement.PurchaseOrder, error) {
	var o procurement.PurchaseOrder
	var state string
	err := row.Scan(&o.ID, &o.OrgID, &o.CycleID, &o.SupplierID, &o.Number, &state, &o.Status,
		&o.PromisedDate, &o.SpecialTerms, &o.Notes, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.State = procurement.State(state)
	return &o, nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, orgID, id string) (*procurement.PurchaseOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1 AND org_id = $2`, id, orgID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("purchase order %s: %w", id, workflow.ErrNotFound)
	}
	return o, err
}

func (s *Store) GetOrderByCycle(ctx context.Context, orgID, cycleID string) (*procurement.PurchaseOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders
		 WHERE org_id = $1 AND cycle_id = $2 ORDER BY created_at DESC LIMIT 1`, orgID, cycleID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order for cycle %s: %w", cycleID, workflow.ErrNotFound)
	}
	return o, err
}

func (s *Store) ListPurchaseOrders(ctx context.Context, orgID string) ([]procurement.PurchaseOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM purchase_orders WHERE org_id = $1 ORDER BY created_at, number`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.PurchaseOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *Store) SetOrderState(ctx context.Context, orgID, id string, from, to procurement.State, status string) error {
	return s.casState(ctx, "purchase_orders", "purchase order", orgID, id, from, to, status)
}

func (s *Store) CreateOrderItem(ctx context.Context, item procurement.PurchaseOrderItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_order_items (id, order_id, material_id, quantity, unit, unit_price, notes, warehouse_id, delivered_qty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		item.ID, item.OrderID, item.MaterialID, item.Quantity.String(), item.Unit,
		item.UnitPrice.String(), item.Notes, item.WarehouseID, item.DeliveredQty.String())
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("material %s already present on order %s: %w", item.MaterialID, item.OrderID, workflow.ErrDuplicateKey)
	}
	return err
}

func (s *Store) ListOrderItems(ctx context.Context, orderID string) ([]procurement.PurchaseOrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, material_id, quantity, unit, unit_price, notes, warehouse_id, delivered_qty
		FROM purchase_order_items WHERE order_id = $1 ORDER BY material_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.PurchaseOrderItem
	for rows.Next() {
		var it procurement.PurchaseOrderItem
		var qty, price, delivered string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MaterialID, &qty, &it.Unit, &price,
			&it.Notes, &it.WarehouseID, &delivered); err != nil {
			return nil, err
		}
		it.Quantity = dec(qty)
		it.UnitPrice = dec(price)
		it.DeliveredQty = dec(delivered)
		out = append(out, it)
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICE ENTRIES
// =============================================================================

func (s *Store) CreateInvoiceEntry(ctx context.Context, e procurement.InvoiceEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_entries (id, org_id, order_id, supplier_id, invoice_number, series, access_key,
			issue_date, receipt_date, declared_total, recon_status, xml_payload, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.OrgID, e.OrderID, e.SupplierID, e.InvoiceNumber, e.Series, e.AccessKey,
		e.IssueDate, e.ReceiptDate, e.DeclaredTotal.String(), string(e.Recon),
		e.XMLPayload, e.Notes, e.CreatedBy, e.CreatedAt)
	return err
}

const invoiceColumns = `id, org_id, order_id, supplier_id, invoice_number, series, access_key,
	issue_date, receipt_date, declared_total, recon_status, xml_payload, notes, created_by, created_at`

func scanInvoice(row interface{ Scan(...any) error }) (*procurement.InvoiceEntry, error) {
	var e procurement.InvoiceEntry
	var total, recon string
	err := row.Scan(&e.ID, &e.OrgID, &e.OrderID, &e.SupplierID, &e.InvoiceNumber, &e.Series, &e.AccessKey,
		&e.IssueDate, &e.ReceiptDate, &total, &recon, &e.XMLPayload, &e.Notes, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.DeclaredTotal = dec(total)
	e.Recon = procurement.ReconciliationStatus(recon)
	return &e, nil
}

func (s *Store) GetInvoiceEntry(ctx context.Context, orgID, id string) (*procurement.InvoiceEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_entries WHERE id = $1 AND org_id = $2`, id, orgID)
	e, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice entry %s: %w", id, workflow.ErrNotFound)
	}
	return e, err
}

func (s *Store) GetInvoiceByOrder(ctx context.Context, orgID, orderID string) (*procurement.InvoiceEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoice_entries
		 WHERE org_id = $1 AND order_id = $2 ORDER BY created_at DESC LIMIT 1`, orgID, orderID)
	e, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice for order %s: %w", orderID, workflow.ErrNotFound)
	}
	return e, err
}

func (s *Store) SetInvoiceReconciliation(ctx context.Context, orgID, id string, status procurement.ReconciliationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invoice_entries SET recon_status = $1 WHERE id = $2 AND org_id = $3`,
		string(status), id, orgID)
	if err != nil {
		return err
	}
	return notFoundIfZero(res, "invoice entry", id)
}

func (s *Store) CreateInvoiceItem(ctx context.Context, item procurement.InvoiceEntryItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_items (id, invoice_id, order_item_id, material_id, description, quantity, unit, unit_price, total, ncm, cfop, cst)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.ID, item.InvoiceID, item.OrderItemID, item.MaterialID, item.Description,
		item.Quantity.String(), item.Unit, item.UnitPrice.String(), item.Total.String(),
		item.NCM, item.CFOP, item.CST)
	return err
}

func (s *Store) ListInvoiceItems(ctx context.Context, invoiceID string) ([]procurement.InvoiceEntryItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, order_item_id, material_id, description, quantity, unit, unit_price, total, ncm, cfop, cst
		FROM invoice_items WHERE invoice_id = $1 ORDER BY material_id, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.InvoiceEntryItem
	for rows.Next() {
		var it procurement.InvoiceEntryItem
		var qty, price, total string
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.OrderItemID, &it.MaterialID, &it.Description,
			&qty, &it.Unit, &price, &total, &it.NCM, &it.CFOP, &it.CST); err != nil {
			return nil, err
		}
		it.Quantity = dec(qty)
		it.UnitPrice = dec(price)
		it.Total = dec(total)
		out = append(out, it)
	}
	return out, rows.Err()
}

// =============================================================================
// DOWNSTREAM RECORDS
// =============================================================================

func (s *Store) CreatePayable(ctx context.Context, p procurement.Payable) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payables (id, org_id, order_id, status, due_date, amount, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.OrgID, p.OrderID, p.Status, p.DueDate, p.Amount.String(), p.CreatedAt)
	return err
}

func (s *Store) GetPayableByOrder(ctx context.Context, orgID, orderID string) (*procurement.Payable, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, order_id, status, due_date, amount, created_at
		FROM payables WHERE org_id = $1 AND order_id = $2 ORDER BY created_at DESC LIMIT 1`, orgID, orderID)

	var p procurement.Payable
	var amount string
	err := row.Scan(&p.ID, &p.OrgID, &p.OrderID, &p.Status, &p.DueDate, &amount, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payable for order %s: %w", orderID, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.Amount = dec(amount)
	return &p, nil
}

func (s *Store) CreateStockEntry(ctx context.Context, e procurement.StockEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_entries (id, org_id, invoice_id, status, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.OrgID, e.InvoiceID, e.Status, e.CreatedAt)
	return err
}

func (s *Store) GetStockEntryByInvoice(ctx context.Context, orgID, invoiceID string) (*procurement.StockEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, invoice_id, status, created_at
		FROM stock_entries WHERE org_id = $1 AND invoice_id = $2 ORDER BY created_at DESC LIMIT 1`, orgID, invoiceID)

	var e procurement.StockEntry
	err := row.Scan(&e.ID, &e.OrgID, &e.InvoiceID, &e.Status, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stock entry for invoice %s: %w", invoiceID, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateApproval(ctx context.Context, a procurement.Approval) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, org_id, entity_kind, entity_id, level, approver_id, decision, notes, decided_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.OrgID, a.EntityKind, a.EntityID, a.Level, a.ApproverID, string(a.Decision),
		a.Notes, a.DecidedAt)
	return err
}

func (s *Store) ListApprovals(ctx context.Context, orgID, entityKind, entityID string) ([]procurement.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, entity_kind, entity_id, level, approver_id, decision, notes, decided_at
		FROM approvals WHERE org_id = $1 AND entity_kind = $2 AND entity_id = $3
		ORDER BY level, decided_at`, orgID, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procurement.Approval
	for rows.Next() {
		var a procurement.Approval
		var decision string
		if err := rows.Scan(&a.ID, &a.OrgID, &a.EntityKind, &a.EntityID, &a.Level,
			&a.ApproverID, &decision, &a.Notes, &a.DecidedAt); err != nil {
			return nil, err
		}
		a.Decision = procurement.ApprovalDecision(decision)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// WORKFLOW LOG + COUNTER
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, entry workflow.LogEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal log payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_logs (id, org_id, entity_kind, entity_id, from_state, to_state, actor_id, payload_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.OrgID, string(entry.EntityKind), entry.EntityID,
		string(entry.FromState), string(entry.ToState), entry.ActorID,
		string(payload), entry.CreatedAt)
	return err
}

func (s *Store) ListLogs(ctx context.Context, orgID string, f workflow.LogFilter) ([]workflow.LogEntry, error) {
	query := `SELECT id, org_id, entity_kind, entity_id, from_state, to_state, actor_id, payload_json, created_at
		FROM workflow_logs WHERE org_id = $1`
	args := []any{orgID}
	if f.EntityKind != nil {
		args = append(args, string(*f.EntityKind))
		query += fmt.Sprintf(` AND entity_kind = $%d`, len(args))
	}
	if f.EntityID != nil {
		args = append(args, *f.EntityID)
		query += fmt.Sprintf(` AND entity_id = $%d`, len(args))
	}
	if f.ActorID != nil {
		args = append(args, *f.ActorID)
		query += fmt.Sprintf(` AND actor_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.LogEntry
	for rows.Next() {
		var e workflow.LogEntry
		var kind, from, to, payload string
		if err := rows.Scan(&e.ID, &e.OrgID, &kind, &e.EntityID, &from, &to, &e.ActorID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.EntityKind = workflow.Kind(kind)
		e.FromState = workflow.State(from)
		e.ToState = workflow.State(to)
		if payload != "" && payload != "null" {
			_ = json.Unmarshal([]byte(payload), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NextNumber bumps the per-(org, kind) counter atomically. Concurrent
// callers serialize on the row lock; the returned value is unique unless
// the counter row itself was reset, and the numbered insert's constraint
// catches that case.
func (s *Store) NextNumber(ctx context.Context, kind workflow.NumberKind, orgID string) (string, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_counters (org_id, kind, value) VALUES ($1, $2, 1)
		ON CONFLICT (org_id, kind) DO UPDATE SET value = document_counters.value + 1
		RETURNING value`, orgID, string(kind)).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("next %s number: %w", kind, err)
	}
	return fmt.Sprintf("%s-%06d", kind, value), nil
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func (s *Store) casState(ctx context.Context, table, label, orgID, id string, from, to procurement.State, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table+` SET workflow_state = $1, status = COALESCE(NULLIF($2, ''), status)
		WHERE id = $3 AND org_id = $4 AND workflow_state = $5`,
		string(to), status, id, orgID, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE id = $1 AND org_id = $2`, id, orgID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", label, id, workflow.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%s %s state changed since read: %w", label, id, workflow.ErrConcurrentModification)
}

func notFoundIfZero(res sql.Result, label, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", label, id, workflow.ErrNotFound)
	}
	return nil
}
