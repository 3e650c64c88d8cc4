/*
compare.go - Tolerance-based invoice/order reconciliation

PURPOSE:
  Compares a received invoice's line items against the originating purchase
  order's line items within configurable tolerance bands and classifies the
  result. Divergence is a normal result value, not a failure: this file
  raises no errors and performs no side effects. Persisting the resulting
  status is a separate explicit write done by the caller.

CLASSIFICATION:
  matched            price delta within tolerance AND qty delta within tolerance
  divergent          linked line outside either band
  unmatched_extra    invoice line with no linked order line (always divergent)
  unmatched_missing  order line with no corresponding invoice line

  priceDelta = |invoicePrice - orderPrice| / orderPrice   (relative)
  qtyDelta   = |invoiceQty - orderQty|                    (absolute)

SEE ALSO:
  - invoice.go: Runs the comparison and writes the resulting status
*/
package procurement

import "github.com/shopspring/decimal"

// LineMatch classifies one compared line.
type LineMatch string

const (
	LineMatched          LineMatch = "matched"
	LineDivergent        LineMatch = "divergent"
	LineUnmatchedExtra   LineMatch = "unmatched_extra"
	LineUnmatchedMissing LineMatch = "unmatched_missing"
)

// Tolerance is the allowed deviation before a line is flagged divergent.
// Price is relative (0.02 = 2%), Qty is absolute in item units.
type Tolerance struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// DefaultTolerance matches the application default: 2% price, exact quantity.
func DefaultTolerance() Tolerance {
	return Tolerance{Price: decimal.NewFromFloat(0.02), Qty: decimal.Zero}
}

// LineComparison reports one line with its computed deltas. Every divergent
// line is listed individually, never just an aggregate flag.
type LineComparison struct {
	Match       LineMatch
	OrderItemID string
	InvoiceItem string
	MaterialID  string
	OrderQty    decimal.Decimal
	InvoiceQty  decimal.Decimal
	QtyDelta    decimal.Decimal
	OrderPrice  decimal.Decimal
	InvPrice    decimal.Decimal
	PriceDelta  decimal.Decimal // relative; zero when no order price exists
}

// ComparisonResult is the full classification of an invoice against an order.
type ComparisonResult struct {
	Status    ReconciliationStatus
	Lines     []LineComparison
	Matched   int
	Divergent int
}

// CompareLines classifies every invoice line against its linked order line
// and reports order lines nothing claimed. Pure function of its inputs.
func CompareLines(orderItems []PurchaseOrderItem, invoiceItems []InvoiceEntryItem, tol Tolerance) ComparisonResult {
	orderByID := make(map[string]PurchaseOrderItem, len(orderItems))
	for _, oi := range orderItems {
		orderByID[oi.ID] = oi
	}

	var result ComparisonResult
	claimed := make(map[string]bool, len(invoiceItems))

	for _, inv := range invoiceItems {
		oi, linked := orderByID[inv.OrderItemID]
		if inv.OrderItemID == "" || !linked {
			// No linked order line: always divergent regardless of tolerances.
			result.Lines = append(result.Lines, LineComparison{
				Match:       LineUnmatchedExtra,
				InvoiceItem: inv.ID,
				MaterialID:  inv.MaterialID,
				InvoiceQty:  inv.Quantity,
				InvPrice:    inv.UnitPrice,
			})
			result.Divergent++
			continue
		}
		claimed[oi.ID] = true

		qtyDelta := inv.Quantity.Sub(oi.Quantity).Abs()
		var priceDelta decimal.Decimal
		if !oi.UnitPrice.IsZero() {
			priceDelta = inv.UnitPrice.Sub(oi.UnitPrice).Abs().Div(oi.UnitPrice)
		} else if !inv.UnitPrice.IsZero() {
			priceDelta = decimal.NewFromInt(1)
		}

		line := LineComparison{
			OrderItemID: oi.ID,
			InvoiceItem: inv.ID,
			MaterialID:  oi.MaterialID,
			OrderQty:    oi.Quantity,
			InvoiceQty:  inv.Quantity,
			QtyDelta:    qtyDelta,
			OrderPrice:  oi.UnitPrice,
			InvPrice:    inv.UnitPrice,
			PriceDelta:  priceDelta,
		}

		if priceDelta.GreaterThan(tol.Price) || qtyDelta.GreaterThan(tol.Qty) {
			line.Match = LineDivergent
			result.Divergent++
		} else {
			line.Match = LineMatched
			result.Matched++
		}
		result.Lines = append(result.Lines, line)
	}

	for _, oi := range orderItems {
		if claimed[oi.ID] {
			continue
		}
		result.Lines = append(result.Lines, LineComparison{
			Match:       LineUnmatchedMissing,
			OrderItemID: oi.ID,
			MaterialID:  oi.MaterialID,
			OrderQty:    oi.Quantity,
			OrderPrice:  oi.UnitPrice,
		})
		result.Divergent++
	}

	if result.Divergent == 0 && result.Matched > 0 {
		result.Status = ReconReconciled
	} else {
		result.Status = ReconDivergent
	}
	return result
}
