package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func item(id, material, qty, price, notes string) RequisitionItem {
	return RequisitionItem{
		ID:           id,
		MaterialID:   material,
		Quantity:     d(qty),
		Unit:         "UN",
		EstUnitPrice: d(price),
		Notes:        notes,
	}
}

func TestAggregateItemsMergesDuplicateMaterials(t *testing.T) {
	// GIVEN: Two rows for matX (2 + 3) and one for matY
	// WHEN: Aggregating
	// THEN: One matX row with quantity 5, notes joined, larger price kept
	out := AggregateItems([]RequisitionItem{
		item("", "matX", "2", "10.00", "urgent"),
		item("", "matY", "1", "4.50", ""),
		item("", "matX", "3", "12.00", "for line 2"),
	})

	if len(out) != 2 {
		t.Fatalf("expected 2 aggregated rows, got %d", len(out))
	}
	x := out[0]
	if x.MaterialID != "matX" {
		t.Fatalf("first-appearance order broken: got %s first", x.MaterialID)
	}
	if !x.Quantity.Equal(d("5")) {
		t.Errorf("expected quantity 5, got %s", x.Quantity)
	}
	if x.Notes != "urgent; for line 2" {
		t.Errorf("expected joined notes, got %q", x.Notes)
	}
	if !x.EstUnitPrice.Equal(d("12.00")) {
		t.Errorf("expected the larger estimate 12.00, got %s", x.EstUnitPrice)
	}
}

func TestAggregateItemsKeepsFirstNonEmptyID(t *testing.T) {
	out := AggregateItems([]RequisitionItem{
		item("", "matX", "1", "1", ""),
		item("row-7", "matX", "1", "1", ""),
	})
	if len(out) != 1 || out[0].ID != "row-7" {
		t.Errorf("expected merged row to adopt id row-7, got %+v", out)
	}
}

func TestPlanItemsComputesAllThreeSets(t *testing.T) {
	// GIVEN: Stored rows for matA and matB
	// WHEN: Desired set updates matA, drops matB, adds matC
	// THEN: One update, one delete, one create
	existing := []RequisitionItem{
		item("row-a", "matA", "2", "5", ""),
		item("row-b", "matB", "1", "3", ""),
	}
	desired := []RequisitionItem{
		item("row-a", "matA", "4", "5", ""),
		item("", "matC", "1", "9", ""),
	}

	plan := PlanItems(existing, desired)

	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].ID != "row-a" || !plan.ToUpdate[0].Quantity.Equal(d("4")) {
		t.Errorf("unexpected update set: %+v", plan.ToUpdate)
	}
	if len(plan.ToDelete) != 1 || plan.ToDelete[0].ID != "row-b" {
		t.Errorf("unexpected delete set: %+v", plan.ToDelete)
	}
	if len(plan.ToCreate) != 1 || plan.ToCreate[0].MaterialID != "matC" || plan.ToCreate[0].ID != "" {
		t.Errorf("unexpected create set: %+v", plan.ToCreate)
	}
}

func TestPlanItemsStaleIDFallsBackToMaterial(t *testing.T) {
	// A desired row carrying an id that no longer exists still updates the
	// stored row for the same material instead of creating a duplicate.
	existing := []RequisitionItem{item("row-live", "matA", "2", "5", "")}
	desired := []RequisitionItem{item("row-stale", "matA", "7", "5", "")}

	plan := PlanItems(existing, desired)

	if len(plan.ToCreate) != 0 {
		t.Fatalf("stale id must not create a duplicate row: %+v", plan.ToCreate)
	}
	if len(plan.ToUpdate) != 1 || plan.ToUpdate[0].ID != "row-live" {
		t.Errorf("expected update against the live row, got %+v", plan.ToUpdate)
	}
	if len(plan.ToDelete) != 0 {
		t.Errorf("nothing should be deleted, got %+v", plan.ToDelete)
	}
}

func TestPlanItemsAggregatesBeforeDiffing(t *testing.T) {
	existing := []RequisitionItem{item("row-a", "matA", "1", "5", "")}
	desired := []RequisitionItem{
		item("", "matA", "2", "5", ""),
		item("", "matA", "3", "5", ""),
	}

	plan := PlanItems(existing, desired)

	if len(plan.ToUpdate) != 1 || !plan.ToUpdate[0].Quantity.Equal(d("5")) {
		t.Errorf("expected a single merged update with quantity 5, got %+v", plan.ToUpdate)
	}
	if len(plan.ToCreate) != 0 || len(plan.ToDelete) != 0 {
		t.Errorf("expected no creates/deletes, got %+v / %+v", plan.ToCreate, plan.ToDelete)
	}
}
