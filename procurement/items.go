/*
items.go - Line-item reconciliation against the one-row-per-material constraint

PURPOSE:
  Given a requisition's existing item rows and a new desired set, computes
  the create/update/delete operations that make the stored set match the
  desired one. The uniqueness constraint is per material, not per row, so
  duplicate submissions are merged BEFORE diffing: quantities sum, notes
  concatenate, the larger unit-price estimate wins.

APPLY ORDER:
  Deletes, then updates, then creates - each an independent idempotent call.
  No multi-row transaction is assumed available. The create step re-checks
  for a same-material row immediately before insert and falls back to update,
  absorbing races within the aggregation window. A stale item id likewise
  falls back to update-by-material rather than failing; re-submission stays
  idempotent.

SEE ALSO:
  - requisition.go: The update path driving this
  - workflow/errors.go: PartialFailureError reported from apply
*/
package procurement

import (
	"context"
	"errors"
	"sort"

	"github.com/warp/procurement-engine/workflow"
)

// ItemPlan is the computed difference between stored and desired items.
type ItemPlan struct {
	ToCreate []RequisitionItem
	ToUpdate []RequisitionItem // carry the existing row's ID
	ToDelete []RequisitionItem
}

// AggregateItems merges desired rows sharing a material id: quantities sum,
// notes concatenate with "; ", and the larger unit-price estimate is kept.
// Output order follows first appearance of each material.
func AggregateItems(desired []RequisitionItem) []RequisitionItem {
	byMaterial := make(map[string]int)
	var out []RequisitionItem

	for _, item := range desired {
		idx, seen := byMaterial[item.MaterialID]
		if !seen {
			byMaterial[item.MaterialID] = len(out)
			out = append(out, item)
			continue
		}

		merged := out[idx]
		merged.Quantity = merged.Quantity.Add(item.Quantity)
		if item.Notes != "" {
			if merged.Notes != "" {
				merged.Notes += "; " + item.Notes
			} else {
				merged.Notes = item.Notes
			}
		}
		if item.EstUnitPrice.GreaterThan(merged.EstUnitPrice) {
			merged.EstUnitPrice = item.EstUnitPrice
		}
		if merged.ID == "" {
			merged.ID = item.ID
		}
		out[idx] = merged
	}

	return out
}

// PlanItems computes the create/update/delete sets. Desired rows whose id
// matches an existing row, or whose material matches an existing row when no
// id is given, become updates against that row's identity; the rest become
// creates. Existing rows absent from the aggregated desired set are deleted.
func PlanItems(existing, desired []RequisitionItem) ItemPlan {
	aggregated := AggregateItems(desired)

	byID := make(map[string]RequisitionItem, len(existing))
	byMaterial := make(map[string]RequisitionItem, len(existing))
	for _, e := range existing {
		byID[e.ID] = e
		byMaterial[e.MaterialID] = e
	}

	var plan ItemPlan
	keptMaterials := make(map[string]bool, len(aggregated))

	for _, want := range aggregated {
		keptMaterials[want.MaterialID] = true

		if want.ID != "" {
			if current, ok := byID[want.ID]; ok {
				want.RequisitionID = current.RequisitionID
				plan.ToUpdate = append(plan.ToUpdate, want)
				continue
			}
		}
		if current, ok := byMaterial[want.MaterialID]; ok {
			// Stale or absent id: adopt the existing row's identity.
			want.ID = current.ID
			want.RequisitionID = current.RequisitionID
			plan.ToUpdate = append(plan.ToUpdate, want)
			continue
		}

		want.ID = ""
		plan.ToCreate = append(plan.ToCreate, want)
	}

	for _, e := range existing {
		if !keptMaterials[e.MaterialID] {
			plan.ToDelete = append(plan.ToDelete, e)
		}
	}
	sort.Slice(plan.ToDelete, func(i, j int) bool {
		return plan.ToDelete[i].MaterialID < plan.ToDelete[j].MaterialID
	})

	return plan
}

// applyItemPlan issues the plan sequentially: deletes, updates, creates.
// Each row's success or failure is independently observable; failures are
// collected into a PartialFailureError keyed by material id so the caller
// can retry only the gap.
func applyItemPlan(
	ctx context.Context,
	store RequisitionStore,
	requisitionID string,
	newItemID func() string,
	plan ItemPlan,
) error {
	var failed []workflow.ItemFailure
	succeeded := 0

	for _, item := range plan.ToDelete {
		if err := store.DeleteRequisitionItem(ctx, item.ID); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: item.MaterialID, Err: err})
			continue
		}
		succeeded++
	}

	for _, item := range plan.ToUpdate {
		item.RequisitionID = requisitionID
		if err := store.UpdateRequisitionItem(ctx, item); err != nil {
			failed = append(failed, workflow.ItemFailure{Key: item.MaterialID, Err: err})
			continue
		}
		succeeded++
	}

	for _, item := range plan.ToCreate {
		item.RequisitionID = requisitionID

		// Recheck: a concurrent writer may have inserted this material since
		// the plan was computed. Fall back to update against its row.
		current, err := store.GetRequisitionItemByMaterial(ctx, requisitionID, item.MaterialID)
		switch {
		case err == nil:
			item.ID = current.ID
			err = store.UpdateRequisitionItem(ctx, item)
		case errors.Is(err, workflow.ErrNotFound):
			item.ID = newItemID()
			err = store.CreateRequisitionItem(ctx, item)
		}
		if err != nil {
			failed = append(failed, workflow.ItemFailure{Key: item.MaterialID, Err: err})
			continue
		}
		succeeded++
	}

	if len(failed) > 0 {
		return &workflow.PartialFailureError{Op: "apply requisition items", Succeeded: succeeded, Failed: failed}
	}
	return nil
}
