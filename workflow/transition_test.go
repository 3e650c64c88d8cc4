package workflow_test

import (
	"errors"
	"testing"

	"github.com/warp/procurement-engine/workflow"
)

func docTable() map[workflow.Kind]workflow.Table {
	return map[workflow.Kind]workflow.Table{
		"document": {
			"draft":     {"review", "cancelled"},
			"review":    {"published", "draft"},
			"published": {},
		},
	}
}

func TestCanTransition(t *testing.T) {
	v := workflow.NewValidator(docTable())

	// GIVEN: draft -> review is an edge in the table
	// WHEN: Checking legality
	// THEN: Allowed
	if !v.CanTransition("document", "draft", "review") {
		t.Error("expected draft -> review to be allowed")
	}

	// Skipping a state is not allowed even if the target is reachable later.
	if v.CanTransition("document", "draft", "published") {
		t.Error("expected draft -> published to be rejected")
	}

	// Unknown kinds allow nothing.
	if v.CanTransition("unknown", "draft", "review") {
		t.Error("expected unknown kind to reject every edge")
	}
}

func TestEnforceReturnsStructuredError(t *testing.T) {
	v := workflow.NewValidator(docTable())

	err := v.Enforce("document", "doc-1", "published", "draft")
	if err == nil {
		t.Fatal("expected error for edge out of a terminal state")
	}
	if !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	var ite *workflow.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %T", err)
	}
	if ite.EntityID != "doc-1" || ite.From != "published" || ite.To != "draft" {
		t.Errorf("error context incomplete: %+v", ite)
	}
}

func TestEnforceAllowsLegalEdge(t *testing.T) {
	v := workflow.NewValidator(docTable())
	if err := v.Enforce("document", "doc-1", "review", "draft"); err != nil {
		t.Errorf("expected review -> draft to pass, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	v := workflow.NewValidator(docTable())

	// Empty edge list and absence from the table both mean terminal.
	if !v.Terminal("document", "published") {
		t.Error("published should be terminal")
	}
	if !v.Terminal("document", "cancelled") {
		t.Error("cancelled should be terminal")
	}
	if v.Terminal("document", "draft") {
		t.Error("draft should not be terminal")
	}
}

func TestErrorClassification(t *testing.T) {
	v := workflow.NewValidator(docTable())
	err := v.Enforce("document", "doc-1", "draft", "published")

	if !workflow.IsClientError(err) {
		t.Error("invalid transition should classify as a client error")
	}
	if workflow.IsRetryable(err) {
		t.Error("invalid transition must never be retryable")
	}
}
