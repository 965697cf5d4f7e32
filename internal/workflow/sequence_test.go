package workflow_test

import (
	"errors"
	"reflect"
	"testing"

	"sellconfig/internal/apperr"
	"sellconfig/internal/workflow"
)

func orders(steps []workflow.Step) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Order
	}
	return out
}

func keys(steps []workflow.Step) []workflow.StepKey {
	out := make([]workflow.StepKey, len(steps))
	for i, s := range steps {
		out[i] = s.Key
	}
	return out
}

func threeSteps(t *testing.T) *workflow.Sequence {
	t.Helper()
	var q workflow.Sequence
	for _, k := range []workflow.StepKey{workflow.StepVariant, workflow.StepDefects, workflow.StepSummary} {
		if err := q.AddStep(k, string(k)); err != nil {
			t.Fatalf("add %s: %v", k, err)
		}
	}
	return &q
}

func TestAddStepAppendsWithNextOrder(t *testing.T) {
	q := threeSteps(t)
	if got := orders(q.Steps()); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("orders = %v", got)
	}
	if err := q.AddStep("warranty", "Warranty"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	if q.Len() != 3 {
		t.Fatalf("failed add changed length to %d", q.Len())
	}
}

func TestRemoveStepRenumbers(t *testing.T) {
	q := threeSteps(t)
	if err := q.RemoveStep(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	steps := q.Steps()
	if got := orders(steps); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("orders = %v", got)
	}
	if got := keys(steps); !reflect.DeepEqual(got, []workflow.StepKey{workflow.StepVariant, workflow.StepSummary}) {
		t.Fatalf("keys = %v", got)
	}
	for _, idx := range []int{-1, 2, 99} {
		if err := q.RemoveStep(idx); !errors.Is(err, apperr.ErrIndexOutOfRange) {
			t.Fatalf("remove %d: expected index out of range, got %v", idx, err)
		}
	}
}

func TestMoveStepBoundaryIsNoop(t *testing.T) {
	var q workflow.Sequence
	if err := q.AddStep(workflow.StepVariant, "Select Variant"); err != nil {
		t.Fatal(err)
	}
	before := q.Steps()
	if err := q.MoveStep(0, workflow.Up); err != nil {
		t.Fatalf("move up at top: %v", err)
	}
	if !reflect.DeepEqual(before, q.Steps()) {
		t.Fatalf("list changed: %v -> %v", before, q.Steps())
	}

	q3 := threeSteps(t)
	before = q3.Steps()
	if err := q3.MoveStep(2, workflow.Down); err != nil {
		t.Fatalf("move down at bottom: %v", err)
	}
	if !reflect.DeepEqual(before, q3.Steps()) {
		t.Fatalf("list changed at bottom")
	}
}

func TestMoveStepSwapsAndRenumbers(t *testing.T) {
	q := threeSteps(t)
	if err := q.MoveStep(2, workflow.Up); err != nil {
		t.Fatal(err)
	}
	steps := q.Steps()
	if got := keys(steps); !reflect.DeepEqual(got, []workflow.StepKey{workflow.StepVariant, workflow.StepSummary, workflow.StepDefects}) {
		t.Fatalf("keys = %v", got)
	}
	if got := orders(steps); !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("orders = %v", got)
	}
	if err := q.MoveStep(5, workflow.Up); !errors.Is(err, apperr.ErrIndexOutOfRange) {
		t.Fatalf("expected index out of range, got %v", err)
	}
	if err := q.MoveStep(0, "sideways"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
}

func TestUpdateStep(t *testing.T) {
	q := threeSteps(t)
	if err := q.UpdateStep(1, workflow.FieldTitle, "Check Defects"); err != nil {
		t.Fatal(err)
	}
	if err := q.UpdateStep(1, workflow.FieldKey, "accessories"); err != nil {
		t.Fatal(err)
	}
	got := q.Steps()[1]
	if got.Key != workflow.StepAccessories || got.Title != "Check Defects" || got.Order != 2 {
		t.Fatalf("unexpected step %+v", got)
	}
	if err := q.UpdateStep(1, workflow.FieldKey, "payment"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	if q.Steps()[1].Key != workflow.StepAccessories {
		t.Fatalf("rejected update mutated the step")
	}
	if err := q.UpdateStep(1, "order", "9"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum for field, got %v", err)
	}
	if err := q.UpdateStep(3, workflow.FieldTitle, "x"); !errors.Is(err, apperr.ErrIndexOutOfRange) {
		t.Fatalf("expected index out of range, got %v", err)
	}
}

func TestStepsReturnsCopy(t *testing.T) {
	q := threeSteps(t)
	steps := q.Steps()
	steps[0].Title = "changed"
	if q.Steps()[0].Title == "changed" {
		t.Fatalf("Steps exposed internal slice")
	}
}

func TestNewSequence(t *testing.T) {
	q, err := workflow.NewSequence([]workflow.Step{
		{Key: workflow.StepSummary, Title: "Summary", Order: 2},
		{Key: workflow.StepVariant, Title: "Variant", Order: 1},
	})
	if err != nil {
		t.Fatalf("new sequence: %v", err)
	}
	if got := keys(q.Steps()); !reflect.DeepEqual(got, []workflow.StepKey{workflow.StepVariant, workflow.StepSummary}) {
		t.Fatalf("keys = %v", got)
	}

	if _, err := workflow.NewSequence([]workflow.Step{{Key: workflow.StepVariant, Order: 1}, {Key: workflow.StepSummary, Order: 3}}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for gap, got %v", err)
	}
	if _, err := workflow.NewSequence([]workflow.Step{{Key: "payment", Order: 1}}); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	if _, err := workflow.NewSequence(workflow.DefaultSteps()); err != nil {
		t.Fatalf("default steps invalid: %v", err)
	}
}

func TestOffersOptions(t *testing.T) {
	if !workflow.OffersOptions("defects") || workflow.OffersOptions("summary") || workflow.OffersOptions("bogus") {
		t.Fatalf("unexpected OffersOptions result")
	}
}
