package liquidation

import (
	"testing"

	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

func change(block uint64, amount string) model.ClassifiedEvent {
	return model.ClassifiedEvent{
		BlockNumber:  block,
		SignedAmount: decimal.RequireFromString(amount),
	}
}

func TestDetectNoLiquidation(t *testing.T) {
	d := NewDetector(DefaultEpsilon)

	state := d.Detect([]model.ClassifiedEvent{
		change(1, "10"),
		change(2, "-3"),
		change(3, "5"),
	})

	if state.IsLiquidated {
		t.Fatalf("expected no liquidation, got reset at %v", state.ResetBlock)
	}
	if state.ResetBlock != nil {
		t.Fatalf("reset block should be absent")
	}
}

func TestDetectResetAtFullUnwind(t *testing.T) {
	d := NewDetector(DefaultEpsilon)

	state := d.Detect([]model.ClassifiedEvent{
		change(1, "10"),
		change(2, "-10"),
		change(3, "5"),
	})

	if !state.IsLiquidated {
		t.Fatalf("expected liquidation")
	}
	if state.ResetBlock == nil || *state.ResetBlock != 2 {
		t.Fatalf("reset block mismatch: %v", state.ResetBlock)
	}
}

func TestDetectLastResetWins(t *testing.T) {
	d := NewDetector(DefaultEpsilon)

	state := d.Detect([]model.ClassifiedEvent{
		change(1, "10"),
		change(2, "-10"),
		change(3, "5"),
		change(4, "-5"),
		change(5, "3"),
	})

	if !state.IsLiquidated {
		t.Fatalf("expected liquidation")
	}
	if state.ResetBlock == nil || *state.ResetBlock != 4 {
		t.Fatalf("expected most recent reset at block 4, got %v", state.ResetBlock)
	}
}

func TestDetectEpsilonAbsorbsDust(t *testing.T) {
	d := NewDetector(DefaultEpsilon)

	// Residual dust of 0.005 still counts as a full unwind.
	state := d.Detect([]model.ClassifiedEvent{
		change(1, "10"),
		change(2, "-9.995"),
	})

	if !state.IsLiquidated {
		t.Fatalf("expected dust balance to trigger liquidation")
	}
	if state.ResetBlock == nil || *state.ResetBlock != 2 {
		t.Fatalf("reset block mismatch: %v", state.ResetBlock)
	}
}

func TestDetectSortsInput(t *testing.T) {
	d := NewDetector(DefaultEpsilon)

	state := d.Detect([]model.ClassifiedEvent{
		change(3, "5"),
		change(1, "10"),
		change(2, "-10"),
	})

	if !state.IsLiquidated || state.ResetBlock == nil || *state.ResetBlock != 2 {
		t.Fatalf("unsorted input should replay in block order: %+v", state)
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := NewDetector(DefaultEpsilon)
	events := []model.ClassifiedEvent{
		change(1, "10"),
		change(2, "-10"),
		change(3, "5"),
	}

	first := d.Detect(events)
	second := d.Detect(events)

	if first.IsLiquidated != second.IsLiquidated {
		t.Fatalf("liquidation flag not stable")
	}
	if *first.ResetBlock != *second.ResetBlock {
		t.Fatalf("reset block not stable: %d != %d", *first.ResetBlock, *second.ResetBlock)
	}
}
