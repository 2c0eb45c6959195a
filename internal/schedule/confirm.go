package schedule

import (
	"fmt"

	"mealweek/internal/shared"
)

// ValidateConfirmTransition checks a confirm-state change. The machine is
// one-way: Unset is the only valid source, ConfirmedYes and ConfirmedNo the
// only valid targets. Moving a slot does not reset its confirmation.
func ValidateConfirmTransition(from, to ConfirmStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("confirm state out of range (%d -> %d): %w", from, to, shared.ErrInvalidStateTransition)
	}
	if to == ConfirmUnset {
		return fmt.Errorf("cannot transition back to unset: %w", shared.ErrInvalidStateTransition)
	}
	if from != ConfirmUnset {
		return fmt.Errorf("confirm state %s is terminal: %w", from, shared.ErrInvalidStateTransition)
	}
	return nil
}
