package shared

import "errors"

// Sentinel errors for the engine's failure taxonomy. Repositories wrap these
// with context via fmt.Errorf("...: %w", Err...) so callers can match them
// with errors.Is and map them to a machine-readable code with Kind.
var (
	// ErrNotFound signals a referenced day, slot, preparation or list item
	// that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden signals an attempt to touch an entity owned by another
	// user.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidReference signals a structurally impossible link, e.g. moving
	// a slot onto a day that belongs to a different user.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrInvalidStateTransition signals an illegal confirm or challenge
	// transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrRecipeNotFound signals that the recipe catalog could not resolve a
	// recipe id.
	ErrRecipeNotFound = errors.New("recipe not found")

	// ErrNoConversionPath signals a missing edge in the measure conversion
	// table.
	ErrNoConversionPath = errors.New("no conversion path")
)

// Kind maps an error to its machine-readable code, or "internal" when the
// error does not belong to the taxonomy.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, ErrRecipeNotFound):
		return "recipe_not_found"
	case errors.Is(err, ErrNoConversionPath):
		return "no_conversion_path"
	default:
		return "internal"
	}
}
