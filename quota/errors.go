package quota

import "errors"

var (
	// ErrInvalidUnitBudget is returned when the unit budget is not positive.
	ErrInvalidUnitBudget = errors.New("quota: max units must be greater than 0")

	// ErrInvalidCallBudget is returned when the call budget is not positive.
	ErrInvalidCallBudget = errors.New("quota: max calls must be greater than 0")

	// ErrInvalidWindow is returned when the window is not positive.
	ErrInvalidWindow = errors.New("quota: window must be greater than 0")
)
