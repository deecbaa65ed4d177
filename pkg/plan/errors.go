package plan

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrInvalidConfiguration = errors.New("invalid plan configuration")
	ErrFailedToLoad         = errors.New("failed to load plan catalog")
)
