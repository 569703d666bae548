package billing

import "errors"

var (
	ErrUnknownPlan  = errors.New("unknown subscription plan")
	ErrUserNotFound = errors.New("user not found")
)
