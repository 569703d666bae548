package generation

import "errors"

var (
	ErrNotFound            = errors.New("generation not found")
	ErrInvalidDanceType    = errors.New("unknown dance type")
	ErrInvalidImageURL     = errors.New("pet image URL is required")
	ErrPromptGeneration    = errors.New("prompt generation failed")
	ErrRenderSubmission    = errors.New("render submission failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// InsufficientCreditsError carries the shortfall so the handler can
// tell the user how many credits they are missing.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return "insufficient credits"
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

func (e *InsufficientCreditsError) Shortfall() int {
	return e.Required - e.Available
}
