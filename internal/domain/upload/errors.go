package upload

import "errors"

var (
	ErrInvalidImage = errors.New("file is not a valid image")
	ErrFileTooLarge = errors.New("file too large")
)
