package segmentation

import "errors"

// Sentinel errors for the segmentation service layer.
var (
	ErrNotFound    = errors.New("segment not found")
	ErrNameMissing = errors.New("segment name is required")
	ErrInvalidRule = errors.New("invalid segment rule")
)
