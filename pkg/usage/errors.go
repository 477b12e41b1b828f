package usage

import "errors"

var (
	ErrFailedToRecordUsage = errors.New("failed to record feature usage")
	ErrFailedToReadUsage   = errors.New("failed to read feature usage")
)
