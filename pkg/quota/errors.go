package quota

import "errors"

var (
	ErrInvalidCatalog      = errors.New("invalid quota catalog")
	ErrFailedToLoadCatalog = errors.New("failed to load quota catalog")
)
