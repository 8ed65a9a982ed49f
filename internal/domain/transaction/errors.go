package transaction

import "errors"

var (
	ErrNotActive             = errors.New("transaction is not active")
	ErrInvalidIsolationLevel = errors.New("invalid isolation level")
)
