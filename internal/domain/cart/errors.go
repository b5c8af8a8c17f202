// internal/domain/cart/errors.go
package cart

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned before any store access when a request is malformed
	ErrInvalidInput = errors.New("invalid input")
	// ErrItemNotFound is returned when a quantity update matches no line item
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrStoreUnavailable wraps any failure talking to the key-value store
	ErrStoreUnavailable = errors.New("cart store unavailable")
)

// DecodeError reports a stored cart value that could not be parsed.
// It never leaves the package: callers see an empty cart instead.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode cart %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
