package broker

import (
	"errors"
	"fmt"

	"github.com/jouyai/dashboard-kel/internal/store"
)

var (
	// ErrNotFound means the referenced session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyOwned means a claim (or reply) lost the race to another
	// operator. It is an expected outcome, not a system failure: callers
	// refresh their view to show the actual owner.
	ErrAlreadyOwned = errors.New("session claimed by another operator")

	// ErrValidation means the request was rejected before any store call.
	ErrValidation = errors.New("validation failed")

	// ErrStoreUnavailable means the backing store could not be reached.
	// Operations are idempotent or conditional, so manual retry is safe.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// storeErr translates persistence errors into the broker taxonomy.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
