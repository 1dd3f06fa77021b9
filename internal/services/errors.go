package services

import (
	"errors"
	"fmt"

	"heartline/internal/store"
)

var (
	// ErrIdentityUnresolvable means the request carried no usable identity signal
	ErrIdentityUnresolvable = errors.New("identity could not be resolved from request")
	// ErrPersonaNotFound means the requested persona id is not in the catalogue
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrQuotaExhausted is matched by *QuotaExhaustedError through errors.Is
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrGenerationFailed wraps every generation backend failure
	ErrGenerationFailed = errors.New("generation backend failed")
	// ErrRateLimited is returned when the local backend limiter rejects a call
	ErrRateLimited = errors.New("generation backend rate limited")
	// ErrInvalidAmount is returned for non-positive quota amounts
	ErrInvalidAmount = store.ErrInvalidAmount
	// ErrInvalidPreference is returned for unknown gender filters
	ErrInvalidPreference = errors.New("invalid persona gender preference")
	// ErrInvalidMessage is returned for empty chat text
	ErrInvalidMessage = errors.New("message text is required")
)

// QuotaExhaustedError reports a failed deduction together with the untouched balance
type QuotaExhaustedError struct {
	Key       string
	Requested int
	Remaining int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted: requested %d, remaining %d", e.Requested, e.Remaining)
}

// Is lets errors.Is(err, ErrQuotaExhausted) match
func (e *QuotaExhaustedError) Is(target error) bool {
	return target == ErrQuotaExhausted
}
