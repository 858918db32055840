package channel

import (
	"errors"
	"fmt"
)

// Error kinds shared across the pipeline. Downstream packages wrap these so
// callers can dispatch with errors.Is regardless of which component failed.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication error")
	ErrConnection     = errors.New("connection error")
	ErrToolCall       = errors.New("tool call error")
	ErrProviderSend   = errors.New("provider send error")
	ErrNotFound       = errors.New("not found")
)

// ParseError describes a payload that could not be normalized
type ParseError struct {
	Channel Kind
	Field   string
	Reason  string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s payload invalid: field %s: %s", e.Channel, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s payload invalid: %s", e.Channel, e.Reason)
}

// Is makes ParseError match ErrValidation for errors.Is dispatch
func (e *ParseError) Is(target error) bool {
	return target == ErrValidation
}
