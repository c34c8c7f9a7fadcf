package api

import (
	"errors"
	"fmt"
)

// Error codes returned by the API that callers commonly branch on.
const (
	CodeNotFound     = 1
	CodeInvalidToken = 100
)

// Error is a failure reported by the API itself, as opposed to a transport
// failure.
type Error struct {
	Method  string
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ipernity: %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// IsCode reports whether err is an API Error with the given code.
func IsCode(err error, code int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
