package app

import "fmt"

// DomainError is an API-visible failure. It carries the HTTP status and the
// machine-readable code the JSON error body surfaces; mapError unwraps it
// from handler errors with errors.As.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
