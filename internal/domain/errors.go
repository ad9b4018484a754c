package domain

import "fmt"

// Error types for consistent error handling across the BFA.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an upstream API call
// (AeroDataBox, Aviapages, AirNav, LLM providers, Supabase...).
type ErrExternalService struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ErrExternalService) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("external service error [%s] status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates an upstream API answered 429. It is surfaced
// to the caller as-is, never retried.
type ErrRateLimited struct {
	Service    string
	RetryAfter string
}

func (e *ErrRateLimited) Error() string {
	if e.RetryAfter != "" {
		return fmt.Sprintf("rate limited by %s (retry after %s)", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.Service)
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or invalid token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the operation clashes with the current state
// (e.g. converting a lead that is already converted).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrNotConfigured indicates an optional integration is disabled.
type ErrNotConfigured struct {
	Integration string
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("%s is not configured", e.Integration)
}

// ErrQueueFull indicates the capture queue reached its configured bound.
type ErrQueueFull struct {
	Max int
}

func (e *ErrQueueFull) Error() string {
	return fmt.Sprintf("capture queue is full (%d items)", e.Max)
}
