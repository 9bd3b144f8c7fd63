// Package apperr defines the error taxonomy shared across services.
// Callers test with errors.As to map failures onto API responses.
package apperr

import "fmt"

// NotFoundError indicates a requested entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func NotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError indicates the request or an invariant check failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigurationError indicates invalid or missing runtime configuration,
// such as an unknown sector strategy or a malformed terms rule file.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Key, e.Reason)
}

func Configuration(key, reason string) *ConfigurationError {
	return &ConfigurationError{Key: key, Reason: reason}
}

// ConflictError indicates a state conflict, such as attempting to
// activate a second credit limit for a buyer that already has one.
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Entity, e.Reason)
}

func Conflict(entity, reason string) *ConflictError {
	return &ConflictError{Entity: entity, Reason: reason}
}
