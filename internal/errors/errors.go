package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrInvalidConfig is returned when the target configuration cannot be used
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput is returned when an input table or request is malformed
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotFinished is returned when results are requested for a job that is still running
	ErrJobNotFinished = errors.New("job not finished")
)

// ConfigError describes a configuration problem. Field names the offending key
// (e.g. "targets[2].fuzzy" or "negation.patterns[0]") when known.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, msg)
	}
	return fmt.Sprintf("config error: %s", msg)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// WrapConfigError creates a ConfigError that keeps the underlying cause
func WrapConfigError(field, message string, err error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Err: err}
}

// InputError represents a malformed note table or request payload
type InputError struct {
	Source  string
	Message string
}

func (e *InputError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("input error in '%s': %s", e.Source, e.Message)
	}
	return fmt.Sprintf("input error: %s", e.Message)
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewInputError creates a new InputError
func NewInputError(source, message string) *InputError {
	return &InputError{Source: source, Message: message}
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// JobNotFinishedError is returned when a job's results are requested before it completed
type JobNotFinishedError struct {
	JobID  string
	Status string
}

func (e *JobNotFinishedError) Error() string {
	return fmt.Sprintf("job with ID '%s' has no results (status: %s)", e.JobID, e.Status)
}

func (e *JobNotFinishedError) Is(target error) bool {
	return target == ErrJobNotFinished
}

// NewJobNotFinishedError creates a new JobNotFinishedError
func NewJobNotFinishedError(jobID, status string) *JobNotFinishedError {
	return &JobNotFinishedError{JobID: jobID, Status: status}
}
