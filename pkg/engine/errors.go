package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, automation server restarting, 5xx responses.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting by the cloud API.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid parameters, missing stack output, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes used across the controller.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeUnknownType      = "UNKNOWN_TYPE"
	ErrCodePolicyDenied     = "POLICY_DENIED"
	ErrCodeRetriesExhausted = "RETRIES_EXHAUSTED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Sentinel errors for lookup and resolution faults.
var (
	// ErrOutputNotFound is returned when a stack has no output with the requested key.
	ErrOutputNotFound = errors.New("stack output not found")

	// ErrParameterNotFound is returned when a stack has no parameter with the requested key.
	ErrParameterNotFound = errors.New("stack parameter not found")

	// ErrStackNotFound is returned when the cloud API reports the stack does not exist.
	ErrStackNotFound = errors.New("stack not found")

	// ErrKeyNotFound is returned by a ParameterStore for a missing section key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrUnknownParameterType is returned when no validator is registered for a parameter type.
	ErrUnknownParameterType = errors.New("unknown parameter type")

	// ErrPluginNotFound is returned when the catalog has no plugin with the requested id.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrJobNotFound is returned when a plugin declares no job with the requested name.
	ErrJobNotFound = errors.New("job not found")
)

// ControllerError is a classified error carrying the remote service and target it concerns.
type ControllerError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Service names the remote service involved ("cloudformation", "jenkins", "ec2").
	Service string `json:"service,omitempty"`

	// Target is the stack, job or URL the call was about.
	Target string `json:"target,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ControllerError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Class)
	if e.Service != "" {
		prefix = fmt.Sprintf("[%s/%s]", e.Class, e.Service)
	}
	msg := e.Message
	if e.Target != "" {
		msg = fmt.Sprintf("%s (target=%s)", msg, e.Target)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s", prefix, msg, e.Err.Error())
	}
	return fmt.Sprintf("%s %s", prefix, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ControllerError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *ControllerError) Is(target error) bool {
	t, ok := target.(*ControllerError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *ControllerError {
	return &ControllerError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *ControllerError {
	return &ControllerError{Class: ErrorClassThrottled, Message: message, Err: err, Code: ErrCodeRateLimited}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *ControllerError {
	return &ControllerError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithService records the remote service involved.
func (e *ControllerError) WithService(service string) *ControllerError {
	e.Service = service
	return e
}

// WithTarget records the stack, job or URL involved.
func (e *ControllerError) WithTarget(target string) *ControllerError {
	e.Target = target
	return e
}

// WithCode adds an error code to an error.
func (e *ControllerError) WithCode(code string) *ControllerError {
	e.Code = code
	return e
}

// ClassOf returns the class of err, or ErrorClassPermanent for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *ControllerError
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassPermanent
}

// CodeOf returns the code of err, or an empty string.
func CodeOf(err error) string {
	var e *ControllerError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *ControllerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *ControllerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *ControllerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// IsNotFound reports whether err is a lookup fault of any kind.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrOutputNotFound) || errors.Is(err, ErrParameterNotFound) ||
		errors.Is(err, ErrStackNotFound) || errors.Is(err, ErrKeyNotFound) {
		return true
	}
	return CodeOf(err) == ErrCodeNotFound
}
