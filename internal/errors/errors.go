// Package errors provides centralized error definitions and error handling utilities
// for the workertiers pipeline. It defines domain-specific errors, semantic error
// types, sentinel errors, and classification helpers used by the top-level driver
// to decide how a failed run is reported.
//
// # Error Types
//
// Domain-specific errors represent failures of a pipeline subsystem:
//   - DataSourceError: the attendance/user source is unreachable or returned malformed data
//   - ModelStateError: predict/export before fit, or a model artifact is missing or corrupt
//   - PipelineError: a wrapper that names the pipeline stage a failure happened in
//
// Semantic errors represent common conditions:
//   - ValidationError: invalid input (empty worker set, too few workers for K, NaN features)
//
// # Usage
//
//	err := errors.NewDataSourceError("fetch attendance", cause).WithSource("firestore")
//
//	if errors.Is(err, errors.ErrModelNotTrained) { ... }
//
//	var vErr *errors.ValidationError
//	if errors.As(err, &vErr) { ... }
//
//	stage := errors.StageOf(err) // "train", "export", ...
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Data source sentinel errors
var (
	// ErrSourceUnavailable indicates that the data source could not be reached.
	ErrSourceUnavailable = New("data source unavailable")
	// ErrSourceMalformed indicates that the data source returned data that could not be mapped.
	ErrSourceMalformed = New("data source returned malformed data")
	// ErrUnknownSource indicates that the configured source kind is not supported.
	ErrUnknownSource = New("unknown data source kind")
)

// Validation sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrEmptyWorkers indicates that no workers were available for analysis.
	ErrEmptyWorkers = New("no workers to analyze")
	// ErrEmptyAttendance indicates that no attendance records were available.
	ErrEmptyAttendance = New("no attendance records")
	// ErrInsufficientWorkers indicates fewer distinct workers than clusters.
	ErrInsufficientWorkers = New("insufficient distinct workers for cluster count")
	// ErrNonFiniteFeature indicates a NaN or infinite feature value.
	ErrNonFiniteFeature = New("non-finite feature value")
	// ErrFeatureShape indicates a feature row with the wrong number of columns.
	ErrFeatureShape = New("feature row has wrong dimension")
)

// Model state sentinel errors
var (
	// ErrModelNotTrained indicates predict or export was attempted before fit.
	ErrModelNotTrained = New("model not trained")
	// ErrArtifactMissing indicates that a required model artifact file does not exist.
	ErrArtifactMissing = New("model artifact missing")
	// ErrArtifactCorrupt indicates that a model artifact could not be decoded or failed its checksum.
	ErrArtifactCorrupt = New("model artifact corrupt")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TierError is the base interface for all workertiers errors.
type TierError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if rerunning the same step may succeed.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatPrefixed renders "<prefix> [k=v, ...]: message: cause".
func formatPrefixed(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// DataSourceError represents a failure to fetch or map records from the
// attendance/user data source.
//
// Example:
//
//	err := errors.NewDataSourceError("query attendance", cause).
//		WithSource("postgres").WithCollection("attendance")
//	fmt.Println(err) // "data source error [source=postgres, collection=attendance]: query attendance: ..."
type DataSourceError struct {
	baseError
	Source     string
	Collection string
}

// NewDataSourceError creates a new DataSourceError. Source failures are
// usually transient network or credential problems, so they are retryable.
func NewDataSourceError(message string, cause error) *DataSourceError {
	return &DataSourceError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithSource adds the source kind (json, postgres, firestore) to the error context.
func (e *DataSourceError) WithSource(source string) *DataSourceError {
	e.Source = source
	return e
}

// WithCollection adds the collection or table name to the error context.
func (e *DataSourceError) WithCollection(collection string) *DataSourceError {
	e.Collection = collection
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *DataSourceError) WithRetryable(r bool) *DataSourceError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *DataSourceError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.Collection != "" {
		parts = append(parts, fmt.Sprintf("collection=%s", e.Collection))
	}
	return formatPrefixed("data source error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *DataSourceError) Is(target error) bool {
	if _, ok := target.(*DataSourceError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ModelStateError represents an operation attempted against a model that is
// not in the required state, or a persisted artifact that cannot be used.
//
// Example:
//
//	err := errors.NewModelStateError("load scaler", errors.ErrArtifactMissing).
//		WithArtifact("scaler").WithPath("models/scaler.json")
type ModelStateError struct {
	baseError
	Artifact string
	Path     string
}

// NewModelStateError creates a new ModelStateError.
func NewModelStateError(message string, cause error) *ModelStateError {
	return &ModelStateError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithArtifact names the artifact involved (scaler, centroids, metadata, graph).
func (e *ModelStateError) WithArtifact(name string) *ModelStateError {
	e.Artifact = name
	return e
}

// WithPath adds the artifact path to the error context.
func (e *ModelStateError) WithPath(path string) *ModelStateError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ModelStateError) Error() string {
	var parts []string
	if e.Artifact != "" {
		parts = append(parts, fmt.Sprintf("artifact=%s", e.Artifact))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return formatPrefixed("model state error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ModelStateError) Is(target error) bool {
	if _, ok := target.(*ModelStateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PipelineError records which pipeline stage a failure happened in. The
// wrapped cause keeps its own type, so errors.As still finds the underlying
// DataSourceError, ValidationError or ModelStateError.
//
// Example:
//
//	err := errors.NewPipelineError("train", cause).WithRunID(runID)
//	fmt.Println(err) // "pipeline error [stage=train, run=...]: stage failed: ..."
type PipelineError struct {
	baseError
	Stage string
	RunID string
}

// NewPipelineError creates a new PipelineError for the given stage.
// Severity, retryability and user-facing flags are inherited from the cause
// when it is a TierError. Any other cause, cancellation aside, is not
// user-facing.
func NewPipelineError(stage string, cause error) *PipelineError {
	pe := &PipelineError{
		baseError: baseError{
			message:    "stage failed",
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Stage: stage,
	}
	var te TierError
	switch {
	case As(cause, &te):
		pe.severity = te.Severity()
		pe.retryable = te.IsRetryable()
		pe.userFacing = te.IsUserFacing()
	case cause != nil && !Is(cause, context.Canceled) && !Is(cause, context.DeadlineExceeded):
		pe.userFacing = false
	}
	return pe
}

// WithRunID adds the training run identifier to the error context.
func (e *PipelineError) WithRunID(id string) *PipelineError {
	e.RunID = id
	return e
}

// Error returns the formatted error message.
func (e *PipelineError) Error() string {
	var parts []string
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", e.RunID))
	}
	return formatPrefixed("pipeline error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *PipelineError) Is(target error) bool {
	if _, ok := target.(*PipelineError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input to a pipeline step.
//
// Example:
//
//	err := errors.NewValidationError("feature value is NaN").
//		WithField("punctuality_score").WithRow(3).WithCause(errors.ErrNonFiniteFeature)
type ValidationError struct {
	baseError
	Field string
	Value any
	Row   int
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Row: -1, // -1 indicates not set
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithRow adds the offending row index to the error context.
func (e *ValidationError) WithRow(row int) *ValidationError {
	e.Row = row
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Row >= 0 {
		parts = append(parts, fmt.Sprintf("row=%d", e.Row))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatPrefixed("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te TierError
	if As(err, &te) {
		return te.IsRetryable()
	}
	return Is(err, ErrSourceUnavailable)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var te TierError
	if As(err, &te) {
		return te.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TierError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var te TierError
	if As(err, &te) {
		return te.Severity()
	}
	return SeverityError
}

// StageOf returns the pipeline stage recorded on err, or "" if err does not
// wrap a PipelineError.
func StageOf(err error) string {
	var pe *PipelineError
	if As(err, &pe) {
		return pe.Stage
	}
	return ""
}

// Kind returns a short name for the error taxonomy class of err:
// "data_source", "validation", "model_state" or "internal".
func Kind(err error) string {
	var ds *DataSourceError
	var v *ValidationError
	var ms *ModelStateError
	switch {
	case err == nil:
		return ""
	case As(err, &ds):
		return "data_source"
	case As(err, &v):
		return "validation"
	case As(err, &ms):
		return "model_state"
	default:
		return "internal"
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
