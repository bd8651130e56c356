// Package domain defines core types, interfaces, and errors for the warehouse query engine.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UnknownDimensionError indicates a group-by name that is not registered for a realm.
type UnknownDimensionError struct {
	Realm     string
	Dimension string
}

func (e *UnknownDimensionError) Error() string {
	return fmt.Sprintf("realm %q has no dimension %q", e.Realm, e.Dimension)
}

// UnknownStatisticError indicates a statistic name that is not registered for a realm.
type UnknownStatisticError struct {
	Realm     string
	Statistic string
}

func (e *UnknownStatisticError) Error() string {
	return fmt.Sprintf("realm %q has no statistic %q", e.Realm, e.Statistic)
}

// UnsupportedStatisticError indicates a statistic that exists but is not
// permitted for the selected dimension.
type UnsupportedStatisticError struct {
	Dimension string
	Statistic string
}

func (e *UnsupportedStatisticError) Error() string {
	return fmt.Sprintf("statistic %q is not available for dimension %q", e.Statistic, e.Dimension)
}

// UnavailableGranularityError indicates a time-unit group-by that cannot be
// served at the query's aggregation unit.
type UnavailableGranularityError struct {
	Realm string
	Unit  string
}

func (e *UnavailableGranularityError) Error() string {
	return fmt.Sprintf("granularity %q is not available for realm %q", e.Unit, e.Realm)
}

// MissingDimensionError indicates an operation that requires a group-by was
// invoked before one was configured.
type MissingDimensionError struct {
	Operation string
}

func (e *MissingDimensionError) Error() string {
	return fmt.Sprintf("%s requires a group-by dimension", e.Operation)
}

// InvalidDateRangeError indicates unparsable or inverted start/end dates.
type InvalidDateRangeError struct {
	Start  string
	End    string
	Reason string
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("invalid date range %q..%q: %s", e.Start, e.End, e.Reason)
}

// InvalidPeriodError indicates an unknown aggregation unit or unparsable period timestamp.
type InvalidPeriodError struct {
	Timestamp string
	Unit      string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q for unit %q", e.Timestamp, e.Unit)
}

// DatastoreError wraps a failure reported by the relational datastore.
// The underlying error is propagated unchanged via Unwrap.
type DatastoreError struct {
	Query string
	Err   error
}

func (e *DatastoreError) Error() string {
	return fmt.Sprintf("datastore: %v", e.Err)
}

func (e *DatastoreError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownDimension creates an UnknownDimensionError.
func ErrUnknownDimension(realm, dimension string) *UnknownDimensionError {
	return &UnknownDimensionError{Realm: realm, Dimension: dimension}
}

// ErrUnknownStatistic creates an UnknownStatisticError.
func ErrUnknownStatistic(realm, statistic string) *UnknownStatisticError {
	return &UnknownStatisticError{Realm: realm, Statistic: statistic}
}

// ErrUnsupportedStatistic creates an UnsupportedStatisticError.
func ErrUnsupportedStatistic(dimension, statistic string) *UnsupportedStatisticError {
	return &UnsupportedStatisticError{Dimension: dimension, Statistic: statistic}
}

// ErrUnavailableGranularity creates an UnavailableGranularityError.
func ErrUnavailableGranularity(realm, unit string) *UnavailableGranularityError {
	return &UnavailableGranularityError{Realm: realm, Unit: unit}
}

// ErrMissingDimension creates a MissingDimensionError.
func ErrMissingDimension(operation string) *MissingDimensionError {
	return &MissingDimensionError{Operation: operation}
}

// ErrInvalidDateRange creates an InvalidDateRangeError.
func ErrInvalidDateRange(start, end, reason string) *InvalidDateRangeError {
	return &InvalidDateRangeError{Start: start, End: end, Reason: reason}
}

// ErrInvalidPeriod creates an InvalidPeriodError.
func ErrInvalidPeriod(timestamp, unit string) *InvalidPeriodError {
	return &InvalidPeriodError{Timestamp: timestamp, Unit: unit}
}

// ErrDatastore wraps err in a DatastoreError. A nil err yields nil.
func ErrDatastore(query string, err error) error {
	if err == nil {
		return nil
	}
	return &DatastoreError{Query: query, Err: err}
}
