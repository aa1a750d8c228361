package flathits

import (
	"errors"
	"fmt"

	"github.com/hupe1980/flathits/catalog"
	"github.com/hupe1980/flathits/config"
	"github.com/hupe1980/flathits/event"
	"github.com/hupe1980/flathits/filter"
	"github.com/hupe1980/flathits/selection"
	"github.com/hupe1980/flathits/table"
)

var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("flathits: configuration error")

	// ErrEmptyResult is matched by every *EmptyResultWarning.
	ErrEmptyResult = errors.New("flathits: no hits matched")
)

// ConfigurationError reports a request that cannot be satisfied as stated:
// a missing or conflicting column, an unsupported selection or a filter that
// does not fit the column type.
//
// The original underlying error can be accessed via errors.Unwrap.
type ConfigurationError struct {
	Column string
	Reason string
	cause  error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Column != "" {
		msg += fmt.Sprintf(": column %q", e.Column)
	}
	msg += ": " + e.Reason
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// EmptyResultWarning reports a filter or trim that matched no hits.
// The accompanying result is valid and empty.
type EmptyResultWarning struct {
	Operation string
	Column    string
	Filter    string
}

func (w *EmptyResultWarning) Error() string {
	return fmt.Sprintf("%s on %q (%s) matched no hits", w.Operation, w.Column, w.Filter)
}

// Is reports whether target is ErrEmptyResult.
func (w *EmptyResultWarning) Is(target error) bool { return target == ErrEmptyResult }

var configurationErrors = []struct {
	err    error
	reason string
}{
	{catalog.ErrColumnNotFound, "column not in source"},
	{catalog.ErrEmptyColumnConflict, "empty column exists in source"},
	{catalog.ErrReservedColumn, "column name is reserved for derived columns"},
	{catalog.ErrUnknownGeometry, "unknown geometry"},
	{selection.ErrUnsupportedRelation, "unsupported relation"},
	{selection.ErrMalformed, "malformed selection"},
	{filter.ErrNotOrderable, "column is not orderable"},
	{filter.ErrNotScalar, "column is not scalar"},
	{filter.ErrValueType, "value type does not match column"},
	{table.ErrColumnNotFound, "column not found"},
	{table.ErrDuplicateColumn, "duplicate column"},
	{table.ErrLengthMismatch, "length mismatch"},
	{table.ErrShape, "invalid shape"},
	{table.ErrInvalidKind, "invalid kind"},
	{table.ErrRowOutOfRange, "row out of range"},
	{event.ErrNotInteger, "event identifier is not an integer"},
	{event.ErrBadColumn, "unusable event column"},
	{config.ErrInvalid, "invalid configuration"},
}

func translateError(err error) error {
	return translateColumnError("", err)
}

// translateColumnError classifies err, attributing configuration errors to column.
func translateColumnError(column string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return err
	}
	for _, c := range configurationErrors {
		if errors.Is(err, c.err) {
			return &ConfigurationError{Column: column, Reason: c.reason, cause: err}
		}
	}
	return err
}

func configurationError(column, reason string) error {
	return &ConfigurationError{Column: column, Reason: reason}
}
