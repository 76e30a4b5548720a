package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownVariable is returned when a variable name is not configured.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrDuplicateVariable is returned when two variables share a name.
	ErrDuplicateVariable = errors.New("duplicate variable name")

	// ErrUnknownKind is returned for an unsupported variable type.
	ErrUnknownKind = errors.New("unknown variable type")

	// ErrInvalidConfig is returned for structurally incomplete variables.
	ErrInvalidConfig = errors.New("invalid variable config")

	// ErrValueShape is returned when a value does not match the variable's
	// single/multi-select shape.
	ErrValueShape = errors.New("value shape does not match variable")

	// ErrReadOnlyVariable is returned when editing a constant.
	ErrReadOnlyVariable = errors.New("variable is read-only")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidTimeRange is returned when a time range cannot be parsed.
	ErrInvalidTimeRange = errors.New("invalid time range")
)
