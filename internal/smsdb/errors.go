package smsdb

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable is returned when the store file does not exist.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnknownSchema is returned when the store matches neither schema
	// generation, or lacks columns the selected generation writes.
	ErrUnknownSchema = errors.New("unknown store schema")

	// ErrTriggerRestore matches any failure to put suspended triggers back.
	// Once returned, the store is missing consistency triggers.
	ErrTriggerRestore = errors.New("trigger restore failed")
)

// QueryError is a failed SQL statement together with the operation that
// issued it.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

const (
	opDrop    = "drop"
	opRestore = "restore"
)

// TriggerError is a failed drop or restore of a single trigger.
type TriggerError struct {
	Op   string
	Name string
	Err  error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s trigger %q: %v", e.Op, e.Name, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

func (e *TriggerError) Is(target error) bool {
	return target == ErrTriggerRestore && e.Op == opRestore
}
