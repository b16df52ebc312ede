package organizer

import (
	"fmt"

	"github.com/noxproject/forkd/core/validator"
)

// Code identifies the outcome of a submission: a small closed enum for
// results the organizer itself produces. The error passed alongside it is
// a ValidatorError for validator rejections and a failed S7 query, or the
// store's own error for a failed S9 reorganize.
type Code int

const (
	// Success: the block extended the active chain (or won a
	// reorganization) and the confirmed chain has been updated.
	Success Code = iota

	// ServiceStopped: the submission observed stopped=true at a
	// continuation boundary and completed without mutating state.
	ServiceStopped

	// DuplicateBlock: S3's duplicate gate rejected the block.
	DuplicateBlock

	// OrphanBlock: S4 could not anchor the fork's parent hash into the
	// confirmed chain.
	OrphanBlock

	// InsufficientWork: S8 found the fork's accumulated work did not
	// exceed the competing segment's.
	InsufficientWork

	// OperationFailed: S7's fork-difficulty query failed, or S9's
	// reorganize write failed — fatal, store-inconsistency conditions.
	OperationFailed

	// ValidatorRejected is a generic stand-in for "any code forwarded
	// from the validator": the specific validator.Code rides along in
	// the completion's *ValidatorError.
	ValidatorRejected
)

var codeStrings = map[Code]string{
	Success:           "success",
	ServiceStopped:    "service_stopped",
	DuplicateBlock:    "duplicate_block",
	OrphanBlock:       "orphan_block",
	InsufficientWork:  "insufficient_work",
	OperationFailed:   "operation_failed",
	ValidatorRejected: "validator_rejected",
}

// String satisfies fmt.Stringer.
func (c Code) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown result code (%d)", int(c))
}

// ValidatorError wraps the specific code reported by the Validator,
// preserving its own value alongside the organizer's generic
// ValidatorRejected Code. A failed S7 fork-difficulty query also
// completes with a ValidatorError (code Invalid) beside OperationFailed.
type ValidatorError struct {
	ValidatorCode validator.Code
	Err           error
}

// Error satisfies the error interface.
func (e *ValidatorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.ValidatorCode, e.Err)
	}
	return e.ValidatorCode.String()
}

// Cause supports github.com/pkg/errors.Cause.
func (e *ValidatorError) Cause() error {
	return e.Err
}
