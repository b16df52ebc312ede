// Package validator defines the three-phase validation pipeline the
// organizer drives. The consensus rules the validator enforces are not
// implemented here — only the calling convention, plus a
// worker-pool-backed test double used by the daemon's default wiring and
// by the test suite.
package validator

import (
	"context"

	"github.com/noxproject/forkd/core/block"
	"github.com/noxproject/forkd/core/fork"
)

// Code is a validator-reported outcome. Codes other than Success flow back
// to the organizer's submission handler unchanged.
type Code int

const (
	// Success indicates the checked phase found no problem, or the
	// accept/connect phase accepted the fork.
	Success Code = iota
	// Invalid is a generic stand-in for a validator-specific rejection
	// code; real deployments report a richer code set. It exists so the
	// test double can exercise the "any code forwarded from the
	// validator" path in the organizer's submission handler.
	Invalid
)

func (c Code) String() string {
	switch c {
	case Success:
		return "success"
	case Invalid:
		return "invalid"
	default:
		return "unknown-validator-code"
	}
}

// Validator is the three-phase pipeline the organizer drives for every
// submission.
type Validator interface {
	// Check performs synchronous, stateless validity checks against the
	// block alone.
	Check(ctx context.Context, blk *block.Block) Code

	// Accept performs asynchronous contextual checks against the
	// candidate fork, invoking callback with the resulting code exactly
	// once.
	Accept(ctx context.Context, f *fork.Fork, callback func(Code))

	// Connect performs asynchronous script validation against the
	// candidate fork, invoking callback with the resulting code exactly
	// once.
	Connect(ctx context.Context, f *fork.Fork, callback func(Code))

	// Stop signals the validator to cancel outstanding work.
	Stop()
}
