package validator

import (
	"context"

	"github.com/noxproject/forkd/core/block"
	"github.com/noxproject/forkd/core/fork"
	"github.com/noxproject/forkd/core/workerpool"
)

// CheckFunc, AcceptFunc and ConnectFunc let callers inject deterministic
// per-phase behavior into TestDouble without a mocking framework.
type CheckFunc func(*block.Block) Code
type AcceptFunc func(*fork.Fork) Code
type ConnectFunc func(*fork.Fork) Code

// TestDouble is a Validator implementation that dispatches the
// asynchronous phases onto a worker pool and defers to caller-supplied
// functions for the actual verdict. It is the default Validator wired by
// cmd/forkd and is used directly by the organizer test suite.
type TestDouble struct {
	pool *workerpool.Pool

	OnCheck   CheckFunc
	OnAccept  AcceptFunc
	OnConnect ConnectFunc
}

// NewTestDouble builds a TestDouble backed by a worker pool of the given
// size. Every OnX hook defaults to always-Success when left nil.
func NewTestDouble(workers int) *TestDouble {
	return &TestDouble{
		pool:      workerpool.New(workers),
		OnCheck:   func(*block.Block) Code { return Success },
		OnAccept:  func(*fork.Fork) Code { return Success },
		OnConnect: func(*fork.Fork) Code { return Success },
	}
}

// Check implements Validator.
func (v *TestDouble) Check(ctx context.Context, blk *block.Block) Code {
	return v.OnCheck(blk)
}

// Accept implements Validator.
func (v *TestDouble) Accept(ctx context.Context, f *fork.Fork, callback func(Code)) {
	v.pool.Submit(func() {
		callback(v.OnAccept(f))
	})
}

// Connect implements Validator.
func (v *TestDouble) Connect(ctx context.Context, f *fork.Fork, callback func(Code)) {
	v.pool.Submit(func() {
		callback(v.OnConnect(f))
	})
}

// Stop implements Validator.
func (v *TestDouble) Stop() {
	v.pool.Stop()
}
