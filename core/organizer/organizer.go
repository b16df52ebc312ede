// Package organizer implements the submission state machine: the control
// loop that builds a Fork for an incoming block, drives it through the
// validator's check/accept/connect pipeline, compares accumulated work
// against the competing segment of the confirmed chain, and either
// discards, retains, or reorganizes.
//
// The control loop is a goroutine+channel dispatch loop that serializes
// submissions and hands completions back through callbacks, paired with
// a connect-best-chain/reorganize-chain style comparison against the
// confirmed store, generalized to a strict single-parent chain model and
// its documented duplicate-gate quirk.
package organizer

import (
	"context"
	"sync"

	"github.com/davecgh/go-spew/spew"
	gometrics "github.com/rcrowley/go-metrics"

	"github.com/noxproject/forkd/common/hash"
	"github.com/noxproject/forkd/common/work"
	"github.com/noxproject/forkd/core/block"
	"github.com/noxproject/forkd/core/fork"
	"github.com/noxproject/forkd/core/validator"
	"github.com/noxproject/forkd/core/workerpool"
	"github.com/noxproject/forkd/log"
	"github.com/noxproject/forkd/metrics"
)

// ConfirmedChain is the persistent block store collaborator.
type ConfirmedChain interface {
	GetBlockExists(h hash.Hash) bool
	GetBlockExistsAfter(h hash.Hash, afterHeight uint64) bool
	GetHeight(h hash.Hash) (uint64, bool)
	GetForkDifficulty(max *work.Work, fromHeight uint64) (*work.Work, bool)
	Reorganize(f *fork.Fork, flush bool) ([]*block.Block, error)
	BeginWrites() error
	EndWrites() error
}

// BlockPool is the orphan/block pool collaborator.
type BlockPool interface {
	GetPath(blk *block.Block) *fork.Fork
	Add(blk *block.Block)
	AddList(blocks []*block.Block)
	Remove(blocks []*block.Block)
	Prune(h uint64)
}

// Config carries the organizer's static knobs: whether to flush the
// confirmed store after every reorganize, and whether the duplicate gate
// runs in corrected (post-fork-point-only) or bug-compatible mode.
type Config struct {
	FlushPerReorg        bool
	StrictForkPointCheck bool
	ValidatorWorkers     int
	NetworkWorkers       int
}

var logger = log.NewSubsystem("ORGR")

// Organizer is the submission state machine.
type Organizer struct {
	chain ConfirmedChain
	pool  BlockPool
	val   validator.Validator

	cfg Config

	submissionMu sync.Mutex

	stateMu sync.RWMutex
	stopped bool

	subsMu sync.Mutex
	subs   []ReorgHandler

	networkPool  *workerpool.Pool
	priorityPool *workerpool.Pool

	fatalCh chan error

	metricAccepted         gometrics.Counter
	metricDuplicate        gometrics.Counter
	metricOrphan           gometrics.Counter
	metricInsufficientWork gometrics.Counter
	metricReorganized      gometrics.Counter
	metricFatal            gometrics.Counter
}

// New constructs a stopped Organizer wired to the given collaborators.
func New(chain ConfirmedChain, pool BlockPool, val validator.Validator, cfg Config) *Organizer {
	if cfg.ValidatorWorkers < 1 {
		cfg.ValidatorWorkers = 1
	}
	if cfg.NetworkWorkers < 1 {
		cfg.NetworkWorkers = 1
	}
	return &Organizer{
		chain:   chain,
		pool:    pool,
		val:     val,
		cfg:     cfg,
		stopped: true,

		networkPool:  workerpool.New(cfg.NetworkWorkers),
		priorityPool: workerpool.New(cfg.ValidatorWorkers),

		fatalCh: make(chan error, 1),

		metricAccepted:         metrics.NewCounter("organizer/submissions/accepted"),
		metricDuplicate:        metrics.NewCounter("organizer/submissions/duplicate"),
		metricOrphan:           metrics.NewCounter("organizer/submissions/orphan"),
		metricInsufficientWork: metrics.NewCounter("organizer/submissions/insufficient_work"),
		metricReorganized:      metrics.NewCounter("organizer/submissions/reorganized"),
		metricFatal:            metrics.NewCounter("organizer/submissions/fatal"),
	}
}

// Start transitions the organizer from stopped to running and, when
// FlushPerReorg is false, acquires the coarse flush lock on the store
// for the organizer's lifetime.
func (o *Organizer) Start() error {
	o.stateMu.Lock()
	o.stopped = false
	o.stateMu.Unlock()

	if !o.cfg.FlushPerReorg {
		if err := o.chain.BeginWrites(); err != nil {
			return err
		}
	}
	logger.Info("organizer started")
	return nil
}

// Stop signals the validator to cancel outstanding work, delivers a
// terminal ServiceStopped notification, then — under the submission
// mutex — flips stopped and releases the coarse flush lock. It cannot
// return while a submission is mid-flight.
func (o *Organizer) Stop() error {
	o.val.Stop()
	o.notify(ReorgEvent{Type: NotifyServiceStopped})

	o.submissionMu.Lock()
	o.stateMu.Lock()
	o.stopped = true
	o.stateMu.Unlock()
	o.submissionMu.Unlock()

	var err error
	if !o.cfg.FlushPerReorg {
		err = o.chain.EndWrites()
	}

	o.priorityPool.Stop()
	o.networkPool.Stop()
	logger.Info("organizer stopped")
	return err
}

// Fatal returns a channel on which work-comparison or reorganize fatal
// conditions are surfaced. A daemon embedding the organizer should treat
// any value received here as a signal to halt.
func (o *Organizer) Fatal() <-chan error {
	return o.fatalCh
}

// SubscribeReorganize registers handler to be invoked with a ReorgEvent
// on each successful reorganization, and once with ServiceStopped on
// shutdown.
func (o *Organizer) SubscribeReorganize(handler ReorgHandler) {
	o.subsMu.Lock()
	o.subs = append(o.subs, handler)
	o.subsMu.Unlock()
}

func (o *Organizer) notify(ev ReorgEvent) {
	o.subsMu.Lock()
	subs := make([]ReorgHandler, len(o.subs))
	copy(subs, o.subs)
	o.subsMu.Unlock()

	for _, h := range subs {
		h(ev)
	}
}

func (o *Organizer) isStopped() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.stopped
}

// Organize is the entry point: it runs the submission pipeline for blk
// and invokes handler exactly once with the outcome, returning only once
// handler has finished running. The organizer mutex it acquires
// internally is what makes concurrent Organize calls serialize. The
// pipeline itself runs on the calling goroutine: Check is called
// directly, Accept and Connect run on the validator's own worker pool,
// and only the store's reorganize write is dispatched onto the priority
// pool.
func (o *Organizer) Organize(ctx context.Context, blk *block.Block, handler func(Code, error)) {
	o.runSubmission(ctx, blk, handler)
}

func (o *Organizer) runSubmission(ctx context.Context, blk *block.Block, handler func(Code, error)) {
	o.submissionMu.Lock()
	defer o.submissionMu.Unlock()

	complete := func(code Code, err error) {
		o.dispatchCompletion(handler, code, err)
	}

	// S0 Entry
	if o.isStopped() {
		complete(ServiceStopped, nil)
		return
	}

	// S1 Check
	if vc := o.val.Check(ctx, blk); vc != validator.Success {
		complete(ValidatorRejected, &ValidatorError{ValidatorCode: vc})
		return
	}

	// S2 Path
	f := o.pool.GetPath(blk)
	logger.Debugf("assembled candidate fork: %v", log.NewLogClosure(func() string { return spew.Sdump(f) }))

	// S3 Duplicate gate — preserves the documented whole-chain check
	// unless Config.StrictForkPointCheck opts into the corrected,
	// post-fork-point-only behavior.
	duplicate := false
	if !f.Empty() {
		if o.cfg.StrictForkPointCheck {
			if ph, ok := o.chain.GetHeight(f.Hash()); ok {
				duplicate = o.chain.GetBlockExistsAfter(blk.Hash, ph)
			}
		} else {
			duplicate = o.chain.GetBlockExists(blk.Hash)
		}
	}
	if f.Empty() || duplicate {
		o.metricDuplicate.Inc(1)
		complete(DuplicateBlock, nil)
		return
	}

	// S4 Anchor
	parentHeight, ok := o.chain.GetHeight(f.Hash())
	if !ok {
		o.metricOrphan.Inc(1)
		o.pool.Add(blk)
		complete(OrphanBlock, nil)
		return
	}
	f.SetHeight(parentHeight)

	// S5 Accept
	if o.isStopped() {
		complete(ServiceStopped, nil)
		return
	}
	if ac := o.awaitValidator(func(cb func(validator.Code)) { o.val.Accept(ctx, f, cb) }); ac != validator.Success {
		complete(ValidatorRejected, &ValidatorError{ValidatorCode: ac})
		return
	}

	// S6 Connect
	if o.isStopped() {
		complete(ServiceStopped, nil)
		return
	}
	if cc := o.awaitValidator(func(cb func(validator.Code)) { o.val.Connect(ctx, f, cb) }); cc != validator.Success {
		complete(ValidatorRejected, &ValidatorError{ValidatorCode: cc})
		return
	}

	if o.isStopped() {
		complete(ServiceStopped, nil)
		return
	}

	// S7 Work test
	threshold, ok := o.chain.GetForkDifficulty(f.Difficulty(), f.ParentHeight()+1)
	if !ok {
		err := &ValidatorError{ValidatorCode: validator.Invalid}
		o.logFatal("fork difficulty query failed", nil)
		o.fatal(err)
		complete(OperationFailed, err)
		return
	}

	// S8 Compare
	if f.Difficulty().Cmp(threshold) <= 0 {
		o.pool.Add(f.Top())
		o.metricInsufficientWork.Inc(1)
		logger.Warnf("fork at parent height %d did not exceed competing segment's work", f.ParentHeight())
		complete(InsufficientWork, nil)
		return
	}

	// S9 Reorganize — dispatched onto the priority pool; the submission
	// waits for the store's write to finish before publishing.
	outgoing, err := o.reorganize(f)
	if err != nil {
		o.logFatal("reorganize write failed, store may be inconsistent", err)
		o.fatal(err)
		complete(OperationFailed, err)
		return
	}

	// S10 Publish
	incoming := make([]*block.Block, f.Size())
	for i := 0; i < f.Size(); i++ {
		incoming[i] = f.BlockAt(i)
	}
	o.pool.Remove(incoming)
	o.pool.Prune(f.TopHeight())
	o.pool.AddList(outgoing)

	o.metricAccepted.Inc(1)
	o.metricReorganized.Inc(1)
	logger.Infof("reorganized at parent height %d: %d incoming, %d outgoing", f.ParentHeight(), len(incoming), len(outgoing))

	o.notify(ReorgEvent{
		Type:         Reorganized,
		ParentHeight: f.ParentHeight(),
		Incoming:     incoming,
		Outgoing:     outgoing,
	})
	complete(Success, nil)
}

// reorganize runs ConfirmedChain.Reorganize on the priority pool and
// blocks the caller (which holds submissionMu) until it returns. Stop
// cannot call priorityPool.Stop until it has acquired submissionMu
// itself, so this never races a pool shutdown out from under a
// submission that is still using it.
func (o *Organizer) reorganize(f *fork.Fork) ([]*block.Block, error) {
	type result struct {
		outgoing []*block.Block
		err      error
	}
	ch := make(chan result, 1)
	o.priorityPool.Submit(func() {
		outgoing, err := o.chain.Reorganize(f, o.cfg.FlushPerReorg)
		ch <- result{outgoing, err}
	})
	r := <-ch
	return r.outgoing, r.err
}

// awaitValidator converts an async validator call into a blocking wait,
// so the submission pipeline can read as a linear sequence even though
// dispatch always runs on the validator's own pool, never on the
// caller's goroutine.
func (o *Organizer) awaitValidator(dispatch func(func(validator.Code))) validator.Code {
	ch := make(chan validator.Code, 1)
	dispatch(func(c validator.Code) { ch <- c })
	return <-ch
}

// dispatchCompletion runs handler on the network pool — distinct from
// the priority pool and from the validator's own worker pool — and waits
// for it, so Organize's "synchronous from the caller's point of view"
// contract holds without running the handler on the validator's pool,
// which would otherwise risk starving pending validation work. Once the
// organizer is stopped its pools may already be shut down, so the handler
// then runs on the calling goroutine instead.
func (o *Organizer) dispatchCompletion(handler func(Code, error), code Code, err error) {
	if handler == nil {
		return
	}
	if o.isStopped() {
		handler(code, err)
		return
	}
	done := make(chan struct{})
	o.networkPool.Submit(func() {
		handler(code, err)
		close(done)
	})
	<-done
}

func (o *Organizer) logFatal(msg string, err error) {
	o.metricFatal.Inc(1)
	if err != nil {
		logger.Errorf("FATAL: %s: %v", msg, err)
	} else {
		logger.Errorf("FATAL: %s", msg)
	}
}

func (o *Organizer) fatal(err error) {
	select {
	case o.fatalCh <- err:
	default:
	}
}
