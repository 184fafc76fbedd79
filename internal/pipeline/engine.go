package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Persister is the write half of the persistence collaborator.
type Persister interface {
	PersistStageChange(ctx context.Context, dealID, stageID string) error
}

// Notifier receives the "move failed, reverted" signal for the presentation layer.
type Notifier interface {
	MoveFailed(MoveFailure)
}

type NotifierFunc func(MoveFailure)

func (f NotifierFunc) MoveFailed(failure MoveFailure) {
	f(failure)
}

type DropOutcome int

const (
	// DropRejected means the drop target did not resolve; nothing changed.
	DropRejected DropOutcome = iota
	// DropUnchanged means the target resolved to the deal's current stage.
	DropUnchanged
	// DropMoved means the deal was moved locally and a persistence request issued.
	DropMoved
)

func (o DropOutcome) String() string {
	switch o {
	case DropRejected:
		return "rejected"
	case DropUnchanged:
		return "unchanged"
	case DropMoved:
		return "moved"
	default:
		return fmt.Sprintf("DropOutcome(%d)", int(o))
	}
}

type DropResult struct {
	Outcome DropOutcome
	Command MoveCommand
}

type Option func(*options)

type options struct {
	notifier       Notifier
	logger         *zap.Logger
	persistTimeout time.Duration
}

func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPersistTimeout bounds each persistence request. Zero means no bound.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) { o.persistTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{
		notifier: NotifierFunc(func(MoveFailure) {}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// dealTrack follows a deal while any of its requests are still in flight.
// committed is the stage the backend is known to hold: the origin of the
// first command of the run, then the destination of the newest confirmed one.
type dealTrack struct {
	inflight  []MoveCommand
	committed string
	confirmed uint64
}

func (t *dealTrack) remove(seq uint64) {
	for i, cmd := range t.inflight {
		if cmd.seq == seq {
			t.inflight = append(t.inflight[:i:i], t.inflight[i+1:]...)
			return
		}
	}
}

// newestAfter returns the newest in-flight command issued after seq.
func (t *dealTrack) newestAfter(seq uint64) (MoveCommand, bool) {
	for i := len(t.inflight) - 1; i >= 0; i-- {
		if t.inflight[i].seq > seq {
			return t.inflight[i], true
		}
	}
	return MoveCommand{}, false
}

// Engine resolves drops into stage moves, applies them to the deal store
// before the backend answers and compensates when the backend refuses.
type Engine struct {
	registry  *StageRegistry
	deals     *DealStore
	persister Persister
	opts      options

	mu     sync.Mutex
	seq    uint64
	tracks map[string]*dealTrack
	wg     sync.WaitGroup
}

func NewEngine(registry *StageRegistry, deals *DealStore, persister Persister, opts ...Option) *Engine {
	return &Engine{
		registry:  registry,
		deals:     deals,
		persister: persister,
		opts:      buildOptions(opts),
		tracks:    make(map[string]*dealTrack),
	}
}

// ResolveDestination maps a drop target to a stage id: either the target is
// a stage, or it is a deal and the destination is that deal's stage.
func (e *Engine) ResolveDestination(targetID string) (string, bool) {
	if e.registry.Contains(targetID) {
		return targetID, true
	}
	if deal, ok := e.deals.Deal(targetID); ok {
		return deal.StageID, true
	}
	return "", false
}

// Drop reconciles a finished drag. origin is the stage captured at drag
// start; an empty origin falls back to the deal's current stage. The returned
// error is non-nil only for contract violations.
func (e *Engine) Drop(ctx context.Context, dealID, origin, targetID string) (DropResult, error) {
	e.mu.Lock()

	deal, ok := e.deals.Deal(dealID)
	if !ok {
		e.mu.Unlock()
		e.opts.logger.Debug("drop ignored: unknown deal", zap.String("deal_id", dealID))
		return DropResult{Outcome: DropRejected}, nil
	}
	destination, ok := e.ResolveDestination(targetID)
	if !ok {
		e.mu.Unlock()
		e.opts.logger.Debug("drop ignored: unresolved target", zap.String("deal_id", dealID), zap.String("target_id", targetID))
		return DropResult{Outcome: DropRejected}, nil
	}
	if destination == deal.StageID {
		e.mu.Unlock()
		return DropResult{Outcome: DropUnchanged}, nil
	}
	if origin == "" {
		origin = deal.StageID
	}

	e.seq++
	cmd := MoveCommand{DealID: dealID, Origin: origin, Destination: destination, seq: e.seq}
	if err := cmd.Apply(e.deals); err != nil {
		e.mu.Unlock()
		e.opts.logger.DPanic("optimistic move rejected by deal store",
			zap.String("deal_id", dealID),
			zap.String("stage_id", destination),
			zap.Error(err),
		)
		return DropResult{Outcome: DropRejected}, fmt.Errorf("apply move: %w", err)
	}

	track := e.tracks[dealID]
	if track == nil {
		track = &dealTrack{committed: origin}
		e.tracks[dealID] = track
	}
	track.inflight = append(track.inflight, cmd)
	e.wg.Add(1)
	e.mu.Unlock()

	e.opts.logger.Debug("stage change issued",
		zap.String("deal_id", dealID),
		zap.String("origin", origin),
		zap.String("destination", destination),
	)
	go e.persist(context.WithoutCancel(ctx), cmd)
	return DropResult{Outcome: DropMoved, Command: cmd}, nil
}

// Move drops a deal on a target without a drag session, using the deal's
// current stage as origin.
func (e *Engine) Move(ctx context.Context, dealID, targetID string) (DropResult, error) {
	return e.Drop(ctx, dealID, "", targetID)
}

// Wait blocks until every issued persistence request has completed and its
// outcome has been applied.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) persist(ctx context.Context, cmd MoveCommand) {
	defer e.wg.Done()
	if e.opts.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.persistTimeout)
		defer cancel()
	}
	err := e.persister.PersistStageChange(ctx, cmd.DealID, cmd.Destination)
	if failure, failed := e.settle(cmd, err); failed {
		e.opts.notifier.MoveFailed(failure)
	}
}

// settle records the outcome of cmd. A failure superseded by a newer
// in-flight command compensates with that command's undo, so it never drags
// the deal back past a newer drag's origin. A failure with nothing newer in
// flight returns the deal to its own origin while older requests are still
// pending, and to the committed stage once none are. When a newer command
// has already been confirmed there is nothing to revert.
func (e *Engine) settle(cmd MoveCommand, err error) (MoveFailure, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track := e.tracks[cmd.DealID]
	if track == nil {
		track = &dealTrack{committed: cmd.Origin}
	}
	track.remove(cmd.seq)
	if len(track.inflight) == 0 {
		delete(e.tracks, cmd.DealID)
	}

	if err == nil {
		if cmd.seq > track.confirmed {
			track.confirmed = cmd.seq
			track.committed = cmd.Destination
		}
		return MoveFailure{}, false
	}

	failure := MoveFailure{Command: cmd, Err: fmt.Errorf("%w: %w", ErrPersistence, err)}
	if track.confirmed > cmd.seq {
		e.opts.logger.Warn("stale stage change failed after a newer move was confirmed",
			zap.String("deal_id", cmd.DealID),
			zap.String("destination", cmd.Destination),
			zap.Error(err),
		)
		return failure, true
	}

	compensation := cmd
	if newer, ok := track.newestAfter(cmd.seq); ok {
		compensation = newer
	} else if len(track.inflight) == 0 {
		compensation.Origin = track.committed
	}

	if undoErr := compensation.Undo(e.deals); undoErr != nil {
		if errors.Is(undoErr, ErrInvalidStage) {
			e.opts.logger.DPanic("rollback target missing from stage registry",
				zap.String("deal_id", cmd.DealID),
				zap.String("stage_id", compensation.Origin),
			)
		}
		failure.Err = errors.Join(failure.Err, undoErr)
		return failure, true
	}
	failure.Reverted = true
	failure.RevertedTo = compensation.Origin
	e.opts.logger.Warn("stage change failed, reverted",
		zap.String("deal_id", cmd.DealID),
		zap.String("destination", cmd.Destination),
		zap.String("reverted_to", compensation.Origin),
		zap.Error(err),
	)
	return failure, true
}
