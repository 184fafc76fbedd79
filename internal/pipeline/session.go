package pipeline

import (
	"context"
	"sync"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StateDragging
	StateDropped
	StateCancelled
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateDropped:
		return "dropped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DragSession is the transient state of one drag gesture. It is never persisted.
type DragSession struct {
	ActiveDealID  string
	HoverTargetID string
	OriginStageID string
}

// Dropper receives the resolved end of a drag.
type Dropper interface {
	Drop(ctx context.Context, dealID, origin, targetID string) (DropResult, error)
}

// DragController is the explicit state machine behind pointer and keyboard
// dragging. Dropped and Cancelled are transient: EndDrag reports them and
// leaves the controller Idle.
type DragController struct {
	deals   *DealStore
	dropper Dropper

	mu      sync.Mutex
	state   SessionState
	session DragSession
}

func NewDragController(deals *DealStore, dropper Dropper) *DragController {
	return &DragController{deals: deals, dropper: dropper}
}

// StartDrag begins a drag of dealID. It is a no-op, returning false, while
// another drag is active or when the deal is unknown.
func (c *DragController) StartDrag(dealID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDragging {
		return false
	}
	deal, ok := c.deals.Deal(dealID)
	if !ok {
		return false
	}
	c.state = StateDragging
	c.session = DragSession{ActiveDealID: dealID, OriginStageID: deal.StageID}
	return true
}

// UpdateHoverTarget records the latest stage or deal under the pointer.
func (c *DragController) UpdateHoverTarget(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDragging {
		return
	}
	c.session.HoverTargetID = targetID
}

// EndDrag finishes the active drag. An empty target cancels it. The returned
// state is Dropped or Cancelled; the controller itself is Idle afterwards.
func (c *DragController) EndDrag(ctx context.Context, targetID string) (SessionState, DropResult, error) {
	return c.end(ctx, targetID, false)
}

// DropOnHover ends the drag on the last recorded hover target.
func (c *DragController) DropOnHover(ctx context.Context) (SessionState, DropResult, error) {
	return c.end(ctx, "", true)
}

func (c *DragController) end(ctx context.Context, targetID string, useHover bool) (SessionState, DropResult, error) {
	c.mu.Lock()
	if c.state != StateDragging {
		c.mu.Unlock()
		return StateIdle, DropResult{Outcome: DropRejected}, nil
	}
	session := c.session
	if useHover {
		targetID = session.HoverTargetID
	}
	c.state = StateIdle
	c.session = DragSession{}
	c.mu.Unlock()

	if targetID == "" {
		return StateCancelled, DropResult{Outcome: DropRejected}, nil
	}
	result, err := c.dropper.Drop(ctx, session.ActiveDealID, session.OriginStageID, targetID)
	return StateDropped, result, err
}

// Cancel aborts the active drag without touching the store or the backend.
func (c *DragController) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.session = DragSession{}
}

func (c *DragController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the active drag, if any.
func (c *DragController) Session() (DragSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.state == StateDragging
}
