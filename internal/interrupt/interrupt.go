// Package interrupt implements the C10 cooperative cancellation hook:
// a sticky IsInterrupted() flag the IVF search core polls between
// list scans, the same pattern the teacher's index code checks
// ctx.Done() with, generalized to a named hook type so callers besides
// context.Context (an explicit stop button, a deadline clock) can
// drive it too.
package interrupt

import (
	"context"
	"sync/atomic"
)

// Hook reports whether the current operation should stop early.
// Implementations are expected to be cheap enough to poll at every
// list boundary.
type Hook interface {
	IsInterrupted() bool
}

// FromContext wraps a context.Context as a Hook. Once ctx is done the
// hook stays interrupted — there is no un-interrupting it.
type fromContext struct {
	ctx context.Context
}

func FromContext(ctx context.Context) Hook {
	return fromContext{ctx: ctx}
}

func (f fromContext) IsInterrupted() bool {
	select {
	case <-f.ctx.Done():
		return true
	default:
		return false
	}
}

// Flag is a manually-driven sticky Hook: once Set is called,
// IsInterrupted reports true forever. Safe for concurrent use.
type Flag struct {
	interrupted atomic.Bool
}

func (f *Flag) Set()                { f.interrupted.Store(true) }
func (f *Flag) IsInterrupted() bool { return f.interrupted.Load() }

// Never never reports interrupted; useful as a default Hook where no
// cancellation source is wired up.
var Never Hook = never{}

type never struct{}

func (never) IsInterrupted() bool { return false }
