package mercury

import "time"

// Poll runs one round of Progress followed by Trigger, the shape a caller's
// event loop repeats: advance the plugin's engine, then deliver whatever
// completions that produced. maxCompletions bounds how many Trigger drains
// in this round.
func Poll(class *Class, ctx *Context, timeout time.Duration, maxCompletions int) (progressed bool, completed int, err error) {
	progressed, err = class.Progress(ctx, timeout)
	if err != nil && KindOf(err) != Timeout {
		return progressed, 0, err
	}
	completed, terr := ctx.Trigger(0, maxCompletions)
	if terr != nil && KindOf(terr) != Timeout {
		return progressed, completed, terr
	}
	return progressed, completed, nil
}

// Cancel cancels op if it has not already been dispatched off the queue its
// owning engine tracks it on. On success it posts a completion for op with
// Result set to Canceled and returns true. It returns false if op was
// already Completed, or if an engine raced it off the queue (a match, a
// retry reservation, a lookup reply) before the cancel landed -- in that
// case the completion the engine itself produces carries the real result,
// and no second completion is posted here.
func Cancel(op *OpID) bool {
	if !op.Cancel() {
		return false
	}
	rec := NewCompletionRecord(op, completionKindFor(op.Kind), NewError(Canceled), nil, nil)
	op.Ctx.CompletionAdd(rec)
	return true
}
