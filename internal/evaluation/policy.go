package evaluation

import (
	"time"

	"github.com/tjfontaine/polyglot-feed-filter/internal/core/domain"
)

// Result is the outcome of evaluating one feed item.
type Result struct {
	ShouldShow bool
	Elapsed    time.Duration
	// Err is set when the verdict was not reached by the model. Such results
	// are not cached.
	Err error
}

// ElapsedMillis is the evaluation time as sent on the wire.
func (r Result) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// ErrorText returns the wire error, or nil.
func (r Result) ErrorText() *string {
	if r.Err == nil {
		return nil
	}
	return domain.StringPtr(r.Err.Error())
}

// FailOpen is the single policy for inconclusive evaluations: content the
// filter could not judge is shown. Every caller that cannot produce a
// verdict goes through here.
func FailOpen(err error) Result {
	return Result{ShouldShow: true, Err: err}
}
