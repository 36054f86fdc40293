// Package pipeline drives account auto-configuration: the ordered,
// numbered sequence of steps that turns an email address and password into
// a verified, persisted LoginParam. The step graph is forward-only with two
// join points (steps 12 and 13); each step function returns the number of
// the next step to run, so control flow stays explicit instead of living in
// a mutated counter.
package pipeline

import "context"

// stepDone is the sentinel "next step" value a step function returns to
// signal that the run finished successfully.
const stepDone = -1

// stepFunc runs one numbered step against the in-flight run state and
// returns the number of the next step to execute, or stepDone on success.
type stepFunc func(ctx context.Context, r *run) (next int, err error)

// step is one named, numbered entry in the pipeline.
type step struct {
	number int
	name   string
	fn     stepFunc
}
