// Package incremental splits long extractions into bounded time slices.
//
// An extractor exposes one unit of work as a Stepper. Run performs units
// while a Predicate allows it; the extractor keeps its state between runs,
// so a caller can spread one extraction across many scheduler ticks.
package incremental

import "time"

// Predicate decides whether another unit of work may start.
type Predicate func() bool

// Stepper performs one unit of work and reports whether work remains.
type Stepper interface {
	Step() bool
}

// StepFunc adapts a function to Stepper.
type StepFunc func() bool

// Step calls f.
func (f StepFunc) Step() bool { return f() }

// Run steps s while pred allows. It returns true when s ran out of work
// and false when pred stopped it first.
func Run(s Stepper, pred Predicate) bool {
	for pred() {
		if !s.Step() {
			return true
		}
	}
	return false
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// Always never interrupts.
func Always() bool { return true }

// Never never allows work; useful to start an extraction without running it.
func Never() bool { return false }

// Deadline allows work until budget has elapsed from now.
func Deadline(budget time.Duration) Predicate {
	return DeadlineWithClock(SystemClock, budget)
}

// DeadlineWithClock is Deadline against an explicit clock.
func DeadlineWithClock(c Clock, budget time.Duration) Predicate {
	return DeadlineAt(c, c.Now().Add(budget))
}

// DeadlineAt allows work while the clock reads before t.
func DeadlineAt(c Clock, t time.Time) Predicate {
	return func() bool { return c.Now().Before(t) }
}

// Counter reports the size of an extraction's output.
type Counter interface {
	NumPrimitives() int
}

// MaxElements allows work while c holds fewer than n primitives.
func MaxElements(c Counter, n int) Predicate {
	return func() bool { return c.NumPrimitives() < n }
}

// Steps allows exactly n units of work.
func Steps(n int) Predicate {
	return func() bool {
		if n <= 0 {
			return false
		}
		n--
		return true
	}
}

// All allows work while every predicate does. Evaluation stops at the
// first refusal, so stateful predicates after it are not consumed.
func All(preds ...Predicate) Predicate {
	return func() bool {
		for _, p := range preds {
			if !p() {
				return false
			}
		}
		return true
	}
}

// Any allows work while at least one predicate does.
func Any(preds ...Predicate) Predicate {
	return func() bool {
		for _, p := range preds {
			if p() {
				return true
			}
		}
		return false
	}
}
