package task

import "github.com/leon-m/cool.ng/api"

// Void is the threaded-state type for the void form of the task
// composition, where there is nothing to pass between steps and side
// effects live entirely in the closures.
type Void = struct{}

// CreateVoid lifts a side-effecting, argument-less fn bound to runner
// into a Task[Void].
func CreateVoid(runner api.Runner, fn func()) Task[Void] {
	return Create[Void](runner, func(Void) Void {
		fn()
		return Void{}
	})
}

// CreateVoidPredicate lifts a side-effecting, argument-less predicate
// bound to runner into a PredicateTask[Void].
func CreateVoidPredicate(runner api.Runner, fn func() bool) PredicateTask[Void] {
	return CreatePredicate[Void](runner, func(Void) bool { return fn() })
}

// RunVoid starts a void-state task.
func RunVoid(t Task[Void]) { Run(t, Void{}) }
