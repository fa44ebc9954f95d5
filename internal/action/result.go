// Package action runs side-effecting actions under an OpenTelemetry span and
// reports their outcome as a value.
//
// An Executor owns the span for exactly one invocation: it starts the span,
// copies the request's attributes onto it, calls the action, classifies the
// outcome, and ends the span on every exit path, including a panic inside
// the action. Failures never cross the Execute boundary as errors or panics;
// they come back as a Failure Result.
package action

// Kind identifies which variant of Result is populated.
type Kind uint8

const (
	// KindSuccess marks a Result produced by an action that returned normally.
	KindSuccess Kind = iota + 1
	// KindFailure marks a Result produced by an action that failed.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Result is the normalized outcome of one Execute call. Exactly one of the
// Success and Failure variants is populated; the zero value is neither and is
// never returned by an Executor. Result is immutable.
type Result struct {
	kind    Kind
	message string
}

// Success returns a successful Result carrying message.
func Success(message string) Result {
	return Result{kind: KindSuccess, message: message}
}

// Failure returns a failed Result carrying message.
func Failure(message string) Result {
	return Result{kind: KindFailure, message: message}
}

// Kind reports which variant r is.
func (r Result) Kind() Kind { return r.kind }

// OK reports whether r is a Success.
func (r Result) OK() bool { return r.kind == KindSuccess }

// Message returns the human-readable message of either variant.
func (r Result) Message() string { return r.message }

func (r Result) String() string {
	return r.kind.String() + ": " + r.message
}
