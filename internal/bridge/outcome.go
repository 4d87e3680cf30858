package bridge

import "errors"

// Failure causes. Outcome.Err wraps exactly one of these.
var (
	ErrHandoff     = errors.New("handoff failed")
	ErrLaunch      = errors.New("agent launch failed")
	ErrTimeout     = errors.New("agent timed out")
	ErrNonZeroExit = errors.New("agent exited with non-zero status")
	ErrCancelled   = errors.New("agent invocation cancelled")
	ErrOutput      = errors.New("agent output unreadable")
)

// Document is the JSON object an agent prints in blocking mode.
type Document map[string]any

// NonJSON is the error value stored in a Document when the agent's
// output could not be parsed.
const NonJSON = "Non-JSON response"

// Content returns the document's content field if it is a string.
func (d Document) Content() (string, bool) {
	s, ok := d["content"].(string)
	return s, ok
}

// ErrorField returns the document's error field, if any.
func (d Document) ErrorField() (any, bool) {
	v, ok := d["error"]
	return v, ok
}

// Outcome is the tagged result of a blocking invocation. It is either a
// success carrying Document, or a failure carrying Reason, Detail and a
// non-nil Err.
type Outcome struct {
	Document Document
	Reason   string
	Detail   string
	Err      error
}

// Success returns a successful outcome.
func Success(doc Document) Outcome {
	return Outcome{Document: doc}
}

// Failure returns a failed outcome. err must not be nil.
func Failure(reason, detail string, err error) Outcome {
	return Outcome{Reason: reason, Detail: detail, Err: err}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Err == nil
}
