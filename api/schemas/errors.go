package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures inside a triage run by how they are recovered.
type ErrorKind string

const (
	// KindConfiguration is fatal. It aborts the run before any external call.
	KindConfiguration ErrorKind = "configuration"
	// KindTransport covers evidence-fetch failures. The run degrades to empty evidence.
	KindTransport ErrorKind = "transport"
	// KindParse covers completion output that could not be read. Defaults apply.
	KindParse ErrorKind = "parse"
	// KindService covers a text-completion failure. A weak classification is returned.
	KindService ErrorKind = "service"
	// KindAction covers a failed remediation. The selector falls back one tier.
	KindAction ErrorKind = "action"
)

// TriageError carries the recovery class of a failure along with the operation
// that produced it.
type TriageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TriageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error in %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *TriageError) Unwrap() error { return e.Err }

// NewTriageError wraps err with a recovery class.
func NewTriageError(kind ErrorKind, op string, err error) error {
	return &TriageError{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether any error in err's chain is a TriageError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TriageError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// ErrNoFix is returned by fix generation when no concrete change can be derived.
var ErrNoFix = errors.New("no fix could be generated")
