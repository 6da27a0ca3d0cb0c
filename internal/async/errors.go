package async

import "errors"

// ErrCanceled is the completion status of a token that was cancelled
// before its work was dispatched, or of a sequence that observed a
// cancellation request between steps.
var ErrCanceled = errors.New("canceled")

// Severity orders completion outcomes. When several outcomes are merged
// into one status the most severe wins.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityError
	SeverityCanceled
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityError:
		return "error"
	case SeverityCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// SeverityOf classifies a completion error.
func SeverityOf(err error) Severity {
	switch {
	case err == nil:
		return SeverityOK
	case errors.Is(err, ErrCanceled):
		return SeverityCanceled
	default:
		return SeverityError
	}
}

// worse returns whichever of cur and next is more severe. On a tie cur is
// kept so that the first cause of a given severity survives.
func worse(cur, next error) error {
	if SeverityOf(next) > SeverityOf(cur) {
		return next
	}
	return cur
}
