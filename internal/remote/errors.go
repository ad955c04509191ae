package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind int

const (
	// KindNetwork covers transport failures, timeouts and 5xx responses.
	KindNetwork Kind = iota
	// KindAuth means the credential is missing, expired or rejected.
	KindAuth
	// KindValidation means the server rejected the request payload.
	KindValidation
	// KindConflict is a validation failure caused by an existing record,
	// such as a second goal for the same month.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is.
var (
	ErrNetwork    = errors.New("remote unavailable")
	ErrAuth       = errors.New("not authenticated")
	ErrValidation = errors.New("rejected by server")
	ErrConflict   = errors.New("conflicts with existing record")
)

// Error is a failed remote call.
type Error struct {
	Kind    Kind
	Op      string // e.g. "POST /goals"
	Status  int    // HTTP status, 0 when no response was received
	Message string // server-provided error text, if any
	Err     error  // underlying transport error, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels. A conflict also matches ErrValidation.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrValidation:
		return e.Kind == KindValidation || e.Kind == KindConflict
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

// KindOf returns the kind of a remote error and whether err is one.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether repeating the call could succeed.
// Only network failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// kindForStatus maps a non-2xx HTTP status to an error kind.
func kindForStatus(status int) Kind {
	switch {
	case status >= 500:
		return KindNetwork
	case status == 401 || status == 403:
		return KindAuth
	case status == 409:
		return KindConflict
	default:
		return KindValidation
	}
}
