package remote

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable: no backend configured, or unreachable at call time.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrRejected: reachable but refused the write (permission, validation).
	ErrRejected = errors.New("remote write rejected")
	// ErrTimeout: no answer in time; the write may still have landed.
	ErrTimeout = errors.New("remote timeout")
)

// Kind classifies a remote failure
type Kind int

const (
	KindNone Kind = iota
	KindUnavailable
	KindRejected
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf classifies err. Unrecognized errors count as unavailable, since
// transport failures are by far the common case.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRejected):
		return KindRejected
	default:
		return KindUnavailable
	}
}

// wrap tags a backend error with its kind, keeping the cause in the message.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindTimeout:
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	case KindRejected:
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, ErrUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// reject tags a backend error as a refused write.
func reject(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrRejected, err)
}
