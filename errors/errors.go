package errors

import (
	goerrors "errors"
	"fmt"
)

var (
	ErrMalformedEnvelope = fmt.Errorf("malformed envelope")
	ErrUnknownAction     = fmt.Errorf("unknown action")
	ErrEmptyName         = fmt.Errorf("username is empty")
	ErrEmptyContent      = fmt.Errorf("message content is empty")
	ErrInvalidID         = fmt.Errorf("invalid message id")
	ErrNameTaken         = fmt.Errorf("username is already in use")
	ErrAlreadyRegistered = fmt.Errorf("connection already has a username")
	ErrNotAuthor         = fmt.Errorf("requester is not the author of the message")
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrConnectionClosed  = fmt.Errorf("connection closed")
	ErrSendBufferFull    = fmt.Errorf("connection send buffer full")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
)

// Kind classifies a failure so the caller can decide between logging,
// alerting the requester or ignoring it.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindConflict
	KindAuthorization
	KindNotFound
	KindDelivery
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// KindOf walks the wrapped chain of err and returns the first matching kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case goerrors.Is(err, ErrMalformedEnvelope),
		goerrors.Is(err, ErrEmptyName),
		goerrors.Is(err, ErrEmptyContent),
		goerrors.Is(err, ErrInvalidID):
		return KindValidation
	case goerrors.Is(err, ErrNameTaken),
		goerrors.Is(err, ErrAlreadyRegistered):
		return KindConflict
	case goerrors.Is(err, ErrNotAuthor):
		return KindAuthorization
	case goerrors.Is(err, ErrMessageNotFound):
		return KindNotFound
	case goerrors.Is(err, ErrConnectionClosed),
		goerrors.Is(err, ErrSendBufferFull):
		return KindDelivery
	default:
		return KindUnknown
	}
}
