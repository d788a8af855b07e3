package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure by the stage that produced it.
type Kind int

const (
	// KindConnection: cluster unreachable or handshake failure.
	KindConnection Kind = iota + 1
	// KindAssignment: invalid topic, partition or (when checked) offset.
	KindAssignment
	// KindPoll: the broker returned an error event instead of data.
	KindPoll
	// KindEmptyPayload: a record arrived without a value.
	KindEmptyPayload
	// KindNoEvent: the poll returned nothing.
	KindNoEvent
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAssignment:
		return "assignment"
	case KindPoll:
		return "poll"
	case KindEmptyPayload:
		return "empty_payload"
	case KindNoEvent:
		return "no_event"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyPayload is wrapped by KindEmptyPayload errors.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrNoEvent is wrapped by KindNoEvent errors.
	ErrNoEvent = errors.New("no event received from poll")

	// ErrUnknownPartition is returned when the partition index is not part of
	// the topic.
	ErrUnknownPartition = errors.New("unknown partition")

	// ErrOffsetOutOfRange is returned by the optional client-side offset check.
	ErrOffsetOutOfRange = errors.New("offset out of range")

	// ErrAlreadyAssigned is returned by clients asked to hold a second
	// assignment.
	ErrAlreadyAssigned = errors.New("client already holds an assignment")
)

// Error is returned by Fetch for every failure.
type Error struct {
	Kind     Kind
	Location Location
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Location, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a fetch error, or 0 if err is not one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

func newError(kind Kind, loc Location, err error) *Error {
	return &Error{Kind: kind, Location: loc, Err: err}
}
