// Package outcome provides the success/failure value threaded through
// authentication, authorization and service calls.
//
// An Outcome is either a success carrying a payload (and optionally a
// message) or a failure carrying a message. Fields are unexported so no
// partially-filled value can be built outside the constructors.
package outcome

import (
	"errors"
	"time"
)

// Empty is the payload of outcomes that carry no data.
type Empty struct{}

// Outcome is the result of an operation that may fail for expected reasons.
type Outcome[T any] struct {
	data      T
	ok        bool
	message   string
	timestamp time.Time
}

// Success builds a successful outcome. An optional message may be attached.
func Success[T any](data T, message ...string) Outcome[T] {
	o := Outcome[T]{data: data, ok: true, timestamp: time.Now().UTC()}
	if len(message) > 0 {
		o.message = message[0]
	}
	return o
}

// Failure builds a failed outcome carrying only a message.
func Failure[T any](message string) Outcome[T] {
	return Outcome[T]{message: message, timestamp: time.Now().UTC()}
}

// Chain converts a failed outcome into a failure of another payload type,
// appending the caller's context: "{inner message} - {context}".
// A successful inner outcome yields a failure with the context alone, so
// callers must only chain on the failure path.
func Chain[U, T any](inner Outcome[T], context string) Outcome[U] {
	if inner.ok || inner.message == "" {
		return Failure[U](context)
	}
	if context == "" {
		return Failure[U](inner.message)
	}
	return Failure[U](inner.message + " - " + context)
}

func (o Outcome[T]) IsSuccess() bool { return o.ok }

// Data returns the payload. It is the zero value for failures.
func (o Outcome[T]) Data() T { return o.data }

func (o Outcome[T]) Message() string { return o.message }

// Timestamp returns the creation time of the outcome, in UTC.
func (o Outcome[T]) Timestamp() time.Time { return o.timestamp }

// Err returns nil on success and an error carrying the message on failure.
func (o Outcome[T]) Err() error {
	if o.ok {
		return nil
	}
	return errors.New(o.message)
}
