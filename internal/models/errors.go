package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrSagaNotFound = errors.New("saga instance not found")
	ErrNoTransition = errors.New("no transition for event in current state")
	ErrSagaExists   = errors.New("saga instance already exists")
)

// PersistenceError marks a failed write or read against the saga or dead-letter store.
// It is always fatal to the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DeadLetteredError means the transition failed permanently for this delivery
// and the inbound event now lives in the dead-letter store.
type DeadLetteredError struct {
	Source MessageKind
	Err    error
}

func (e *DeadLetteredError) Error() string {
	return fmt.Sprintf("%s dead-lettered: %v", e.Source, e.Err)
}

func (e *DeadLetteredError) Unwrap() error { return e.Err }

type UnknownSourceError struct {
	Source string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown message source %q", e.Source)
}

// ProtocolError describes an event the saga cannot apply. It is logged and ignored.
type ProtocolError struct {
	CorrelationID uuid.UUID
	State         SagaState
	Event         MessageKind
	Reason        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("event %s ignored for saga %s in state %s: %v", e.Event, e.CorrelationID, e.State, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Reason }
