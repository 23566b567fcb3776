// Package errs implements the structured error kinds and the
// most-recent-error ring described for the control query interface.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package errs

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Kind classifies an error the way the control-socket reply codes do.
type Kind int

const (
	// KindArgument is bad command input -> reply code 8.
	KindArgument Kind = iota
	// KindMode is a wrong-transfer-mode violation -> reply code 6.
	KindMode
	// KindIO is a failed syscall -> reply code 4.
	KindIO
	// KindInternal is an invariant violation -> reply code 5.
	KindInternal
)

// Code returns the VSI-S numeric status for this kind.
func (k Kind) Code() int {
	switch k {
	case KindArgument:
		return 8
	case KindMode:
		return 6
	case KindIO:
		return 4
	case KindInternal:
		return 5
	default:
		return 5
	}
}

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindMode:
		return "mode"
	case KindIO:
		return "io"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the structured error value carried through the chain runtime
// and surfaced via the error? query.
type Error struct {
	Kind        Kind
	Message     string
	FirstTime   time.Time
	LastTime    time.Time
	Occurrences int
	cause       error
}

func New(k Kind, format string, args ...any) *Error {
	now := time.Now()
	return &Error{
		Kind:        k,
		Message:     fmt.Sprintf(format, args...),
		FirstTime:   now,
		LastTime:    now,
		Occurrences: 1,
	}
}

// Wrap attaches a stack-carrying cause via pkg/errors, preserving the
// original message for collapse comparisons.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	e := New(k, format, args...)
	e.cause = errors.WithStack(cause)
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// sameAs reports whether two errors should collapse into one ring entry:
// same kind and same message, ignoring timestamps/occurrences/cause.
func (e *Error) sameAs(o *Error) bool {
	return e.Kind == o.Kind && e.Message == o.Message
}

// Ring holds the most recent distinct errors, collapsing identical
// consecutive errors by incrementing Occurrences and bumping LastTime.
type Ring struct {
	mu       sync.Mutex
	cap      int
	entries  []*Error
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{cap: capacity}
}

// Push records err, collapsing into the most recent entry if it is an
// identical-consecutive occurrence.
func (r *Ring) Push(err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.entries); n > 0 && r.entries[n-1].sameAs(err) {
		last := r.entries[n-1]
		last.Occurrences++
		last.LastTime = err.LastTime
		return
	}
	r.entries = append(r.entries, err)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

// Pop removes and returns the most recent error, or nil if the ring is
// empty. Used by the error? control query, which consumes what it reads.
func (r *Ring) Pop() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if n == 0 {
		return nil
	}
	e := r.entries[n-1]
	r.entries = r.entries[:n-1]
	return e
}

// Peek returns the most recent error without consuming it.
func (r *Ring) Peek() *Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if n == 0 {
		return nil
	}
	return r.entries[n-1]
}

// Len reports the number of distinct entries currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
