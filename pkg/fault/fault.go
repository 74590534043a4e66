// Package fault defines the closed failure taxonomy shared by the engine
// packages. Expected failures are returned as *Error values carrying a Kind;
// callers branch on the kind rather than on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies one failure class. The set is closed: new kinds are a
// breaking change for callers that switch over them.
type Kind string

const (
	ValidationFailed          Kind = "validation_failed"
	TierLimitExceeded         Kind = "tier_limit_exceeded"
	TierRestrictedCustomPiece Kind = "tier_restricted_custom_piece"
	Occupied                  Kind = "occupied"
	Incompatible              Kind = "incompatible"
	SizeMismatch              Kind = "size_mismatch"
	WouldCycle                Kind = "would_cycle"
	MultiEdge                 Kind = "multi_edge"
	SelfConnection            Kind = "self_connection"
	Locked                    Kind = "locked"
	NotFound                  Kind = "not_found"
	SaveLimitExceeded         Kind = "save_limit_exceeded"
	PaymentBelowMinimum       Kind = "payment_below_minimum"
	PaymentFailed             Kind = "payment_failed"
	UndoBroken                Kind = "undo_broken"
	RecoveryExhausted         Kind = "recovery_exhausted"
	UnsafeObjectRefused       Kind = "unsafe_object_refused"
	VersionUnsupported        Kind = "version_unsupported"
	Internal                  Kind = "internal"
)

// Error is a failure with a kind and a human-readable detail.
// The zero value is not a valid error; construct with New.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Detail
}

// New returns an *Error of the given kind with a formatted detail message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, unwrapping through wrapped chains.
// A nil error yields the empty kind; a non-fault error yields Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Wrap converts an arbitrary error into a fault of the given kind, keeping
// the original message as detail. A nil err returns nil; an err that already
// carries a fault kind is returned unchanged.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Detail: err.Error()}
}
