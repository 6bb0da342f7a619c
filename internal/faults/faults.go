// Package faults classifies failures so callers can branch on kind instead of
// matching message text.
package faults

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class a caller may react to.
type Kind int

const (
	// KindUnknown is the zero value for errors that were never classified.
	KindUnknown Kind = iota
	// KindTransientRemote covers network and auth failures against external
	// services. The current source or cycle is skipped and retried on the
	// next scheduled run.
	KindTransientRemote
	// KindTransientLocalIO covers file read/write and decode failures. The
	// item is skipped and the original file preserved for retry.
	KindTransientLocalIO
	// KindStoreContention covers lock and busy timeouts. The store layer's
	// busy-timeout policy handles retries; callers only observe exhaustion.
	KindStoreContention
	// KindSchemaInvalid is fatal to the catalog's current state and triggers
	// a rebuild.
	KindSchemaInvalid
	// KindConfigInvalid is surfaced once at startup.
	KindConfigInvalid
)

func (k Kind) String() string {
	switch k {
	case KindTransientRemote:
		return "transient-remote"
	case KindTransientLocalIO:
		return "transient-local-io"
	case KindStoreContention:
		return "store-contention"
	case KindSchemaInvalid:
		return "schema-invalid"
	case KindConfigInvalid:
		return "config-invalid"
	default:
		return "unknown"
	}
}

// Error couples a failure kind with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the name of the failing operation.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of err, walking the wrap chain. Unclassified errors
// report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
