// Package qerr defines the error kinds shared by the circuit service layers.
//
// Every failure that crosses a component boundary carries a Kind so that the
// HTTP layer, the worker loop and the job store can decide how to surface it
// without string matching.
package qerr

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	UnsupportedBackend
	SourceRetrievalFailure
	SimulationFailure
	NotFound
)

var kindNames = map[Kind]string{
	Internal:               "internal",
	InvalidArgument:        "invalid_argument",
	UnsupportedBackend:     "unsupported_backend",
	SourceRetrievalFailure: "source_retrieval_failure",
	SimulationFailure:      "simulation_failure",
	NotFound:               "not_found",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code maps a kind to the gRPC code the scheduler services report it with.
func (k Kind) Code() codes.Code {
	switch k {
	case InvalidArgument, UnsupportedBackend:
		return codes.InvalidArgument
	case SourceRetrievalFailure:
		return codes.FailedPrecondition
	case SimulationFailure:
		return codes.Aborted
	case NotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// Error is a failure tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// GRPCStatus lets status.FromError and status.Code understand kinded errors.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Error())
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind, keeping err reachable through errors.Is/As.
// A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: errors.WithStack(err)}
}

// KindOf returns the kind of the outermost kinded error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
