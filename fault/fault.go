// Package fault defines the error taxonomy shared by the signing pipeline.
//
// Every stage returns either its declared output or an *Error carrying one
// of the Kind values below. Callers branch on the kind with KindOf or Is and
// never on message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Unknown is reported by KindOf for errors that did not originate in the pipeline.
	Unknown Kind = iota
	Validation
	IO
	UnsupportedAlgorithm
	MalformedDocument
	Capacity
	Transport
	RemoteSigning
	NoSignatureReturned
	Embedding
)

var kindNames = map[Kind]string{
	Unknown:              "Unknown",
	Validation:           "ValidationError",
	IO:                   "IOError",
	UnsupportedAlgorithm: "UnsupportedAlgorithm",
	MalformedDocument:    "MalformedDocument",
	Capacity:             "CapacityError",
	Transport:            "TransportError",
	RemoteSigning:        "RemoteSigningError",
	NoSignatureReturned:  "NoSignatureReturned",
	Embedding:            "EmbeddingError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "sign.Embed".
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This allows
// errors.Is(err, &fault.Error{Kind: fault.Transport}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New returns an error of the given kind without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf classifies err and adds a formatted message.
func Wrapf(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Message returns the message of the outermost *Error in err's chain,
// without operation and cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Kind.String()
	}
	return ""
}
