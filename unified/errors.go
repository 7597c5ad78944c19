package unified

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindUpstream          ErrorKind = "upstream"
	KindUnrecognizedShape ErrorKind = "unrecognized_shape"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidRequest    ErrorKind = "invalid_request"
)

// Error is returned by every client, accessor and aggregator call.
type Error struct {
	Kind         ErrorKind
	Status       int
	Message      string
	ObservedKeys []string
	Err          error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

func invalidRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// unrecognizedShape carries no status: the call itself succeeded.
func unrecognizedShape(env Envelope) *Error {
	return &Error{Kind: KindUnrecognizedShape, Message: "no usable data", ObservedKeys: env.Keys()}
}
