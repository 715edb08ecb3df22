package h1wire

import "fmt"

// LocalProtocolError reports misuse of the Connection API by the local caller:
// an event sent out of order, body bytes past a declared Content-Length, or a
// call after the connection reached a terminal state. It is always a caller
// bug and is never retried internally.
type LocalProtocolError struct {
	Reason string
}

func (e *LocalProtocolError) Error() string {
	return "local protocol error: " + e.Reason
}

// RemoteProtocolError reports malformed or ambiguous bytes from the peer: a
// bad start line, conflicting framing headers, invalid chunk syntax, or a
// connection closed in mid-message. The engine never resynchronizes after one;
// the caller is expected to abort the underlying transport.
//
// Exhausted distinguishes configured-limit overruns (oversized lines or header
// blocks) from plain syntax errors.
type RemoteProtocolError struct {
	Reason    string
	Exhausted bool
}

func (e *RemoteProtocolError) Error() string {
	if e.Exhausted {
		return "remote protocol error: " + e.Reason + " (limit exceeded)"
	}
	return "remote protocol error: " + e.Reason
}

func localErrf(format string, args ...any) error {
	return &LocalProtocolError{Reason: fmt.Sprintf(format, args...)}
}

func remoteErrf(format string, args ...any) error {
	return &RemoteProtocolError{Reason: fmt.Sprintf(format, args...)}
}

func exhaustedErrf(format string, args ...any) error {
	return &RemoteProtocolError{Reason: fmt.Sprintf(format, args...), Exhausted: true}
}
