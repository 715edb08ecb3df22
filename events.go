package h1wire

// Event is a single protocol-level occurrence: produced by NextEvent when
// parsing peer bytes, or handed to Send to serialize the local side's intent.
// The set of implementations is closed; new event kinds cannot be defined
// outside this package.
type Event interface {
	isEvent()
}

// RequestLine opens a request message. Sent by clients, parsed by servers.
type RequestLine struct {
	Method  string
	Target  string
	Version string // defaults to "HTTP/1.1" on send when empty
}

// ResponseLine opens a final (non-1xx) response. Sent by servers, parsed by
// clients. Reason is filled from the standard status text on send when empty.
type ResponseLine struct {
	Version    string
	StatusCode int
	Reason     string
}

// InformationalResponse is a complete 1xx response, header fields included,
// since an informational response never carries a body. A 101 completes a
// client-proposed protocol switch and moves both directions to
// StateSwitchedProtocol.
type InformationalResponse struct {
	StatusCode int
	Reason     string
	Headers    Headers
}

// HeaderBlock terminates the header section of the current message. The body
// framing for the rest of the message is derived from it and is immutable
// afterwards.
type HeaderBlock struct {
	Headers Headers
}

// Data carries a slice of message body. On the parse side Bytes is a view
// into the connection's internal buffer, valid only until the next mutating
// call on the Connection; callers needing persistence must copy.
type Data struct {
	Bytes []byte
}

// EndOfMessage closes the current message. Trailers holds trailer fields from
// chunked encoding and is empty otherwise.
type EndOfMessage struct {
	Trailers Headers
}

// ConnectionClosed reports that the peer closed the transport (parse side) or
// declares that the local side will send nothing further (send side).
type ConnectionClosed struct{}

// NeedMoreData is a sentinel returned by NextEvent when the buffered input
// does not contain a complete event. It is backpressure, not an error: feed
// more bytes with ReceiveData and call NextEvent again. Repeated calls without
// new input return it again without consuming anything.
type NeedMoreData struct{}

// Paused is a sentinel returned by NextEvent when parsing is gated rather than
// starved: the peer's next pipelined message may not be consumed before
// StartNextCycle, or the connection switched protocols and framing no longer
// applies (see TrailingData).
type Paused struct{}

func (RequestLine) isEvent()           {}
func (ResponseLine) isEvent()          {}
func (InformationalResponse) isEvent() {}
func (HeaderBlock) isEvent()           {}
func (Data) isEvent()                  {}
func (EndOfMessage) isEvent()          {}
func (ConnectionClosed) isEvent()      {}
func (NeedMoreData) isEvent()          {}
func (Paused) isEvent()                {}
