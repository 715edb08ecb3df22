// Package h1wire is a transport-independent HTTP/1.1 message framing engine.
// It turns a byte stream into a sequence of protocol events and outgoing
// events back into bytes, without performing any I/O itself: callers push
// bytes in with ReceiveData, pull events out with NextEvent, and serialize
// their own events with Send. A single Connection instance tracks both
// directions of one transport connection across all pipelined message cycles
// on it.
//
// The engine never blocks, never sleeps, and has no notion of time. It is not
// internally synchronized: one Connection belongs to whichever task owns the
// transport connection, and concurrent use without external serialization is
// unsafe.
package h1wire

// Connection is the per-transport-connection framing engine. Create one per
// transport connection with NewConnection and keep it for the connection's
// whole life; per-message state resets through StartNextCycle.
type Connection struct {
	role Role
	opts Options

	ourState    State
	theirState  State
	sendPending bool // start line sent, header block not yet
	recvPending bool // start line parsed, header block not yet

	// Sticky connection-wide flags. keepAlive can only ever degrade; once a
	// message in either direction rules out reuse it stays false.
	keepAlive      bool
	requestMethod  string // method of the current cycle's request
	upgradeOffered bool   // current request proposed a protocol switch

	err error // sticky; set when the machine enters StateError

	// Send side: framing for the message being written.
	sendFraming   Framing
	sendRemaining int64
	sendVersion   string // version of the pending start line
	sendStatus    int    // status of the pending response start line

	// Receive side: incremental parse state, see reader.go.
	buf             pendingBuffer
	eof             bool
	phase           readerPhase
	recvVersion     string
	recvStatus      int
	recvReason      string
	recvIsInfo      bool
	recvHeaders     Headers
	recvHeaderBytes int
	recvFraming     Framing
	recvRemaining   int64
	recvTrailers    Headers
}

// NewConnection creates the framing engine for one transport connection.
// role is fixed for the connection's lifetime.
func NewConnection(role Role, opts Options) *Connection {
	opts.applyDefaults()
	return &Connection{
		role:      role,
		opts:      opts,
		keepAlive: true,
	}
}

// Role returns the side this connection plays.
func (c *Connection) Role() Role {
	return c.role
}

// OurState returns the state of the direction driven by Send. Introspection
// only; no side effects.
func (c *Connection) OurState() State {
	return c.ourState
}

// TheirState returns the state of the direction driven by parsed peer bytes.
func (c *Connection) TheirState() State {
	return c.theirState
}

// ReceiveData appends transport bytes to the pending input buffer. Passing an
// empty slice signals that the peer closed the connection; whether that close
// is clean or truncates a message is decided by the next NextEvent call.
//
// Calling after the connection reached StateClosed or StateError, signalling
// close twice, or supplying bytes after a close signal are caller bugs and
// fail with a LocalProtocolError.
func (c *Connection) ReceiveData(data []byte) error {
	if c.err != nil {
		return localErrf("connection is unusable after: %v", c.err)
	}
	if c.theirState == StateClosed {
		return localErrf("ReceiveData called after the peer direction closed")
	}
	if len(data) == 0 {
		if c.eof {
			return localErrf("peer close signalled twice")
		}
		c.eof = true
		return nil
	}
	if c.eof {
		return localErrf("ReceiveData called with bytes after the peer close signal")
	}
	c.buf.appendBytes(data)
	return nil
}

// TrailingData returns the bytes received but not consumed by the parser,
// and whether the peer close signal has been received. After a protocol
// switch this is the start of the new protocol's stream; the engine passes it
// through untouched.
func (c *Connection) TrailingData() ([]byte, bool) {
	return c.buf.unread(), c.eof
}

// StartNextCycle resets per-message state once both directions reached
// StateDone, preparing the same instance for the next pipelined
// request/response pair. It fails with a LocalProtocolError if either side is
// not actually done — including when keep-alive was lost and the directions
// sit in StateMustClose instead.
func (c *Connection) StartNextCycle() error {
	if c.err != nil {
		return localErrf("connection is unusable after: %v", c.err)
	}
	if c.ourState != StateDone || c.theirState != StateDone {
		return localErrf("cannot start next cycle in states %s/%s", c.ourState, c.theirState)
	}
	c.ourState = StateIdle
	c.theirState = StateIdle
	c.sendPending = false
	c.recvPending = false
	c.requestMethod = ""
	c.upgradeOffered = false
	c.sendFraming = Framing{}
	c.sendRemaining = 0
	c.sendVersion = ""
	c.sendStatus = 0
	c.resetMessageParse()
	return nil
}

// fail poisons the connection after an unrecoverable protocol violation.
// Both directions enter StateError and every later call fails.
func (c *Connection) fail(err error) error {
	c.ourState = StateError
	c.theirState = StateError
	c.err = err
	return err
}

// applyOur advances the send-direction state machine, failing with a
// LocalProtocolError when the event is not justified by the transition table.
func (c *Connection) applyOur(kind eventKind) error {
	next, ok := nextState(dirSend, c.ourState, kind, c.sendPending)
	if !ok {
		return localErrf("cannot send %s in state %s", kind, c.ourState)
	}
	switch kind {
	case kindRequestLine, kindResponseLine:
		c.sendPending = true
	case kindHeaderBlock:
		c.sendPending = false
	}
	c.ourState = next
	c.adjustStates()
	return nil
}

// applyTheir advances the receive-direction state machine. The parser's phase
// tracking makes table violations unreachable from peer input, so a failure
// here reports an engine bug as a remote error rather than panicking.
func (c *Connection) applyTheir(kind eventKind) error {
	next, ok := nextState(dirRecv, c.theirState, kind, c.recvPending)
	if !ok {
		return remoteErrf("unexpected %s in state %s", kind, c.theirState)
	}
	switch kind {
	case kindRequestLine, kindResponseLine:
		c.recvPending = true
	case kindHeaderBlock:
		c.recvPending = false
	}
	c.theirState = next
	c.adjustStates()
	return nil
}

// adjustStates applies the state-triggered transition the table cannot
// express: a direction that is Done on a non-reusable connection degrades to
// MustClose.
func (c *Connection) adjustStates() {
	if !c.keepAlive {
		if c.ourState == StateDone {
			c.ourState = StateMustClose
		}
		if c.theirState == StateDone {
			c.theirState = StateMustClose
		}
	}
}

// switchProtocol completes a protocol switch: both directions become
// StateSwitchedProtocol and all further bytes bypass the framing engine.
func (c *Connection) switchProtocol() {
	c.ourState = StateSwitchedProtocol
	c.theirState = StateSwitchedProtocol
}

// noteMessageHeaders folds one message's version and header block into the
// sticky keep-alive flag: an explicit close token, or HTTP/1.0 without a
// keep-alive token, rules out reuse for the rest of the connection.
func (c *Connection) noteMessageHeaders(version string, h Headers) {
	if h.containsToken("Connection", "close") {
		c.keepAlive = false
	} else if version == "HTTP/1.0" && !h.containsToken("Connection", "keep-alive") {
		c.keepAlive = false
	}
}
