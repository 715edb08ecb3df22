package h1wire

import (
	"bytes"
	"strconv"
	"strings"
)

// readerPhase tracks where the incremental parser is inside the current
// message. It is orthogonal to the connection State: the State says what the
// peer owes, the phase says how far the buffered bytes got.
type readerPhase int

const (
	phaseStartLine readerPhase = iota
	phaseHeaders
	phaseBody // content-length or close-delimited payload
	phaseChunkSize
	phaseChunkData
	phaseChunkEnd // the CRLF that closes a chunk's payload
	phaseTrailers
	phaseEOM // everything read; EndOfMessage not yet emitted
)

// NextEvent produces the next protocol event from the buffered input. It
// never reads from a transport: when the buffer lacks a complete event it
// returns the NeedMoreData sentinel, and repeated calls without new input
// return the same outcome without consuming anything. Events come strictly in
// wire order, and parsing resumes exactly where it left off across calls.
//
// Once the peer's direction finished its message for this cycle, NextEvent
// returns Paused instead of reading into a pipelined follow-up message; the
// bytes stay buffered until StartNextCycle. Malformed or ambiguous input
// fails with a RemoteProtocolError and permanently poisons the connection.
func (c *Connection) NextEvent() (Event, error) {
	if c.err != nil {
		return nil, c.err
	}
	switch c.theirState {
	case StateSwitchedProtocol:
		return Paused{}, nil
	case StateClosed:
		return ConnectionClosed{}, nil
	case StateDone, StateMustClose:
		if c.eof && c.buf.length() == 0 {
			if err := c.applyTheir(kindConnectionClosed); err != nil {
				return nil, c.fail(err)
			}
			return ConnectionClosed{}, nil
		}
		return Paused{}, nil
	}
	for {
		ev, progressed, err := c.step()
		if err != nil {
			return nil, c.fail(err)
		}
		if ev != nil {
			return ev, nil
		}
		if !progressed {
			return c.stalled()
		}
	}
}

// step attempts one unit of parsing work: a line, a body slice, or a block
// finish. It reports whether any input was consumed so NextEvent can keep
// stepping through multi-line constructs until an event falls out.
func (c *Connection) step() (Event, bool, error) {
	switch c.phase {
	case phaseStartLine:
		return c.stepStartLine()
	case phaseHeaders:
		return c.stepHeaders()
	case phaseBody:
		return c.stepBody()
	case phaseChunkSize:
		return c.stepChunkSize()
	case phaseChunkData:
		return c.stepChunkData()
	case phaseChunkEnd:
		return c.stepChunkEnd()
	case phaseTrailers:
		return c.stepTrailers()
	case phaseEOM:
		return c.finishMessage()
	default:
		return nil, false, remoteErrf("parser in impossible phase %d", c.phase)
	}
}

// stalled resolves a parse that cannot proceed: plain backpressure while the
// transport is open, otherwise the peer's close is classified as clean
// closure, close-delimited body completion, or truncation.
func (c *Connection) stalled() (Event, error) {
	if !c.eof {
		return NeedMoreData{}, nil
	}
	if c.phase == phaseStartLine && c.buf.length() == 0 {
		if err := c.applyTheir(kindConnectionClosed); err != nil {
			return nil, c.fail(err)
		}
		return ConnectionClosed{}, nil
	}
	if c.phase == phaseBody && c.recvFraming.Mode == FramingCloseDelimited {
		ev, _, err := c.finishMessage()
		if err != nil {
			return nil, c.fail(err)
		}
		return ev, nil
	}
	return nil, c.fail(remoteErrf("peer closed connection without finishing the message"))
}

func (c *Connection) stepStartLine() (Event, bool, error) {
	line, n, err := c.nextLine()
	if err != nil || n == 0 {
		return nil, false, err
	}
	if len(line) == 0 {
		return nil, false, remoteErrf("empty start line")
	}
	if c.role == RoleServer {
		return c.parseRequestLine(line)
	}
	return c.parseStatusLine(line)
}

func (c *Connection) parseRequestLine(line []byte) (Event, bool, error) {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) != 3 {
		return nil, false, remoteErrf("malformed request line %q", line)
	}
	method, target, version := parts[0], parts[1], parts[2]
	if !isValidToken(method) {
		return nil, false, remoteErrf("invalid method %q", method)
	}
	if !isValidTarget(target) {
		return nil, false, remoteErrf("invalid request target %q", target)
	}
	if !supportedVersion(version) {
		return nil, false, remoteErrf("unsupported protocol version %q", version)
	}
	if err := c.applyTheir(kindRequestLine); err != nil {
		return nil, false, err
	}
	c.requestMethod = method
	c.recvVersion = version
	c.phase = phaseHeaders
	return RequestLine{Method: method, Target: target, Version: version}, true, nil
}

func (c *Connection) parseStatusLine(line []byte) (Event, bool, error) {
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 {
		return nil, false, remoteErrf("malformed status line %q", line)
	}
	version, codeStr := parts[0], parts[1]
	var reason string
	if len(parts) == 3 {
		reason = parts[2]
	}
	if !supportedVersion(version) {
		return nil, false, remoteErrf("unsupported protocol version %q", version)
	}
	if len(codeStr) != 3 {
		return nil, false, remoteErrf("malformed status code %q", codeStr)
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 {
		return nil, false, remoteErrf("malformed status code %q", codeStr)
	}
	if !isValidReason(reason) {
		return nil, false, remoteErrf("invalid reason phrase %q", reason)
	}
	c.recvVersion = version
	c.recvStatus = code
	c.recvReason = reason
	c.phase = phaseHeaders
	if code < 200 {
		// Informational responses surface as one self-contained event once
		// their header block is complete; no separate start-line event.
		c.recvIsInfo = true
		return nil, true, nil
	}
	if err := c.applyTheir(kindResponseLine); err != nil {
		return nil, false, err
	}
	return ResponseLine{Version: version, StatusCode: code, Reason: reason}, true, nil
}

func (c *Connection) stepHeaders() (Event, bool, error) {
	line, n, err := c.nextLine()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		if c.recvHeaderBytes+c.buf.length() > c.opts.MaxHeaderBytes {
			return nil, false, exhaustedErrf("header block exceeds %d bytes", c.opts.MaxHeaderBytes)
		}
		return nil, false, nil
	}
	c.recvHeaderBytes += n
	if c.recvHeaderBytes > c.opts.MaxHeaderBytes {
		return nil, false, exhaustedErrf("header block exceeds %d bytes", c.opts.MaxHeaderBytes)
	}
	if len(line) == 0 {
		return c.finishHeaderBlock()
	}
	hdr, err := parseFieldLine(line)
	if err != nil {
		return nil, false, err
	}
	c.recvHeaders = append(c.recvHeaders, hdr)
	return nil, true, nil
}

// parseFieldLine parses one "Name: Value" header or trailer line. Obsolete
// line folding is rejected rather than merged, and a name that is not a clean
// token (including whitespace before the colon) is rejected: both are classic
// smuggling vectors.
func parseFieldLine(line []byte) (Header, error) {
	if line[0] == ' ' || line[0] == '\t' {
		return Header{}, remoteErrf("obsolete header line folding in %q", line)
	}
	idx := bytes.IndexByte(line, ':')
	if idx <= 0 {
		return Header{}, remoteErrf("header line without a name: %q", line)
	}
	name := string(line[:idx])
	if !isValidToken(name) {
		return Header{}, remoteErrf("invalid header name %q", name)
	}
	value := strings.Trim(string(line[idx+1:]), " \t")
	if !validHeaderValue(value) {
		return Header{}, remoteErrf("invalid value for header %q", name)
	}
	return Header{Name: name, Value: value}, nil
}

// finishHeaderBlock turns the accumulated field lines into the message's
// header event, derives the body framing, and positions the parser for the
// body. This is also where protocol switches complete on the parse side.
func (c *Connection) finishHeaderBlock() (Event, bool, error) {
	headers := c.recvHeaders

	if c.recvIsInfo {
		ev := InformationalResponse{StatusCode: c.recvStatus, Reason: c.recvReason, Headers: headers}
		if err := c.applyTheir(kindInformationalResponse); err != nil {
			return nil, false, err
		}
		status := c.recvStatus
		c.resetInfoParse()
		if status == 101 {
			if !c.upgradeOffered {
				return nil, false, remoteErrf("101 response to a request that proposed no upgrade")
			}
			c.switchProtocol()
		}
		return ev, true, nil
	}

	ev := HeaderBlock{Headers: headers}
	if err := c.applyTheir(kindHeaderBlock); err != nil {
		return nil, false, err
	}
	c.noteMessageHeaders(c.recvVersion, headers)

	if c.role == RoleServer {
		if headers.Get("Upgrade") != "" {
			c.upgradeOffered = true
		}
		f, err := requestFraming(headers)
		if err != nil {
			return nil, false, remoteErrf("%v", err)
		}
		c.recvFraming = f
	} else {
		if c.requestMethod == "CONNECT" && c.recvStatus >= 200 && c.recvStatus < 300 {
			// A successful CONNECT turns the rest of the stream into an
			// opaque tunnel; there is no body and no EndOfMessage.
			c.switchProtocol()
			return ev, true, nil
		}
		f, err := responseFraming(c.requestMethod, c.recvStatus, headers)
		if err != nil {
			return nil, false, remoteErrf("%v", err)
		}
		if f.Mode == FramingCloseDelimited {
			c.keepAlive = false
			c.adjustStates()
		}
		c.recvFraming = f
	}

	switch c.recvFraming.Mode {
	case FramingContentLength:
		if c.recvFraming.Length == 0 {
			c.phase = phaseEOM
		} else {
			c.recvRemaining = c.recvFraming.Length
			c.phase = phaseBody
		}
	case FramingChunked:
		c.phase = phaseChunkSize
	case FramingCloseDelimited:
		c.phase = phaseBody
	default:
		c.phase = phaseEOM
	}
	return ev, true, nil
}

func (c *Connection) stepBody() (Event, bool, error) {
	avail := c.buf.length()
	if avail == 0 {
		return nil, false, nil
	}
	n := avail
	if c.recvFraming.Mode == FramingContentLength && int64(n) > c.recvRemaining {
		n = int(c.recvRemaining)
	}
	view := c.buf.consume(n)
	if c.recvFraming.Mode == FramingContentLength {
		c.recvRemaining -= int64(n)
		if c.recvRemaining == 0 {
			c.phase = phaseEOM
		}
	}
	if err := c.applyTheir(kindData); err != nil {
		return nil, false, err
	}
	return Data{Bytes: view}, true, nil
}

func (c *Connection) stepChunkSize() (Event, bool, error) {
	line, n, err := c.nextLine()
	if err != nil || n == 0 {
		return nil, false, err
	}
	sizeStr := string(line)
	if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
		// Chunk extensions are parsed and ignored.
		sizeStr = sizeStr[:idx]
	}
	size, err := strconv.ParseUint(sizeStr, 16, 63)
	if err != nil {
		return nil, false, remoteErrf("invalid chunk size %q", line)
	}
	if size == 0 {
		c.recvHeaderBytes = 0 // trailers get a fresh block budget
		c.phase = phaseTrailers
	} else {
		c.recvRemaining = int64(size)
		c.phase = phaseChunkData
	}
	return nil, true, nil
}

func (c *Connection) stepChunkData() (Event, bool, error) {
	avail := c.buf.length()
	if avail == 0 {
		return nil, false, nil
	}
	n := avail
	if int64(n) > c.recvRemaining {
		n = int(c.recvRemaining)
	}
	view := c.buf.consume(n)
	c.recvRemaining -= int64(n)
	if c.recvRemaining == 0 {
		c.phase = phaseChunkEnd
	}
	if err := c.applyTheir(kindData); err != nil {
		return nil, false, err
	}
	return Data{Bytes: view}, true, nil
}

func (c *Connection) stepChunkEnd() (Event, bool, error) {
	line, n, err := c.nextLine()
	if err != nil || n == 0 {
		return nil, false, err
	}
	if len(line) != 0 {
		return nil, false, remoteErrf("expected CRLF after chunk data, got %q", line)
	}
	c.phase = phaseChunkSize
	return nil, true, nil
}

func (c *Connection) stepTrailers() (Event, bool, error) {
	line, n, err := c.nextLine()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		if c.recvHeaderBytes+c.buf.length() > c.opts.MaxHeaderBytes {
			return nil, false, exhaustedErrf("trailer block exceeds %d bytes", c.opts.MaxHeaderBytes)
		}
		return nil, false, nil
	}
	c.recvHeaderBytes += n
	if c.recvHeaderBytes > c.opts.MaxHeaderBytes {
		return nil, false, exhaustedErrf("trailer block exceeds %d bytes", c.opts.MaxHeaderBytes)
	}
	if len(line) == 0 {
		return c.finishMessage()
	}
	hdr, err := parseFieldLine(line)
	if err != nil {
		return nil, false, err
	}
	c.recvTrailers = append(c.recvTrailers, hdr)
	return nil, true, nil
}

func (c *Connection) finishMessage() (Event, bool, error) {
	ev := EndOfMessage{Trailers: c.recvTrailers}
	if err := c.applyTheir(kindEndOfMessage); err != nil {
		return nil, false, err
	}
	c.resetMessageParse()
	return ev, true, nil
}

// nextLine extracts one terminated line from the pending buffer. n is the
// number of bytes consumed including the terminator; n == 0 with a nil error
// means no complete line is buffered yet. The returned line excludes the
// terminator and is a view into the buffer.
func (c *Connection) nextLine() (line []byte, n int, err error) {
	b := c.buf.unread()
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		if len(b) > c.opts.MaxLineBytes {
			return nil, 0, exhaustedErrf("line exceeds %d bytes", c.opts.MaxLineBytes)
		}
		return nil, 0, nil
	}
	if i+1 > c.opts.MaxLineBytes {
		return nil, 0, exhaustedErrf("line exceeds %d bytes", c.opts.MaxLineBytes)
	}
	line = b[:i]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	} else if c.opts.StrictLineEndings {
		return nil, 0, remoteErrf("bare LF line terminator")
	}
	if bytes.IndexByte(line, '\r') >= 0 {
		return nil, 0, remoteErrf("stray CR inside line %q", line)
	}
	c.buf.consume(i + 1)
	return line, i + 1, nil
}

// resetMessageParse clears per-message parse state after EndOfMessage,
// leaving the parser positioned at the next message's start line (gated by
// the state machine until StartNextCycle).
func (c *Connection) resetMessageParse() {
	c.phase = phaseStartLine
	c.recvVersion = ""
	c.recvStatus = 0
	c.recvReason = ""
	c.recvIsInfo = false
	c.recvHeaders = nil
	c.recvHeaderBytes = 0
	c.recvFraming = Framing{}
	c.recvRemaining = 0
	c.recvTrailers = nil
}

// resetInfoParse rewinds the parser to the start line after an informational
// response; the message cycle itself has not advanced.
func (c *Connection) resetInfoParse() {
	c.phase = phaseStartLine
	c.recvIsInfo = false
	c.recvStatus = 0
	c.recvReason = ""
	c.recvVersion = ""
	c.recvHeaders = nil
	c.recvHeaderBytes = 0
}
