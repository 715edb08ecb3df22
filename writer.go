package h1wire

import (
	"bytes"
	"fmt"
	"net/http"
)

// Send validates e against the connection state, advances the send-direction
// state machine, and returns the exact bytes to write to the transport. The
// engine performs no I/O: delivering the returned bytes, in order, is the
// caller's job. A nil byte slice with a nil error means the event produced no
// wire bytes (ConnectionClosed, or EndOfMessage outside chunked framing).
//
// Any failure is a LocalProtocolError and permanently poisons the connection;
// events are validated before serialization so no partial output escapes.
func (c *Connection) Send(e Event) ([]byte, error) {
	out, err := c.send(e)
	if err != nil {
		return nil, c.fail(err)
	}
	return out, nil
}

func (c *Connection) send(e Event) ([]byte, error) {
	if c.err != nil {
		return nil, localErrf("connection is unusable after: %v", c.err)
	}
	switch ev := e.(type) {
	case RequestLine:
		return c.sendRequestLine(ev)
	case ResponseLine:
		return c.sendResponseLine(ev)
	case InformationalResponse:
		return c.sendInformationalResponse(ev)
	case HeaderBlock:
		return c.sendHeaderBlock(ev)
	case Data:
		return c.sendData(ev)
	case EndOfMessage:
		return c.sendEndOfMessage(ev)
	case ConnectionClosed:
		if err := c.applyOur(kindConnectionClosed); err != nil {
			return nil, err
		}
		return nil, nil
	case NeedMoreData, Paused:
		return nil, localErrf("%T is a sentinel, not a sendable event", e)
	default:
		return nil, localErrf("unsendable event type %T", e)
	}
}

func (c *Connection) sendRequestLine(ev RequestLine) ([]byte, error) {
	if c.role != RoleClient {
		return nil, localErrf("%s cannot send a request line", c.role)
	}
	version := ev.Version
	if version == "" {
		version = "HTTP/1.1"
	}
	if !isValidToken(ev.Method) {
		return nil, localErrf("invalid method %q", ev.Method)
	}
	if !isValidTarget(ev.Target) {
		return nil, localErrf("invalid request target %q", ev.Target)
	}
	if !supportedVersion(version) {
		return nil, localErrf("unsupported protocol version %q", version)
	}
	if err := c.applyOur(kindRequestLine); err != nil {
		return nil, err
	}
	c.requestMethod = ev.Method
	c.sendVersion = version
	return []byte(ev.Method + " " + ev.Target + " " + version + "\r\n"), nil
}

func (c *Connection) sendResponseLine(ev ResponseLine) ([]byte, error) {
	if c.role != RoleServer {
		return nil, localErrf("%s cannot send a response line", c.role)
	}
	version := ev.Version
	if version == "" {
		version = "HTTP/1.1"
	}
	if !supportedVersion(version) {
		return nil, localErrf("unsupported protocol version %q", version)
	}
	if ev.StatusCode < 200 || ev.StatusCode > 999 {
		// 1xx goes through InformationalResponse, which carries its own
		// header block.
		return nil, localErrf("invalid final status code %d", ev.StatusCode)
	}
	reason := ev.Reason
	if reason == "" {
		reason = http.StatusText(ev.StatusCode)
	}
	if !isValidReason(reason) {
		return nil, localErrf("invalid reason phrase %q", reason)
	}
	if err := c.applyOur(kindResponseLine); err != nil {
		return nil, err
	}
	c.sendVersion = version
	c.sendStatus = ev.StatusCode
	return []byte(fmt.Sprintf("%s %03d %s\r\n", version, ev.StatusCode, reason)), nil
}

func (c *Connection) sendInformationalResponse(ev InformationalResponse) ([]byte, error) {
	if c.role != RoleServer {
		return nil, localErrf("%s cannot send an informational response", c.role)
	}
	if ev.StatusCode < 100 || ev.StatusCode > 199 {
		return nil, localErrf("informational status code %d out of range", ev.StatusCode)
	}
	if ev.StatusCode == 101 && !c.upgradeOffered {
		return nil, localErrf("cannot send 101: the request proposed no upgrade")
	}
	reason := ev.Reason
	if reason == "" {
		reason = http.StatusText(ev.StatusCode)
	}
	if !isValidReason(reason) {
		return nil, localErrf("invalid reason phrase %q", reason)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %03d %s\r\n", ev.StatusCode, reason)
	if err := writeHeaderLines(&buf, ev.Headers); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	if err := c.applyOur(kindInformationalResponse); err != nil {
		return nil, err
	}
	if ev.StatusCode == 101 {
		c.switchProtocol()
	}
	return buf.Bytes(), nil
}

func (c *Connection) sendHeaderBlock(ev HeaderBlock) ([]byte, error) {
	var f Framing
	var err error
	if c.role == RoleClient {
		f, err = requestFraming(ev.Headers)
	} else {
		f, err = responseFraming(c.requestMethod, c.sendStatus, ev.Headers)
	}
	if err != nil {
		return nil, localErrf("%v", err)
	}

	var buf bytes.Buffer
	if err := writeHeaderLines(&buf, ev.Headers); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")

	if err := c.applyOur(kindHeaderBlock); err != nil {
		return nil, err
	}
	c.noteMessageHeaders(c.sendVersion, ev.Headers)
	if c.role == RoleClient && ev.Headers.Get("Upgrade") != "" {
		c.upgradeOffered = true
	}
	if f.Mode == FramingCloseDelimited {
		c.keepAlive = false
	}
	c.adjustStates()
	c.sendFraming = f
	c.sendRemaining = f.Length

	if c.role == RoleServer && c.requestMethod == "CONNECT" && c.sendStatus >= 200 && c.sendStatus < 300 {
		c.switchProtocol()
	}
	return buf.Bytes(), nil
}

func (c *Connection) sendData(ev Data) ([]byte, error) {
	if err := c.applyOur(kindData); err != nil {
		return nil, err
	}
	switch c.sendFraming.Mode {
	case FramingNoBody:
		return nil, localErrf("message framing declares no body")
	case FramingContentLength:
		if int64(len(ev.Bytes)) > c.sendRemaining {
			return nil, localErrf("body exceeds declared Content-Length by %d bytes",
				int64(len(ev.Bytes))-c.sendRemaining)
		}
		c.sendRemaining -= int64(len(ev.Bytes))
		return append([]byte(nil), ev.Bytes...), nil
	case FramingChunked:
		if len(ev.Bytes) == 0 {
			// An empty chunk would read as the terminal chunk; emit nothing.
			return nil, nil
		}
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "%x\r\n", len(ev.Bytes))
		buf.Write(ev.Bytes)
		buf.WriteString("\r\n")
		return buf.Bytes(), nil
	default: // FramingCloseDelimited
		return append([]byte(nil), ev.Bytes...), nil
	}
}

func (c *Connection) sendEndOfMessage(ev EndOfMessage) ([]byte, error) {
	if c.sendFraming.Mode != FramingChunked && len(ev.Trailers) > 0 {
		return nil, localErrf("trailers require chunked framing, message uses %s", c.sendFraming.Mode)
	}
	if c.sendFraming.Mode == FramingContentLength && c.sendRemaining != 0 {
		return nil, localErrf("message ended %d bytes short of its Content-Length", c.sendRemaining)
	}
	var out []byte
	if c.sendFraming.Mode == FramingChunked {
		var buf bytes.Buffer
		buf.WriteString("0\r\n")
		if err := writeHeaderLines(&buf, ev.Trailers); err != nil {
			return nil, err
		}
		buf.WriteString("\r\n")
		out = buf.Bytes()
	}
	if err := c.applyOur(kindEndOfMessage); err != nil {
		return nil, err
	}
	return out, nil
}

// writeHeaderLines serializes a field block, one "Name: Value" line per entry
// in order. Names must be tokens and values must be clean field content; a
// name or value that could alter framing when reparsed is refused here rather
// than emitted.
func writeHeaderLines(buf *bytes.Buffer, h Headers) error {
	for _, hdr := range h {
		if !isValidToken(hdr.Name) {
			return localErrf("invalid header name %q", hdr.Name)
		}
		if !validHeaderValue(hdr.Value) {
			return localErrf("invalid value for header %q", hdr.Name)
		}
		buf.WriteString(hdr.Name)
		buf.WriteString(": ")
		buf.WriteString(hdr.Value)
		buf.WriteString("\r\n")
	}
	return nil
}
