package h1wire

import (
	"errors"
	"fmt"
	"strings"
)

// FramingMode selects how a message body is delimited on the wire.
type FramingMode int

const (
	// FramingNoBody means the message has no body at all.
	FramingNoBody FramingMode = iota
	// FramingContentLength means exactly Length body bytes follow the
	// header block.
	FramingContentLength
	// FramingChunked means the body is a sequence of size-prefixed chunks
	// ended by a zero-size chunk and optional trailers.
	FramingChunked
	// FramingCloseDelimited means the body runs until the peer closes the
	// connection. Responses only; it makes the connection non-reusable.
	FramingCloseDelimited
)

func (m FramingMode) String() string {
	switch m {
	case FramingNoBody:
		return "no-body"
	case FramingContentLength:
		return "content-length"
	case FramingChunked:
		return "chunked"
	case FramingCloseDelimited:
		return "close-delimited"
	default:
		return "unknown"
	}
}

// Framing is the body delimitation strategy derived once per message from its
// headers, the request method, and the status code. Immutable for the
// message's lifetime; recomputed for the next message in the cycle.
type Framing struct {
	Mode   FramingMode
	Length int64 // body size when Mode is FramingContentLength
}

// requestFraming derives body framing for a request. Requests without
// Transfer-Encoding and without Content-Length have no body.
func requestFraming(h Headers) (Framing, error) {
	f, ok, err := headerFraming(h)
	if err != nil {
		return Framing{}, err
	}
	if !ok {
		return Framing{Mode: FramingNoBody}, nil
	}
	return f, nil
}

// responseFraming derives body framing for a final response to a request with
// the given method. A response with neither Transfer-Encoding nor
// Content-Length is delimited by connection close; the caller must drop
// keep-alive when that mode is chosen.
func responseFraming(requestMethod string, status int, h Headers) (Framing, error) {
	if requestMethod == "HEAD" || status == 204 || status == 304 {
		// The header block may still declare a Content-Length (HEAD
		// commonly does); it describes the body that is not sent, but a
		// contradictory header set is still rejected.
		if _, _, err := headerFraming(h); err != nil {
			return Framing{}, err
		}
		return Framing{Mode: FramingNoBody}, nil
	}
	f, ok, err := headerFraming(h)
	if err != nil {
		return Framing{}, err
	}
	if !ok {
		return Framing{Mode: FramingCloseDelimited}, nil
	}
	return f, nil
}

// headerFraming resolves the Transfer-Encoding and Content-Length portion of
// the framing rules shared by both message kinds. ok reports whether either
// header was present. A message carrying both headers, a non-chunked final
// transfer coding, or disagreeing Content-Length values is a framing
// ambiguity and is rejected outright: ambiguity here is exactly where request
// smuggling lives.
func headerFraming(h Headers) (Framing, bool, error) {
	te := h.Values("Transfer-Encoding")
	cl := h.Values("Content-Length")

	if len(te) > 0 {
		if len(cl) > 0 {
			return Framing{}, false, errors.New("message has both Transfer-Encoding and Content-Length")
		}
		codings := splitCodings(te)
		if len(codings) == 0 {
			return Framing{}, false, errors.New("empty Transfer-Encoding header")
		}
		if codings[len(codings)-1] != "chunked" {
			return Framing{}, false, fmt.Errorf("final transfer coding is %q, not chunked", codings[len(codings)-1])
		}
		for _, coding := range codings[:len(codings)-1] {
			if coding == "chunked" {
				return Framing{}, false, errors.New("chunked transfer coding applied more than once")
			}
		}
		return Framing{Mode: FramingChunked}, true, nil
	}

	if len(cl) > 0 {
		n, err := parseContentLength(cl)
		if err != nil {
			return Framing{}, false, err
		}
		return Framing{Mode: FramingContentLength, Length: n}, true, nil
	}

	return Framing{}, false, nil
}

// splitCodings flattens Transfer-Encoding values into a lowercase coding
// list, splitting comma-separated members and trimming optional whitespace.
func splitCodings(values []string) []string {
	var codings []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part != "" {
				codings = append(codings, part)
			}
		}
	}
	return codings
}

// parseContentLength validates and parses Content-Length values. Exactly one
// value is accepted, and it must be plain decimal digits: signs, whitespace,
// and repeated or comma-joined values are rejected rather than reconciled.
func parseContentLength(values []string) (int64, error) {
	if len(values) != 1 {
		return 0, fmt.Errorf("%d Content-Length headers present", len(values))
	}
	v := values[0]
	if v == "" || strings.ContainsAny(v, ", \t") {
		return 0, fmt.Errorf("invalid Content-Length %q", v)
	}
	var n int64
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid Content-Length %q", v)
		}
		if n > (1<<62)/10 {
			return 0, fmt.Errorf("Content-Length %q overflows", v)
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}
