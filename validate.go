package h1wire

import "golang.org/x/net/http/httpguts"

// isValidToken checks if s contains only valid HTTP token characters.
// RFC 7230: token = 1*tchar
// tchar = "!" / "#" / "$" / "%" / "&" / "'" / "*" / "+" / "-" / "." /
//
//	"^" / "_" / "`" / "|" / "~" / DIGIT / ALPHA
func isValidToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return false
		}
	}
	return true
}

// isTokenChar checks if c is a valid HTTP token character.
func isTokenChar(c byte) bool {
	// ALPHA
	if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
		return true
	}
	// DIGIT
	if c >= '0' && c <= '9' {
		return true
	}
	// Special characters allowed in tokens
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

// isValidTarget checks a request target for the characters that can appear on
// a request line: visible ASCII only, no spaces, no controls. Anything more
// (URI syntax, normalization) is outside framing's concern.
func isValidTarget(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return false
		}
	}
	return true
}

// isValidReason checks a status reason phrase: printable ASCII plus space and
// horizontal tab, so the phrase cannot break the status line it rides on.
func isValidReason(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\t' && (c < ' ' || c == 0x7f) {
			return false
		}
	}
	return true
}

// validHeaderValue checks a header field value for clean field content: no
// control characters that could terminate the line early or smuggle a second
// field when reparsed.
func validHeaderValue(s string) bool {
	return httpguts.ValidHeaderFieldValue(s)
}

// supportedVersion reports whether v names an HTTP version this engine can
// frame. HTTP/2 and later never reach a 1.1 framing layer.
func supportedVersion(v string) bool {
	return v == "HTTP/1.1" || v == "HTTP/1.0"
}
