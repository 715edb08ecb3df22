package h1wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainEvents pulls events until the parser reports backpressure, a pause, or
// connection closure.
func drainEvents(t *testing.T, c *Connection) []Event {
	t.Helper()

	var events []Event
	for {
		ev, err := c.NextEvent()
		require.NoError(t, err)
		switch ev.(type) {
		case NeedMoreData, Paused:
			return events
		}
		events = append(events, ev)
		if _, ok := ev.(ConnectionClosed); ok {
			return events
		}
	}
}

func recvEvents(t *testing.T, c *Connection, input string) []Event {
	t.Helper()

	require.NoError(t, c.ReceiveData([]byte(input)))
	return drainEvents(t, c)
}

func TestNextEventSimpleRequest(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	events := recvEvents(t, c, "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")

	require.Equal(t, []Event{
		RequestLine{Method: "GET", Target: "/", Version: "HTTP/1.1"},
		HeaderBlock{Headers: Headers{{Name: "Host", Value: "example.com"}}},
		EndOfMessage{},
	}, events)
	assert.Equal(t, StateDone, c.TheirState())
	assert.Equal(t, StateIdle, c.OurState())
}

func TestNextEventIncremental(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	require.NoError(t, c.ReceiveData([]byte("GET /index.html HT")))

	// Starved calls are idempotent: nothing is consumed, nothing changes.
	for i := 0; i < 3; i++ {
		ev, err := c.NextEvent()
		require.NoError(t, err)
		assert.Equal(t, NeedMoreData{}, ev)
	}

	events := recvEvents(t, c, "TP/1.1\r\nHost: x\r\n")
	require.Equal(t, []Event{
		RequestLine{Method: "GET", Target: "/index.html", Version: "HTTP/1.1"},
	}, events)

	events = recvEvents(t, c, "\r\n")
	require.Equal(t, []Event{
		HeaderBlock{Headers: Headers{{Name: "Host", Value: "x"}}},
		EndOfMessage{},
	}, events)
}

func TestNextEventRequestWithBody(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	events := recvEvents(t, c,
		"POST /api/data HTTP/1.1\r\nHost: x\r\nContent-Length: 13\r\n\r\nHello, World!")

	require.Len(t, events, 4)
	assert.Equal(t, RequestLine{Method: "POST", Target: "/api/data", Version: "HTTP/1.1"}, events[0])
	assert.Equal(t, Data{Bytes: []byte("Hello, World!")}, events[2])
	assert.Equal(t, EndOfMessage{}, events[3])
}

func TestNextEventBodySplitAcrossReceives(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	events := recvEvents(t, c, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nhell")
	require.Len(t, events, 3)
	assert.Equal(t, Data{Bytes: []byte("hell")}, events[2])
	assert.Equal(t, StateExpectBody, c.TheirState())

	events = recvEvents(t, c, "o worldEXTRA")
	require.Equal(t, []Event{
		Data{Bytes: []byte("o world")},
		EndOfMessage{},
	}, events, "body must stop exactly at the declared length")
	assert.Equal(t, StateDone, c.TheirState())
}

func TestNextEventChunked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantData []string
		trailers Headers
	}{
		{
			name:     "single_chunk",
			body:     "5\r\nhello\r\n0\r\n\r\n",
			wantData: []string{"hello"},
		},
		{
			name:     "multiple_chunks",
			body:     "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n",
			wantData: []string{"hello", " world"},
		},
		{
			name:     "chunk_extension_ignored",
			body:     "5;name=value\r\nhello\r\n0\r\n\r\n",
			wantData: []string{"hello"},
		},
		{
			name:     "uppercase_hex_size",
			body:     "A\r\n0123456789\r\n0\r\n\r\n",
			wantData: []string{"0123456789"},
		},
		{
			name:     "trailers",
			body:     "5\r\nhello\r\n0\r\nX-Checksum: abc\r\n\r\n",
			wantData: []string{"hello"},
			trailers: Headers{{Name: "X-Checksum", Value: "abc"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConnection(RoleClient, Options{})
			events := recvEvents(t, c,
				"HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"+tt.body)

			require.Len(t, events, 3+len(tt.wantData))
			assert.Equal(t, ResponseLine{Version: "HTTP/1.1", StatusCode: 200, Reason: "OK"}, events[0])
			for i, want := range tt.wantData {
				assert.Equal(t, Data{Bytes: []byte(want)}, events[2+i])
			}
			assert.Equal(t, EndOfMessage{Trailers: tt.trailers}, events[len(events)-1])
		})
	}
}

func TestNextEventBareLF(t *testing.T) {
	t.Parallel()

	input := "GET / HTTP/1.1\nHost: x\n\n"

	t.Run("lenient_default", func(t *testing.T) {
		c := NewConnection(RoleServer, Options{})
		events := recvEvents(t, c, input)
		require.Len(t, events, 3)
	})

	t.Run("strict", func(t *testing.T) {
		c := NewConnection(RoleServer, Options{StrictLineEndings: true})
		require.NoError(t, c.ReceiveData([]byte(input)))
		_, err := c.NextEvent()
		var remoteErr *RemoteProtocolError
		require.ErrorAs(t, err, &remoteErr)
	})
}

func TestNextEventMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		role  Role
		input string
	}{
		{
			name:  "request_line_two_parts",
			role:  RoleServer,
			input: "GET /\r\n",
		},
		{
			name:  "empty_start_line",
			role:  RoleServer,
			input: "\r\nGET / HTTP/1.1\r\n",
		},
		{
			name:  "unsupported_version",
			role:  RoleServer,
			input: "GET / HTTP/2.0\r\n",
		},
		{
			name:  "method_not_a_token",
			role:  RoleServer,
			input: "G@T / HTTP/1.1\r\n",
		},
		{
			name:  "target_with_control_byte",
			role:  RoleServer,
			input: "GET /\x01 HTTP/1.1\r\n",
		},
		{
			name:  "header_without_colon",
			role:  RoleServer,
			input: "GET / HTTP/1.1\r\nHost example.com\r\n\r\n",
		},
		{
			name:  "whitespace_before_colon",
			role:  RoleServer,
			input: "GET / HTTP/1.1\r\nHost : example.com\r\n\r\n",
		},
		{
			name:  "obsolete_line_folding",
			role:  RoleServer,
			input: "GET / HTTP/1.1\r\nHost: a\r\n b\r\n\r\n",
		},
		{
			name:  "stray_cr_in_line",
			role:  RoleServer,
			input: "GET / HTTP/1.1\r\nHost: a\rb\r\n\r\n",
		},
		{
			name:  "both_te_and_cl",
			role:  RoleServer,
			input: "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\nContent-Length: 5\r\n\r\n",
		},
		{
			name:  "non_chunked_final_coding",
			role:  RoleServer,
			input: "POST / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n",
		},
		{
			name:  "duplicate_content_length",
			role:  RoleServer,
			input: "POST / HTTP/1.1\r\nContent-Length: 5\r\nContent-Length: 6\r\n\r\n",
		},
		{
			name:  "bad_chunk_size",
			role:  RoleServer,
			input: "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n",
		},
		{
			name:  "missing_crlf_after_chunk",
			role:  RoleServer,
			input: "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhelloX\r\n",
		},
		{
			name:  "status_line_one_part",
			role:  RoleClient,
			input: "HTTP/1.1\r\n",
		},
		{
			name:  "status_code_not_numeric",
			role:  RoleClient,
			input: "HTTP/1.1 2OO OK\r\n",
		},
		{
			name:  "status_code_two_digits",
			role:  RoleClient,
			input: "HTTP/1.1 99 Odd\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConnection(tt.role, Options{})
			require.NoError(t, c.ReceiveData([]byte(tt.input)))

			var err error
			for err == nil {
				var ev Event
				ev, err = c.NextEvent()
				if _, starved := ev.(NeedMoreData); starved {
					t.Fatal("parser stalled instead of rejecting input")
				}
			}

			var remoteErr *RemoteProtocolError
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, StateError, c.TheirState())
			assert.Equal(t, StateError, c.OurState())
		})
	}
}

func TestNextEventLimits(t *testing.T) {
	t.Parallel()

	t.Run("line_too_long", func(t *testing.T) {
		c := NewConnection(RoleServer, Options{MaxLineBytes: 64})
		require.NoError(t, c.ReceiveData([]byte("GET /"+strings.Repeat("a", 100))))

		_, err := c.NextEvent()
		var remoteErr *RemoteProtocolError
		require.ErrorAs(t, err, &remoteErr)
		assert.True(t, remoteErr.Exhausted)
	})

	t.Run("header_block_too_large", func(t *testing.T) {
		c := NewConnection(RoleServer, Options{MaxHeaderBytes: 64})
		require.NoError(t, c.ReceiveData([]byte(
			"GET / HTTP/1.1\r\nA: "+strings.Repeat("a", 40)+"\r\nB: "+strings.Repeat("b", 40)+"\r\n\r\n")))

		_, err := c.NextEvent()
		for err == nil {
			_, err = c.NextEvent()
		}
		var remoteErr *RemoteProtocolError
		require.ErrorAs(t, err, &remoteErr)
		assert.True(t, remoteErr.Exhausted)
	})
}

func TestNextEventTruncatedBody(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	events := recvEvents(t, c, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\nhello")
	require.Len(t, events, 3)

	require.NoError(t, c.ReceiveData(nil))
	_, err := c.NextEvent()
	var remoteErr *RemoteProtocolError
	require.ErrorAs(t, err, &remoteErr)

	// The failure is sticky across the whole connection.
	_, again := c.NextEvent()
	assert.Equal(t, err, again)
	var localErr *LocalProtocolError
	assert.ErrorAs(t, c.ReceiveData([]byte("more")), &localErr)
}

func TestNextEventCleanClose(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleServer, Options{})
	require.NoError(t, c.ReceiveData(nil))

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, ConnectionClosed{}, ev)
	assert.Equal(t, StateClosed, c.TheirState())

	// Repeated calls keep reporting closure.
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, ConnectionClosed{}, ev)
}

func TestNextEventCloseDelimitedResponse(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleClient, Options{})
	events := recvEvents(t, c, "HTTP/1.1 200 OK\r\nServer: old\r\n\r\nfirst ")
	require.Len(t, events, 3)
	assert.Equal(t, Data{Bytes: []byte("first ")}, events[2])

	events = recvEvents(t, c, "second")
	require.Equal(t, []Event{Data{Bytes: []byte("second")}}, events)

	require.NoError(t, c.ReceiveData(nil))
	events = drainEvents(t, c)
	require.Equal(t, []Event{EndOfMessage{}, ConnectionClosed{}}, events)
	assert.Equal(t, StateClosed, c.TheirState())
}

func TestNextEventInformationalResponses(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleClient, Options{})
	events := recvEvents(t, c,
		"HTTP/1.1 100 Continue\r\n\r\nHTTP/1.1 204 No Content\r\n\r\n")

	require.Equal(t, []Event{
		InformationalResponse{StatusCode: 100, Reason: "Continue"},
		ResponseLine{Version: "HTTP/1.1", StatusCode: 204, Reason: "No Content"},
		HeaderBlock{},
		EndOfMessage{},
	}, events)
}

func TestNextEventProtocolSwitch(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleClient, Options{})
	_, err := c.Send(RequestLine{Method: "GET", Target: "/chat"})
	require.NoError(t, err)
	_, err = c.Send(HeaderBlock{Headers: Headers{
		{Name: "Host", Value: "x"},
		{Name: "Upgrade", Value: "websocket"},
		{Name: "Connection", Value: "Upgrade"},
	}})
	require.NoError(t, err)
	_, err = c.Send(EndOfMessage{})
	require.NoError(t, err)

	events := recvEvents(t, c,
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\n\r\n\x00raw frames")
	require.Equal(t, []Event{
		InformationalResponse{
			StatusCode: 101,
			Reason:     "Switching Protocols",
			Headers:    Headers{{Name: "Upgrade", Value: "websocket"}},
		},
	}, events)

	assert.Equal(t, StateSwitchedProtocol, c.OurState())
	assert.Equal(t, StateSwitchedProtocol, c.TheirState())

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, Paused{}, ev)

	trailing, eof := c.TrailingData()
	assert.Equal(t, []byte("\x00raw frames"), trailing)
	assert.False(t, eof)
}

func TestNextEventUnsolicited101(t *testing.T) {
	t.Parallel()

	c := NewConnection(RoleClient, Options{})
	require.NoError(t, c.ReceiveData([]byte("HTTP/1.1 101 Switching Protocols\r\n\r\n")))

	_, err := c.NextEvent()
	var remoteErr *RemoteProtocolError
	require.ErrorAs(t, err, &remoteErr)
}
