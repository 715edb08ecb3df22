// Package capture records parsed HTTP/1.1 event streams as compact,
// persistable flow exchanges. Data payloads are copied on capture since
// parse-side byte slices are only views into the engine's buffer.
package capture

import (
	"fmt"
	"time"

	"github.com/go-appsec/h1wire"
)

// Record kinds.
const (
	KindRequestLine   = "request-line"
	KindResponseLine  = "response-line"
	KindInformational = "informational"
	KindHeaders       = "headers"
	KindData          = "data"
	KindEndOfMessage  = "end-of-message"
	KindClosed        = "closed"
)

// Field is a captured header or trailer line.
type Field struct {
	Name  string `msgpack:"n"`
	Value string `msgpack:"v"`
}

// Record is one captured protocol event, flattened for serialization. Only
// the fields relevant to Kind are populated.
type Record struct {
	Kind       string  `msgpack:"k"`
	Method     string  `msgpack:"m,omitempty"`
	Target     string  `msgpack:"t,omitempty"`
	Version    string  `msgpack:"ver,omitempty"`
	StatusCode int     `msgpack:"s,omitempty"`
	Reason     string  `msgpack:"r,omitempty"`
	Fields     []Field `msgpack:"f,omitempty"`
	Body       []byte  `msgpack:"b,omitempty"`
}

// Exchange is one captured message flow: the events one parser connection
// produced, in wire order.
type Exchange struct {
	FlowID     string    `msgpack:"fid"`
	Role       string    `msgpack:"role"` // role of the connection that parsed the flow
	CapturedAt time.Time `msgpack:"ca"`
	Records    []Record  `msgpack:"recs"`
}

// FromEvent converts a protocol event into a Record. Sentinel events
// (NeedMoreData, Paused) carry no protocol content and report ok false.
func FromEvent(ev h1wire.Event) (Record, bool) {
	switch e := ev.(type) {
	case h1wire.RequestLine:
		return Record{Kind: KindRequestLine, Method: e.Method, Target: e.Target, Version: e.Version}, true
	case h1wire.ResponseLine:
		return Record{Kind: KindResponseLine, Version: e.Version, StatusCode: e.StatusCode, Reason: e.Reason}, true
	case h1wire.InformationalResponse:
		return Record{
			Kind:       KindInformational,
			StatusCode: e.StatusCode,
			Reason:     e.Reason,
			Fields:     captureFields(e.Headers),
		}, true
	case h1wire.HeaderBlock:
		return Record{Kind: KindHeaders, Fields: captureFields(e.Headers)}, true
	case h1wire.Data:
		return Record{Kind: KindData, Body: append([]byte(nil), e.Bytes...)}, true
	case h1wire.EndOfMessage:
		return Record{Kind: KindEndOfMessage, Fields: captureFields(e.Trailers)}, true
	case h1wire.ConnectionClosed:
		return Record{Kind: KindClosed}, true
	default:
		return Record{}, false
	}
}

// Event reconstructs the protocol event a Record was captured from.
func (r Record) Event() (h1wire.Event, error) {
	switch r.Kind {
	case KindRequestLine:
		return h1wire.RequestLine{Method: r.Method, Target: r.Target, Version: r.Version}, nil
	case KindResponseLine:
		return h1wire.ResponseLine{Version: r.Version, StatusCode: r.StatusCode, Reason: r.Reason}, nil
	case KindInformational:
		return h1wire.InformationalResponse{
			StatusCode: r.StatusCode,
			Reason:     r.Reason,
			Headers:    engineHeaders(r.Fields),
		}, nil
	case KindHeaders:
		return h1wire.HeaderBlock{Headers: engineHeaders(r.Fields)}, nil
	case KindData:
		return h1wire.Data{Bytes: r.Body}, nil
	case KindEndOfMessage:
		return h1wire.EndOfMessage{Trailers: engineHeaders(r.Fields)}, nil
	case KindClosed:
		return h1wire.ConnectionClosed{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", r.Kind)
	}
}

// FromEvents builds an exchange from a parsed event sequence, skipping
// sentinels. FlowID and CapturedAt are assigned when the exchange enters a
// Store.
func FromEvents(role h1wire.Role, events []h1wire.Event) *Exchange {
	ex := &Exchange{Role: role.String()}
	for _, ev := range events {
		if rec, ok := FromEvent(ev); ok {
			ex.Records = append(ex.Records, rec)
		}
	}
	return ex
}

// Events reconstructs the exchange's full event sequence.
func (e *Exchange) Events() ([]h1wire.Event, error) {
	events := make([]h1wire.Event, 0, len(e.Records))
	for i, rec := range e.Records {
		ev, err := rec.Event()
		if err != nil {
			return nil, fmt.Errorf("record %d of flow %s: %w", i, e.FlowID, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func captureFields(h h1wire.Headers) []Field {
	if len(h) == 0 {
		return nil
	}
	fields := make([]Field, len(h))
	for i, hdr := range h {
		fields[i] = Field{Name: hdr.Name, Value: hdr.Value}
	}
	return fields
}

func engineHeaders(fields []Field) h1wire.Headers {
	if len(fields) == 0 {
		return nil
	}
	h := make(h1wire.Headers, len(fields))
	for i, f := range fields {
		h[i] = h1wire.Header{Name: f.Name, Value: f.Value}
	}
	return h
}
