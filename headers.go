package h1wire

import (
	"strings"

	"github.com/go-analyze/bulk"
	"golang.org/x/net/http/httpguts"
)

// Header is a single field line. Name keeps its original casing; Value is
// trimmed of leading and trailing whitespace.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered field list with case-insensitive helpers. Order and
// duplicates are preserved; framing decisions depend on both.
type Headers []Header

// Get returns the first value with the given name (case-insensitive), or
// empty string if not present.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns every value with the given name (case-insensitive), in
// order. Returns nil if none are present.
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Set replaces the first header with the given name (case-insensitive), or
// appends a new one if not present.
func (h *Headers) Set(name, value string) {
	for i, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Remove removes all headers with the given name (case-insensitive).
func (h *Headers) Remove(name string) {
	*h = bulk.SliceFilterInPlace(func(hdr Header) bool {
		return !strings.EqualFold(hdr.Name, name)
	}, *h)
}

// containsToken reports whether any value of the named header contains the
// given token in its comma-separated list (case-insensitive), per the
// Connection header matching rules.
func (h Headers) containsToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}
