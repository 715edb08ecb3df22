package main

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression encoding constants
const (
	encodingGzip    = "gzip"
	encodingDeflate = "deflate"
	encodingZstd    = "zstd"
)

// normalizeEncoding normalizes a Content-Encoding header value.
// Returns the normalized encoding and whether it's a single supported encoding.
// Multiple encodings (e.g., "gzip, br") return ("", false) since we can't partially decode.
func normalizeEncoding(encoding string) (string, bool) {
	encoding = strings.TrimSpace(strings.ToLower(encoding))

	if strings.Contains(encoding, ",") {
		return "", false
	}

	switch encoding {
	case encodingGzip, "x-gzip":
		return encodingGzip, true
	case encodingDeflate:
		return encodingDeflate, true
	case encodingZstd:
		return encodingZstd, true
	default:
		return encoding, false
	}
}

// decompress decompresses data based on Content-Encoding.
// Returns (decompressed data, wasCompressed). If wasCompressed is true but the
// returned data is nil, decompression failed. Unknown encodings return the
// original data untouched.
func decompress(data []byte, encoding string) ([]byte, bool) {
	normalized, supported := normalizeEncoding(encoding)
	if !supported {
		return data, false
	}

	switch normalized {
	case encodingGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, true
		}
		defer func() { _ = gr.Close() }()
		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return nil, true
		}
		return decompressed, true

	case encodingDeflate:
		// deflate can be raw DEFLATE or zlib-wrapped - try raw first
		if decompressed, err := decompressRawDeflate(data); err == nil {
			return decompressed, true
		}
		if decompressed, err := decompressZlib(data); err == nil {
			return decompressed, true
		}
		return nil, true

	case encodingZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, true
		}
		defer zr.Close()
		decompressed, err := io.ReadAll(zr)
		if err != nil {
			return nil, true
		}
		return decompressed, true

	default:
		return data, false
	}
}

func decompressRawDeflate(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = fr.Close() }()
	return io.ReadAll(fr)
}

func decompressZlib(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

// previewBody returns a UTF-8 safe preview of the body.
// Returns "<BINARY:N Bytes>" for non-UTF-8 content, truncates at maxLen runes.
func previewBody(body []byte, maxLen int) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return "<BINARY:" + strconv.Itoa(len(body)) + " Bytes>"
	}
	s := string(body)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	// Truncate at rune boundary
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
