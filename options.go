package h1wire

// Defaults applied to Options fields left zero.
const (
	DefaultMaxLineBytes   = 16 << 10
	DefaultMaxHeaderBytes = 64 << 10
)

// Options configures protocol limits and leniency for a Connection. The zero
// value is usable; zero fields take the package defaults. Network concerns
// (addresses, TLS, timeouts) have no place here: the engine only ever sees
// bytes the caller supplies.
type Options struct {
	// MaxLineBytes bounds a single start line, header line, or chunk-size
	// line, terminator included. Overruns fail with a RemoteProtocolError
	// marked Exhausted.
	MaxLineBytes int

	// MaxHeaderBytes bounds a complete header or trailer block.
	MaxHeaderBytes int

	// StrictLineEndings rejects bare LF line terminators. The default is
	// lenient: bare LF is accepted as a terminator, matching widespread
	// real-world traffic. A bare CR is never accepted in either mode.
	StrictLineEndings bool
}

func (o *Options) applyDefaults() {
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
}
