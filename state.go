package h1wire

// Role fixes which side of the connection an instance plays. It is set at
// construction and never changes: clients send requests and parse responses,
// servers the reverse.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return "unknown"
	}
}

// State is a per-direction connection state. Every Connection tracks two
// independent slots: our state, driven by events the local side sends, and
// their state, driven by events parsed from the peer. The two evolve on
// independent but mutually constraining schedules; each side's framing
// decision can depend on the other side's declared intent.
type State int

const (
	// StateIdle awaits a message start line and its header block.
	StateIdle State = iota
	// StateSendBody means the local side owes body data or EndOfMessage.
	StateSendBody
	// StateExpectBody means the peer owes body data or EndOfMessage.
	StateExpectBody
	// StateDone means the current message completed; the direction restarts
	// at StateIdle after StartNextCycle.
	StateDone
	// StateMustClose means the message completed but the connection is not
	// reusable; only closure is legal next.
	StateMustClose
	// StateClosed means the direction is closed for good.
	StateClosed
	// StateSwitchedProtocol is entered after a completed protocol switch
	// (101, or a 2xx answer to CONNECT). Framing no longer applies; any
	// remaining bytes pass through untouched via TrailingData.
	StateSwitchedProtocol
	// StateError marks an unrecoverable protocol violation. The connection
	// accepts nothing further in either direction.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSendBody:
		return "send-body"
	case StateExpectBody:
		return "expect-body"
	case StateDone:
		return "done"
	case StateMustClose:
		return "must-close"
	case StateClosed:
		return "closed"
	case StateSwitchedProtocol:
		return "switched-protocol"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type direction int

const (
	dirSend direction = iota
	dirRecv
)

// eventKind tags events for transition-table lookup. Sentinels have no kind;
// they are never applied to the state machine.
type eventKind int

const (
	kindRequestLine eventKind = iota
	kindResponseLine
	kindInformationalResponse
	kindHeaderBlock
	kindData
	kindEndOfMessage
	kindConnectionClosed
)

func (k eventKind) String() string {
	switch k {
	case kindRequestLine:
		return "RequestLine"
	case kindResponseLine:
		return "ResponseLine"
	case kindInformationalResponse:
		return "InformationalResponse"
	case kindHeaderBlock:
		return "HeaderBlock"
	case kindData:
		return "Data"
	case kindEndOfMessage:
		return "EndOfMessage"
	case kindConnectionClosed:
		return "ConnectionClosed"
	default:
		return "unknown"
	}
}

// sendTransitions and recvTransitions form the explicit transition table: the
// outer key is the current state, the inner key the event kind being applied.
// A missing entry means the event is illegal in that state. The two tables
// differ only in which body state the header block enters. Keep-alive loss
// (Done to MustClose) and protocol switches are state adjustments applied by
// the Connection after a table transition, since they depend on message
// content rather than event kind.
var sendTransitions = map[State]map[eventKind]State{
	StateIdle: {
		kindRequestLine:           StateIdle,
		kindResponseLine:          StateIdle,
		kindInformationalResponse: StateIdle,
		kindHeaderBlock:           StateSendBody,
		kindConnectionClosed:      StateClosed,
	},
	StateSendBody: {
		kindData:         StateSendBody,
		kindEndOfMessage: StateDone,
	},
	StateDone: {
		kindConnectionClosed: StateClosed,
	},
	StateMustClose: {
		kindConnectionClosed: StateClosed,
	},
}

var recvTransitions = map[State]map[eventKind]State{
	StateIdle: {
		kindRequestLine:           StateIdle,
		kindResponseLine:          StateIdle,
		kindInformationalResponse: StateIdle,
		kindHeaderBlock:           StateExpectBody,
		kindConnectionClosed:      StateClosed,
	},
	StateExpectBody: {
		kindData:         StateExpectBody,
		kindEndOfMessage: StateDone,
	},
	StateDone: {
		kindConnectionClosed: StateClosed,
	},
	StateMustClose: {
		kindConnectionClosed: StateClosed,
	},
}

// nextState resolves one transition. startPending reports whether a start
// line was applied in this direction without its header block yet: a
// HeaderBlock is only legal while one is pending, and a start line or closure
// only while one is not. The table cannot express that guard, so it lives
// here.
func nextState(dir direction, cur State, kind eventKind, startPending bool) (State, bool) {
	table := sendTransitions
	if dir == dirRecv {
		table = recvTransitions
	}
	next, ok := table[cur][kind]
	if !ok {
		return 0, false
	}
	switch kind {
	case kindRequestLine, kindResponseLine, kindInformationalResponse, kindConnectionClosed:
		if startPending {
			return 0, false
		}
	case kindHeaderBlock:
		if !startPending {
			return 0, false
		}
	}
	return next, true
}
