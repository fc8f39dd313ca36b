package protocol

import "fmt"

// StatusKind enumerates connection states.
type StatusKind uint8

const (
	KindEstablished StatusKind = iota
	KindConnected
	KindStopped
	KindSwitchProtocol
	KindUpgraded
)

func (k StatusKind) String() string {
	switch k {
	case KindEstablished:
		return "established"
	case KindConnected:
		return "connected"
	case KindStopped:
		return "stopped"
	case KindSwitchProtocol:
		return "switch_protocol"
	case KindUpgraded:
		return "upgraded"
	default:
		return fmt.Sprintf("status(%d)", uint8(k))
	}
}

// Status is the state of a connection as reported by its handler. Only
// SwitchProtocol carries a target.
type Status struct {
	kind   StatusKind
	target Protocol
}

// Fixed statuses.
var (
	Established = Status{kind: KindEstablished}
	Connected   = Status{kind: KindConnected}
	Stopped     = Status{kind: KindStopped}
	Upgraded    = Status{kind: KindUpgraded}
)

// SwitchTo requests a handoff of the connection to the handler for target.
func SwitchTo(target Protocol) Status {
	return Status{kind: KindSwitchProtocol, target: target}
}

// Kind returns the status kind.
func (s Status) Kind() StatusKind { return s.kind }

// Target returns the handoff target of a SwitchProtocol status.
func (s Status) Target() (Protocol, bool) {
	return s.target, s.kind == KindSwitchProtocol
}

// FramePassed records that a complete frame went through the connection.
// It moves Established to Connected and leaves every other status alone.
func (s Status) FramePassed() Status {
	if s.kind == KindEstablished {
		return Connected
	}
	return s
}

func (s Status) String() string {
	if s.kind == KindSwitchProtocol {
		return fmt.Sprintf("switch_protocol(%s)", s.target)
	}
	return s.kind.String()
}
