package protocol

// Protocol identifies a protocol handler.
type Protocol string

// Bundled protocol tags.
const (
	ProtocolHTTP      Protocol = "http"
	ProtocolH2C       Protocol = "h2c"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolMQTT      Protocol = "mqtt"
	ProtocolText      Protocol = "text"
	ProtocolMux       Protocol = "mux"
)

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// LocalUpgradeRequest is the session locals key under which the HTTP
// handler stores the *http.Request that asked for a protocol upgrade.
const LocalUpgradeRequest = "protocol.upgrade_request"
