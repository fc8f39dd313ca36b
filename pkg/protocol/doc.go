// Package protocol detects the wire protocol of inbound connections and
// drives the per-connection handler loop.
//
// # Detection
//
// Handlers are registered in priority order. The Dispatcher peeks at the
// first bytes of a connection and asks each handler's Detect in turn; the
// first one that answers true owns the connection. Detect must be pure and
// must return false when the prefix is too short to decide. A panicking
// detector counts as a non-match.
//
// # Handler loop
//
// Serve is called repeatedly on the same session until it reports a
// terminal status:
//
//	Established/Connected/Upgraded  -> Serve again (keep-alive)
//	Stopped                         -> the dispatcher closes the connection
//	SwitchProtocol(tag)             -> the session moves to the handler for tag,
//	                                   which starts with status Upgraded
//
// A returned error is a HandlerFault: the connection is closed and the error
// returned from Dispatcher.Serve.
//
// # Implementing a handler
//
//	type Echo struct{}
//
//	func (Echo) Protocol() protocol.Protocol  { return "echo" }
//	func (Echo) Detect(prefix []byte) bool    { return bytes.HasPrefix(prefix, []byte("ECHO")) }
//	func (Echo) Serve(s *protocol.Session) (protocol.Status, error) {
//	    line, err := s.Conn.Reader().ReadString('\n')
//	    if err != nil {
//	        return protocol.Stopped, nil
//	    }
//	    _, err = s.Conn.Write([]byte(line))
//	    return protocol.Connected, err
//	}
package protocol
