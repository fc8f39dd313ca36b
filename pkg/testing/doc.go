// Package testing provides a harness for exercising protocol handlers in
// Go tests.
//
// A Harness is a protocol.App with in-memory route trees. It builds a
// dispatcher from the handlers it is given and serves connections either
// over net.Pipe (Dial) or a loopback listener (Listen).
//
//	func TestEcho(t *testing.T) {
//	    h := sbtest.New(t, text.New(nil))
//	    h.Reply(protocol.ProtocolText, "/echo", 200, "hi")
//
//	    conn := h.Dial()
//	    fmt.Fprintf(conn, "HELO\r\n/echo\r\n")
//	    // read "220 ..." then "200 hi"
//	}
//
// The package name shadows the standard library's testing package; import it
// under an alias such as sbtest.
package testing
