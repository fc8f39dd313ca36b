package text

import (
	"fmt"
	"strings"

	"github.com/getmockd/switchboard/pkg/middleware"
	"github.com/getmockd/switchboard/pkg/protocol"
	"github.com/getmockd/switchboard/pkg/route"
)

// Commands of the line protocol.
const (
	CmdHelo   = "HELO"
	CmdQuit   = "QUIT"
	CmdSwitch = "SWITCH"
	CmdPing   = "PING"

	// Method is the request method reported for routed lines.
	Method = "LINE"
)

// Result is the outcome of executing one line.
type Result struct {
	Reply  Line
	Quit   bool
	Switch protocol.Protocol
}

// Exec runs one line. "<path> [body]" lines go through tree; newContext
// builds the request context for a path.
func Exec(line Line, tree *route.Tree, newContext func(path string) *middleware.Context) Result {
	s := strings.TrimSpace(string(line))
	cmd, arg, _ := strings.Cut(s, " ")

	switch strings.ToUpper(cmd) {
	case "":
		return Result{Reply: "400 empty line"}
	case CmdQuit:
		return Result{Reply: "221 bye", Quit: true}
	case CmdPing:
		return Result{Reply: "200 PONG"}
	case CmdHelo:
		return Result{Reply: "250 hello"}
	case CmdSwitch:
		target := strings.TrimSpace(arg)
		if target == "" {
			return Result{Reply: "400 SWITCH needs a protocol"}
		}
		return Result{Reply: Line("101 switching to " + target), Switch: protocol.Protocol(target)}
	}

	if !strings.HasPrefix(cmd, "/") {
		return Result{Reply: Line(fmt.Sprintf("400 unknown command %q", cmd))}
	}
	if tree == nil {
		return Result{Reply: "404 not found"}
	}

	c := newContext(cmd)
	c.Body = []byte(arg)
	resp := tree.Serve(c)
	return Result{Reply: Line(fmt.Sprintf("%d %s", resp.Status, flatten(resp.Body)))}
}

// flatten keeps a reply on one line.
func flatten(b []byte) string {
	r := strings.NewReplacer("\r", `\r`, "\n", `\n`)
	return r.Replace(string(b))
}
