package text

import (
	"bytes"
	"strings"

	"github.com/getmockd/switchboard/pkg/protocol"
)

// Line is one CRLF (or LF) terminated line without its terminator.
type Line string

// Encode implements protocol.Message.
func (l Line) Encode(buf *bytes.Buffer) error {
	buf.WriteString(string(l))
	buf.WriteString("\r\n")
	return nil
}

// Codec decodes Lines.
type Codec struct{}

// Decode implements protocol.Codec.
func (Codec) Decode(buf []byte) (Line, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return "", 0, protocol.ErrNeedMoreData
	}
	return Line(strings.TrimSuffix(string(buf[:i]), "\r")), i + 1, nil
}
