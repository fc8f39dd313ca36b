package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// Message is a protocol frame that can encode itself.
type Message interface {
	Encode(buf *bytes.Buffer) error
}

// Codec decodes frames of type M from the front of a byte slice. Decode
// returns the number of bytes the message used, or ErrNeedMoreData when buf
// holds only part of a message.
type Codec[M Message] interface {
	Decode(buf []byte) (msg M, n int, err error)
}

// ReadMessage decodes the next message from r, reading more input as the
// codec asks for it. Messages must fit into r's buffer.
func ReadMessage[M Message](r *bufio.Reader, codec Codec[M]) (M, error) {
	var zero M
	want := 1
	for {
		if _, err := r.Peek(want); err != nil {
			switch {
			case errors.Is(err, bufio.ErrBufferFull):
				return zero, ErrMessageTooLarge
			case errors.Is(err, io.EOF) && r.Buffered() > 0:
				return zero, io.ErrUnexpectedEOF
			default:
				return zero, err
			}
		}
		buf, _ := r.Peek(r.Buffered())

		msg, n, err := codec.Decode(buf)
		switch {
		case err == nil:
			if _, err := r.Discard(n); err != nil {
				return zero, err
			}
			return msg, nil
		case errors.Is(err, ErrNeedMoreData):
			if len(buf) >= r.Size() {
				return zero, ErrMessageTooLarge
			}
			want = len(buf) + 1
		default:
			return zero, err
		}
	}
}

// WriteMessage encodes m and writes it to w.
func WriteMessage(w io.Writer, m Message) error {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
