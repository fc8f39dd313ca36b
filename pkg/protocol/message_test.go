package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame is a length-prefixed message: 2-byte big-endian length, payload.
type frame struct{ payload string }

func (f frame) Encode(buf *bytes.Buffer) error {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(f.payload)))
	buf.Write(hdr[:])
	buf.WriteString(f.payload)
	return nil
}

type frameCodec struct{}

func (frameCodec) Decode(buf []byte) (frame, int, error) {
	if len(buf) < 2 {
		return frame{}, 0, ErrNeedMoreData
	}
	n := int(binary.BigEndian.Uint16(buf))
	if len(buf) < 2+n {
		return frame{}, 0, ErrNeedMoreData
	}
	return frame{payload: string(buf[2 : 2+n])}, 2 + n, nil
}

// trickle returns one byte per Read.
type trickle struct{ r io.Reader }

func (t trickle) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return t.r.Read(p)
}

func TestReadMessage(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, WriteMessage(&wire, frame{"hello"}))
	require.NoError(t, WriteMessage(&wire, frame{"world"}))

	r := bufio.NewReaderSize(trickle{&wire}, 16)
	m, err := ReadMessage[frame](r, frameCodec{})
	require.NoError(t, err)
	assert.Equal(t, "hello", m.payload)

	m, err = ReadMessage[frame](r, frameCodec{})
	require.NoError(t, err)
	assert.Equal(t, "world", m.payload)

	_, err = ReadMessage[frame](r, frameCodec{})
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessage_Truncated(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("\x00\x05hel"), 16)
	_, err := ReadMessage[frame](r, frameCodec{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadMessage_TooLarge(t *testing.T) {
	var wire bytes.Buffer
	require.NoError(t, WriteMessage(&wire, frame{strings.Repeat("x", 100)}))

	r := bufio.NewReaderSize(&wire, 16)
	_, err := ReadMessage[frame](r, frameCodec{})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
