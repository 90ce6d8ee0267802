package wirebuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.WriteUint8(7)
	w.WriteUint16(1234)
	w.WriteUint32(0xdeadbeef)
	w.WriteUint64(0x1122334455667788)
	w.WriteInt64(-42)
	w.WriteString("hello")
	w.WriteBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(7), u8)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	require.Equal(t, uint16(1234), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(0x1122334455667788), u64)

	i64, err := r.ReadInt64()
	require.NoError(t, err)
	require.Equal(t, int64(-42), i64)

	s, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	b, err := r.ReadBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, b)

	require.Equal(t, 0, r.Remaining())
}

func TestPlaceholderPatch(t *testing.T) {
	w := NewWriter(32)
	w.WriteString("prefix")
	ph := w.ReservePlaceholder()
	w.WriteString("payload-body")
	w.Patch(ph)

	r := NewReader(w.Bytes())
	prefix, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "prefix", prefix)

	count, err := r.ReadPlaceholder()
	require.NoError(t, err)
	require.Equal(t, uint16(len("payload-body")+4), count) // +4 for the string's own length prefix

	payload, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "payload-body", payload)
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.ReadUint32()
	require.ErrorIs(t, err, ErrShortBuffer)
}
