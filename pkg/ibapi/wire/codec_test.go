package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/ibkr-collector/pkg/ibapi/iberr"
)

func TestEncode_Layout(t *testing.T) {
	frame, err := Encode(3, "7", "", "AAPL")
	require.NoError(t, err)

	payload := "3\x007\x00\x00AAPL\x00"
	require.Len(t, frame, HeaderSize+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(frame[:HeaderSize]))
	assert.Equal(t, payload, string(frame[HeaderSize:]))
}

func TestEncode_DelimiterInField(t *testing.T) {
	_, err := Encode(3, "ok", "bad\x00value")
	require.ErrorIs(t, err, iberr.ErrInvalidField)

	var fe *iberr.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Index)
}

func TestDecodeNext_RoundTrip(t *testing.T) {
	frame, err := Encode(9, "8", "", "SMART")
	require.NoError(t, err)

	payload, rest, err := DecodeNext(frame)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, []string{"9", "8", "", "SMART"}, Fields(payload))
}

func TestDecodeNext_NeedMoreData(t *testing.T) {
	frame, err := Encode(49, "1", "1700000000")
	require.NoError(t, err)

	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"partial header", frame[:2]},
		{"header only", frame[:HeaderSize]},
		{"partial payload", frame[:len(frame)-1]},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, rest, err := DecodeNext(c.buf)
			require.ErrorIs(t, err, iberr.ErrNeedMoreData)
			assert.Equal(t, len(c.buf), len(rest))
		})
	}
}

func TestDecodeNext_Malformed(t *testing.T) {
	zero := []byte{0, 0, 0, 0, 'x'}
	huge := []byte{0x7f, 0xff, 0xff, 0xff}
	unterminated := Frame([]byte("49\x001"))

	for name, buf := range map[string][]byte{"zero": zero, "huge": huge, "unterminated": unterminated} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeNext(buf)
			require.ErrorIs(t, err, iberr.ErrMalformedFrame)
		})
	}
}

func TestDecodeNext_Stream(t *testing.T) {
	a, _ := Encode(9, "1", "5")
	b, _ := Encode(4, "2", "-1", "2104", "Market data farm connection is OK")
	buf := append(append([]byte{}, a...), b...)

	p1, rest, err := DecodeNext(buf)
	require.NoError(t, err)
	assert.Equal(t, "9", Fields(p1)[0])

	p2, rest, err := DecodeNext(rest)
	require.NoError(t, err)
	assert.Equal(t, "Market data farm connection is OK", Fields(p2)[4])
	assert.Empty(t, rest)
}

func TestFields_EmptyFieldsPreserved(t *testing.T) {
	assert.Equal(t, []string{"1", "", "", "x"}, Fields([]byte("1\x00\x00\x00x\x00")))
	assert.Equal(t, []string{""}, Fields([]byte{0}))
	assert.Nil(t, Fields(nil))
}

func TestHello(t *testing.T) {
	out, err := Hello(100, 150, "")
	require.NoError(t, err)
	assert.Equal(t, APIPrefix, string(out[:len(APIPrefix)]))

	payload, rest, err := decodeRaw(out[len(APIPrefix):])
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, "v100..150", string(payload))

	out, err = Hello(100, 163, "+PACEAPI")
	require.NoError(t, err)
	payload, _, err = decodeRaw(out[len(APIPrefix):])
	require.NoError(t, err)
	assert.Equal(t, "v100..163 +PACEAPI", string(payload))

	_, err = Hello(150, 100, "")
	require.ErrorIs(t, err, iberr.ErrHandshakeFailed)
}

func TestParseServerHello(t *testing.T) {
	h, err := ParseServerHello([]byte("120\x0020240102 10:00:00 EST\x00"))
	require.NoError(t, err)
	assert.Equal(t, 120, h.Version)
	assert.Equal(t, "20240102 10:00:00 EST", h.ConnectionTime)

	_, err = ParseServerHello([]byte("abc\x00"))
	require.ErrorIs(t, err, iberr.ErrHandshakeFailed)

	_, err = ParseServerHello([]byte{0})
	require.ErrorIs(t, err, iberr.ErrHandshakeFailed)
}

// decodeRaw splits a length-prefixed payload that is not delimiter terminated.
func decodeRaw(buf []byte) ([]byte, []byte, error) {
	if len(buf) < HeaderSize {
		return nil, buf, iberr.ErrNeedMoreData
	}
	n := int(binary.BigEndian.Uint32(buf))
	if len(buf) < HeaderSize+n {
		return nil, buf, iberr.ErrNeedMoreData
	}
	return buf[HeaderSize : HeaderSize+n], buf[HeaderSize+n:], nil
}
