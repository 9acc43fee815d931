package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignRequestRoundtrip(t *testing.T) {
	frame, err := EncodeSignRequest("cHNidP8BAgMEBQ==")
	require.NoError(t, err)

	tx, err := DecodeSignRequest(frame)
	require.NoError(t, err)
	require.Equal(t, "cHNidP8BAgMEBQ==", tx)
}

func TestDecodeSignRequestErrors(t *testing.T) {
	_, err := DecodeSignRequest([]byte("not json"))
	require.ErrorIs(t, err, ErrMalformedRequest)

	_, err = DecodeSignRequest([]byte(`{"method":"sign","params":{}}`))
	require.ErrorIs(t, err, ErrMalformedRequest)

	// A well-formed frame of the wrong kind is a protocol violation, kept
	// distinct so the server can log it as such.
	_, err = DecodeSignRequest([]byte(`{"method":"get_history","params":{}}`))
	require.ErrorIs(t, err, ErrUnexpectedMethod)
}

func TestSignResponseRoundtrip(t *testing.T) {
	signed := "cHNidP8BAgMEBQ=="
	frame, err := EncodeSignResponse(&signed)
	require.NoError(t, err)

	tx, err := DecodeSignResponse(frame)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, signed, *tx)

	// A refusal is a null tx; the wire does not say why.
	frame, err = EncodeSignResponse(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"result":{"tx":null}}`, string(frame))

	tx, err = DecodeSignResponse(frame)
	require.NoError(t, err)
	require.Nil(t, tx)
}
