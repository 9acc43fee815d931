// Package wire defines the JSON messages exchanged with managers over the
// secure channel, one message per encrypted frame.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SignMethod is the only request kind the cosigning server understands.
const SignMethod = "sign"

var (
	// ErrMalformedRequest is returned when a frame does not decode to a
	// well-formed request.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnexpectedMethod is returned when the request is well-formed but
	// is not a sign request. The sender is violating the protocol.
	ErrUnexpectedMethod = errors.New("unexpected request method")
)

type signParams struct {
	Tx string `json:"tx"`
}

type request struct {
	Method string     `json:"method"`
	Params signParams `json:"params"`
}

type signResult struct {
	Tx *string `json:"tx"`
}

type response struct {
	Result signResult `json:"result"`
}

// DecodeSignRequest parses one frame and returns the base64-encoded PSBT
// it carries.
func DecodeSignRequest(frame []byte) (string, error) {
	var req request
	if err := json.Unmarshal(frame, &req); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformedRequest, err)
	}
	if req.Method != SignMethod {
		return "", fmt.Errorf("%w: '%s'", ErrUnexpectedMethod, req.Method)
	}
	if req.Params.Tx == "" {
		return "", fmt.Errorf("%w: missing tx", ErrMalformedRequest)
	}
	return req.Params.Tx, nil
}

// EncodeSignRequest builds the frame for a sign request carrying the
// base64-encoded PSBT. Used by manager clients and tests.
func EncodeSignRequest(txBase64 string) ([]byte, error) {
	return json.Marshal(request{
		Method: SignMethod,
		Params: signParams{Tx: txBase64},
	})
}

// EncodeSignResponse builds the response frame. A nil tx means "refused":
// the protocol deliberately does not distinguish why over the wire.
func EncodeSignResponse(txBase64 *string) ([]byte, error) {
	return json.Marshal(response{Result: signResult{Tx: txBase64}})
}

// DecodeSignResponse parses a response frame, returning the base64-encoded
// PSBT or nil for a refusal.
func DecodeSignResponse(frame []byte) (*string, error) {
	var resp response
	if err := json.Unmarshal(frame, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.Result.Tx, nil
}
