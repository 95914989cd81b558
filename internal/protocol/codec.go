package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingKind is wrapped by DecodeError when a frame has no msg_type.
var ErrMissingKind = errors.New("missing msg_type")

// EncodeError reports an envelope that could not be serialized.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode envelope: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports a malformed inbound frame. Frame holds a copy of the
// offending payload, truncated for logging.
type DecodeError struct {
	Frame string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes env as a JSON text frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return data, nil
}

// Decode parses a JSON text frame into an envelope. Unknown kinds decode
// successfully; callers decide what to do with them.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &DecodeError{Frame: Preview(string(data), 64), Err: err}
	}
	if env.Kind == "" {
		return Envelope{}, &DecodeError{Frame: Preview(string(data), 64), Err: ErrMissingKind}
	}
	return env, nil
}
