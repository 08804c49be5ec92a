package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	frameDelim = '\n'

	// MaxFrameSize bounds a single encoded frame, delimiter included.
	MaxFrameSize = 8 << 20
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one decoded command.
type Frame struct {
	Op   string
	Args []json.RawMessage
}

// EncodeFrame encodes op and args as a delimited frame.
func EncodeFrame(op string, args ...any) ([]byte, error) {
	if op == "" {
		return nil, fmt.Errorf("%w: empty operation name", ErrMalformedFrame)
	}
	elems := make([]any, 0, len(args)+1)
	elems = append(elems, op)
	elems = append(elems, args...)

	b, err := json.Marshal(elems)
	if err != nil {
		return nil, fmt.Errorf("encoding %q frame: %w", op, err)
	}
	if len(b)+1 > MaxFrameSize {
		return nil, fmt.Errorf("%w: %q frame is %d bytes, limit is %d", ErrMalformedFrame, op, len(b)+1, MaxFrameSize)
	}
	return append(b, frameDelim), nil
}

// DecodeFrame decodes a single frame. The trailing delimiter is optional.
func DecodeFrame(b []byte) (Frame, error) {
	b = bytes.TrimSuffix(b, []byte{frameDelim})

	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		return Frame{}, fmt.Errorf("%w: %s", ErrMalformedFrame, err)
	}
	if len(elems) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}
	var op string
	if err := json.Unmarshal(elems[0], &op); err != nil {
		return Frame{}, fmt.Errorf("%w: operation name is not a string", ErrMalformedFrame)
	}
	if op == "" {
		return Frame{}, fmt.Errorf("%w: empty operation name", ErrMalformedFrame)
	}
	return Frame{Op: op, Args: elems[1:]}, nil
}
