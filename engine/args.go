package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadArgs = errors.New("invalid construction arguments")

// SizeHint tells the engine how to treat a window size.
type SizeHint int

const (
	// HintNone means width and height are the default size.
	HintNone SizeHint = iota
	// HintMin means width and height are minimum bounds.
	HintMin
	// HintMax means width and height are maximum bounds.
	HintMax
	// HintFixed means the window cannot be resized by the user.
	HintFixed
)

func (h SizeHint) String() string {
	switch h {
	case HintNone:
		return "none"
	case HintMin:
		return "min"
	case HintMax:
		return "max"
	case HintFixed:
		return "fixed"
	}
	return fmt.Sprintf("SizeHint(%d)", int(h))
}

func (h SizeHint) Valid() bool {
	return h >= HintNone && h <= HintFixed
}

type Size struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Hint   SizeHint `json:"hint"`
}

func (s Size) Validate() error {
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("negative size %dx%d", s.Width, s.Height)
	}
	if !s.Hint.Valid() {
		return fmt.Errorf("unknown size hint %d", int(s.Hint))
	}
	return nil
}

// Handle is an opaque native window pointer.
type Handle uint64

var DefaultSize = Size{Width: 1024, Height: 768, Hint: HintNone}

// ConstructionArgs are the positional arguments of the native engine's constructor.
// The engine has two constructor forms:
//
//	[debug, size, window]  a new window, optionally parented to an existing native window
//	[handle]               wrap an existing native web view handle
//
// Wrap selects the second form. The encoded positions never change.
type ConstructionArgs struct {
	Wrap *Handle

	Debug  bool
	Size   Size
	Window *Handle
}

// DefaultConstructionArgs matches the engine's own defaults for a new window.
func DefaultConstructionArgs() ConstructionArgs {
	return ConstructionArgs{Size: DefaultSize}
}

// Positional returns the arguments in constructor order.
func (a ConstructionArgs) Positional() []any {
	if a.Wrap != nil {
		return []any{*a.Wrap}
	}
	return []any{a.Debug, a.Size, a.Window}
}

func (a ConstructionArgs) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Positional())
}

func (a *ConstructionArgs) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrBadArgs, err)
	}

	switch len(raw) {
	case 1:
		var h Handle
		if err := strictUnmarshal(raw[0], &h); err != nil {
			return fmt.Errorf("%w: handle: %s", ErrBadArgs, err)
		}
		*a = ConstructionArgs{Wrap: &h}
		return nil
	case 3:
		var out ConstructionArgs
		if err := strictUnmarshal(raw[0], &out.Debug); err != nil {
			return fmt.Errorf("%w: debug: %s", ErrBadArgs, err)
		}
		if err := strictUnmarshal(raw[1], &out.Size); err != nil {
			return fmt.Errorf("%w: size: %s", ErrBadArgs, err)
		}
		if err := out.Size.Validate(); err != nil {
			return fmt.Errorf("%w: size: %s", ErrBadArgs, err)
		}
		if err := json.Unmarshal(raw[2], &out.Window); err != nil {
			return fmt.Errorf("%w: window: %s", ErrBadArgs, err)
		}
		*a = out
		return nil
	}
	return fmt.Errorf("%w: got %d positional arguments, want 1 or 3", ErrBadArgs, len(raw))
}

// ParseConstructionArgs parses the text the controller passed on the command line.
func ParseConstructionArgs(s string) (ConstructionArgs, error) {
	var a ConstructionArgs
	if err := a.UnmarshalJSON([]byte(s)); err != nil {
		return ConstructionArgs{}, err
	}
	return a, nil
}

// strictUnmarshal rejects null so that a missing value is not silently zeroed.
func strictUnmarshal(b json.RawMessage, v any) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return errors.New("unexpected null")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
