package document

import (
	"encoding/json"
	"time"

	"go.bryk.io/rmi/errors"
)

// Window describes the half-open execution interval `[begin, begin+duration)`
// an envelope is eligible to run in. A nil Window is always open.
type Window struct {
	Begin    time.Time     `json:"-"`
	Duration time.Duration `json:"-"`
}

// windowWire is the ISO-8601/seconds wire shape described in §6.
type windowWire struct {
	Begin    string `json:"begin"`
	Duration int64  `json:"duration"`
}

// MarshalJSON implements json.Marshaler using the `{"begin","duration"}`
// wire shape from §6 (ISO-8601 timestamp, duration in seconds).
func (w *Window) MarshalJSON() ([]byte, error) {
	if w == nil {
		return []byte("null"), nil
	}
	return json.Marshal(windowWire{
		Begin:    w.Begin.UTC().Format(time.RFC3339),
		Duration: int64(w.Duration / time.Second),
	})
}

// UnmarshalJSON implements json.Unmarshaler for the `{"begin","duration"}`
// wire shape.
func (w *Window) UnmarshalJSON(data []byte) error {
	var wire windowWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "decode window")
	}
	begin, err := time.Parse(time.RFC3339, wire.Begin)
	if err != nil {
		return errors.Wrap(err, "decode window begin timestamp")
	}
	w.Begin = begin
	w.Duration = time.Duration(wire.Duration) * time.Second
	return nil
}

// End returns the exclusive upper bound of the window.
func (w *Window) End() time.Time {
	return w.Begin.Add(w.Duration)
}
