package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimeRange is the window every fetch runs over.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether both bounds are set and End is not before Start.
func (tr TimeRange) Valid() bool {
	if tr.Start.IsZero() || tr.End.IsZero() {
		return false
	}
	return !tr.End.Before(tr.Start)
}

// StartMicros returns the start as Unix microseconds.
func (tr TimeRange) StartMicros() int64 { return tr.Start.UnixMicro() }

// EndMicros returns the end as Unix microseconds.
func (tr TimeRange) EndMicros() int64 { return tr.End.UnixMicro() }

type timeRangeJSON struct {
	Start json.RawMessage `json:"start_time"`
	End   json.RawMessage `json:"end_time"`
}

// MarshalJSON encodes both bounds as Unix microseconds; unset bounds are
// null.
func (tr TimeRange) MarshalJSON() ([]byte, error) {
	out := struct {
		Start *int64 `json:"start_time"`
		End   *int64 `json:"end_time"`
	}{}
	if !tr.Start.IsZero() {
		v := tr.StartMicros()
		out.Start = &v
	}
	if !tr.End.IsZero() {
		v := tr.EndMicros()
		out.End = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts each bound as Unix microseconds or an RFC3339
// string. Missing or null bounds stay unset, which makes the range invalid.
func (tr *TimeRange) UnmarshalJSON(data []byte) error {
	var raw timeRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTimeRange, err)
	}

	start, err := parseInstant(raw.Start)
	if err != nil {
		return fmt.Errorf("%w: start_time: %v", ErrInvalidTimeRange, err)
	}
	end, err := parseInstant(raw.End)
	if err != nil {
		return fmt.Errorf("%w: end_time: %v", ErrInvalidTimeRange, err)
	}

	tr.Start = start
	tr.End = end
	return nil
}

func parseInstant(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		// Numeric strings are microseconds too.
		micros, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized instant %q", s)
		}
		return time.UnixMicro(micros).UTC(), nil
	}

	micros, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized instant %s", raw)
	}
	return time.UnixMicro(micros).UTC(), nil
}
