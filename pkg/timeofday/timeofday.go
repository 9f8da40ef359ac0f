package timeofday

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// MinutesPerDay bounds every Minute value.
const MinutesPerDay = 24 * 60

// ErrInvalidFormat is matched by every FormatError.
var ErrInvalidFormat = errors.New("invalid time of day")

// FormatError reports a value that is not a zero-padded 24-hour HH:MM string.
type FormatError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is match ErrInvalidFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// Minute is a minute of the day in the range [0, 1440).
type Minute int

// Parse converts "HH:MM" into a Minute.
func Parse(raw string) (Minute, error) {
	if len(raw) != 5 || raw[2] != ':' {
		return 0, &FormatError{Input: raw, Reason: "expected HH:MM"}
	}
	hours, err := parseDigits(raw[0:2])
	if err != nil {
		return 0, &FormatError{Input: raw, Reason: "hours must be numeric"}
	}
	minutes, err := parseDigits(raw[3:5])
	if err != nil {
		return 0, &FormatError{Input: raw, Reason: "minutes must be numeric"}
	}
	if hours > 23 {
		return 0, &FormatError{Input: raw, Reason: "hours out of range"}
	}
	if minutes > 59 {
		return 0, &FormatError{Input: raw, Reason: "minutes out of range"}
	}
	return Minute(hours*60 + minutes), nil
}

// MustParse is Parse for constants and tests.
func MustParse(raw string) Minute {
	m, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return m
}

func parseDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Valid reports whether m lies within a single day.
func (m Minute) Valid() bool {
	return m >= 0 && m < MinutesPerDay
}

// String renders the value as HH:MM.
func (m Minute) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// MarshalJSON encodes the value as an HH:MM string.
func (m Minute) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes an HH:MM string.
func (m *Minute) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &FormatError{Input: string(data), Reason: "expected a string"}
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) share at least one minute.
func Overlaps(aStart, aEnd, bStart, bEnd Minute) bool {
	return aStart < bEnd && bStart < aEnd
}
