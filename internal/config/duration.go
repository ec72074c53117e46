package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/larder/internal/timespec"
)

// Day is the length of a "d" unit in configured durations.
const Day = timespec.Day

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
// Besides the time.ParseDuration units it accepts whole days, e.g. "30d".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := timespec.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String renders whole days with the "d" unit.
func (d Duration) String() string {
	td := d.Duration()
	if td != 0 && td%Day == 0 {
		return strconv.Itoa(int(td/Day)) + "d"
	}
	return td.String()
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
