// Package timex provides a Duration that can be read from JSON, environment
// variables and flags. Besides the time.ParseDuration syntax it accepts a
// leading day component ("7d", "1d12h"), the notation used for token
// lifetimes.
package timex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Duration wraps time.Duration. In JSON it may be a string ("15m", "7d") or
// an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

// ParseDuration parses s as "<n>d" optionally followed by a time.ParseDuration
// remainder, or as a plain time.ParseDuration string.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	i := strings.IndexByte(s, 'd')
	if i < 0 {
		return time.ParseDuration(s)
	}

	days, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("invalid day count in duration %q", s)
	}
	total := time.Duration(days) * day

	if rest := s[i+1:]; rest != "" {
		extra, err := time.ParseDuration(rest)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += extra
	}
	return total, nil
}

// UnmarshalText lets caarlos0/env and flag.TextVar populate a Duration.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		return d.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}
