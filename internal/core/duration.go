package core

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Delay is a human-readable delay such as "5s", "2m", "1h", "3d", or a bare
// millisecond count such as "250".
type Delay string

// Millis builds a Delay from a raw millisecond count.
func Millis(ms int64) Delay {
	return Delay(strconv.FormatInt(ms, 10))
}

var delayPattern = regexp.MustCompile(`^(\d+)(ms|s|m|h|d)?$`)

var unitMillis = map[string]int64{
	"":   1,
	"ms": 1,
	"s":  1000,
	"m":  60_000,
	"h":  3_600_000,
	"d":  86_400_000,
}

// ParseDuration converts a delay into milliseconds.
func ParseDuration(d Delay) (int64, error) {
	m := delayPattern.FindStringSubmatch(strings.TrimSpace(string(d)))
	if m == nil {
		return 0, ErrDurationParse(string(d))
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, ErrDurationParse(string(d)).WithCause(err)
	}
	mult := unitMillis[m[2]]
	if n > math.MaxInt64/mult {
		return 0, ErrDurationParse(string(d))
	}
	return n * mult, nil
}

// Duration returns the delay as a time.Duration. Delays too long for a
// time.Duration are rejected.
func (d Delay) Duration() (time.Duration, error) {
	ms, err := ParseDuration(d)
	if err != nil {
		return 0, err
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return 0, ErrDurationParse(string(d))
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// UnmarshalJSON accepts either a JSON string or a JSON integer.
func (d *Delay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = Delay(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return ErrDurationParse(string(b))
	}
	*d = Delay(n.String())
	return nil
}
