package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration read from text such as "90s" or "15m".
type Duration time.Duration

// UnmarshalText parses a Go duration string. Negative values are rejected.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration must not be negative: %s", text)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }
func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// redacted replaces a set Secret wherever it is printed or encoded.
const redacted = "[REDACTED]"

// Secret is a credential from config, such as the agent API key. It never
// prints or encodes its value; call Value to use it.
type Secret string

func (s Secret) masked() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) String() string { return s.masked() }
func (s Secret) GoString() string { return "Secret(" + redacted + ")" }
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.masked()) }
func (s Secret) MarshalYAML() (interface{}, error) { return s.masked(), nil }
func (s *Secret) UnmarshalText(text []byte) error { *s = Secret(text); return nil }

// Value returns the secret itself.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a value was configured.
func (s Secret) IsSet() bool { return s != "" }
