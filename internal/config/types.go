package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that parses from the textual forms the config
// sources produce ("60s" in YAML, HYDROCHAT_LLM_TIMEOUT=60s in the
// environment). Negative durations are rejected at parse time so timeout
// fields never need their own range checks.
type Duration time.Duration

// UnmarshalText parses a Go duration string and rejects negative values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go's duration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON renders the duration as a JSON string ("1m0s").
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds provider API keys. Every formatting and serialization path
// redacts it, so a dumped config or a logged struct cannot leak a
// credential; only Value() returns the real key, at the point a client is
// constructed.
type Secret string

// String returns "[REDACTED]" for set secrets.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString keeps %#v output redacted too.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the raw key for building provider clients.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a key was configured. The embedding and generation
// factories use it to decide which providers to register.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON redacts set secrets.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// MarshalText redacts set secrets.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// UnmarshalText accepts the raw key from YAML or the environment.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
