package types

// SecretString holds a sensitive configuration value (API keys, connection
// strings). It redacts itself in every text representation so a stray log
// line or marshalled config dump cannot leak credentials; callers must use
// Value() to get the real content.
type SecretString string

const redacted = `[REDACTED]`

// String implements fmt.Stringer with a redacted representation.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// MarshalJSON redacts the value in JSON output.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"` + redacted + `"`), nil
}

// Value returns the underlying secret.
func (s SecretString) Value() string {
	return string(s)
}

// IsSet reports whether a non-empty secret was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
