package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString keeps credentials (callback bearer tokens, FCM access tokens,
// database URLs) out of logs and JSON. String and MarshalJSON both return a
// placeholder; Unmask returns the raw value for the few call sites that need it.
type SecretString string

func (s SecretString) String() string {
	return redactedPlaceholder
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the plaintext. Keep call sites limited to Authorization
// headers and driver connection strings.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsZero reports whether the secret is unset.
func (s SecretString) IsZero() bool {
	return s == ""
}
