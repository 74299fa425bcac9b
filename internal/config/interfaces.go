package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths in deployed
// environments, plain env var names locally) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Implementations handle service batching limits internally.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
