package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the SSM API the bootstrap tool uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

const ssmOperationTimeout = 15 * time.Second

// SSMManager writes parameters under /{env}/habitpulse/.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewSSMManager(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

func pathPrefix(env string) string {
	return fmt.Sprintf("/%s/habitpulse/", env)
}

// Path turns "database/url" into "/dev/habitpulse/database/url".
func (m *SSMManager) Path(key string) string {
	return pathPrefix(m.env) + key
}

// ParameterExists probes without decryption so kms:Decrypt is not needed.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// Put writes value at path. SecureString values are never logged.
func (m *SSMManager) Put(ctx context.Context, path, value string, secure, overwrite bool) error {
	if path == "" {
		return errors.New("SSM parameter path must not be empty")
	}
	if value == "" {
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}

	paramType := ssmtypes.ParameterTypeString
	if secure {
		paramType = ssmtypes.ParameterTypeSecureString
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}

	attrs := []any{"path", path, "type", string(paramType)}
	if secure {
		attrs = append(attrs, "value_length", len(value))
	} else {
		attrs = append(attrs, "value", value)
	}
	m.logger.Info("SSM parameter written", attrs...)
	return nil
}
