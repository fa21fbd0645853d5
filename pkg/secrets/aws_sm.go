package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManagerProvider implements Provider using AWS Secrets Manager.
type AWSSecretsManagerProvider struct {
	client SecretsManagerAPI
}

// NewAWSProvider creates a new AWS Secrets Manager provider for the given region.
func NewAWSProvider(ctx context.Context, region string) (*AWSSecretsManagerProvider, error) {
	cfg, err := LoadAWSConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSProviderWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

// NewAWSProviderWithClient wraps an existing client.
func NewAWSProviderWithClient(client SecretsManagerAPI) *AWSSecretsManagerProvider {
	return &AWSSecretsManagerProvider{client: client}
}

// GetSecret fetches and decodes a secret value from AWS Secrets Manager.
// Secrets should be stored as JSON maps (e.g. {"github.oauth2.key": "abc"}).
func (p *AWSSecretsManagerProvider) GetSecret(ctx context.Context, key string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(key),
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret [%s]: %w", key, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret [%s] has no string value", key)
	}

	var result map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &result); err != nil {
		return nil, fmt.Errorf("invalid secret format for [%s]: %w", key, err)
	}
	return result, nil
}

func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(region))
}
