package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the provider uses
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsProvider implements Provider using AWS Secrets Manager. The
// secret is a flat JSON object; it is fetched once and refreshed after refreshTTL.
type AWSSecretsProvider struct {
	client      SecretsManagerAPI
	secretName  string
	environment Environment
	refreshTTL  time.Duration

	mu        sync.Mutex
	cache     map[string]string
	lastFetch time.Time
}

// NewAWSConfigProvider creates a provider for the secret named by AWS_SECRET_NAME
func NewAWSConfigProvider() (Provider, error) {
	secretName := os.Getenv("AWS_SECRET_NAME")
	if secretName == "" {
		return nil, fmt.Errorf("AWS_SECRET_NAME environment variable not set")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewAWSSecretsProvider(secretsmanager.NewFromConfig(cfg), secretName), nil
}

// NewAWSSecretsProvider creates a Secrets Manager provider with a custom client
func NewAWSSecretsProvider(client SecretsManagerAPI, secretName string) *AWSSecretsProvider {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = string(Development)
	}
	return &AWSSecretsProvider{
		client:      client,
		secretName:  secretName,
		environment: Environment(env),
		refreshTTL:  15 * time.Minute,
	}
}

// GetEnvironment returns the current environment
func (p *AWSSecretsProvider) GetEnvironment() Environment {
	return p.environment
}

func (p *AWSSecretsProvider) secrets(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache != nil && time.Since(p.lastFetch) < p.refreshTTL {
		return p.cache, nil
	}

	secret, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", p.secretName)
	}

	var secretMap map[string]string
	if err := json.Unmarshal([]byte(*secret.SecretString), &secretMap); err != nil {
		return nil, fmt.Errorf("failed to parse secret JSON: %w", err)
	}

	if err := validateSecretSchema(secretMap); err != nil {
		return nil, fmt.Errorf("invalid secret schema: %w", err)
	}

	p.cache = secretMap
	p.lastFetch = time.Now()
	return secretMap, nil
}

// GetString retrieves a string configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetString(ctx context.Context, key string) (string, error) {
	secrets, err := p.secrets(ctx)
	if err != nil {
		return "", err
	}
	value, ok := secrets[key]
	if !ok || value == "" {
		return "", fmt.Errorf("secret key %s: %w", key, ErrKeyNotSet)
	}
	return value, nil
}

// GetInt retrieves an integer configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetInt(ctx context.Context, key string) (int, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// GetBool retrieves a boolean configuration value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetBool(ctx context.Context, key string) (bool, error) {
	value, err := p.GetString(ctx, key)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(value)
}

// GetSecret retrieves a secret value from AWS Secrets Manager
func (p *AWSSecretsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return p.GetString(ctx, key)
}

// validateSecretSchema checks the keys every deployment secret must carry.
// Value-level rules live in DatabaseConfig.Validate.
func validateSecretSchema(secrets map[string]string) error {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME"} {
		if _, ok := secrets[key]; !ok {
			return &ValidationError{Field: key, Message: "required secret key not found"}
		}
	}
	if _, err := strconv.Atoi(secrets["DB_PORT"]); err != nil {
		return &ValidationError{Field: "DB_PORT", Message: "port must be a valid number"}
	}
	if depth, ok := secrets["MAX_TREE_DEPTH"]; ok {
		if _, err := strconv.Atoi(depth); err != nil {
			return &ValidationError{Field: "MAX_TREE_DEPTH", Message: "depth must be a valid number"}
		}
	}
	return nil
}
