package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretsManagerAPI is the subset of the AWS Secrets Manager client this
// provider uses. It exists so tests can inject a fake.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSProvider fetches secrets from AWS Secrets Manager. Secret values are
// expected to be JSON objects with string fields.
type AWSProvider struct {
	client SecretsManagerAPI
}

// AWSConfig carries provider construction options. Endpoint and static
// credentials exist for LocalStack and tests; production deployments rely on
// the default credential chain.
type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// AWSOption is a functional option for configuring the provider.
type AWSOption func(*AWSProvider)

// WithSecretsManagerClient sets a custom client (for testing).
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(p *AWSProvider) {
		p.client = client
	}
}

// NewAWSProvider creates an AWS Secrets Manager provider.
func NewAWSProvider(ctx context.Context, awsCfg AWSConfig, opts ...AWSOption) (*AWSProvider, error) {
	p := &AWSProvider{}

	for _, opt := range opts {
		opt(p)
	}

	if p.client == nil {
		var configOpts []func(*config.LoadOptions) error
		if awsCfg.Region != "" {
			configOpts = append(configOpts, config.WithRegion(awsCfg.Region))
		}
		if awsCfg.AccessKeyID != "" && awsCfg.SecretAccessKey != "" {
			configOpts = append(configOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
			))
		}

		cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		var clientOpts []func(*secretsmanager.Options)
		if awsCfg.Endpoint != "" {
			endpoint := awsCfg.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		p.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}

	return p, nil
}

// Name implements Provider.
func (p *AWSProvider) Name() string {
	return "aws.secretsmanager"
}

// Fetch implements Provider. The secret string at path must be a JSON object;
// all scalar fields are flattened to their string form.
func (p *AWSProvider) Fetch(ctx context.Context, path string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &path,
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("get secret value: %w", err)
	}

	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", path)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(*out.SecretString), &raw); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			values[k] = t
		case float64, bool:
			values[k] = fmt.Sprintf("%v", t)
		}
	}

	return values, nil
}
