package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"

	"polyaid/internal/domain"
)

const (
	DefaultPrefix = "/polyaid"

	codeParameterNotFound = "ParameterNotFound"
	codeInvalidKey        = "invalid_key"
	codeMissingValue      = "missing_value"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	DeleteParameter(ctx context.Context, in *ssm.DeleteParameterInput, optFns ...func(*ssm.Options)) (*ssm.DeleteParameterOutput, error)
}

// Client stores provider API keys as SecureString parameters under
// <prefix>/credentials/<providerKey>.
type Client struct {
	api    ssmAPI
	prefix string
	keyID  string
}

type Option func(*Client)

// WithPrefix sets the parameter hierarchy root. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
			c.prefix = "/" + p
		}
	}
}

// WithKMSKeyID encrypts parameters with a customer managed key instead of
// the account default.
func WithKMSKeyID(keyID string) Option {
	return func(c *Client) {
		c.keyID = strings.TrimSpace(keyID)
	}
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	c := &Client{api: api, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParameterName returns the SSM parameter holding providerKey's secret.
// Characters SSM rejects in names are replaced with '_'.
func (c *Client) ParameterName(providerKey string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(providerKey))
	return c.prefix + "/credentials/" + safe
}

func (c *Client) Save(ctx context.Context, secret, providerKey string) error {
	name, err := c.name(providerKey)
	if err != nil {
		return err
	}
	in := &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(secret),
		Type:      types.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if c.keyID != "" {
		in.KeyId = aws.String(c.keyID)
	}
	if _, err := c.api.PutParameter(ctx, in); err != nil {
		return storeError(fmt.Errorf("paramstore: put parameter %q: %w", name, err))
	}
	return nil
}

// Retrieve reports a missing parameter as absent.
func (c *Client) Retrieve(ctx context.Context, providerKey string) (string, bool, error) {
	name, err := c.name(providerKey)
	if err != nil {
		return "", false, err
	}
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if errorCode(err) == codeParameterNotFound {
			return "", false, nil
		}
		return "", false, storeError(fmt.Errorf("paramstore: get parameter %q: %w", name, err))
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", false, domain.CredentialStoreError(codeMissingValue, fmt.Errorf("paramstore: parameter %q missing value", name))
	}
	return *out.Parameter.Value, true, nil
}

// Delete treats a missing parameter as already deleted.
func (c *Client) Delete(ctx context.Context, providerKey string) error {
	name, err := c.name(providerKey)
	if err != nil {
		return err
	}
	_, err = c.api.DeleteParameter(ctx, &ssm.DeleteParameterInput{Name: aws.String(name)})
	if err != nil && errorCode(err) != codeParameterNotFound {
		return storeError(fmt.Errorf("paramstore: delete parameter %q: %w", name, err))
	}
	return nil
}

func (c *Client) name(providerKey string) (string, error) {
	if c.api == nil {
		return "", domain.CredentialStoreError("", errors.New("paramstore: client not initialized"))
	}
	if strings.TrimSpace(providerKey) == "" {
		return "", domain.CredentialStoreError(codeInvalidKey, errors.New("paramstore: provider key is required"))
	}
	return c.ParameterName(providerKey), nil
}

func storeError(err error) *domain.Error {
	return domain.CredentialStoreError(errorCode(err), err)
}

// errorCode extracts the AWS API error code, or "" for non-API failures.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
