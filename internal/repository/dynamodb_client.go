package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"polyaid/internal/domain"
)

const (
	pkPrefixCred = "CRED#"
	skSecret     = "SECRET#"

	codeInvalidKey  = "invalid_key"
	codeInvalidItem = "invalid_item"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client keeps provider API keys in a DynamoDB table, one item per provider.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// credPK returns the partition key for a provider's credential.
func credPK(providerKey string) string {
	return pkPrefixCred + providerKey
}

func credKey(providerKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: credPK(providerKey)},
		"SK": &types.AttributeValueMemberS{Value: skSecret},
	}
}

// Save upserts the secret for providerKey.
func (c *Client) Save(ctx context.Context, secret, providerKey string) error {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return err
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      credentialItem(providerKey, secret, c.now()),
	})
	if err != nil {
		return storeError(fmt.Errorf("repository: Save: %w", err))
	}
	return nil
}

// Retrieve reads the secret with a consistent read. A missing item is absent.
func (c *Client) Retrieve(ctx context.Context, providerKey string) (string, bool, error) {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return "", false, err
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            credKey(providerKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, storeError(fmt.Errorf("repository: Retrieve get item: %w", err))
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	secret, err := strAttr(out.Item, "secret")
	if err != nil {
		return "", false, domain.CredentialStoreError(codeInvalidItem, fmt.Errorf("repository: Retrieve decode secret: %w", err))
	}
	return secret, true, nil
}

// Delete removes the item. DeleteItem on a missing key succeeds.
func (c *Client) Delete(ctx context.Context, providerKey string) error {
	providerKey, err := validKey(providerKey)
	if err != nil {
		return err
	}
	_, err = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       credKey(providerKey),
	})
	if err != nil {
		return storeError(fmt.Errorf("repository: Delete: %w", err))
	}
	return nil
}

func validKey(providerKey string) (string, error) {
	providerKey = strings.TrimSpace(providerKey)
	if providerKey == "" {
		return "", domain.CredentialStoreError(codeInvalidKey, errors.New("repository: provider key is required"))
	}
	return providerKey, nil
}

func credentialItem(providerKey, secret string, updatedAt time.Time) map[string]types.AttributeValue {
	item := credKey(providerKey)
	item["provider"] = &types.AttributeValueMemberS{Value: providerKey}
	item["secret"] = &types.AttributeValueMemberS{Value: secret}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: updatedAt.UTC().Format(time.RFC3339)}
	return item
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func storeError(err error) *domain.Error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return domain.CredentialStoreError(apiErr.ErrorCode(), err)
	}
	return domain.CredentialStoreError("", err)
}
