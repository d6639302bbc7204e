package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ammiranda/knowledge_tree/models"
)

// DefaultTableName is the DynamoDB table used when none is configured
const DefaultTableName = "KnowledgeTreeCache"

// DynamoDBAPI defines the interface for DynamoDB operations
type DynamoDBAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// CacheItem is the stored form of one cached tree. Data holds the JSON
// encoded TreeResponse; TTL is a unix timestamp.
type CacheItem struct {
	Key       string `dynamodbav:"key"`
	Data      string `dynamodbav:"data"`
	Timestamp int64  `dynamodbav:"timestamp"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoDBCache implements CacheProvider using DynamoDB
type DynamoDBCache struct {
	client    DynamoDBAPI
	tableName string

	mu       sync.RWMutex
	cacheTTL time.Duration
}

// NewDynamoDBCache creates a DynamoDB cache provider from the default AWS config
func NewDynamoDBCache(ctx context.Context, tableName string) (*DynamoDBCache, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewDynamoDBCacheWithClient(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewDynamoDBCacheWithClient creates a new DynamoDB cache provider with a custom client
func NewDynamoDBCacheWithClient(client DynamoDBAPI, tableName string) *DynamoDBCache {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &DynamoDBCache{
		client:    client,
		tableName: tableName,
		cacheTTL:  DefaultTTL,
	}
}

// Initialize creates the DynamoDB table if it doesn't exist
func (c *DynamoDBCache) Initialize(ctx context.Context) error {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(c.tableName),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(c.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("key"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("key"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("error creating cache table %s: %w", c.tableName, err)
	}
	return nil
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"key": &types.AttributeValueMemberS{Value: key},
	}
}

// GetTree retrieves the tree of ownerID from DynamoDB if available
func (c *DynamoDBCache) GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool) {
	key := treeKey(ownerID)
	result, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(key),
	})
	if err != nil {
		slog.WarnContext(ctx, "dynamodb cache read failed", "owner_id", ownerID, "error", err)
		return nil, false
	}
	if result.Item == nil {
		return nil, false
	}

	var item CacheItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, false
	}

	// DynamoDB TTL deletion is lazy, so expiry is checked on read too
	if time.Now().Unix() > item.TTL {
		if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(c.tableName),
			Key:       itemKey(key),
		}); err != nil {
			slog.WarnContext(ctx, "error deleting expired cache item", "key", key, "error", err)
		}
		return nil, false
	}

	var tree models.TreeResponse
	if err := json.Unmarshal([]byte(item.Data), &tree); err != nil {
		return nil, false
	}
	return &tree, true
}

// SetTree stores the tree of ownerID in DynamoDB
func (c *DynamoDBCache) SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse) {
	key := treeKey(ownerID)
	data, err := json.Marshal(tree)
	if err != nil {
		return
	}

	c.mu.RLock()
	ttl := c.cacheTTL
	c.mu.RUnlock()

	now := time.Now()
	av, err := attributevalue.MarshalMap(CacheItem{
		Key:       key,
		Data:      string(data),
		Timestamp: now.Unix(),
		TTL:       now.Add(ttl).Unix(),
	})
	if err != nil {
		return
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      av,
	})
	if err != nil {
		// a stale entry must not outlive a failed write
		slog.WarnContext(ctx, "dynamodb cache write failed", "key", key, "error", err)
		if err := c.InvalidateTree(ctx, ownerID); err != nil {
			slog.WarnContext(ctx, "error invalidating cache after put failure", "key", key, "error", err)
		}
	}
}

// InvalidateTree removes the tree of ownerID from DynamoDB
func (c *DynamoDBCache) InvalidateTree(ctx context.Context, ownerID string) error {
	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(treeKey(ownerID)),
	})
	return err
}

// InvalidateCache scans the table for keys and deletes every item
func (c *DynamoDBCache) InvalidateCache(ctx context.Context) error {
	var start map[string]types.AttributeValue
	for {
		out, err := c.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(c.tableName),
			ProjectionExpression: aws.String("#k"),
			ExpressionAttributeNames: map[string]string{
				"#k": "key",
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return fmt.Errorf("error scanning cache table: %w", err)
		}

		for _, item := range out.Items {
			if _, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(c.tableName),
				Key:       map[string]types.AttributeValue{"key": item["key"]},
			}); err != nil {
				return fmt.Errorf("error deleting cache item: %w", err)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		start = out.LastEvaluatedKey
	}
}

// SetCacheTTL sets the cache time-to-live duration
func (c *DynamoDBCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheTTL = ttl
}
