package cache

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MockDynamoDBClient implements DynamoDBAPI for testing
type MockDynamoDBClient struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]types.AttributeValue

	// PutErr, when set, is returned by PutItem
	PutErr error
	// PageSize limits the items returned per Scan page; 0 means unlimited
	PageSize int
}

// NewMockDynamoDBClient creates a new mock DynamoDB client
func NewMockDynamoDBClient() *MockDynamoDBClient {
	return &MockDynamoDBClient{
		tables: make(map[string]map[string]map[string]types.AttributeValue),
	}
}

var errTableNotFound = errors.New("ResourceNotFoundException: table not found")

func keyOf(key map[string]types.AttributeValue) string {
	if s, ok := key["key"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

// CreateTable mocks the CreateTable operation
func (m *MockDynamoDBClient) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tables[*params.TableName]; !ok {
		m.tables[*params.TableName] = make(map[string]map[string]types.AttributeValue)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

// DescribeTable mocks the DescribeTable operation
func (m *MockDynamoDBClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.tables[*params.TableName]; !ok {
		return nil, errTableNotFound
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

// GetItem mocks the GetItem operation
func (m *MockDynamoDBClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, ok := m.tables[*params.TableName]
	if !ok {
		return nil, errTableNotFound
	}
	return &dynamodb.GetItemOutput{Item: table[keyOf(params.Key)]}, nil
}

// PutItem mocks the PutItem operation
func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return nil, m.PutErr
	}
	table, ok := m.tables[*params.TableName]
	if !ok {
		return nil, errTableNotFound
	}
	table[keyOf(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

// DeleteItem mocks the DeleteItem operation
func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if table, ok := m.tables[*params.TableName]; ok {
		delete(table, keyOf(params.Key))
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

// Scan mocks the Scan operation, returning keys in sorted order
func (m *MockDynamoDBClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, ok := m.tables[*params.TableName]
	if !ok {
		return nil, errTableNotFound
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	after := keyOf(params.ExclusiveStartKey)
	out := &dynamodb.ScanOutput{}
	for _, k := range keys {
		if after != "" && k <= after {
			continue
		}
		if m.PageSize > 0 && len(out.Items) == m.PageSize {
			out.LastEvaluatedKey = itemKey(out.Items[len(out.Items)-1]["key"].(*types.AttributeValueMemberS).Value)
			break
		}
		out.Items = append(out.Items, map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: k}})
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

// Len returns the number of items stored in tableName
func (m *MockDynamoDBClient) Len(tableName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[tableName])
}
