// Package dynamo stores snapshot blobs in a DynamoDB table.
//
// Table requirements:
//   - partition key: prefix (string), the blob directory including its trailing "/"
//   - sort key: name (string), the file name within the directory
//
// Listing a worker's blobs is therefore one Query on the partition key.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/warp/wage-engine/snapshot"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "wage_snapshot_blobs"

const (
	attrPrefix = "prefix"
	attrName   = "name"
)

// API is the subset of *dynamodb.Client the store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type blobItem struct {
	Prefix    string `dynamodbav:"prefix"`
	Name      string `dynamodbav:"name"`
	Body      []byte `dynamodbav:"body"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Store implements snapshot.BlobBackend on DynamoDB.
type Store struct {
	ddb   API
	table string
	now   func() time.Time
}

var _ snapshot.BlobBackend = (*Store)(nil)

// New returns a store writing to table (DefaultTable when empty).
func New(ddb API, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{ddb: ddb, table: table, now: time.Now}
}

// ClientConfig describes how to reach DynamoDB. Endpoint is set for local
// emulators; static credentials are used when AccessKeyID is non-empty.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds a DynamoDB client from cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// EnsureTable creates the blob table with on-demand billing if it does not
// exist yet.
func EnsureTable(ctx context.Context, ddb *dynamodb.Client, table string) error {
	if table == "" {
		table = DefaultTable
	}
	_, err := ddb.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPrefix), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrName), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPrefix), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrName), KeyType: types.KeyTypeRange},
		},
	})
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	return err
}

func (s *Store) Write(ctx context.Context, path string, data []byte) error {
	prefix, name, err := split(path)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(blobItem{
		Prefix:    prefix,
		Name:      name,
		Body:      data,
		UpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	return err
}

func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	prefix, name, err := split(path)
	if err != nil {
		return nil, err
	}
	out, err := s.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(prefix, name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", snapshot.ErrBlobNotFound, path)
	}

	var it blobItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, err
	}
	return it.Body, nil
}

// Delete removes the item; DynamoDB treats a missing key as success.
func (s *Store) Delete(ctx context.Context, path string) error {
	prefix, name, err := split(path)
	if err != nil {
		return err
	}
	_, err = s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       itemKey(prefix, name),
	})
	return err
}

// List pages through every item in the prefix partition.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix == "" || !strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("invalid blob prefix %q", prefix)
	}
	p := dynamodb.NewQueryPaginator(s.ddb, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#p = :p"),
		ExpressionAttributeNames: map[string]string{
			"#p": attrPrefix,
			"#n": attrName,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: prefix},
		},
		ProjectionExpression: aws.String("#p, #n"),
	})

	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []blobItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, it.Prefix+it.Name)
		}
	}
	return out, nil
}

func itemKey(prefix, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPrefix: &types.AttributeValueMemberS{Value: prefix},
		attrName:   &types.AttributeValueMemberS{Value: name},
	}
}

func split(path string) (prefix, name string, err error) {
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("invalid blob path %q", path)
	}
	return path[:i+1], path[i+1:], nil
}
