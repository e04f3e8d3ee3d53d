// internal/store/dynamodb/dynamodb.go
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StoreName is the registered name of the DynamoDB store
const StoreName = "dynamodb"

const (
	attrKey       = "PK"
	attrToken     = "Token"
	attrExpiresAt = "ExpiresAt"
	// attrTTL is epoch seconds for the table's native TTL sweeper
	attrTTL = "TTL"

	tableWaitTimeout = 5 * time.Minute
)

// dynamoAPI is the subset of the DynamoDB client the store needs
type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// tableWaiter blocks until a newly created table is active
type tableWaiter interface {
	Wait(ctx context.Context, params *dynamodb.DescribeTableInput, maxWaitDur time.Duration, optFns ...func(*dynamodb.TableExistsWaiterOptions)) error
}

func init() {
	lockservice.Register(StoreName, newStore)
}

func newStore(ctx context.Context, options lockservice.Config, logger *observability.SLogger) (store.LockStore, error) {
	cfg, ok := options.(*DynamoDBConfig)
	if !ok && options != nil {
		return nil, &store.InvalidConfigurationError{Store: StoreName, Config: options}
	}
	return New(ctx, cfg, logger)
}

// Store implements store.LockStore on a DynamoDB table keyed by PK.
// Acquisition and release are conditional writes; an item whose ExpiresAt
// has passed is treated as absent even before the TTL sweeper removes it.
type Store struct {
	client    dynamoAPI
	waiter    tableWaiter
	tableName string
	logger    *observability.SLogger
	config    *DynamoDBConfig
	now       func() time.Time
}

// New creates a DynamoDB store from configuration
func New(ctx context.Context, config *DynamoDBConfig, logger *observability.SLogger) (*Store, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(config.Region))
	if config.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		logger.Errorf("Failed to load AWS config: %v", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if len(config.Endpoints) > 0 {
			o.BaseEndpoint = aws.String(config.Endpoints[0])
		}
	})

	s := newWithClient(config, client, dynamodb.NewTableExistsWaiter(client), logger)
	if config.CreateTable {
		if err := s.ensureTableExists(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newWithClient(config *DynamoDBConfig, client dynamoAPI, waiter tableWaiter, logger *observability.SLogger) *Store {
	return &Store{
		client:    client,
		waiter:    waiter,
		tableName: config.Table,
		logger:    logger.Named(StoreName),
		config:    config,
		now:       time.Now,
	}
}

// GetConfig returns the current store configuration
func (s *Store) GetConfig() store.StoreConfig {
	return s.config
}

// ensureTableExists creates the lock table if DescribeTable cannot find it
func (s *Store) ensureTableExists(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return store.Unreachable("describe table", err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(attrKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(attrKey),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		s.logger.Errorf("Failed to create table: %v", err)
		return fmt.Errorf("failed to create table: %w", err)
	}

	err = s.waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	}, tableWaitTimeout)
	if err != nil {
		s.logger.Errorf("Failed to wait for table creation: %v", err)
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}

	s.logger.Infow("created lock table", "table", s.tableName)
	return nil
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey: &types.AttributeValueMemberS{Value: key},
	}
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// TrySet implements store.LockStore.
func (s *Store) TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	now := s.now()
	expiresAt := now.Add(store.ResolveTTL(ttl, s.config.TTL))

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			attrKey:       &types.AttributeValueMemberS{Value: key},
			attrToken:     &types.AttributeValueMemberS{Value: token},
			attrExpiresAt: millis(expiresAt),
			attrTTL:       &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix()+1, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#pk) OR #exp <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#pk":  attrKey,
			"#exp": attrExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": millis(now),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, store.Unreachable("put item", err)
	}
	return true, nil
}

// DeleteIfOwned implements store.LockStore.
func (s *Store) DeleteIfOwned(ctx context.Context, key, token string) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 keyAttr(key),
		ConditionExpression: aws.String("#tok = :token"),
		ExpressionAttributeNames: map[string]string{
			"#tok": attrToken,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, store.Unreachable("delete item", err)
	}
	return true, nil
}

// Get implements store.LockStore.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", false, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, store.Unreachable("get item", err)
	}
	token, live := s.liveToken(out.Item)
	return token, live, nil
}

// liveToken extracts the token from an item that has not yet expired
func (s *Store) liveToken(item map[string]types.AttributeValue) (string, bool) {
	if item == nil {
		return "", false
	}
	tok, ok := item[attrToken].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	exp, ok := item[attrExpiresAt].(*types.AttributeValueMemberN)
	if !ok {
		return "", false
	}
	ms, err := strconv.ParseInt(exp.Value, 10, 64)
	if err != nil || ms <= s.now().UnixMilli() {
		return "", false
	}
	return tok.Value, true
}

// DeleteMatching implements store.LockStore. It scans the table, so it is
// meant for administrative use on lock tables only.
func (s *Store) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, store.ErrInvalidKey
	}

	input := &dynamodb.ScanInput{
		TableName:            aws.String(s.tableName),
		ProjectionExpression: aws.String("#pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": attrKey,
		},
	}
	if prefix := store.PatternPrefix(pattern); prefix != "" {
		input.FilterExpression = aws.String("begins_with(#pk, :prefix)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		}
	}

	var deleted int64
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, store.Unreachable("scan", err)
		}
		for _, item := range page.Items {
			pk, ok := item[attrKey].(*types.AttributeValueMemberS)
			if !ok || !store.MatchPattern(pattern, pk.Value) {
				continue
			}
			if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(s.tableName),
				Key:       keyAttr(pk.Value),
			}); err != nil {
				return deleted, store.Unreachable("delete item", err)
			}
			deleted++
		}
	}

	s.logger.Debugw("deleted matching keys", "pattern", pattern, "count", deleted)
	return deleted, nil
}

// Close is a no-op; the DynamoDB client holds no connections to release
func (s *Store) Close() {}
