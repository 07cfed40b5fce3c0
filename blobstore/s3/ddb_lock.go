package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hupe1980/pallet/blobstore"
)

// ErrLockLost is returned by an unlock function when the lock item was taken
// over or removed while it was held.
var ErrLockLost = errors.New("dynamodb lock lost")

// DDBClient is the subset of the DynamoDB API used by DDBLocker.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBLocker implements blobstore.Locker with DynamoDB conditional writes, so
// that processes sharing an object storage location also share its writer
// lock. Object stores have no compare-and-swap of their own.
//
// Every lock is one item keyed by "<base>#<name>". Acquiring puts the item
// only if it does not exist (or its lease expired); releasing deletes it only
// if it still carries the owner token written on acquire.
//
// Table schema:
//   - Partition key: lock_key (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pallet-locks \
//	  --attribute-definitions AttributeName=lock_key,AttributeType=S \
//	  --key-schema AttributeName=lock_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DDBLocker struct {
	client  DDBClient
	table   string
	base    string
	lease   time.Duration
	timeout time.Duration
	now     func() time.Time
}

// LockOptions configures a DDBLocker.
type LockOptions struct {
	Region string
	// Lease lets a lock whose holder disappeared be taken over once it is
	// older than Lease. Zero keeps locks until they are released.
	Lease time.Duration
	// Timeout bounds each DynamoDB request.
	Timeout time.Duration
}

// LockOption mutates LockOptions.
type LockOption func(*LockOptions)

// WithLockRegion overrides the region of the default AWS configuration.
func WithLockRegion(region string) LockOption { return func(o *LockOptions) { o.Region = region } }

// WithLease sets the lease after which an unreleased lock may be taken over.
func WithLease(d time.Duration) LockOption { return func(o *LockOptions) { o.Lease = d } }

// WithLockTimeout bounds each DynamoDB request.
func WithLockTimeout(d time.Duration) LockOption { return func(o *LockOptions) { o.Timeout = d } }

// NewDDBLocker creates a locker over table. base scopes the lock names,
// typically the URI of the guarded location.
func NewDDBLocker(client DDBClient, table, base string, optFns ...LockOption) *DDBLocker {
	opts := LockOptions{Timeout: 10 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DDBLocker{
		client:  client,
		table:   table,
		base:    base,
		lease:   opts.Lease,
		timeout: opts.Timeout,
		now:     time.Now,
	}
}

// NewDynamoDBLocker creates a DDBLocker from the default AWS configuration
// chain.
func NewDynamoDBLocker(ctx context.Context, table, base string, optFns ...LockOption) (*DDBLocker, error) {
	var opts LockOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewDDBLocker(dynamodb.NewFromConfig(cfg), table, base, optFns...), nil
}

func (l *DDBLocker) key(name string) string {
	return l.base + "#" + name
}

// TryLock implements blobstore.Locker.
func (l *DDBLocker) TryLock(name string) (func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	key := l.key(name)
	owner := uuid.NewString()
	now := l.now()

	item := map[string]types.AttributeValue{
		"lock_key":    &types.AttributeValueMemberS{Value: key},
		"owner":       &types.AttributeValueMemberS{Value: owner},
		"acquired_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
	cond := "attribute_not_exists(lock_key)"
	var values map[string]types.AttributeValue
	if l.lease > 0 {
		item["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(l.lease).Unix(), 10)}
		cond += " OR expires_at < :now"
		values = map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		}
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(l.table),
		Item:                      item,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrLocked, key)
		}
		return nil, fmt.Errorf("acquire dynamodb lock %s: %w", key, err)
	}

	var (
		once sync.Once
		uerr error
	)
	return func() error {
		once.Do(func() { uerr = l.unlock(key, owner) })
		return uerr
	}, nil
}

func (l *DDBLocker) unlock(key, owner string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: key},
		},
		// owner is a reserved word
		ConditionExpression:      aws.String("#owner = :owner"),
		ExpressionAttributeNames: map[string]string{"#owner": "owner"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s", ErrLockLost, key)
		}
		return fmt.Errorf("release dynamodb lock %s: %w", key, err)
	}
	return nil
}
