package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // zero means records never expire
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: TTL applied to new records; payment claims use zero so a replayed proof is
// recognised no matter how old it is.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// TableName is the table records are written to.
func (s *Store) TableName() string { return s.tableName }

// NewRecord builds a DONE record for key pointing at orderID, ready to be written inside a
// caller-managed transaction.
func (s *Store) NewRecord(key, orderID, customerID string) IdempotencyRecord {
	now := s.nowFunc().UTC()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusDone,
		OrderID:        orderID,
		CustomerID:     customerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.ttlWindow > 0 {
		rec.ExpiresAt = now.Add(s.ttlWindow).Unix()
	}
	return rec
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: boolPtr(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, apperr.Storage("get idempotency record", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// AddNote records a free-form note on an existing record without changing its status, so a
// claim keeps blocking replays after follow-up actions such as refunds.
func (s *Store) AddNote(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    awsString("SET note = :n, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":  &types.AttributeValueMemberS{Value: note},
			":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return fmt.Errorf("idempotency record %s: %w", key, apperr.ErrNotFound)
		}
		return apperr.Storage("update item (add note)", err)
	}
	return nil
}

// Helper
func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
