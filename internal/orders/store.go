package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
	"github.com/imrishuroy/go-footwear-checkout/internal/idempotency"
)

// CustomerIndex is the GSI on customer_id used to list a customer's orders.
const CustomerIndex = "customer_id-index"

var (
	// ErrStatusMismatch is returned when a conditional status update loses to a concurrent writer.
	ErrStatusMismatch = fmt.Errorf("status mismatch/conditional failed: %w", apperr.ErrConflict)
	// ErrDuplicatePayment is returned when an order already exists for the payment id.
	ErrDuplicatePayment = fmt.Errorf("payment already claimed by another order: %w", apperr.ErrConflict)
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

// CreateWithPaymentClaim atomically creates:
//   - the payment claim in claimsTable (ConditionExpression attribute_not_exists(idempotency_key))
//   - the order record in the orders table
//
// ErrDuplicatePayment is returned when the claim already exists.
func (s *Store) CreateWithPaymentClaim(ctx context.Context, claimsTable string, claim idempotency.IdempotencyRecord, order Order) error {
	if err := order.Validate(); err != nil {
		return apperr.Validation("%v", err)
	}
	claimMap, err := attributevalue.MarshalMap(claim)
	if err != nil {
		return fmt.Errorf("marshal payment claim: %w", err)
	}

	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &claimsTable,
					Item:                claimMap,
					ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		codes := aws.CancellationCodes(err)
		if len(codes) > 0 && codes[0] == "ConditionalCheckFailed" {
			return fmt.Errorf("payment %s: %w", claim.IdempotencyKey, ErrDuplicatePayment)
		}
		return apperr.Storage("transact write order", err)
	}
	return nil
}

// Get fetches an order by order_id.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, apperr.Storage("get order", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByCustomer returns a customer's orders, newest first.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	var (
		list     []Order
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(CustomerIndex),
			KeyConditionExpression: awsString("customer_id = :cid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cid": &types.AttributeValueMemberS{Value: customerID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, apperr.Storage("query orders", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		list = append(list, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sortNewestFirst(list)
	return list, nil
}

// ListAll returns every order, newest first. Used by the admin console.
func (s *Store) ListAll(ctx context.Context) ([]Order, error) {
	var (
		list     []Order
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, apperr.Storage("scan orders", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		list = append(list, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sortNewestFirst(list)
	return list, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, newStatus Status) error {
	return s.conditionalSet(ctx, orderID, "status", string(expected), map[string]types.AttributeValue{
		"#s": &types.AttributeValueMemberS{Value: string(newStatus)},
	})
}

// Cancel moves the order from expected to cancelled and marks its stock as released in the
// same write. Only one caller can win this transition, so only one caller releases stock.
func (s *Store) Cancel(ctx context.Context, orderID string, expected Status) error {
	return s.conditionalSet(ctx, orderID, "status", string(expected), map[string]types.AttributeValue{
		"#s":             &types.AttributeValueMemberS{Value: string(StatusCancelled)},
		"stock_released": &types.AttributeValueMemberBOOL{Value: true},
	})
}

// UpdatePaymentStatus conditionally moves the payment status from expected -> newStatus.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, expected, newStatus PaymentStatus) error {
	return s.conditionalSet(ctx, orderID, "payment_status", string(expected), map[string]types.AttributeValue{
		"#s": &types.AttributeValueMemberS{Value: string(newStatus)},
	})
}

// conditionalSet applies sets only while statusAttr still equals expected. Inside sets,
// "#s" refers to statusAttr ("status" is a DynamoDB reserved word).
func (s *Store) conditionalSet(ctx context.Context, orderID, statusAttr, expected string, sets map[string]types.AttributeValue) error {
	keys := make([]string, 0, len(sets))
	for k := range sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updateExpr := "SET updated_at = :ua"
	values := map[string]types.AttributeValue{
		":ua":       &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		":expected": &types.AttributeValueMemberS{Value: expected},
	}
	for i, k := range keys {
		placeholder := fmt.Sprintf(":v%d", i)
		updateExpr += ", " + k + " = " + placeholder
		values[placeholder] = sets[k]
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": statusAttr},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		// detect conditional check failing
		if aws.IsConditionalCheckFailed(err) {
			return ErrStatusMismatch
		}
		return apperr.Storage("update order", err)
	}
	return nil
}

func sortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
