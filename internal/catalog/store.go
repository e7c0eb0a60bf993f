package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
)

var (
	// ErrInsufficientStock is returned when the counter for a size is below the requested quantity.
	ErrInsufficientStock = fmt.Errorf("insufficient stock: %w", apperr.ErrConflict)
	// ErrSizeNotOffered is returned when the product has no counter for the requested size.
	ErrSizeNotOffered = fmt.Errorf("size not offered: %w", apperr.ErrConflict)
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new catalog Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

// GetProduct fetches a product by id. Soft-deleted products are returned with Deleted set
// so order history can still resolve them.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            productKey(id),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, apperr.Storage("get product", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("product %s: %w", id, apperr.ErrNotFound)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// ListProducts returns every product that has not been soft-deleted.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	var (
		products []Product
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, apperr.Storage("scan products", err)
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		for _, p := range page {
			if !p.Deleted {
				products = append(products, p)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return products, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// PutProduct creates p (assigning an id when empty) or replaces the existing record,
// preserving its creation time.
func (s *Store) PutProduct(ctx context.Context, p Product) (*Product, error) {
	if err := p.Validate(); err != nil {
		return nil, apperr.Validation("%v", err)
	}
	now := s.nowFunc().UTC()
	if p.ProductID == "" {
		p.ProductID = uuid.NewString()
		p.CreatedAt = now
	} else if existing, err := s.GetProduct(ctx, p.ProductID); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else if errors.Is(err, apperr.ErrNotFound) {
		p.CreatedAt = now
	} else {
		return nil, err
	}
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return nil, apperr.Storage("put product", err)
	}
	return &p, nil
}

// ReserveStock decrements the counter for size by qty in a single conditional update.
// The guard and the decrement are evaluated together by DynamoDB, so concurrent callers
// can never drive a counter below zero.
func (s *Store) ReserveStock(ctx context.Context, productID string, size, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              productKey(productID),
		UpdateExpression: awsString("SET #stock.#size = #stock.#size - :qty, updated_at = :ua"),
		ConditionExpression: awsString(
			"attribute_exists(#stock.#size) AND #stock.#size >= :qty"),
		ExpressionAttributeNames: map[string]string{
			"#stock": "stock",
			"#size":  SizeKey(size),
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	if !aws.IsConditionalCheckFailed(err) {
		return apperr.Storage("reserve stock", err)
	}

	old := aws.ConditionFailedItem(err)
	if old == nil {
		return fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(old, &p); err != nil {
		return fmt.Errorf("unmarshal product: %w", err)
	}
	if !p.Offers(size) {
		return fmt.Errorf("product %s size %d: %w", productID, size, ErrSizeNotOffered)
	}
	return fmt.Errorf("product %s size %d has %d, want %d: %w", productID, size, p.Quantity(size), qty, ErrInsufficientStock)
}

// ReleaseStock adds qty back to the counter for size. It is the compensating action for
// ReserveStock.
func (s *Store) ReleaseStock(ctx context.Context, productID string, size, qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be positive")
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		UpdateExpression:    awsString("SET #stock.#size = #stock.#size + :qty, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(#stock.#size)"),
		ExpressionAttributeNames: map[string]string{
			"#stock": "stock",
			"#size":  SizeKey(size),
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return fmt.Errorf("product %s size %d: %w", productID, size, ErrSizeNotOffered)
		}
		return apperr.Storage("release stock", err)
	}
	return nil
}

// SetStock overwrites the counter for an offered size.
func (s *Store) SetStock(ctx context.Context, productID string, size, qty int) error {
	if qty < 0 {
		return apperr.Validation("quantity must not be negative")
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		UpdateExpression:    awsString("SET #stock.#size = :qty, updated_at = :ua"),
		ConditionExpression: awsString("attribute_exists(#stock.#size)"),
		ExpressionAttributeNames: map[string]string{
			"#stock": "stock",
			"#size":  SizeKey(size),
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			if aws.ConditionFailedItem(err) == nil {
				return fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
			}
			return fmt.Errorf("product %s size %d: %w", productID, size, ErrSizeNotOffered)
		}
		return apperr.Storage("set stock", err)
	}
	return nil
}

// SetAvailability toggles the availability flag.
func (s *Store) SetAvailability(ctx context.Context, productID string, available bool) error {
	return s.setFlag(ctx, productID, "available", available)
}

// SoftDelete hides the product from listings while keeping it for order history.
func (s *Store) SoftDelete(ctx context.Context, productID string) error {
	return s.setFlag(ctx, productID, "deleted", true)
}

func (s *Store) setFlag(ctx context.Context, productID, attr string, value bool) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      productKey(productID),
		UpdateExpression:         awsString("SET #f = :v, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(product_id)"),
		ExpressionAttributeNames: map[string]string{"#f": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":  &types.AttributeValueMemberBOOL{Value: value},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
		}
		return apperr.Storage("update product", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
