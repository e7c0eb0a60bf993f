package addresses

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
)

// UserIndex is the GSI on user_id used to list a user's addresses.
const UserIndex = "user_id-index"

// Store is the per-user address book backed by DynamoDB. Every operation is scoped to the
// owning user.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new address Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func addressKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"address_id": &types.AttributeValueMemberS{Value: id},
	}
}

// Create stores a new address for userID.
func (s *Store) Create(ctx context.Context, userID string, a Address) (*Address, error) {
	now := s.nowFunc().UTC()
	a.AddressID = uuid.NewString()
	a.UserID = userID
	a.CreatedAt = now
	a.UpdatedAt = now

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return nil, fmt.Errorf("marshal address: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(address_id)"),
	}); err != nil {
		return nil, apperr.Storage("put address", err)
	}
	if a.IsDefault {
		if err := s.clearDefaults(ctx, userID, a.AddressID); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// Get returns the address if it belongs to userID.
func (s *Store) Get(ctx context.Context, userID, addressID string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       addressKey(addressID),
	})
	if err != nil {
		return nil, apperr.Storage("get address", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("address %s: %w", addressID, apperr.ErrNotFound)
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if a.UserID != userID {
		return nil, fmt.Errorf("address %s: %w", addressID, apperr.ErrForbidden)
	}
	return &a, nil
}

// List returns the user's addresses, default first, then oldest first.
func (s *Store) List(ctx context.Context, userID string) ([]Address, error) {
	var (
		list     []Address
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(UserIndex),
			KeyConditionExpression: awsString("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, apperr.Storage("query addresses", err)
		}
		var page []Address
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal addresses: %w", err)
		}
		list = append(list, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsDefault != list[j].IsDefault {
			return list[i].IsDefault
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// Update applies the non-empty fields of c. The write is conditional on ownership so an
// address can never be edited through another user's session.
func (s *Store) Update(ctx context.Context, userID, addressID string, c Changes) (*Address, error) {
	sets := []string{"updated_at = :ua"}
	values := map[string]types.AttributeValue{
		":uid": &types.AttributeValueMemberS{Value: userID},
		":ua":  &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
	}
	for _, f := range []struct{ attr, value string }{
		{"full_name", c.FullName},
		{"phone", c.Phone},
		{"street", c.Street},
		{"city", c.City},
		{"#st", c.State},
		{"postal_code", c.PostalCode},
		{"country", c.Country},
	} {
		if f.value == "" {
			continue
		}
		placeholder := ":" + strings.TrimPrefix(f.attr, "#")
		sets = append(sets, f.attr+" = "+placeholder)
		values[placeholder] = &types.AttributeValueMemberS{Value: f.value}
	}
	var names map[string]string
	if c.State != "" {
		// "state" is a DynamoDB reserved word
		names = map[string]string{"#st": "state"}
	}
	if c.IsDefault != nil {
		sets = append(sets, "is_default = :def")
		values[":def"] = &types.AttributeValueMemberBOOL{Value: *c.IsDefault}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           &s.tableName,
		Key:                                 addressKey(addressID),
		UpdateExpression:                    awsString("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:            names,
		ConditionExpression:                 awsString("user_id = :uid"),
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return nil, s.classify(addressID, "update address", err)
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Attributes, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if c.IsDefault != nil && *c.IsDefault {
		if err := s.clearDefaults(ctx, userID, addressID); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// Delete removes an owned address. Orders keep their own snapshot, so history is unaffected.
func (s *Store) Delete(ctx context.Context, userID, addressID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 addressKey(addressID),
		ConditionExpression: awsString("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return s.classify(addressID, "delete address", err)
	}
	return nil
}

// classify maps a failed ownership condition to NotFound or Forbidden.
func (s *Store) classify(addressID, op string, err error) error {
	if !aws.IsConditionalCheckFailed(err) {
		return apperr.Storage(op, err)
	}
	if aws.ConditionFailedItem(err) == nil {
		return fmt.Errorf("address %s: %w", addressID, apperr.ErrNotFound)
	}
	return fmt.Errorf("address %s: %w", addressID, apperr.ErrForbidden)
}

func (s *Store) clearDefaults(ctx context.Context, userID, keepID string) error {
	list, err := s.List(ctx, userID)
	if err != nil {
		return err
	}
	for _, a := range list {
		if a.AddressID == keepID || !a.IsDefault {
			continue
		}
		f := false
		if _, err := s.Update(ctx, userID, a.AddressID, Changes{IsDefault: &f}); err != nil {
			return fmt.Errorf("clear default on %s: %w", a.AddressID, err)
		}
	}
	return nil
}

func awsString(s string) *string { return &s }
