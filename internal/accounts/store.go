// Package accounts stores customer and admin accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/aws"
)

// Roles carried in session tokens.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// adminMarker is the key of the item that records admin setup. It can never collide with
// a registered email because it has no "@".
const adminMarker = "setup#admin"

var (
	ErrEmailTaken = fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAdminExists        = fmt.Errorf("admin account already set up: %w", apperr.ErrForbidden)
)

// Account is the item stored in the accounts table.
type Account struct {
	Email        string    `dynamodbav:"email" json:"email"` // PK
	AccountID    string    `dynamodbav:"account_id" json:"id"`
	FullName     string    `dynamodbav:"full_name" json:"full_name"`
	Mobile       string    `dynamodbav:"mobile" json:"mobile"`
	PasswordHash string    `dynamodbav:"password_hash" json:"-"`
	Role         string    `dynamodbav:"role" json:"role"`
	CreatedAt    time.Time `dynamodbav:"created_at" json:"created_at"`
}

// NewAccount is the input to Register and SetupAdmin.
type NewAccount struct {
	FullName string
	Email    string
	Mobile   string
	Password string
}

// Store encapsulates operations on the accounts table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	cost      int
	nowFunc   func() time.Time
}

// NewStore creates a new accounts Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		cost:      bcrypt.DefaultCost,
		nowFunc:   time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) build(in NewAccount, role string) (Account, map[string]types.AttributeValue, error) {
	if in.Email == "" || in.Password == "" {
		return Account{}, nil, apperr.Validation("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Account{}, nil, apperr.Validation("password: %v", err)
	}
	acc := Account{
		Email:        normalizeEmail(in.Email),
		AccountID:    uuid.NewString(),
		FullName:     strings.TrimSpace(in.FullName),
		Mobile:       strings.TrimSpace(in.Mobile),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(acc)
	if err != nil {
		return Account{}, nil, fmt.Errorf("marshal account: %w", err)
	}
	return acc, item, nil
}

// Register creates a customer account. Emails are unique.
func (s *Store) Register(ctx context.Context, in NewAccount) (*Account, error) {
	acc, item, err := s.build(in, RoleCustomer)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(email)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Storage("put account", err)
	}
	return &acc, nil
}

// SetupAdmin creates the single admin account. The setup marker and the account are
// written in one transaction, so only the first call ever succeeds.
func (s *Store) SetupAdmin(ctx context.Context, in NewAccount) (*Account, error) {
	acc, item, err := s.build(in, RoleAdmin)
	if err != nil {
		return nil, err
	}
	marker, err := attributevalue.MarshalMap(map[string]any{
		"email":      adminMarker,
		"account_id": acc.AccountID,
		"created_at": acc.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal admin marker: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                marker,
				ConditionExpression: awsString("attribute_not_exists(email)"),
			}},
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: awsString("attribute_not_exists(email)"),
			}},
		},
	})
	if err != nil {
		codes := aws.CancellationCodes(err)
		switch {
		case len(codes) > 0 && codes[0] == "ConditionalCheckFailed":
			return nil, ErrAdminExists
		case len(codes) > 1 && codes[1] == "ConditionalCheckFailed":
			return nil, ErrEmailTaken
		}
		return nil, apperr.Storage("transact write admin", err)
	}
	return &acc, nil
}

// AdminConfigured reports whether SetupAdmin has already run.
func (s *Store) AdminConfigured(ctx context.Context) (bool, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       emailKey(adminMarker),
	})
	if err != nil {
		return false, apperr.Storage("get admin marker", err)
	}
	return len(out.Item) > 0, nil
}

// Authenticate returns the account when password matches the stored hash.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if email == adminMarker {
		return nil, ErrInvalidCredentials
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            emailKey(email),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, apperr.Storage("get account", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrInvalidCredentials
	}
	var acc Account
	if err := attributevalue.UnmarshalMap(out.Item, &acc); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &acc, nil
}

func emailKey(email string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"email": &types.AttributeValueMemberS{Value: email},
	}
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
