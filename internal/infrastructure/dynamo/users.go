package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/firetrack360/identity/internal/domain"
)

// ErrVersionConflict is returned by UpdateConditional when the stored version
// no longer matches the expected one (a concurrent writer won the race).
var ErrVersionConflict = errors.New("version conflict")

// Unique-key prefixes for the uniques table. Each account reserves one item
// per prefix; the conditional put on these items is what enforces global
// uniqueness of email and phone inside the create transaction.
const (
	uniqEmailPrefix = "email#"
	uniqPhonePrefix = "phone#"
)

// UserRepo provides typed DynamoDB operations for the users table plus the
// companion uniques table that backs email/phone uniqueness.
type UserRepo struct {
	client       *dynamodb.Client
	tableName    string
	uniquesTable string
}

func NewUserRepo(client *dynamodb.Client, tableName, uniquesTable string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, uniquesTable: uniquesTable}
}

// Create persists a new user in a single transaction that also reserves the
// email and phone unique keys. Any duplicate surfaces as domain.ErrConflict;
// the check runs against the durable store only, never a cache.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	items, err := r.createItems(u)
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionalCancellation(err) {
			return fmt.Errorf("email or phone already in use: %w", domain.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// CreateMany persists users all-or-nothing in one transaction; a single
// duplicate email or phone fails the whole batch with domain.ErrConflict.
// DynamoDB caps a transaction at 100 items (3 per user here).
func (r *UserRepo) CreateMany(ctx context.Context, users []*domain.User) error {
	if len(users) == 0 {
		return nil
	}
	var items []types.TransactWriteItem
	for _, u := range users {
		ui, err := r.createItems(u)
		if err != nil {
			return err
		}
		items = append(items, ui...)
	}
	if len(items) > 100 {
		return fmt.Errorf("batch of %d users exceeds transaction limit: %w", len(users), domain.ErrBadRequest)
	}
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionalCancellation(err) {
			return fmt.Errorf("one or more emails or phones already in use: %w", domain.ErrConflict)
		}
		return fmt.Errorf("create users: %w", err)
	}
	return nil
}

func (r *UserRepo) createItems(u *domain.User) ([]types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	return []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(user_id)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(r.uniquesTable),
			Item:                uniqueItem(uniqEmailPrefix+u.Email, u.UserID),
			ConditionExpression: aws.String("attribute_not_exists(uniq)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(r.uniquesTable),
			Item:                uniqueItem(uniqPhonePrefix+u.Phone, u.UserID),
			ConditionExpression: aws.String("attribute_not_exists(uniq)"),
		}},
	}, nil
}

func uniqueItem(key, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"uniq":    &types.AttributeValueMemberS{Value: key},
		"user_id": &types.AttributeValueMemberS{Value: userID},
	}
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("user_id", userID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.queryGSI(ctx, "email-index", "email", email)
}

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.queryGSI(ctx, "phone-index", "phone", phone)
}

// UpdateConditional applies a partial update only if the stored version still
// equals expectedVersion, bumping version and updated_at in the same write.
// Email and phone are immutable here: their unique-key reservations are never
// touched after Create.
func (r *UserRepo) UpdateConditional(ctx context.Context, userID string, expectedVersion int64, updates map[string]interface{}) error {
	merged := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		merged[k] = v
	}
	merged["version"] = expectedVersion + 1
	merged["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	ue, err := buildUpdateExpr(merged)
	if err != nil {
		return err
	}
	ue.Values[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("user_id", userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(user_id) AND version = :expected"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Distinguish a missing row from a lost race.
			if _, getErr := r.Get(ctx, userID); errors.Is(getErr, domain.ErrNotFound) {
				return fmt.Errorf("user not found: %w", domain.ErrNotFound)
			}
			return ErrVersionConflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

func (r *UserRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// isConditionalCancellation reports whether a transaction failed because one
// of its condition checks did (duplicate key or existing row).
func isConditionalCancellation(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
