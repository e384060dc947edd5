package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/foraling/foraling-server/internal/domain"
)

// FavoriteRepo manages store favorites. PK: user_id, SK: store_id.
type FavoriteRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewFavoriteRepo(client *dynamodb.Client, tableName string) *FavoriteRepo {
	return &FavoriteRepo{client: client, tableName: tableName}
}

func (r *FavoriteRepo) Put(ctx context.Context, f *domain.Favorite) error {
	item, err := attributevalue.MarshalMap(f)
	if err != nil {
		return fmt.Errorf("marshal favorite: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put favorite: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *FavoriteRepo) Get(ctx context.Context, userID, storeID string) (*domain.Favorite, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "store_id", storeID),
	})
	if err != nil {
		return nil, fmt.Errorf("get favorite: %v: %w", err, domain.ErrStorage)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("favorite not found: %w", domain.ErrNotFound)
	}
	var f domain.Favorite
	if err := attributevalue.UnmarshalMap(out.Item, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FavoriteRepo) Delete(ctx context.Context, userID, storeID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("user_id", userID, "store_id", storeID),
	})
	if err != nil {
		return fmt.Errorf("delete favorite: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *FavoriteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Favorite, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":u": &types.AttributeValueMemberS{Value: userID}},
	})
	if err != nil {
		return nil, fmt.Errorf("query favorites: %v: %w", err, domain.ErrStorage)
	}
	var favs []domain.Favorite
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &favs); err != nil {
		return nil, err
	}
	return favs, nil
}
