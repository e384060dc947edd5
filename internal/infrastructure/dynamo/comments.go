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

// CommentRepo manages store comments. PK: store_id, SK: comment_id.
type CommentRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCommentRepo(client *dynamodb.Client, tableName string) *CommentRepo {
	return &CommentRepo{client: client, tableName: tableName}
}

func (r *CommentRepo) Put(ctx context.Context, c *domain.Comment) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal comment: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put comment: %v: %w", err, domain.ErrStorage)
	}
	return nil
}

func (r *CommentRepo) ListByStore(ctx context.Context, storeID string, limit int32) ([]domain.Comment, error) {
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("store_id = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": &types.AttributeValueMemberS{Value: storeID}},
		ScanIndexForward:          aws.Bool(false), // newest first
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}
	out, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("query comments: %v: %w", err, domain.ErrStorage)
	}
	var comments []domain.Comment
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}
