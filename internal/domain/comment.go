package domain

import "time"

// Comment is a user comment on a store.
// PK: store_id, SK: comment_id (ULID, so comments sort by creation time).
type Comment struct {
	StoreID   string    `json:"store_id" dynamodbav:"store_id"`
	CommentID string    `json:"id" dynamodbav:"comment_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Body      string    `json:"body" dynamodbav:"body"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}
