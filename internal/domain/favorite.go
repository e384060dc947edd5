package domain

import "time"

// Favorite marks a store as favorited by a user.
// PK: user_id, SK: store_id.
type Favorite struct {
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	StoreID   string    `json:"store_id" dynamodbav:"store_id"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}
