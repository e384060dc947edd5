package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foraling/foraling-server/internal/domain"
	"github.com/foraling/foraling-server/internal/pkg/id"
)

const maxCommentLen = 1000

// Service covers the social surface around stores: favorites and comments.
type Service interface {
	// ToggleFavorite flips the favorite mark for (userID, storeID) and
	// reports the resulting state: true when the store is now favorited.
	ToggleFavorite(ctx context.Context, userID, storeID string) (bool, error)

	ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error)

	// PostComment stores a comment on a store. Comment IDs are ULIDs so the
	// storage order is the creation order.
	PostComment(ctx context.Context, userID, storeID, body string) (*domain.Comment, error)

	// ListComments returns up to limit comments for a store, newest first.
	// limit <= 0 means no cap.
	ListComments(ctx context.Context, storeID string, limit int32) ([]domain.Comment, error)
}

type favoriteStore interface {
	Put(ctx context.Context, f *domain.Favorite) error
	Get(ctx context.Context, userID, storeID string) (*domain.Favorite, error)
	Delete(ctx context.Context, userID, storeID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Favorite, error)
}

type commentStore interface {
	Put(ctx context.Context, c *domain.Comment) error
	ListByStore(ctx context.Context, storeID string, limit int32) ([]domain.Comment, error)
}

type service struct {
	favorites favoriteStore
	comments  commentStore
}

func NewService(favorites favoriteStore, comments commentStore) Service {
	return &service{favorites: favorites, comments: comments}
}

func (s *service) ToggleFavorite(ctx context.Context, userID, storeID string) (bool, error) {
	if userID == "" || storeID == "" {
		return false, fmt.Errorf("user and store required: %w", domain.ErrInvalidInput)
	}

	_, err := s.favorites.Get(ctx, userID, storeID)
	switch {
	case err == nil:
		if err := s.favorites.Delete(ctx, userID, storeID); err != nil {
			return false, err
		}
		return false, nil
	case errors.Is(err, domain.ErrNotFound):
		f := &domain.Favorite{UserID: userID, StoreID: storeID, CreatedAt: time.Now().UTC()}
		if err := s.favorites.Put(ctx, f); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

func (s *service) ListFavorites(ctx context.Context, userID string) ([]domain.Favorite, error) {
	if userID == "" {
		return nil, fmt.Errorf("user required: %w", domain.ErrInvalidInput)
	}
	return s.favorites.ListByUser(ctx, userID)
}

func (s *service) PostComment(ctx context.Context, userID, storeID, body string) (*domain.Comment, error) {
	body = strings.TrimSpace(body)
	if userID == "" || storeID == "" || body == "" {
		return nil, fmt.Errorf("user, store and body required: %w", domain.ErrInvalidInput)
	}
	if len([]rune(body)) > maxCommentLen {
		return nil, fmt.Errorf("comment exceeds %d characters: %w", maxCommentLen, domain.ErrInvalidInput)
	}

	c := &domain.Comment{
		StoreID:   storeID,
		CommentID: id.New(),
		UserID:    userID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.comments.Put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) ListComments(ctx context.Context, storeID string, limit int32) ([]domain.Comment, error) {
	if storeID == "" {
		return nil, fmt.Errorf("store required: %w", domain.ErrInvalidInput)
	}
	return s.comments.ListByStore(ctx, storeID, limit)
}
