package forum

import (
	"time"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Comment is the in-memory comment record. Like Post, mutations run
// under the owning Store's lock.
type Comment struct {
	ID        int64
	PostID    int64
	UserID    string
	Content   string
	CreatedAt time.Time
	Status    string

	LikeCount int
	LikedBy   []string
}

// NewComment builds an active comment with a fresh identifier.
func NewComment(seq *Sequencer, postID int64, userID, content string) (*Comment, error) {
	id, err := seq.Next()
	if err != nil {
		return nil, err
	}
	return &Comment{
		ID:        id,
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPublished,
	}, nil
}

// IsActive reports whether the comment should appear in read paths.
func (c *Comment) IsActive() bool {
	return c.Status == StatusPublished
}

// HasLiked reports whether the user is in the liked-by set.
func (c *Comment) HasLiked(userID string) bool {
	for _, id := range c.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AddLike records a like, keeping LikeCount equal to len(LikedBy).
func (c *Comment) AddLike(userID string) bool {
	if c.HasLiked(userID) {
		return false
	}
	c.LikedBy = append(c.LikedBy, userID)
	c.LikeCount = len(c.LikedBy)
	return true
}

// RemoveLike withdraws a like. Returns false when there was none.
func (c *Comment) RemoveLike(userID string) bool {
	for i, id := range c.LikedBy {
		if id == userID {
			c.LikedBy = append(c.LikedBy[:i], c.LikedBy[i+1:]...)
			c.LikeCount = len(c.LikedBy)
			return true
		}
	}
	return false
}

// MarkDeleted soft-deletes the comment.
func (c *Comment) MarkDeleted() {
	c.Status = StatusDeleted
}

// Document serializes the comment for storage.
func (c *Comment) Document() interfaces.Document {
	return interfaces.Document{
		"_id":        c.ID,
		"post_id":    c.PostID,
		"user_id":    c.UserID,
		"content":    c.Content,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339Nano),
		"status":     c.Status,
		"like_count": c.LikeCount,
		"liked_by":   append([]string(nil), c.LikedBy...),
	}
}

// CommentFromDocument rebuilds a comment from its stored form, with the
// like count recomputed from the liked-by list.
func CommentFromDocument(doc interfaces.Document) *Comment {
	likedBy := query.StringSlice(doc["liked_by"])
	status := query.String(doc["status"])
	if status == "" {
		status = StatusPublished
	}
	return &Comment{
		ID:        query.Int64(doc["_id"]),
		PostID:    query.Int64(doc["post_id"]),
		UserID:    query.String(doc["user_id"]),
		Content:   query.String(doc["content"]),
		CreatedAt: query.Time(doc["created_at"]),
		Status:    status,
		LikeCount: len(likedBy),
		LikedBy:   likedBy,
	}
}
