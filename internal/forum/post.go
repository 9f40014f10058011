package forum

import (
	"time"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

// Entity lifecycle status values. Deleted entities stay resident and
// stored; they are only filtered out of read paths.
const (
	StatusPublished = "published"
	StatusDeleted   = "deleted"
)

// Post content kinds.
const (
	PostTypeText      = "text"
	PostTypeImage     = "image"
	PostTypeTextImage = "text_image"
)

// MaxTags caps the number of tags kept on a post; extras are dropped
// silently at creation.
const MaxTags = 3

// MediaFile is one attachment reference carried verbatim on a post.
type MediaFile struct {
	Type         string `json:"type"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// Post is the in-memory post record. Mutations run under the owning
// Store's lock; Post itself is not safe for concurrent use.
type Post struct {
	ID         int64
	UserID     string
	Content    string
	PostType   string
	Category   string
	Tags       []string
	MediaFiles []MediaFile
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Status     string

	LikeCount    int
	LikedBy      []string
	CommentCount int
	CommentIDs   []int64
	ViewCount    int
}

// NewPost builds a published post with a fresh identifier. Tags beyond
// MaxTags are truncated, never rejected.
func NewPost(seq *Sequencer, userID, content, postType, category string, tags []string, media []MediaFile) (*Post, error) {
	id, err := seq.Next()
	if err != nil {
		return nil, err
	}
	if len(tags) > MaxTags {
		tags = tags[:MaxTags]
	}
	now := time.Now().UTC()
	return &Post{
		ID:         id,
		UserID:     userID,
		Content:    content,
		PostType:   normalizePostType(postType, content, media),
		Category:   category,
		Tags:       append([]string(nil), tags...),
		MediaFiles: append([]MediaFile(nil), media...),
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     StatusPublished,
	}, nil
}

// normalizePostType derives the content kind from the attachments when
// the caller passes an empty or unknown value.
func normalizePostType(postType, content string, media []MediaFile) string {
	switch postType {
	case PostTypeText, PostTypeImage, PostTypeTextImage:
		return postType
	}
	switch {
	case len(media) > 0 && content != "":
		return PostTypeTextImage
	case len(media) > 0:
		return PostTypeImage
	default:
		return PostTypeText
	}
}

// IsActive reports whether the post should appear in read paths.
func (p *Post) IsActive() bool {
	return p.Status == StatusPublished
}

// HasLiked reports whether the user is in the liked-by set.
func (p *Post) HasLiked(userID string) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// AddLike records a like, keeping LikeCount equal to len(LikedBy).
// Returns false when the user already liked the post.
func (p *Post) AddLike(userID string) bool {
	if p.HasLiked(userID) {
		return false
	}
	p.LikedBy = append(p.LikedBy, userID)
	p.LikeCount = len(p.LikedBy)
	p.UpdatedAt = time.Now().UTC()
	return true
}

// RemoveLike withdraws a like. Returns false when there was none.
func (p *Post) RemoveLike(userID string) bool {
	for i, id := range p.LikedBy {
		if id == userID {
			p.LikedBy = append(p.LikedBy[:i], p.LikedBy[i+1:]...)
			p.LikeCount = len(p.LikedBy)
			p.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// AttachComment links a comment to the post, keeping CommentCount equal
// to len(CommentIDs). Duplicate IDs are ignored.
func (p *Post) AttachComment(commentID int64) {
	for _, id := range p.CommentIDs {
		if id == commentID {
			return
		}
	}
	p.CommentIDs = append(p.CommentIDs, commentID)
	p.CommentCount = len(p.CommentIDs)
	p.UpdatedAt = time.Now().UTC()
}

// MarkDeleted soft-deletes the post.
func (p *Post) MarkDeleted() {
	p.Status = StatusDeleted
	p.UpdatedAt = time.Now().UTC()
}

// Document serializes the post for storage.
func (p *Post) Document() interfaces.Document {
	media := make([]interface{}, 0, len(p.MediaFiles))
	for _, m := range p.MediaFiles {
		entry := interfaces.Document{"type": m.Type, "url": m.URL}
		if m.ThumbnailURL != "" {
			entry["thumbnail_url"] = m.ThumbnailURL
		}
		media = append(media, entry)
	}
	return interfaces.Document{
		"_id":           p.ID,
		"user_id":       p.UserID,
		"content":       p.Content,
		"post_type":     p.PostType,
		"category":      p.Category,
		"tags":          append([]string(nil), p.Tags...),
		"media_files":   media,
		"created_at":    p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":    p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"status":        p.Status,
		"like_count":    p.LikeCount,
		"liked_by":      append([]string(nil), p.LikedBy...),
		"comment_count": p.CommentCount,
		"comment_ids":   append([]int64(nil), p.CommentIDs...),
		"view_count":    p.ViewCount,
	}
}

// PostFromDocument rebuilds a post from its stored form. The counter
// fields are recomputed from the backing lists so a hand-edited or
// partially written document cannot smuggle in a mismatched count.
func PostFromDocument(doc interfaces.Document) *Post {
	likedBy := query.StringSlice(doc["liked_by"])
	commentIDs := query.Int64Slice(doc["comment_ids"])
	content := query.String(doc["content"])
	media := mediaFromValue(doc["media_files"])
	status := query.String(doc["status"])
	if status == "" {
		status = StatusPublished
	}
	createdAt := query.Time(doc["created_at"])
	updatedAt := query.Time(doc["updated_at"])
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return &Post{
		ID:           query.Int64(doc["_id"]),
		UserID:       query.String(doc["user_id"]),
		Content:      content,
		PostType:     normalizePostType(query.String(doc["post_type"]), content, media),
		Category:     query.String(doc["category"]),
		Tags:         query.StringSlice(doc["tags"]),
		MediaFiles:   media,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		Status:       status,
		LikeCount:    len(likedBy),
		LikedBy:      likedBy,
		CommentCount: len(commentIDs),
		CommentIDs:   commentIDs,
		ViewCount:    int(query.Int64(doc["view_count"])),
	}
}

func mediaFromValue(v interface{}) []MediaFile {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]MediaFile, 0, len(arr))
	for _, item := range arr {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, MediaFile{
			Type:         query.String(entry["type"]),
			URL:          query.String(entry["url"]),
			ThumbnailURL: query.String(entry["thumbnail_url"]),
		})
	}
	return out
}
