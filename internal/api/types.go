package api

import "github.com/pulsefeed/pulsefeed-backend/internal/forum"

// Request bodies. Every forum operation is a POST carrying JSON; the
// acting user rides along as user_id rather than a session, because
// authentication lives in front of this service.

type CreatePostRequest struct {
	UserID     string            `json:"user_id"`
	Content    string            `json:"content"`
	PostType   string            `json:"post_type,omitempty"`
	Category   string            `json:"category,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	MediaFiles []forum.MediaFile `json:"media_files,omitempty"`
}

type ListPostsRequest struct {
	UserID   string `json:"user_id,omitempty"`
	SortBy   string `json:"sort_by,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type SearchPostsRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Keyword  string `json:"keyword"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type PostDetailRequest struct {
	UserID string `json:"user_id,omitempty"`
	PostID int64  `json:"post_id"`
}

type TogglePostLikeRequest struct {
	UserID string `json:"user_id"`
	PostID int64  `json:"post_id"`
	Action string `json:"action"`
}

type CreateCommentRequest struct {
	UserID  string `json:"user_id"`
	PostID  int64  `json:"post_id"`
	Content string `json:"content"`
}

type ListCommentsRequest struct {
	UserID   string `json:"user_id,omitempty"`
	PostID   int64  `json:"post_id"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

type ToggleCommentLikeRequest struct {
	UserID    string `json:"user_id"`
	CommentID int64  `json:"comment_id"`
	Action    string `json:"action"`
}

// SuccessResponse is the envelope for every 2xx body: a success flag
// plus the operation's payload.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type FlushResponse struct {
	OK     bool              `json:"ok"`
	Report forum.FlushReport `json:"report"`
}

type ReinitializeResponse struct {
	OK     bool               `json:"ok"`
	Status forum.MemoryStatus `json:"status"`
}
