package forum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
	"github.com/pulsefeed/pulsefeed-backend/internal/metrics"
	"github.com/pulsefeed/pulsefeed-backend/internal/util"
)

// Sort orders accepted by ListPosts.
const (
	SortLatest = "latest"
	SortHot    = "hot"
)

// ErrInvalidSort rejects sort orders outside SortLatest and SortHot.
var ErrInvalidSort = errors.New("unsupported sort order")

// Like toggle actions.
const (
	ActionLike   = "like"
	ActionUnlike = "unlike"
)

// ErrInvalidAction rejects like actions outside ActionLike and ActionUnlike.
var ErrInvalidAction = errors.New("unsupported like action")

func likeFromAction(action string) (bool, error) {
	switch action {
	case ActionLike:
		return true, nil
	case ActionUnlike:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", ErrInvalidAction, action)
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	timeDisplay     = "01-02 15:04"
)

// Event types published to the live feed.
const (
	EventPostCreated    = "post.created"
	EventCommentCreated = "comment.created"
	EventPostLiked      = "post.liked"
)

// EventPublisher receives feed events. A nil publisher is valid and
// silently drops everything.
type EventPublisher interface {
	Publish(eventType string, payload interface{})
}

// Service implements the forum operations on top of the write-back
// store. Every operation hydrates the working set on first use.
type Service struct {
	store     *Store
	logger    *zap.SugaredLogger
	publisher EventPublisher
	metrics   *metrics.Metrics

	likedFlights util.Group
}

// NewService wires the forum operations. publisher and m may be nil.
func NewService(store *Store, publisher EventPublisher, m *metrics.Metrics, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, logger: logger, publisher: publisher, metrics: m}
}

func (s *Service) publish(eventType string, payload interface{}) {
	if s.publisher != nil {
		s.publisher.Publish(eventType, payload)
	}
}

// Creator identifies a post's or comment's author in responses.
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostView is the response shape for a single post.
type PostView struct {
	ID           int64       `json:"id"`
	Creator      Creator     `json:"creator"`
	Content      string      `json:"content"`
	PostType     string      `json:"post_type"`
	Category     string      `json:"category"`
	Tags         []string    `json:"tags"`
	MediaFiles   []MediaFile `json:"media_files"`
	CreatedAt    string      `json:"created_at"`
	TimeDisplay  string      `json:"time_display"`
	LikeCount    int         `json:"like_count"`
	CommentCount int         `json:"comment_count"`
	ViewCount    int         `json:"view_count"`
	IsLiked      bool        `json:"is_liked"`
}

// CommentView is the response shape for a single comment.
type CommentView struct {
	ID          int64   `json:"id"`
	PostID      int64   `json:"post_id"`
	Creator     Creator `json:"creator"`
	Content     string  `json:"content"`
	CreatedAt   string  `json:"created_at"`
	TimeDisplay string  `json:"time_display"`
	LikeCount   int     `json:"like_count"`
	IsLiked     bool    `json:"is_liked"`
}

// PostListResult is a page of posts.
type PostListResult struct {
	Posts   []PostView `json:"posts"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	HasMore bool       `json:"has_more"`
}

// CommentListResult is a page of comments.
type CommentListResult struct {
	Comments []CommentView `json:"comments"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	HasMore  bool          `json:"has_more"`
}

// LikeResult reports the outcome of a like toggle.
type LikeResult struct {
	ID        int64 `json:"id"`
	Liked     bool  `json:"liked"`
	LikeCount int   `json:"like_count"`
}

// CreatePostRequest carries the fields for a new post.
type CreatePostRequest struct {
	UserID     string
	Content    string
	PostType   string
	Category   string
	Tags       []string
	MediaFiles []MediaFile
}

// ListPostsRequest selects a page of the feed.
type ListPostsRequest struct {
	UserID   string
	SortBy   string
	Page     int
	PageSize int
}

// SearchPostsRequest selects a page of keyword matches.
type SearchPostsRequest struct {
	UserID   string
	Keyword  string
	Page     int
	PageSize int
}

// CreatePost validates the author and adds a new post to the working
// set. The post exists in memory immediately; storage catches up on the
// next flush.
func (s *Service) CreatePost(ctx context.Context, req CreatePostRequest) (*PostView, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	user := s.store.Directory().GetInstance(req.UserID)
	if user == nil {
		return nil, fmt.Errorf("create post: %w", ErrUserNotFound)
	}

	post, err := s.store.CreatePost(req.UserID, req.Content, req.PostType, req.Category, req.Tags, req.MediaFiles)
	if err != nil {
		return nil, err
	}
	user.AddAuthoredPost(post.ID)

	// The authored list also goes to storage right away, best-effort.
	// The next flush repairs it if this write is lost.
	users := s.store.Database().Collection(db.CollectionUsers)
	authored := interfaces.Update{AddToSet: interfaces.Document{"post_ids": post.ID}}
	if _, err := users.UpdateOne(ctx, interfaces.Filter{"_id": req.UserID}, authored); err != nil {
		s.logger.Warnw("Authored list write failed; memory remains authoritative",
			"user_id", req.UserID, "post_id", post.ID, "error", err)
	}

	view := s.postView(post, false)
	s.publish(EventPostCreated, view)
	s.logger.Infow("Post created", "post_id", post.ID, "user_id", req.UserID)
	return &view, nil
}

// ListPosts returns one page of the feed, newest or hottest first. An
// empty working set is treated as possibly stale and triggers one forced
// rehydration before giving up.
func (s *Service) ListPosts(ctx context.Context, req ListPostsRequest) (*PostListResult, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}

	posts := s.store.ActivePosts()
	if len(posts) == 0 {
		// An empty feed usually means memory went stale, not that the
		// forum is empty. One forced rehydration settles which it is.
		if err := s.store.ForceReinitialize(ctx); err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordHydration(ctx, true)
		}
		posts = s.store.ActivePosts()
	}

	switch req.SortBy {
	case SortHot:
		sortHot(posts)
	case SortLatest, "":
		sortLatest(posts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSort, req.SortBy)
	}

	page, size := normalizePage(req.Page, req.PageSize)
	pageSlice, hasMore := paginatePosts(posts, page, size)
	liked := s.likedPostSet(ctx, req.UserID)

	views := make([]PostView, 0, len(pageSlice))
	for _, post := range pageSlice {
		views = append(views, s.postView(post, liked[post.ID]))
	}
	return &PostListResult{Posts: views, Total: len(posts), Page: page, HasMore: hasMore}, nil
}

// SearchPosts returns one page of active posts whose content or tags
// contain the keyword, case-insensitively, newest first.
func (s *Service) SearchPosts(ctx context.Context, req SearchPostsRequest) (*PostListResult, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}

	keyword := strings.ToLower(strings.TrimSpace(req.Keyword))
	matched := make([]*Post, 0)
	for _, post := range s.store.ActivePosts() {
		if keyword == "" || postMatches(post, keyword) {
			matched = append(matched, post)
		}
	}
	sortLatest(matched)

	page, size := normalizePage(req.Page, req.PageSize)
	pageSlice, hasMore := paginatePosts(matched, page, size)
	liked := s.likedPostSet(ctx, req.UserID)

	views := make([]PostView, 0, len(pageSlice))
	for _, post := range pageSlice {
		views = append(views, s.postView(post, liked[post.ID]))
	}
	return &PostListResult{Posts: views, Total: len(matched), Page: page, HasMore: hasMore}, nil
}

// PostDetail returns one active post.
func (s *Service) PostDetail(ctx context.Context, postID int64, userID string) (*PostView, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	post, ok := s.store.Post(postID)
	if !ok || !post.IsActive() {
		return nil, ErrPostNotFound
	}
	liked := s.likedPostSet(ctx, userID)
	view := s.postView(post, liked[post.ID])
	return &view, nil
}

// TogglePostLike applies a like or unlike to a post. Re-applying the
// current state succeeds without changing anything. Memory is the source
// of truth and always updates; the user's liked list in storage is
// updated best-effort, and the in-memory user only syncs when storage
// confirms the write so the two copies cannot drift apart silently.
func (s *Service) TogglePostLike(ctx context.Context, postID int64, userID, action string) (*LikeResult, error) {
	like, err := likeFromAction(action)
	if err != nil {
		return nil, err
	}
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	user := s.store.Directory().GetInstance(userID)
	if user == nil {
		return nil, fmt.Errorf("toggle post like: %w", ErrUserNotFound)
	}

	changed, post, err := s.store.ApplyPostLike(postID, userID, like)
	if err != nil {
		return nil, err
	}

	update := interfaces.Update{}
	if like {
		update.AddToSet = interfaces.Document{"liked_post_ids": postID}
	} else {
		update.Pull = interfaces.Document{"liked_post_ids": postID}
	}
	users := s.store.Database().Collection(db.CollectionUsers)
	modified, err := users.UpdateOne(ctx, interfaces.Filter{"_id": userID}, update)
	if err != nil {
		s.logger.Warnw("Liked list write failed; memory remains authoritative",
			"user_id", userID, "post_id", postID, "error", err)
	} else if modified > 0 {
		if like {
			user.AddLikedPost(postID)
		} else {
			user.RemoveLikedPost(postID)
		}
	}

	result := &LikeResult{ID: postID, Liked: like, LikeCount: post.LikeCount}
	if changed {
		s.publish(EventPostLiked, result)
	}
	return result, nil
}

// CreateComment validates the author and the target post, then adds the
// comment and links it to the post. Validation happens before an ID is
// issued so rejected requests leave no gap in the sequence.
func (s *Service) CreateComment(ctx context.Context, postID int64, userID, content string) (*CommentView, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	user := s.store.Directory().GetInstance(userID)
	if user == nil {
		return nil, fmt.Errorf("create comment: %w", ErrUserNotFound)
	}
	if post, ok := s.store.Post(postID); !ok || !post.IsActive() {
		return nil, ErrPostNotFound
	}

	comment, err := s.store.CreateComment(postID, userID, content)
	if err != nil {
		return nil, err
	}

	view := s.commentView(comment, false)
	s.publish(EventCommentCreated, view)
	s.logger.Infow("Comment created", "comment_id", comment.ID, "post_id", postID, "user_id", userID)
	return &view, nil
}

// ListComments returns one page of a post's comments, oldest first.
func (s *Service) ListComments(ctx context.Context, postID int64, userID string, pageNum, pageSize int) (*CommentListResult, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	if post, ok := s.store.Post(postID); !ok || !post.IsActive() {
		return nil, ErrPostNotFound
	}

	comments := s.store.ActiveCommentsForPost(postID)
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})

	page, size := normalizePage(pageNum, pageSize)
	start, end := pageBounds(len(comments), page, size)

	views := make([]CommentView, 0, end-start)
	for _, comment := range comments[start:end] {
		views = append(views, s.commentView(comment, userID != "" && comment.HasLiked(userID)))
	}
	return &CommentListResult{
		Comments: views,
		Total:    len(comments),
		Page:     page,
		HasMore:  end < len(comments),
	}, nil
}

// ToggleCommentLike applies a like or unlike to a comment, with the same
// no-op semantics as TogglePostLike. Comment likes live only on the
// comment itself; there is no per-user liked list to sync, so no storage
// write happens here.
func (s *Service) ToggleCommentLike(ctx context.Context, commentID int64, userID, action string) (*LikeResult, error) {
	like, err := likeFromAction(action)
	if err != nil {
		return nil, err
	}
	if err := s.store.Initialize(ctx); err != nil {
		return nil, err
	}
	if s.store.Directory().GetInstance(userID) == nil {
		return nil, fmt.Errorf("toggle comment like: %w", ErrUserNotFound)
	}
	_, comment, err := s.store.ApplyCommentLike(commentID, userID, like)
	if err != nil {
		return nil, err
	}
	return &LikeResult{ID: commentID, Liked: like, LikeCount: comment.LikeCount}, nil
}

// Flush exposes the store's write-back pass for the background job and
// the admin endpoint.
func (s *Service) Flush(ctx context.Context) (FlushReport, error) {
	if err := s.store.Initialize(ctx); err != nil {
		return FlushReport{}, err
	}
	start := time.Now()
	report := s.store.Flush(ctx)
	if s.metrics != nil {
		s.metrics.RecordFlush(ctx, report.Saved(), report.Failed(), time.Since(start))
	}
	return report, nil
}

// MemoryStatus exposes the working-set shape for the status endpoint.
func (s *Service) MemoryStatus() MemoryStatus {
	return s.store.Status()
}

// ForceReinitialize exposes the admin rehydration path.
func (s *Service) ForceReinitialize(ctx context.Context) error {
	if err := s.store.ForceReinitialize(ctx); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordHydration(ctx, true)
	}
	return nil
}

// likedPostSet loads the user's liked-post IDs from storage. The liked
// list is written through on toggle, so storage is the freshest copy.
// Concurrent lookups for the same user collapse into one storage read.
// Failures degrade to "nothing liked" rather than failing the read.
func (s *Service) likedPostSet(ctx context.Context, userID string) map[int64]bool {
	if userID == "" {
		return nil
	}
	v, err, _ := s.likedFlights.DoWithContext(ctx, userID, func(ctx context.Context) (interface{}, error) {
		doc, err := s.store.Database().Collection(db.CollectionUsers).FindOne(ctx, interfaces.Filter{"_id": userID})
		if err != nil {
			return nil, err
		}
		ids := query.Int64Slice(doc["liked_post_ids"])
		liked := make(map[int64]bool, len(ids))
		for _, id := range ids {
			liked[id] = true
		}
		return liked, nil
	})
	if err != nil {
		return nil
	}
	liked, _ := v.(map[int64]bool)
	return liked
}

func (s *Service) postView(p *Post, isLiked bool) PostView {
	creator := Creator{ID: p.UserID, Name: p.UserID}
	if user := s.store.Directory().GetInstance(p.UserID); user != nil {
		creator.Name = user.DisplayName()
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	media := p.MediaFiles
	if media == nil {
		media = []MediaFile{}
	}
	return PostView{
		ID:           p.ID,
		Creator:      creator,
		Content:      p.Content,
		PostType:     p.PostType,
		Category:     p.Category,
		Tags:         tags,
		MediaFiles:   media,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339),
		TimeDisplay:  p.CreatedAt.UTC().Format(timeDisplay),
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		ViewCount:    p.ViewCount,
		IsLiked:      isLiked,
	}
}

func (s *Service) commentView(c *Comment, isLiked bool) CommentView {
	creator := Creator{ID: c.UserID, Name: c.UserID}
	if user := s.store.Directory().GetInstance(c.UserID); user != nil {
		creator.Name = user.DisplayName()
	}
	return CommentView{
		ID:          c.ID,
		PostID:      c.PostID,
		Creator:     creator,
		Content:     c.Content,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
		TimeDisplay: c.CreatedAt.UTC().Format(timeDisplay),
		LikeCount:   c.LikeCount,
		IsLiked:     isLiked,
	}
}

func postMatches(p *Post, keyword string) bool {
	if strings.Contains(strings.ToLower(p.Content), keyword) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return false
}

func sortLatest(posts []*Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}

func sortHot(posts []*Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].LikeCount != posts[j].LikeCount {
			return posts[i].LikeCount > posts[j].LikeCount
		}
		if posts[i].CommentCount != posts[j].CommentCount {
			return posts[i].CommentCount > posts[j].CommentCount
		}
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func pageBounds(total, page, size int) (int, int) {
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}

func paginatePosts(posts []*Post, page, size int) ([]*Post, bool) {
	start, end := pageBounds(len(posts), page, size)
	return posts[start:end], end < len(posts)
}
