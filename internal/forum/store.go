package forum

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/identity"
)

// Lookup failures for entities the caller referenced by ID.
var (
	ErrPostNotFound    = errors.New("post not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Store is the write-back working set: every post and comment lives in
// memory and all reads and writes hit these maps. Storage is only touched
// on hydration and on flush. One RWMutex guards the maps and the entities
// inside them; a separate mutex serializes flush passes so a slow flush
// never blocks a second trigger into overlapping writes.
type Store struct {
	mu      sync.RWMutex
	flushMu sync.Mutex

	db        interfaces.Database
	logger    *zap.SugaredLogger
	directory *identity.Directory

	postSeq    *Sequencer
	commentSeq *Sequencer

	posts    map[int64]*Post
	comments map[int64]*Comment

	initialized bool
}

func NewStore(database interfaces.Database, directory *identity.Directory, logger *zap.SugaredLogger) *Store {
	return &Store{
		db:         database,
		logger:     logger,
		directory:  directory,
		postSeq:    NewSequencer("post", db.CollectionPosts, database, logger),
		commentSeq: NewSequencer("comment", db.CollectionComments, database, logger),
		posts:      make(map[int64]*Post),
		comments:   make(map[int64]*Comment),
	}
}

// Initialize hydrates the working set from storage. Idempotent: once a
// hydration succeeds, repeat calls return immediately. The load is
// all-or-nothing; a failure leaves the store untouched and uninitialized
// so the next call retries from scratch.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.RLock()
	ready := s.initialized
	s.mu.RUnlock()
	if ready {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	return s.loadLocked(ctx)
}

// ForceReinitialize discards the resident posts and comments and reloads
// them from storage. Unflushed changes to those entities are lost, which
// is exactly the point when memory is suspected stale. The user directory
// stays resident.
func (s *Store) ForceReinitialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	if err := s.directory.Initialize(ctx); err != nil {
		return fmt.Errorf("hydrate users: %w", err)
	}
	if err := s.postSeq.Seed(ctx); err != nil {
		return fmt.Errorf("seed post sequencer: %w", err)
	}
	if err := s.commentSeq.Seed(ctx); err != nil {
		return fmt.Errorf("seed comment sequencer: %w", err)
	}

	postDocs, err := s.db.Collection(db.CollectionPosts).Find(ctx, interfaces.Filter{})
	if err != nil {
		return fmt.Errorf("hydrate posts: %w", err)
	}
	commentDocs, err := s.db.Collection(db.CollectionComments).Find(ctx, interfaces.Filter{})
	if err != nil {
		return fmt.Errorf("hydrate comments: %w", err)
	}

	posts := make(map[int64]*Post, len(postDocs))
	for _, doc := range postDocs {
		post := PostFromDocument(doc)
		if post.ID == 0 {
			continue
		}
		posts[post.ID] = post
		s.postSeq.AdvanceTo(post.ID)
	}
	comments := make(map[int64]*Comment, len(commentDocs))
	for _, doc := range commentDocs {
		comment := CommentFromDocument(doc)
		if comment.ID == 0 {
			continue
		}
		comments[comment.ID] = comment
		s.commentSeq.AdvanceTo(comment.ID)
	}

	s.posts = posts
	s.comments = comments
	s.initialized = true

	// Stored author lists may lag behind the posts that just loaded.
	hydrated := make([]*Post, 0, len(posts))
	for _, post := range posts {
		hydrated = append(hydrated, post)
	}
	repaired := s.reconcilePosts(hydrated)

	s.logger.Infow("Forum memory hydrated",
		"posts", len(posts), "comments", len(comments),
		"users", s.directory.Count(), "repaired", repaired)
	return nil
}

// Initialized reports whether the working set has been hydrated.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// CreatePost constructs a post and adds it to the working set. Callers
// validate the author first; the sequencer only advances here, after
// validation, so failed requests never burn identifiers.
func (s *Store) CreatePost(userID, content, postType, category string, tags []string, media []MediaFile) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, err := NewPost(s.postSeq, userID, content, postType, category, tags, media)
	if err != nil {
		return nil, err
	}
	s.posts[post.ID] = post
	return copyPost(post), nil
}

// CreateComment constructs a comment, adds it to the working set, and
// links it to its post. The post must exist and be active.
func (s *Store) CreateComment(postID int64, userID, content string) (*Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok || !post.IsActive() {
		return nil, ErrPostNotFound
	}
	comment, err := NewComment(s.commentSeq, postID, userID, content)
	if err != nil {
		return nil, err
	}
	s.comments[comment.ID] = comment
	post.AttachComment(comment.ID)
	return copyComment(comment), nil
}

// Post returns a snapshot of one post, active or not.
func (s *Store) Post(id int64) (*Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, false
	}
	return copyPost(post), true
}

// ActivePosts returns snapshots of every active post, in map order.
func (s *Store) ActivePosts() []*Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Post, 0, len(s.posts))
	for _, post := range s.posts {
		if post.IsActive() {
			out = append(out, copyPost(post))
		}
	}
	return out
}

// ActiveCommentsForPost returns snapshots of the post's active comments,
// in map order.
func (s *Store) ActiveCommentsForPost(postID int64) []*Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Comment, 0)
	for _, comment := range s.comments {
		if comment.PostID == postID && comment.IsActive() {
			out = append(out, copyComment(comment))
		}
	}
	return out
}

// ApplyPostLike applies a like or unlike to a post. Re-applying the
// current state is a no-op; changed reports whether anything moved.
func (s *Store) ApplyPostLike(postID int64, userID string, like bool) (changed bool, snapshot *Post, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok || !post.IsActive() {
		return false, nil, ErrPostNotFound
	}
	if like {
		changed = post.AddLike(userID)
	} else {
		changed = post.RemoveLike(userID)
	}
	return changed, copyPost(post), nil
}

// ApplyCommentLike applies a like or unlike to a comment, with the same
// no-op semantics as ApplyPostLike.
func (s *Store) ApplyCommentLike(commentID int64, userID string, like bool) (changed bool, snapshot *Comment, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[commentID]
	if !ok || !comment.IsActive() {
		return false, nil, ErrCommentNotFound
	}
	if like {
		changed = comment.AddLike(userID)
	} else {
		changed = comment.RemoveLike(userID)
	}
	return changed, copyComment(comment), nil
}

// MemoryStatus is a point-in-time view of the working set, for the
// operational status endpoint.
type MemoryStatus struct {
	Initialized   bool  `json:"initialized"`
	Posts         int   `json:"posts"`
	Comments      int   `json:"comments"`
	Users         int   `json:"users"`
	LastPostID    int64 `json:"last_post_id"`
	LastCommentID int64 `json:"last_comment_id"`
}

// Status reports the current working-set shape.
func (s *Store) Status() MemoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MemoryStatus{
		Initialized:   s.initialized,
		Posts:         len(s.posts),
		Comments:      len(s.comments),
		Users:         s.directory.Count(),
		LastPostID:    s.postSeq.Current(),
		LastCommentID: s.commentSeq.Current(),
	}
}

// Reconcile repairs the user-to-authored-posts relationship in memory:
// every resident post's ID must appear in its author's authored list.
// Authors missing from the directory are registered so their lists
// survive the next flush. No storage access happens here.
func (s *Store) Reconcile() int {
	s.mu.RLock()
	posts := make([]*Post, 0, len(s.posts))
	for _, post := range s.posts {
		posts = append(posts, copyPost(post))
	}
	s.mu.RUnlock()

	repaired := s.reconcilePosts(posts)
	if repaired > 0 {
		s.logger.Infow("Repaired user post relationships", "repaired", repaired)
	}
	return repaired
}

func (s *Store) reconcilePosts(posts []*Post) int {
	repaired := 0
	for _, post := range posts {
		user := s.directory.GetInstance(post.UserID)
		if user == nil {
			user = s.directory.Register(post.UserID, "")
		}
		if user.AddAuthoredPost(post.ID) {
			repaired++
		}
	}
	return repaired
}

// FlushReport is the per-kind outcome of one flush pass.
type FlushReport struct {
	PostsSaved     int `json:"posts_saved"`
	PostsFailed    int `json:"posts_failed"`
	CommentsSaved  int `json:"comments_saved"`
	CommentsFailed int `json:"comments_failed"`
	UsersSaved     int `json:"users_saved"`
	UsersFailed    int `json:"users_failed"`
	Repaired       int `json:"repaired"`
}

// Failed returns the total number of entities that could not be saved.
func (r FlushReport) Failed() int {
	return r.PostsFailed + r.CommentsFailed + r.UsersFailed
}

// Saved returns the total number of entities written.
func (r FlushReport) Saved() int {
	return r.PostsSaved + r.CommentsSaved + r.UsersSaved
}

// OK reports whether every entity reached storage.
func (r FlushReport) OK() bool {
	return r.Failed() == 0
}

// Flush reconciles relationships and writes every resident entity back
// to storage. Per-entity failures are logged and counted; the pass keeps
// going so one bad document cannot hold the rest of the working set
// hostage. Flush passes are serialized.
func (s *Store) Flush(ctx context.Context) FlushReport {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var report FlushReport
	report.Repaired = s.Reconcile()

	s.mu.RLock()
	postDocs := make([]interfaces.Document, 0, len(s.posts))
	for _, post := range s.posts {
		postDocs = append(postDocs, post.Document())
	}
	commentDocs := make([]interfaces.Document, 0, len(s.comments))
	for _, comment := range s.comments {
		commentDocs = append(commentDocs, comment.Document())
	}
	s.mu.RUnlock()

	postColl := s.db.Collection(db.CollectionPosts)
	for _, doc := range postDocs {
		if err := upsertDocument(ctx, postColl, doc); err != nil {
			s.logger.Errorw("Failed to save post", "post_id", doc["_id"], "error", err)
			report.PostsFailed++
			continue
		}
		report.PostsSaved++
	}

	commentColl := s.db.Collection(db.CollectionComments)
	for _, doc := range commentDocs {
		if err := upsertDocument(ctx, commentColl, doc); err != nil {
			s.logger.Errorw("Failed to save comment", "comment_id", doc["_id"], "error", err)
			report.CommentsFailed++
			continue
		}
		report.CommentsSaved++
	}

	report.UsersSaved, report.UsersFailed = s.directory.SaveAll(ctx)

	if report.Failed() > 0 {
		s.logger.Warnw("Flush completed with failures",
			"saved", report.Saved(), "failed", report.Failed())
	} else {
		s.logger.Infow("Flush completed", "saved", report.Saved())
	}
	return report
}

// Database exposes the backing database for collaborators that read
// around the working set, such as the liked-state lookup.
func (s *Store) Database() interfaces.Database {
	return s.db
}

// Directory exposes the user directory.
func (s *Store) Directory() *identity.Directory {
	return s.directory
}

func upsertDocument(ctx context.Context, coll interfaces.Collection, doc interfaces.Document) error {
	set := make(interfaces.Document, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		set[k] = v
	}
	modified, err := coll.UpdateOne(ctx, interfaces.Filter{"_id": doc["_id"]}, interfaces.Update{Set: set})
	if err != nil {
		return err
	}
	if modified > 0 {
		return nil
	}
	if err := coll.InsertOne(ctx, doc); err != nil && !errors.Is(err, interfaces.ErrDuplicateKey) {
		return err
	}
	return nil
}

func copyPost(p *Post) *Post {
	clone := *p
	clone.Tags = append([]string(nil), p.Tags...)
	clone.MediaFiles = append([]MediaFile(nil), p.MediaFiles...)
	clone.LikedBy = append([]string(nil), p.LikedBy...)
	clone.CommentIDs = append([]int64(nil), p.CommentIDs...)
	return &clone
}

func copyComment(c *Comment) *Comment {
	clone := *c
	clone.LikedBy = append([]string(nil), c.LikedBy...)
	return &clone
}
