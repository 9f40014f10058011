package identity

import (
	"sync"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
)

// User is the in-memory record for one identity. The forum core only
// consults it for existence checks and relationship bookkeeping: which
// posts the user authored and which posts the user has liked.
type User struct {
	mu sync.Mutex

	ID   string
	Name string

	postIDs      []int64
	likedPostIDs []int64
}

func NewUser(id, name string) *User {
	return &User{ID: id, Name: name}
}

// DisplayName returns the user's name, falling back to the ID.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// AddAuthoredPost records a post the user created. Duplicates are ignored.
func (u *User) AddAuthoredPost(postID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range u.postIDs {
		if id == postID {
			return false
		}
	}
	u.postIDs = append(u.postIDs, postID)
	return true
}

// HasAuthoredPost reports whether the post is already in the authored list.
func (u *User) HasAuthoredPost(postID int64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range u.postIDs {
		if id == postID {
			return true
		}
	}
	return false
}

// AddLikedPost records a post the user liked. Duplicates are ignored.
func (u *User) AddLikedPost(postID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range u.likedPostIDs {
		if id == postID {
			return
		}
	}
	u.likedPostIDs = append(u.likedPostIDs, postID)
}

// RemoveLikedPost drops a post from the liked list if present.
func (u *User) RemoveLikedPost(postID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, id := range u.likedPostIDs {
		if id == postID {
			u.likedPostIDs = append(u.likedPostIDs[:i], u.likedPostIDs[i+1:]...)
			return
		}
	}
}

// AuthoredPosts returns a copy of the authored-post list.
func (u *User) AuthoredPosts() []int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int64, len(u.postIDs))
	copy(out, u.postIDs)
	return out
}

// LikedPosts returns a copy of the liked-post list.
func (u *User) LikedPosts() []int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int64, len(u.likedPostIDs))
	copy(out, u.likedPostIDs)
	return out
}

// Document serializes the relationship fields for the users collection.
func (u *User) Document() interfaces.Document {
	u.mu.Lock()
	defer u.mu.Unlock()
	postIDs := make([]int64, len(u.postIDs))
	copy(postIDs, u.postIDs)
	likedIDs := make([]int64, len(u.likedPostIDs))
	copy(likedIDs, u.likedPostIDs)
	return interfaces.Document{
		"_id":            u.ID,
		"user_name":      u.Name,
		"post_ids":       postIDs,
		"liked_post_ids": likedIDs,
	}
}
