package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/memory"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/query"
)

func newTestDirectory(t *testing.T) (*Directory, *memory.Database) {
	t.Helper()
	database := memory.NewDatabase()
	require.NoError(t, database.Connect(context.Background()))
	return NewDirectory(database, zap.NewNop().Sugar()), database
}

func TestDirectoryInitializeHydratesUsers(t *testing.T) {
	directory, database := newTestDirectory(t)
	ctx := context.Background()

	users := database.Collection(db.CollectionUsers)
	require.NoError(t, users.InsertOne(ctx, interfaces.Document{
		"_id":            "u_1",
		"user_name":      "alice",
		"post_ids":       []int64{3, 4},
		"liked_post_ids": []int64{9},
	}))

	require.NoError(t, directory.Initialize(ctx))
	assert.Equal(t, 1, directory.Count())

	user := directory.GetInstance("u_1")
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.DisplayName())
	assert.Equal(t, []int64{3, 4}, user.AuthoredPosts())
	assert.Equal(t, []int64{9}, user.LikedPosts())
}

func TestDirectoryInitializeIdempotent(t *testing.T) {
	directory, database := newTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, directory.Initialize(ctx))

	require.NoError(t, database.Collection(db.CollectionUsers).InsertOne(ctx, interfaces.Document{
		"_id": "u_late", "user_name": "late",
	}))
	require.NoError(t, directory.Initialize(ctx))
	assert.Nil(t, directory.GetInstance("u_late"))
}

func TestDirectoryInitializeKeepsRegisteredUsers(t *testing.T) {
	directory, database := newTestDirectory(t)
	ctx := context.Background()

	users := database.Collection(db.CollectionUsers)
	require.NoError(t, users.InsertOne(ctx, interfaces.Document{
		"_id":            "u_stored",
		"user_name":      "carol",
		"post_ids":       []int64{1},
		"liked_post_ids": []int64{},
	}))
	require.NoError(t, users.InsertOne(ctx, interfaces.Document{
		"_id":            "u_both",
		"user_name":      "alice",
		"post_ids":       []int64{2, 3},
		"liked_post_ids": []int64{4},
	}))

	// Registered before the first hydration, with some state already
	// accumulated in memory.
	early := directory.Register("u_early", "bob")
	both := directory.Register("u_both", "")
	both.AddAuthoredPost(9)

	require.NoError(t, directory.Initialize(ctx))
	assert.Equal(t, 3, directory.Count())

	// The pre-registered instance survives as the same object.
	assert.Same(t, early, directory.GetInstance("u_early"))

	// A stored document for a resident user merges into it rather than
	// replacing it.
	assert.Same(t, both, directory.GetInstance("u_both"))
	assert.Equal(t, "alice", both.DisplayName())
	assert.ElementsMatch(t, []int64{2, 3, 9}, both.AuthoredPosts())
	assert.Equal(t, []int64{4}, both.LikedPosts())

	stored := directory.GetInstance("u_stored")
	require.NotNil(t, stored)
	assert.Equal(t, []int64{1}, stored.AuthoredPosts())
}

func TestDirectoryRegisterReturnsExisting(t *testing.T) {
	directory, _ := newTestDirectory(t)

	first := directory.Register("u_1", "alice")
	second := directory.Register("u_1", "someone else")
	assert.Same(t, first, second)
	assert.Equal(t, "alice", second.Name)
}

func TestDirectorySaveAllUpserts(t *testing.T) {
	directory, database := newTestDirectory(t)
	ctx := context.Background()

	user := directory.Register("u_1", "alice")
	user.AddAuthoredPost(5)
	user.AddLikedPost(7)

	saved, failed := directory.SaveAll(ctx)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 0, failed)

	doc, err := database.Collection(db.CollectionUsers).FindOne(ctx, interfaces.Filter{"_id": "u_1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", query.String(doc["user_name"]))
	assert.Equal(t, []int64{5}, query.Int64Slice(doc["post_ids"]))

	// Mutate and save again; the existing document updates in place.
	user.AddAuthoredPost(6)
	saved, failed = directory.SaveAll(ctx)
	assert.Equal(t, 1, saved)
	assert.Equal(t, 0, failed)

	doc, err = database.Collection(db.CollectionUsers).FindOne(ctx, interfaces.Filter{"_id": "u_1"})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, query.Int64Slice(doc["post_ids"]))
}

func TestUserLikeBookkeeping(t *testing.T) {
	user := NewUser("u_1", "")
	assert.Equal(t, "u_1", user.DisplayName())

	user.AddLikedPost(1)
	user.AddLikedPost(1)
	assert.Equal(t, []int64{1}, user.LikedPosts())

	user.RemoveLikedPost(1)
	user.RemoveLikedPost(1)
	assert.Empty(t, user.LikedPosts())

	assert.True(t, user.AddAuthoredPost(2))
	assert.False(t, user.AddAuthoredPost(2))
	assert.True(t, user.HasAuthoredPost(2))
}
