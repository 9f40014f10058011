package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/memory"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
	"github.com/pulsefeed/pulsefeed-backend/internal/forum"
	"github.com/pulsefeed/pulsefeed-backend/internal/identity"
)

func newFlusherFixture(t *testing.T) (*forum.Service, *memory.Database, *identity.Directory) {
	t.Helper()
	database := memory.NewDatabase()
	require.NoError(t, database.Connect(context.Background()))
	logger := zap.NewNop().Sugar()
	directory := identity.NewDirectory(database, logger)
	store := forum.NewStore(database, directory, logger)
	return forum.NewService(store, nil, nil, logger), database, directory
}

func TestFlusherWritesBackOnTick(t *testing.T) {
	service, database, directory := newFlusherFixture(t)
	ctx := context.Background()

	user := directory.Register("u_1", "alice")
	require.NoError(t, database.Collection(db.CollectionUsers).InsertOne(ctx, user.Document()))

	view, err := service.CreatePost(ctx, forum.CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.NoError(t, err)

	flusher := NewFlusher(service, 10*time.Millisecond, zap.NewNop().Sugar())
	done := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go func() { done <- flusher.Start(runCtx) }()

	require.Eventually(t, func() bool {
		_, err := database.Collection(db.CollectionPosts).FindOne(ctx, interfaces.Filter{"_id": view.ID})
		return err == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop")
	}
}

func TestFlusherFinalPassOnShutdown(t *testing.T) {
	service, database, directory := newFlusherFixture(t)
	ctx := context.Background()

	user := directory.Register("u_1", "alice")
	require.NoError(t, database.Collection(db.CollectionUsers).InsertOne(ctx, user.Document()))

	// A long interval guarantees no tick fires before cancellation, so
	// any persisted post can only come from the shutdown flush.
	flusher := NewFlusher(service, time.Hour, zap.NewNop().Sugar())
	done := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go func() { done <- flusher.Start(runCtx) }()

	view, err := service.CreatePost(ctx, forum.CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop")
	}

	_, err = database.Collection(db.CollectionPosts).FindOne(ctx, interfaces.Filter{"_id": view.ID})
	assert.NoError(t, err)
}

func TestFlusherStop(t *testing.T) {
	service, _, _ := newFlusherFixture(t)

	flusher := NewFlusher(service, time.Hour, zap.NewNop().Sugar())
	done := make(chan error, 1)
	go func() { done <- flusher.Start(context.Background()) }()

	// Start installs the cancel func; give the goroutine a moment.
	require.Eventually(t, func() bool {
		flusher.Stop()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
