package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"
)

func newConnected(t *testing.T) *Database {
	t.Helper()
	db := NewDatabase()
	require.NoError(t, db.Connect(context.Background()))
	return db
}

func TestInsertAndFindOne(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(1), "title": "hello"}))

	doc, err := coll.FindOne(ctx, interfaces.Filter{"_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc["title"])

	_, err = coll.FindOne(ctx, interfaces.Filter{"_id": int64(2)})
	require.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestInsertDuplicateKey(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(1)}))
	err := coll.InsertOne(ctx, interfaces.Document{"_id": int64(1)})
	require.ErrorIs(t, err, interfaces.ErrDuplicateKey)

	// The same key arriving as float64 (a JSON round trip) is still a
	// duplicate.
	err = coll.InsertOne(ctx, interfaces.Document{"_id": float64(1)})
	require.ErrorIs(t, err, interfaces.ErrDuplicateKey)
}

func TestFindOneCrossTypeKey(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(5), "v": "x"}))

	doc, err := coll.FindOne(ctx, interfaces.Filter{"_id": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, "x", doc["v"])
}

func TestFindSortAndLimit(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": i}))
	}

	docs, err := coll.Find(ctx, interfaces.Filter{}, &interfaces.FindOptions{
		Sort:  []interfaces.SortField{{Field: "_id", Desc: true}},
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(5), docs[0]["_id"])
	assert.Equal(t, int64(4), docs[1]["_id"])
}

func TestUpdateOneSetSemantics(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(1), "title": "old"}))

	modified, err := coll.UpdateOne(ctx, interfaces.Filter{"_id": int64(1)},
		interfaces.Update{Set: interfaces.Document{"title": "new"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	// Matched but unchanged reports zero modified.
	modified, err = coll.UpdateOne(ctx, interfaces.Filter{"_id": int64(1)},
		interfaces.Update{Set: interfaces.Document{"title": "new"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)

	// No match reports zero modified without error.
	modified, err = coll.UpdateOne(ctx, interfaces.Filter{"_id": int64(9)},
		interfaces.Update{Set: interfaces.Document{"title": "x"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)
}

func TestUpdateOneAddToSetAndPull(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("users")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{
		"_id": "u_1", "liked_post_ids": []int64{},
	}))

	modified, err := coll.UpdateOne(ctx, interfaces.Filter{"_id": "u_1"},
		interfaces.Update{AddToSet: interfaces.Document{"liked_post_ids": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	// Adding an existing member is a no-op.
	modified, err = coll.UpdateOne(ctx, interfaces.Filter{"_id": "u_1"},
		interfaces.Update{AddToSet: interfaces.Document{"liked_post_ids": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)

	modified, err = coll.UpdateOne(ctx, interfaces.Filter{"_id": "u_1"},
		interfaces.Update{Pull: interfaces.Document{"liked_post_ids": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	// Pulling an absent member is a no-op.
	modified, err = coll.UpdateOne(ctx, interfaces.Filter{"_id": "u_1"},
		interfaces.Update{Pull: interfaces.Document{"liked_post_ids": int64(7)}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), modified)
}

func TestFindReturnsCopies(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{
		"_id": int64(1), "tags": []string{"a"},
	}))

	doc, err := coll.FindOne(ctx, interfaces.Filter{"_id": int64(1)})
	require.NoError(t, err)
	doc["tags"].([]string)[0] = "mutated"
	doc["extra"] = true

	fresh, err := coll.FindOne(ctx, interfaces.Filter{"_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, fresh["tags"])
	assert.NotContains(t, fresh, "extra")
}

func TestOperationsRequireConnection(t *testing.T) {
	db := NewDatabase()
	ctx := context.Background()
	coll := db.Collection("posts")

	_, err := coll.Find(ctx, interfaces.Filter{})
	require.ErrorIs(t, err, interfaces.ErrNotConnected)
	err = coll.InsertOne(ctx, interfaces.Document{"_id": int64(1)})
	require.ErrorIs(t, err, interfaces.ErrNotConnected)
	require.ErrorIs(t, db.Ping(ctx), interfaces.ErrNotConnected)
}

func TestCount(t *testing.T) {
	db := newConnected(t)
	ctx := context.Background()
	coll := db.Collection("posts")

	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(1), "status": "active"}))
	require.NoError(t, coll.InsertOne(ctx, interfaces.Document{"_id": int64(2), "status": "deleted"}))

	total, err := coll.Count(ctx, interfaces.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	active, err := coll.Count(ctx, interfaces.Filter{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}
