package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/config"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/backends/memory"
	"github.com/pulsefeed/pulsefeed-backend/internal/forum"
	"github.com/pulsefeed/pulsefeed-backend/internal/identity"
)

type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

func newTestServer(t *testing.T) (*httptest.Server, *identity.Directory) {
	t.Helper()

	database := memory.NewDatabase()
	require.NoError(t, database.Connect(context.Background()))

	logger := zap.NewNop().Sugar()
	directory := identity.NewDirectory(database, logger)
	store := forum.NewStore(database, directory, logger)
	service := forum.NewService(store, noopPublisher{}, nil, logger)

	cfg := &config.Config{
		Env:      "test",
		HTTPAddr: ":0",
		Forum: config.ForumConfig{
			FlushInterval:   30 * time.Second,
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Security: config.SecurityConfig{
			RateLimitRPM:       6000,
			CORSAllowedOrigins: []string{"*"},
		},
	}

	handler := NewHandler(service, nil, cfg, logger)
	m := NewMiddleware(logger, nil)
	router := handler.Routes(m, nil, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, directory
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

// decodeData unwraps the success envelope and decodes the payload.
func decodeData(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.False(t, errResp.Success)
	return errResp
}

func TestCreatePostEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID:   "u_1",
		Content:  "hello world",
		Category: "general",
		Tags:     []string{"go", "feed"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var view forum.PostView
	decodeData(t, resp, &view)
	assert.Equal(t, int64(1), view.ID)
	assert.Equal(t, "alice", view.Creator.Name)
	assert.Equal(t, forum.PostTypeText, view.PostType)
	assert.Equal(t, "general", view.Category)
	assert.Equal(t, []string{"go", "feed"}, view.Tags)
	assert.NotEmpty(t, view.CreatedAt)
	assert.NotEmpty(t, view.TimeDisplay)
}

func TestCreatePostMissingParameters(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{UserID: "u_1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_PARAMETER", decodeError(t, resp).Code)
}

func TestCreatePostUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_missing", Content: "c",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "USER_NOT_FOUND", decodeError(t, resp).Code)
}

func TestMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/forum/posts", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, resp).Code)
}

func TestListPostsEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	for _, content := range []string{"one", "two", "three"} {
		resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
			UserID: "u_1", Content: content,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := postJSON(t, srv, "/v1/forum/posts/list", ListPostsRequest{SortBy: "latest"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result forum.PostListResult
	decodeData(t, resp, &result)
	assert.Equal(t, 3, result.Total)
	require.Len(t, result.Posts, 3)
	assert.Equal(t, "three", result.Posts[0].Content)
	assert.False(t, result.HasMore)
}

func TestListPostsInvalidSort(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv, "/v1/forum/posts/list", ListPostsRequest{SortBy: "trending"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_SORT", decodeError(t, resp).Code)
}

func TestTogglePostLikeEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")
	directory.Register("u_2", "bob")

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view forum.PostView
	decodeData(t, resp, &view)

	resp = postJSON(t, srv, "/v1/forum/posts/like", TogglePostLikeRequest{
		UserID: "u_2", PostID: view.ID, Action: "like",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var like forum.LikeResult
	decodeData(t, resp, &like)
	assert.True(t, like.Liked)
	assert.Equal(t, 1, like.LikeCount)

	// Repeating the like succeeds without double counting.
	resp = postJSON(t, srv, "/v1/forum/posts/like", TogglePostLikeRequest{
		UserID: "u_2", PostID: view.ID, Action: "like",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &like)
	assert.True(t, like.Liked)
	assert.Equal(t, 1, like.LikeCount)

	resp = postJSON(t, srv, "/v1/forum/posts/like", TogglePostLikeRequest{
		UserID: "u_2", PostID: view.ID, Action: "unlike",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeData(t, resp, &like)
	assert.False(t, like.Liked)
	assert.Equal(t, 0, like.LikeCount)
}

func TestTogglePostLikeRejectsBadAction(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/posts/like", TogglePostLikeRequest{
		UserID: "u_1", PostID: 1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "MISSING_PARAMETER", decodeError(t, resp).Code)

	resp = postJSON(t, srv, "/v1/forum/posts/like", TogglePostLikeRequest{
		UserID: "u_1", PostID: 1, Action: "boost",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_ACTION", decodeError(t, resp).Code)
}

func TestCommentEndpoints(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view forum.PostView
	decodeData(t, resp, &view)

	resp = postJSON(t, srv, "/v1/forum/comments", CreateCommentRequest{
		UserID: "u_1", PostID: view.ID, Content: "nice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var comment forum.CommentView
	decodeData(t, resp, &comment)
	assert.Equal(t, view.ID, comment.PostID)
	assert.Equal(t, "nice", comment.Content)

	resp = postJSON(t, srv, "/v1/forum/comments/like", ToggleCommentLikeRequest{
		UserID: "u_1", CommentID: comment.ID, Action: "like",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var like forum.LikeResult
	decodeData(t, resp, &like)
	assert.True(t, like.Liked)

	resp = postJSON(t, srv, "/v1/forum/comments/list", ListCommentsRequest{PostID: view.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list forum.CommentListResult
	decodeData(t, resp, &list)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Comments, 1)
	assert.Equal(t, comment.ID, list.Comments[0].ID)
}

func TestCommentOnMissingPost(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/comments", CreateCommentRequest{
		UserID: "u_1", PostID: 99, Content: "orphan",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "POST_NOT_FOUND", decodeError(t, resp).Code)
}

func TestMemoryStatusEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/v1/forum/memory")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var status forum.MemoryStatus
	decodeData(t, getResp, &status)
	assert.True(t, status.Initialized)
	assert.Equal(t, 1, status.Posts)
	assert.Equal(t, int64(1), status.LastPostID)
}

func TestFlushEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "c",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/v1/forum/flush", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var flush FlushResponse
	decodeData(t, resp, &flush)
	assert.True(t, flush.OK)
	assert.Equal(t, 1, flush.Report.PostsSaved)
}

func TestReinitializeEndpoint(t *testing.T) {
	srv, directory := newTestServer(t)
	directory.Register("u_1", "alice")

	// Flushed content survives a forced reload; unflushed content does not.
	resp := postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "kept",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	resp = postJSON(t, srv, "/v1/forum/flush", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/v1/forum/posts", CreatePostRequest{
		UserID: "u_1", Content: "dropped",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/v1/forum/reinitialize", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reinit ReinitializeResponse
	decodeData(t, resp, &reinit)
	assert.True(t, reinit.OK)
	assert.Equal(t, 1, reinit.Status.Posts)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Nothing has touched the forum yet, so the cache is cold.
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Any forum call hydrates lazily and readiness flips.
	listResp := postJSON(t, srv, "/v1/forum/posts/list", ListPostsRequest{})
	listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
