package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulsefeed/pulsefeed-backend/internal/config"
	"github.com/pulsefeed/pulsefeed-backend/internal/forum"
	"github.com/pulsefeed/pulsefeed-backend/internal/ws"
)

type Handler struct {
	service *forum.Service
	hub     *ws.Hub
	config  *config.Config
	logger  *zap.SugaredLogger
}

func NewHandler(service *forum.Service, hub *ws.Hub, cfg *config.Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		config:  cfg,
		logger:  logger,
	}
}

// Forum endpoints

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || (req.Content == "" && len(req.MediaFiles) == 0) {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "user_id and content or media_files are required")
		return
	}

	view, err := h.service.CreatePost(r.Context(), forum.CreatePostRequest{
		UserID:     req.UserID,
		Content:    req.Content,
		PostType:   req.PostType,
		Category:   req.Category,
		Tags:       req.Tags,
		MediaFiles: req.MediaFiles,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	var req ListPostsRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.ListPosts(r.Context(), forum.ListPostsRequest{
		UserID:   req.UserID,
		SortBy:   req.SortBy,
		Page:     req.Page,
		PageSize: h.pageSize(req.PageSize),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	var req SearchPostsRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.SearchPosts(r.Context(), forum.SearchPostsRequest{
		UserID:   req.UserID,
		Keyword:  req.Keyword,
		Page:     req.Page,
		PageSize: h.pageSize(req.PageSize),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) PostDetail(w http.ResponseWriter, r *http.Request) {
	var req PostDetailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PostID == 0 {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "post_id is required")
		return
	}

	view, err := h.service.PostDetail(r.Context(), req.PostID, req.UserID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) TogglePostLike(w http.ResponseWriter, r *http.Request) {
	var req TogglePostLikeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.PostID == 0 || req.Action == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "user_id, post_id and action are required")
		return
	}

	result, err := h.service.TogglePostLike(r.Context(), req.PostID, req.UserID, req.Action)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req CreateCommentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.PostID == 0 || req.Content == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "user_id, post_id and content are required")
		return
	}

	view, err := h.service.CreateComment(r.Context(), req.PostID, req.UserID, req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	var req ListCommentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PostID == 0 {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "post_id is required")
		return
	}

	result, err := h.service.ListComments(r.Context(), req.PostID, req.UserID, req.Page, h.pageSize(req.PageSize))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ToggleCommentLike(w http.ResponseWriter, r *http.Request) {
	var req ToggleCommentLikeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.CommentID == 0 || req.Action == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", "user_id, comment_id and action are required")
		return
	}

	result, err := h.service.ToggleCommentLike(r.Context(), req.CommentID, req.UserID, req.Action)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Operational endpoints

func (h *Handler) MemoryStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.MemoryStatus())
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Flush(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		// Memory stays authoritative, so a partial flush is reported,
		// not rolled back.
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, FlushResponse{OK: report.OK(), Report: report})
}

func (h *Handler) Reinitialize(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ForceReinitialize(r.Context()); err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ReinitializeResponse{OK: true, Status: h.service.MemoryStatus()})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if !h.service.MemoryStatus().Initialized {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("HYDRATING"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// Live feed endpoints

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWebSocket(w, r)
}

func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleSSE(w, r)
}

// Utility methods

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body")
		return false
	}
	return true
}

func (h *Handler) pageSize(requested int) int {
	if requested <= 0 {
		return h.config.Forum.DefaultPageSize
	}
	if requested > h.config.Forum.MaxPageSize {
		return h.config.Forum.MaxPageSize
	}
	return requested
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, forum.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", err.Error())
	case errors.Is(err, forum.ErrPostNotFound):
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", err.Error())
	case errors.Is(err, forum.ErrCommentNotFound):
		h.writeError(w, http.StatusNotFound, "COMMENT_NOT_FOUND", err.Error())
	case errors.Is(err, forum.ErrSequencerUnseeded):
		h.writeError(w, http.StatusInternalServerError, "NOT_INITIALIZED", err.Error())
	case errors.Is(err, forum.ErrInvalidSort):
		h.writeError(w, http.StatusBadRequest, "INVALID_SORT", err.Error())
	case errors.Is(err, forum.ErrInvalidAction):
		h.writeError(w, http.StatusBadRequest, "INVALID_ACTION", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Success: false,
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
