package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/maycafe/internal/board"
	"github.com/dukerupert/maycafe/internal/model"
)

type MessageHandler struct {
	board  *board.Service
	logger *slog.Logger
}

func NewMessageHandler(b *board.Service, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{board: b, logger: logger}
}

// List returns the approved messages.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.board.ListApproved(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ListAll is the admin view, including unapproved messages.
func (h *MessageHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.board.ListAll(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	var files formFiles
	defer files.Close()

	images, err := files.list(r, "images", "images[]")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded image")
		return
	}
	// A single "image" field is honoured only when no image list was sent.
	if len(images) == 0 {
		if images, err = files.list(r, "image"); err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded image")
			return
		}
	}
	video, err := files.one(r, "video")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded video")
		return
	}
	generic, err := files.list(r, "files", "files[]")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	m, err := h.board.Create(r.Context(), board.NewMessage{
		Title:   r.FormValue("title"),
		Name:    r.FormValue("name"),
		Email:   r.FormValue("email"),
		Content: r.FormValue("content"),
		Attachments: board.Attachments{
			Images: images,
			Video:  video,
			Files:  generic,
		},
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"message": "message posted", "data": m})
}

type updateMessageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Update accepts JSON or form fields.
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req updateMessageRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !decodeJSON(w, r, &req) {
			return
		}
	} else {
		req.Title = r.FormValue("title")
		req.Content = r.FormValue("content")
	}

	m, err := h.board.Update(r.Context(), id, req.Title, req.Content)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"data": m})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.board.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *MessageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.board.Approve(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

func (h *MessageHandler) CreateReply(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	var files formFiles
	defer files.Close()

	in := board.NewReply{
		MessageID: id,
		Name:      r.FormValue("name"),
		Email:     r.FormValue("email"),
		Content:   r.FormValue("content"),
	}
	if raw := strings.TrimSpace(r.FormValue("parent_id")); raw != "" {
		pid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErrorMsg(w, http.StatusBadRequest, "invalid parent_id")
			return
		}
		in.ParentID = &pid
	}
	if in.Image, err = files.one(r, "image"); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded image")
		return
	}
	if in.Video, err = files.one(r, "video"); err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "could not read uploaded video")
		return
	}

	reply, err := h.board.AddReply(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, map[string]any{"message": "reply posted", "reply": reply})
}

// ListReplies returns the top-level replies with nested children.
func (h *MessageHandler) ListReplies(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "invalid id")
		return
	}
	tree, err := h.board.ReplyTree(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if tree == nil {
		tree = []*model.ReplyNode{}
	}
	writeJSON(w, http.StatusOK, tree)
}
