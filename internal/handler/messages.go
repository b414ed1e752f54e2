package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"

	"github.com/joestump/joe-contact/internal/auth"
	"github.com/joestump/joe-contact/internal/metrics"
	"github.com/joestump/joe-contact/internal/store"
	"github.com/joestump/joe-contact/internal/upload"
)

// pageSize is the number of messages per inbox page.
const pageSize = 25

// MessagesHandler serves the admin inbox.
type MessagesHandler struct {
	sessions *scs.SessionManager
	messages *store.MessageStore
	files    *upload.Store
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(sm *scs.SessionManager, ms *store.MessageStore, fs *upload.Store) *MessagesHandler {
	return &MessagesHandler{sessions: sm, messages: ms, files: fs}
}

// MessagesPage is the template data for the inbox.
type MessagesPage struct {
	BasePage
	Messages []*store.Message
	Total    int64
	Page     int
	PrevPage int // 0 when on the first page
	NextPage int // 0 when on the last page
}

// List serves GET /messages, newest first.
func (h *MessagesHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	total, err := h.messages.Count(r.Context())
	if err != nil {
		h.fail(w, r, "count messages", err)
		return
	}
	msgs, err := h.messages.List(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.fail(w, r, "list messages", err)
		return
	}
	metrics.MessagesTotal.Set(float64(total))

	data := MessagesPage{
		BasePage: newBasePage(r, h.sessions),
		Messages: msgs,
		Total:    total,
		Page:     page,
	}
	if page > 1 {
		data.PrevPage = page - 1
	}
	if int64(page*pageSize) < total {
		data.NextPage = page + 1
	}
	render(w, "messages.html", data)
}

// Attachment serves GET /messages/{id}/attachment as a download.
func (h *MessagesHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	att, err := h.messages.GetAttachment(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.fail(w, r, "get attachment", err)
		return
	}

	f, err := h.files.Open(att.StoredName)
	if err != nil {
		httplog.LogEntry(r.Context()).Warn("attachment file missing", "stored_name", att.StoredName, httplog.ErrAttr(err))
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(att.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
	if _, err := io.Copy(w, f); err != nil {
		httplog.LogEntry(r.Context()).Warn("stream attachment", httplog.ErrAttr(err))
	}
}

// Delete handles POST /messages/{id}/delete and removes any attachment file.
func (h *MessagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	att, err := h.messages.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.fail(w, r, "delete message", err)
		return
	}
	if att != nil {
		if err := h.files.Remove(att.StoredName); err != nil {
			httplog.LogEntry(r.Context()).Warn("remove attachment file", "stored_name", att.StoredName, httplog.ErrAttr(err))
		}
	}
	metrics.MessagesTotal.Dec()

	admin := auth.AdminFromContext(r.Context())
	if admin != nil {
		httplog.LogEntry(r.Context()).Info("message deleted", "message_id", id, "admin_id", admin.ID)
	}
	h.sessions.Put(r.Context(), auth.SessionFlashKey, "Message deleted")
	http.Redirect(w, r, "/messages", http.StatusSeeOther)
}

func (h *MessagesHandler) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	httplog.LogEntry(r.Context()).Error(what, httplog.ErrAttr(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func messageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}
