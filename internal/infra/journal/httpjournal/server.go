package httpjournal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"itemdb/internal/archive"
	"itemdb/pkg/domain"

	"github.com/sirupsen/logrus"
)

const (
	logPath   = "/log"
	usersPath = "/users"

	maxBody = 64 << 20
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) HandlerOption { return func(h *Handler) { h.log = l } }

// WithClock sets the time source for assembled dump timestamps.
func WithClock(now func() time.Time) HandlerOption { return func(h *Handler) { h.now = now } }

// Handler serves a journal over HTTP. Uploaded documents are decoded before
// they are stored so a bad client cannot corrupt the log.
type Handler struct {
	journal archive.Journal
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewHandler serves j.
func NewHandler(j archive.Journal, opts ...HandlerOption) *Handler {
	h := &Handler{journal: j, log: logrus.StandardLogger(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.WithField("component", "httpjournal")
	return h
}

// RegisterHTTPHandlers mounts the journal routes on mux under prefix.
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("GET "+prefix+logPath, h.handleGetLog)
	mux.HandleFunc("POST "+prefix+logPath, h.handleAppend)
	mux.HandleFunc("GET "+prefix+usersPath, h.handleGetUsers)
	mux.HandleFunc("POST "+prefix+usersPath, h.handleReplaceUsers)
}

func (h *Handler) handleGetLog(w http.ResponseWriter, r *http.Request) {
	doc, err := h.dump(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	_, _ = w.Write(doc)
}

func (h *Handler) dump(ctx context.Context) ([]byte, error) {
	frags, err := h.journal.Fragments(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var users []domain.User
	doc, err := h.journal.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("read user list: %w", err)
	}
	if doc != nil {
		list, err := archive.DecodeAny(doc)
		if err != nil {
			return nil, fmt.Errorf("decode user list: %w", err)
		}
		users = list.Users
	}
	return archive.AssembleDump(frags, users, h.now())
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	body, ok := h.read(w, r)
	if !ok {
		return
	}
	records, _, err := archive.DecodeFragment(body)
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.journal.Append(r.Context(), body); err != nil {
		h.fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	h.log.WithField("records", len(records)).Debug("fragment appended")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	doc, err := h.journal.Users(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if doc == nil {
		http.Error(w, "no user list", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", jsonContentType)
	_, _ = w.Write(doc)
}

func (h *Handler) handleReplaceUsers(w http.ResponseWriter, r *http.Request) {
	body, ok := h.read(w, r)
	if !ok {
		return
	}
	list, err := archive.DecodeAny(body)
	if err == nil && list.Format != archive.FormatMayUsers {
		err = fmt.Errorf("%w: expected %s, got %s", archive.ErrFormatMismatch, archive.FormatMayUsers, list.Format)
	}
	if err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.journal.ReplaceUsers(r.Context(), body); err != nil {
		h.fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.fail(w, r, status, err)
		return nil, false
	}
	return body, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	entry := h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Warn("journal request failed")
	} else {
		entry.Debug("journal request rejected")
	}
	http.Error(w, err.Error(), status)
}
