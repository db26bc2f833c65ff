package devserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"nhooyr.io/websocket"

	"github.com/wesm/pitwatch/internal/remote"
)

const defaultLimit = 50

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Errors are plain text, like Mailpit's.
func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

// pageParams parses start and limit.
func pageParams(r *http.Request) (start, limit int, ok bool) {
	start, limit = 0, defaultLimit
	if v := r.URL.Query().Get("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		start = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		limit = n
	}
	return start, limit, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start, limit, ok := pageParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Error: invalid start or limit")
		return
	}
	writeJSON(w, http.StatusOK, s.store.List(start, limit, ""))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "Error: no search query")
		return
	}
	start, limit, ok := pageParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Error: invalid start or limit")
		return
	}
	writeJSON(w, http.StatusOK, s.store.List(start, limit, q))
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	var req remote.ReadStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.SetRead(req.IDs, req.Search, req.Read)
	writeOK(w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req remote.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.DeleteMessages(req.IDs)
	writeOK(w)
}

type setTagsRequest struct {
	IDs  []string
	Tags []string
}

func (s *Server) handleSetTags(w http.ResponseWriter, r *http.Request) {
	var req setTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.SetTags(req.IDs, req.Tags)
	writeOK(w)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	raw, ok := s.store.Raw(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(raw)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	total, unread := s.store.Counts()
	writeJSON(w, http.StatusOK, remote.Info{
		Version:       s.cfg.Version,
		LatestVersion: s.cfg.Version,
		Database:      ":memory:",
		Messages:      total,
		Unread:        unread,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()
	s.hub.serve(ctx, conn)
}
