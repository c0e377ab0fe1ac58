package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/auth"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/chat"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/render"
	"github.com/yjzaaa/SSME-FI-InsightBot/pkg/session"
)

// anonymousUser owns threads when authentication is off.
const anonymousUser = "anonymous"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createThreadRequest struct {
	Title string `json:"title"`
}

type messageRequest struct {
	Message string `json:"message"`
	Resumed bool   `json:"resumed"`
}

type messageResponse struct {
	ThreadID string         `json:"thread_id"`
	Answer   string         `json:"answer"`
	Command  bool           `json:"command,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Turns    int            `json:"turns,omitempty"`
	Events   []render.Event `json:"events"`
}

type doneEvent struct {
	ThreadID string `json:"thread_id"`
	Command  bool   `json:"command,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Turns    int    `json:"turns,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	sess, err := s.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if auth.IsUnauthenticated(err) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req createThreadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	t, err := s.chat.Store().CreateThread(r.Context(), userID(r), strings.TrimSpace(req.Title))
	if err != nil {
		slog.Error("Failed to create thread", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create thread")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.chat.Store().Threads(r.Context(), userID(r))
	if err != nil {
		slog.Error("Failed to list threads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list threads")
		return
	}
	if threads == nil {
		threads = []session.Thread{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ownsThread(w, r, id, false) {
		return
	}

	entries, err := s.chat.Store().History(r.Context(), id, 0)
	if err != nil {
		slog.Error("Failed to load history", "thread", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if entries == nil {
		entries = []session.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": id, "messages": entries})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ownsThread(w, r, id, true) {
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.chat.Handle(r.Context(), chat.Request{
		ThreadID: id,
		UserID:   userID(r),
		Message:  req.Message,
		Resumed:  req.Resumed,
	})
	if err != nil {
		if r.Context().Err() != nil {
			slog.Info("Client went away before the answer was ready", "thread", id)
			return
		}
		slog.Error("Chat request failed", "thread", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	done := doneEvent{ThreadID: reply.ThreadID, Command: reply.Command}
	if reply.Result != nil {
		done.Reason = string(reply.Result.Reason)
		done.Turns = reply.Result.Turns
	}

	if r.URL.Query().Get("stream") == "false" {
		writeJSON(w, http.StatusOK, messageResponse{
			ThreadID: reply.ThreadID,
			Answer:   reply.Answer,
			Command:  reply.Command,
			Reason:   done.Reason,
			Turns:    done.Turns,
			Events:   nonNil(render.Collect(reply.Events)),
		})
		return
	}

	stream, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	s.stream(r, stream, reply, done)
}

func (s *Server) stream(r *http.Request, stream *sseWriter, reply *chat.Reply, done doneEvent) {
	for ev := range reply.Events {
		if err := stream.send(string(ev.Kind), ev); err != nil {
			slog.Debug("SSE write failed", "thread", reply.ThreadID, "error", err)
			return
		}
		if ev.Kind == render.KindText && s.cfg.StreamDelay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.cfg.StreamDelay):
			}
		}
	}
	_ = stream.send("done", done)
}

// ownsThread writes 404 and returns false unless the caller owns the thread.
// A missing thread is acceptable when create is set; it is created on the
// first message.
func (s *Server) ownsThread(w http.ResponseWriter, r *http.Request, id string, create bool) bool {
	t, err := s.chat.Store().Thread(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrThreadNotFound):
		if create {
			return true
		}
		writeError(w, http.StatusNotFound, "thread not found")
		return false
	case err != nil:
		slog.Error("Failed to load thread", "thread", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load thread")
		return false
	case t.UserID != "" && t.UserID != userID(r):
		writeError(w, http.StatusNotFound, "thread not found")
		return false
	}
	return true
}

func userID(r *http.Request) string {
	if p := auth.ProfileFromContext(r.Context()); p != nil {
		if id := p.Identifier(); id != "" {
			return id
		}
	}
	return anonymousUser
}

func nonNil(events []render.Event) []render.Event {
	if events == nil {
		return []render.Event{}
	}
	return events
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
