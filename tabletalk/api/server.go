// Package api exposes the conversational agent over HTTP: conversation
// management plus the SSE stream carrying one response cycle's events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hpolasek/tabletalk/tabletalk/harness"
	"github.com/hpolasek/tabletalk/tabletalk/transcript"
)

// ConversationStore is the slice of the transcript store the HTTP layer
// needs for conversation management.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (transcript.Conversation, error)
	Conversation(ctx context.Context, id string) (transcript.Conversation, error)
	SetAPIKey(ctx context.Context, id, key string) error
	AppendTurn(ctx context.Context, conversationID string, role transcript.Role, text string) (transcript.Turn, error)
}

// Server routes HTTP requests into the session facade and transcript store.
type Server struct {
	store   ConversationStore
	session *harness.Session
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// NewServer wires routes and middleware.
func NewServer(store ConversationStore, session *harness.Session, logger zerolog.Logger) *Server {
	s := &Server{
		store:   store,
		session: session,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /conversations", s.createConversation)
	s.mux.HandleFunc("POST /conversations/{id}/messages", s.addUserMessage)
	s.mux.HandleFunc("GET /conversations/{id}/stream", s.streamAssistant)

	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(loggingMiddleware(s.logger, s.mux))
}

type conversationResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.CreateConversation(r.Context())
	if err != nil {
		s.internalError(w, err, "create conversation")
		return
	}
	s.writeJSON(w, http.StatusOK, conversationResponse{ID: conv.ID, CreatedAt: conv.CreatedAt})
}

type messageRequest struct {
	Text string `json:"text"`
	// Key optionally stashes a per-conversation engine credential override.
	Key string `json:"key,omitempty"`
}

func (s *Server) addUserMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var payload messageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.store.Conversation(r.Context(), id); err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.internalError(w, err, "load conversation")
		return
	}

	if payload.Key != "" {
		if err := s.store.SetAPIKey(r.Context(), id, payload.Key); err != nil {
			s.internalError(w, err, "store api key")
			return
		}
	}

	if _, err := s.store.AppendTurn(r.Context(), id, transcript.RoleUser, payload.Text); err != nil {
		s.internalError(w, err, "store user turn")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) streamAssistant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Structural errors surface before any streaming begins.
	em, err := s.session.Respond(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, transcript.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, harness.ErrNoPendingUserTurn):
			s.writeError(w, http.StatusBadRequest, "no user message to respond to")
		default:
			s.internalError(w, err, "start response cycle")
		}
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		s.internalError(w, err, "init sse")
		return
	}

	// The cycle itself never blocks on this stream; abandoning the emitter
	// releases its delivery goroutine while the commit finishes on its own.
	for ev := range em.Events() {
		if werr := s.writeSSEEvent(sse, ev); werr != nil {
			s.logger.Debug().Err(werr).Str("conversation_id", id).Msg("stream consumer went away")
			em.Abandon()
			break
		}
	}
}

func (s *Server) writeSSEEvent(sse *sseWriter, ev harness.Event) error {
	switch ev.Kind {
	case harness.EventToken:
		return sse.WriteEvent("token", ev.Token)
	case harness.EventTool:
		data, err := json.Marshal(ev.Tool)
		if err != nil {
			return err
		}
		return sse.WriteEvent("tool", string(data))
	case harness.EventSafety:
		data, err := json.Marshal(ev.Safety)
		if err != nil {
			return err
		}
		return sse.WriteEvent("safety", string(data))
	case harness.EventDone:
		return sse.WriteEvent("done", "[DONE]")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) internalError(w http.ResponseWriter, err error, op string) {
	s.logger.Error().Err(err).Str("op", op).Msg("internal error")
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}
