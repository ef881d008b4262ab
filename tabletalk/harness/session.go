package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	ports "github.com/hpolasek/tabletalk/tabletalk/harness/ports"
	"github.com/hpolasek/tabletalk/tabletalk/transcript"
)

var (
	// ErrNoPendingUserTurn is returned when a stream is requested and there is
	// nothing to answer.
	ErrNoPendingUserTurn = errors.New("no pending user turn to respond to")
)

// CredentialResolver yields a usable engine credential for a conversation, or
// reports that none exists. Resolution is a pure function of configuration
// and conversation state.
type CredentialResolver interface {
	Resolve(conv transcript.Conversation) (string, bool)
}

// DefaultCredentialResolver prefers the per-conversation override and falls
// back to a process-wide default key.
type DefaultCredentialResolver struct {
	Default string
}

func (r DefaultCredentialResolver) Resolve(conv transcript.Conversation) (string, bool) {
	if conv.APIKey != "" {
		return conv.APIKey, true
	}
	if r.Default != "" {
		return r.Default, true
	}
	return "", false
}

// Config controls session behavior.
type Config struct {
	// EnforceSafety runs the pre-flight classifier and blocks unsafe turns.
	// Classification is advisory: classifier failure never blocks on its own.
	EnforceSafety bool
	Policy        Policy
	// CycleTimeout bounds one whole response cycle, detached from the
	// requesting transport's lifetime.
	CycleTimeout time.Duration
}

// Session is the boundary entry point for response cycles. It is the only
// component that writes to the transcript store during a cycle.
type Session struct {
	store     ports.TranscriptStore
	newEngine ports.EngineFactory
	tools     []ports.Tool
	creds     CredentialResolver
	cfg       Config
	logger    zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSession wires a session facade.
func NewSession(store ports.TranscriptStore, newEngine ports.EngineFactory, tools []ports.Tool, creds CredentialResolver, cfg Config, logger zerolog.Logger) *Session {
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 5 * time.Minute
	}
	return &Session{
		store:     store,
		newEngine: newEngine,
		tools:     tools,
		creds:     creds,
		cfg:       cfg,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Respond starts one response cycle for a conversation. Structural failures
// (unknown conversation, nothing to answer) surface synchronously before any
// streaming begins; afterwards the cycle runs to completion on its own,
// emitting events through the returned emitter and committing exactly one
// assistant turn. The terminal done event is emitted only after the commit.
func (s *Session) Respond(ctx context.Context, conversationID string) (*Emitter, error) {
	conv, err := s.store.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userTurn, err := s.store.PendingUserTurn(ctx, conversationID)
	if err != nil {
		if errors.Is(err, transcript.ErrNoUserTurn) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNoPendingUserTurn, conversationID)
		}
		return nil, err
	}

	em := NewEmitter()
	// The transcript is the durable source of truth independent of any one
	// viewer: the cycle must finish and commit even if the requesting
	// transport disconnects, so it runs on a detached context.
	go s.runCycle(context.WithoutCancel(ctx), conv, userTurn, em)
	return em, nil
}

func (s *Session) runCycle(ctx context.Context, conv transcript.Conversation, userTurn transcript.Turn, em *Emitter) {
	lock := s.conversationLock(conv.ID)
	lock.Lock()
	defer lock.Unlock()

	cfg := s.config()
	ctx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
	defer cancel()

	logger := s.logger.With().Str("conversation_id", conv.ID).Logger()

	// Respond checks for a pending turn before the lock is held, so a cycle
	// that won the lock first may have answered this turn already. Re-verify
	// under the lock and end the stream without committing if it is gone.
	pending, err := s.store.PendingUserTurn(ctx, conv.ID)
	if err != nil || pending.ID != userTurn.ID {
		logger.Info().Int64("turn_id", userTurn.ID).Msg("user turn no longer pending, skipping cycle")
		em.Done()
		return
	}

	key, ok := s.creds.Resolve(conv)
	if !ok {
		logger.Info().Msg("no engine credential resolved, answering with instructions")
		em.StreamText(missingCredentialMessage)
		s.complete(ctx, conv.ID, em, logger)
		return
	}

	engine := s.newEngine(key)

	if cfg.EnforceSafety {
		verdict := NewClassifier(engine, logger).Classify(ctx, userTurn.Text)
		em.Safety(verdict)
		if !verdict.Safe {
			logger.Info().
				Str("category", verdict.Category).
				Str("reason", verdict.Reason).
				Msg("user turn blocked by safety classifier")
			em.StreamText(blockedMessage(verdict))
			s.complete(ctx, conv.ID, em, logger)
			return
		}
	}

	history, err := s.buildHistory(ctx, conv.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load conversation history")
		em.StreamText(fmt.Sprintf("[backend error: %v]", err))
		s.complete(ctx, conv.ID, em, logger)
		return
	}

	NewOrchestrator(engine, s.tools, cfg.Policy, logger).RunCycle(ctx, history, em)
	s.complete(ctx, conv.ID, em, logger)
}

// complete commits the accumulated answer as the cycle's single assistant
// turn and only then emits the terminal done event, so a consumer that waits
// for done is guaranteed the transcript already reflects the answer.
func (s *Session) complete(ctx context.Context, conversationID string, em *Emitter, logger zerolog.Logger) {
	if _, err := s.store.AppendTurn(ctx, conversationID, transcript.RoleAssistant, em.Text()); err != nil {
		// The stream must still terminate; an undelivered done would strand
		// the consumer. The commit failure is loud in the logs instead.
		logger.Error().Err(err).Msg("failed to commit assistant turn")
	}
	em.Done()
}

// buildHistory seeds the working message history from the system instruction
// plus the persisted user/assistant turns in order.
func (s *Session) buildHistory(ctx context.Context, conversationID string) ([]ports.Message, error) {
	turns, err := s.store.Turns(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	history := make([]ports.Message, 0, len(turns)+1)
	history = append(history, ports.Message{Role: "system", Content: systemPrompt})
	for _, turn := range turns {
		history = append(history, ports.Message{Role: string(turn.Role), Content: turn.Text})
	}
	return history, nil
}

// UpdatePolicy swaps the round and timeout bounds applied to subsequent
// cycles. In-flight cycles keep the policy they started with.
func (s *Session) UpdatePolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Policy = p
}

// config snapshots the session configuration for one cycle.
func (s *Session) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// conversationLock serializes response cycles per conversation. Cycles for
// different conversations proceed concurrently.
func (s *Session) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// blockedMessage is the fixed explanatory answer streamed when the safety
// verdict reports unsafe. The block itself is a valid, persisted turn.
func blockedMessage(v Verdict) string {
	return fmt.Sprintf("this request was blocked by the safety filter (category: %s). reason: %s", v.Category, v.Reason)
}
