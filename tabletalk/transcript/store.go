package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations and turns over database/sql (libsql).
type Store struct {
	db *sql.DB
}

// NewStore creates a transcript store on an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateConversation inserts an empty conversation and returns it.
func (s *Store) CreateConversation(ctx context.Context) (Conversation, error) {
	conv := Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at) VALUES (?, ?)`,
		conv.ID, conv.CreatedAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Conversation loads a conversation by ID.
func (s *Store) Conversation(ctx context.Context, id string) (Conversation, error) {
	var (
		conv   Conversation
		apiKey sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, api_key FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &conv.CreatedAt, &apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation %s: %w", id, err)
	}
	conv.APIKey = apiKey.String
	return conv, nil
}

// SetAPIKey stores a per-conversation credential override.
func (s *Store) SetAPIKey(ctx context.Context, id, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET api_key = ? WHERE id = ?`, key, id,
	)
	if err != nil {
		return fmt.Errorf("set api key for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// AppendTurn commits one turn to a conversation. Insertion order is
// chronological order; the committed turn is immutable.
func (s *Store) AppendTurn(ctx context.Context, conversationID string, role Role, text string) (Turn, error) {
	if err := role.Validate(); err != nil {
		return Turn{}, err
	}

	turn := Turn{
		ConversationID: conversationID,
		CreatedAt:      time.Now().UTC(),
		Role:           role,
		Text:           text,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, created_at, role, text) VALUES (?, ?, ?, ?)`,
		turn.ConversationID, turn.CreatedAt, string(turn.Role), turn.Text,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn to %s: %w", conversationID, err)
	}

	turn.ID, err = res.LastInsertId()
	if err != nil {
		return Turn{}, fmt.Errorf("append turn to %s: %w", conversationID, err)
	}
	return turn, nil
}

// Turns returns the full ordered history of a conversation, oldest first.
func (s *Store) Turns(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, created_at, role, text
		 FROM turns WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t    Turn
			role string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.CreatedAt, &role, &t.Text); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns for %s: %w", conversationID, err)
	}
	return turns, nil
}

// PendingUserTurn returns the latest user turn that has not yet been answered
// by an assistant turn. A user turn counts as pending only while it is newer
// than every assistant turn in the conversation, which makes a second stream
// request after a committed answer fail instead of duplicating it.
func (s *Store) PendingUserTurn(ctx context.Context, conversationID string) (Turn, error) {
	var (
		t    Turn
		role string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, created_at, role, text
		 FROM turns
		 WHERE conversation_id = ? AND role = 'user'
		   AND id > COALESCE(
		       (SELECT MAX(id) FROM turns WHERE conversation_id = ? AND role = 'assistant'), 0)
		 ORDER BY id DESC LIMIT 1`,
		conversationID, conversationID,
	).Scan(&t.ID, &t.ConversationID, &t.CreatedAt, &role, &t.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Turn{}, fmt.Errorf("%w: conversation %s", ErrNoUserTurn, conversationID)
	}
	if err != nil {
		return Turn{}, fmt.Errorf("load pending user turn for %s: %w", conversationID, err)
	}
	t.Role = Role(role)
	return t, nil
}
