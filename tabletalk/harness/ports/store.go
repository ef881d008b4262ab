package harnessports

import (
	"context"

	"github.com/hpolasek/tabletalk/tabletalk/transcript"
)

// TranscriptStore is the persisted transcript query surface the session
// facade consumes. The facade is the only component writing turns during a
// response cycle.
type TranscriptStore interface {
	Conversation(ctx context.Context, id string) (transcript.Conversation, error)
	Turns(ctx context.Context, conversationID string) ([]transcript.Turn, error)
	PendingUserTurn(ctx context.Context, conversationID string) (transcript.Turn, error)
	AppendTurn(ctx context.Context, conversationID string, role transcript.Role, text string) (transcript.Turn, error)
}
