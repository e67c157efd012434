package smsdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/message"
)

// DefaultService is the messaging service recorded on chat-generation rows.
const DefaultService = "SMS"

// InsertionSummary describes what SaveConversation wrote.
type InsertionSummary struct {
	ParticipantID       int64
	ConversationID      int64
	ParticipantCreated  bool
	ConversationCreated bool
	Messages            int
	Incoming            int
	Outgoing            int
	LastMessageID       int64
}

// Adapter persists conversations into one schema generation.
//
// SaveConversation is all-or-nothing per conversation. Participant and
// conversation rows are looked up before being created, so saving several
// conversations for one address reuses them. Messages are always appended:
// importing the same input twice duplicates every message.
//
// Adapters are not safe for concurrent use.
type Adapter interface {
	Generation() Generation
	SaveConversation(ctx context.Context, conv *grouping.Conversation) (InsertionSummary, error)
}

type AdapterOptions struct {
	// Service is the chat-generation service literal. Defaults to "SMS".
	Service string
}

// conversationRef carries the resolved identities for one conversation.
type conversationRef struct {
	participantID       int64
	conversationID      int64
	participantCreated  bool
	conversationCreated bool
}

// schema is the generation-specific half of an adapter.
type schema interface {
	generation() Generation
	resolve(ctx context.Context, tx *sql.Tx, conv *grouping.Conversation) (conversationRef, error)
	insertMessage(ctx context.Context, tx *sql.Tx, ref conversationRef, m message.Message) (int64, error)
	touchConversation(ctx context.Context, tx *sql.Tx, ref conversationRef, lastID int64, conv *grouping.Conversation) error
}

type adapter struct {
	store  *Store
	schema schema
}

// NewAdapter returns the adapter for gen after checking that the store has
// every column the generation writes.
func NewAdapter(ctx context.Context, s *Store, gen Generation, opts AdapterOptions) (Adapter, error) {
	if opts.Service == "" {
		opts.Service = DefaultService
	}

	var sc schema
	switch gen {
	case GenerationLegacy:
		sc = &legacySchema{store: s}
	case GenerationChat:
		sc = &chatSchema{store: s, service: opts.Service}
	default:
		return nil, fmt.Errorf("no adapter for schema generation %s", gen)
	}

	if err := s.requireColumns(ctx, requiredColumns[gen]); err != nil {
		return nil, err
	}
	return &adapter{store: s, schema: sc}, nil
}

var requiredColumns = map[Generation]map[string][]string{
	GenerationLegacy: {
		tableMessage:     {"address", "date", "text", "flags", "group_id"},
		tableMsgGroup:    {"newest_message"},
		tableGroupMember: {"group_id", "address"},
	},
	GenerationChat: {
		tableMessage:         {"guid", "text", "handle_id", "date", "is_from_me"},
		tableHandle:          {"id", "service"},
		tableChat:            {"guid", "chat_identifier", "service_name"},
		tableChatMessageJoin: {"chat_id", "message_id"},
		tableChatHandleJoin:  {"chat_id", "handle_id"},
	},
}

func (a *adapter) Generation() Generation { return a.schema.generation() }

func (a *adapter) SaveConversation(ctx context.Context, conv *grouping.Conversation) (InsertionSummary, error) {
	var sum InsertionSummary
	if conv == nil || conv.Len() == 0 {
		return sum, nil
	}

	err := a.store.withTx(ctx, func(tx *sql.Tx) error {
		ref, err := a.schema.resolve(ctx, tx, conv)
		if err != nil {
			return err
		}

		var lastID int64
		for _, m := range conv.Messages() {
			id, err := a.schema.insertMessage(ctx, tx, ref, m)
			if err != nil {
				return fmt.Errorf("message at %d: %w", m.Timestamp(), err)
			}
			lastID = id
		}

		if err := a.schema.touchConversation(ctx, tx, ref, lastID, conv); err != nil {
			return err
		}

		sum = InsertionSummary{
			ParticipantID:       ref.participantID,
			ConversationID:      ref.conversationID,
			ParticipantCreated:  ref.participantCreated,
			ConversationCreated: ref.conversationCreated,
			Messages:            conv.Len(),
			Incoming:            conv.IncomingCount(),
			Outgoing:            conv.OutgoingCount(),
			LastMessageID:       lastID,
		}
		return nil
	})
	if err != nil {
		return InsertionSummary{}, fmt.Errorf("save conversation %s: %w", conv.Address(), err)
	}
	return sum, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
