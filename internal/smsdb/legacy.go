package smsdb

import (
	"context"
	"database/sql"

	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/message"
)

// legacySchema writes the msg_group/group_member layout. A conversation is
// a msg_group row; its participant is the group_member row for the address.
type legacySchema struct {
	store *Store
}

func (l *legacySchema) generation() Generation { return GenerationLegacy }

func (l *legacySchema) resolve(ctx context.Context, tx *sql.Tx, conv *grouping.Conversation) (conversationRef, error) {
	var ref conversationRef

	err := tx.QueryRowContext(ctx,
		"SELECT ROWID, group_id FROM group_member WHERE address = ? ORDER BY ROWID LIMIT 1",
		conv.Address(),
	).Scan(&ref.participantID, &ref.conversationID)
	if err == nil {
		return ref, nil
	}
	if err != sql.ErrNoRows {
		return ref, &QueryError{Op: "find group member", Err: err}
	}

	groupID, err := l.store.insertRow(ctx, tx, tableMsgGroup, map[string]any{
		"type":           0,
		"newest_message": 0,
		"unread_count":   0,
	})
	if err != nil {
		return ref, err
	}

	memberID, err := l.store.insertRow(ctx, tx, tableGroupMember, map[string]any{
		"group_id": groupID,
		"address":  conv.Address(),
		"country":  conv.Country().String(),
	})
	if err != nil {
		return ref, err
	}

	return conversationRef{
		participantID:       memberID,
		conversationID:      groupID,
		participantCreated:  true,
		conversationCreated: true,
	}, nil
}

// insertMessage writes one message row. flags carries the direction (2
// received, 3 sent); sent messages use their own date as association_id.
func (l *legacySchema) insertMessage(ctx context.Context, tx *sql.Tx, ref conversationRef, m message.Message) (int64, error) {
	association := int64(0)
	if m.IsOutgoing() {
		association = m.Timestamp()
	}

	return l.store.insertRow(ctx, tx, tableMessage, map[string]any{
		"address":               m.Address(),
		"date":                  m.Timestamp(),
		"text":                  m.Text(),
		"flags":                 int(m.Direction()),
		"replace":               0,
		"group_id":              ref.conversationID,
		"association_id":        association,
		"height":                0,
		"UIFlags":               4,
		"version":               0,
		"country":               m.Country().String(),
		"read":                  1,
		"madrid_version":        0,
		"madrid_type":           0,
		"madrid_error":          0,
		"is_madrid":             0,
		"madrid_date_read":      0,
		"madrid_date_delivered": 0,
	})
}

func (l *legacySchema) touchConversation(ctx context.Context, tx *sql.Tx, ref conversationRef, lastID int64, _ *grouping.Conversation) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE msg_group SET newest_message = ? WHERE ROWID = ? AND COALESCE(newest_message, 0) < ?",
		lastID, ref.conversationID, lastID,
	)
	if err != nil {
		return &QueryError{Op: "update newest message", Err: err}
	}
	return nil
}
