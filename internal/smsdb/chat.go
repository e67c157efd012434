package smsdb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/message"
)

const (
	chatStyleDirect  = 45
	chatStateActive  = 3
	chatAccountLogin = "E:"
)

// chatSchema writes the chat/handle layout. Participants are handle rows
// keyed by (id, service); conversations are chat rows keyed by
// (chat_identifier, service_name). Dates are seconds since 2001-01-01.
type chatSchema struct {
	store   *Store
	service string
}

func (c *chatSchema) generation() Generation { return GenerationChat }

func (c *chatSchema) resolve(ctx context.Context, tx *sql.Tx, conv *grouping.Conversation) (conversationRef, error) {
	var ref conversationRef
	address := conv.Address()

	handleID, found, err := lookupID(ctx, tx, "find handle",
		"SELECT ROWID FROM handle WHERE id = ? AND service = ? ORDER BY ROWID LIMIT 1",
		address, c.service)
	if err != nil {
		return ref, err
	}
	if !found {
		handleID, err = c.store.insertRow(ctx, tx, tableHandle, map[string]any{
			"id":                 address,
			"country":            conv.Country().String(),
			"service":            c.service,
			"uncanonicalized_id": address,
		})
		if err != nil {
			return ref, err
		}
		ref.participantCreated = true
	}
	ref.participantID = handleID

	chatID, found, err := lookupID(ctx, tx, "find chat",
		"SELECT ROWID FROM chat WHERE chat_identifier = ? AND service_name = ? ORDER BY ROWID LIMIT 1",
		address, c.service)
	if err != nil {
		return ref, err
	}
	if !found {
		chatID, err = c.store.insertRow(ctx, tx, tableChat, map[string]any{
			"guid":             c.chatGUID(address),
			"style":            chatStyleDirect,
			"state":            chatStateActive,
			"chat_identifier":  address,
			"service_name":     c.service,
			"account_login":    chatAccountLogin,
			"is_archived":      0,
			"is_filtered":      0,
			"successful_query": 1,
		})
		if err != nil {
			return ref, err
		}
		ref.conversationCreated = true
	}
	ref.conversationID = chatID

	if ref.participantCreated || ref.conversationCreated {
		if err := c.linkHandle(ctx, tx, chatID, handleID); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// chatGUID follows the store's "<service>;-;<address>" form for one-to-one
// chats.
func (c *chatSchema) chatGUID(address string) string {
	return c.service + ";-;" + address
}

func (c *chatSchema) linkHandle(ctx context.Context, tx *sql.Tx, chatID, handleID int64) error {
	_, found, err := lookupID(ctx, tx, "find chat handle",
		"SELECT chat_id FROM chat_handle_join WHERE chat_id = ? AND handle_id = ?",
		chatID, handleID)
	if err != nil || found {
		return err
	}
	_, err = c.store.insertRow(ctx, tx, tableChatHandleJoin, map[string]any{
		"chat_id":   chatID,
		"handle_id": handleID,
	})
	return err
}

// insertMessage writes the message row and its chat_message_join row. Sent
// messages carry is_from_me/is_sent and use their own date as the delivery
// date; received messages carry is_read and a read date instead.
func (c *chatSchema) insertMessage(ctx context.Context, tx *sql.Tx, ref conversationRef, m message.Message) (int64, error) {
	date := m.AppleTimestamp()

	var dateRead, dateDelivered int64
	if m.IsOutgoing() {
		dateDelivered = date
	}
	if m.IsIncoming() {
		dateRead = date
	}

	msgID, err := c.store.insertRow(ctx, tx, tableMessage, map[string]any{
		"guid":              strings.ToUpper(uuid.NewString()),
		"text":              m.Text(),
		"replace":           0,
		"handle_id":         ref.participantID,
		"country":           m.Country().String(),
		"version":           10,
		"type":              0,
		"service":           c.service,
		"error":             0,
		"date":              date,
		"date_read":         dateRead,
		"date_delivered":    dateDelivered,
		"is_delivered":      1,
		"is_finished":       1,
		"is_emote":          0,
		"is_from_me":        boolInt(m.IsOutgoing()),
		"is_empty":          0,
		"is_delayed":        0,
		"is_auto_reply":     0,
		"is_prepared":       0,
		"is_read":           boolInt(m.IsIncoming()),
		"is_sent":           boolInt(m.IsOutgoing()),
		"is_system_message": 0,
		"is_archive":        0,
	})
	if err != nil {
		return 0, err
	}

	_, err = c.store.insertRow(ctx, tx, tableChatMessageJoin, map[string]any{
		"chat_id":      ref.conversationID,
		"message_id":   msgID,
		"message_date": date,
	})
	if err != nil {
		return 0, err
	}
	return msgID, nil
}

// touchConversation moves chat.last_read_message_timestamp forward to the
// conversation's newest date. Stores without that column are left alone.
func (c *chatSchema) touchConversation(ctx context.Context, tx *sql.Tx, ref conversationRef, _ int64, conv *grouping.Conversation) error {
	ok, err := c.store.hasColumn(ctx, tx, tableChat, "last_read_message_timestamp")
	if err != nil || !ok {
		return err
	}

	var newest int64
	for _, m := range conv.Messages() {
		newest = max(newest, m.AppleTimestamp())
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE chat SET last_read_message_timestamp = ? WHERE ROWID = ? AND COALESCE(last_read_message_timestamp, 0) < ?",
		newest, ref.conversationID, newest,
	)
	if err != nil {
		return &QueryError{Op: "update chat timestamp", Err: err}
	}
	return nil
}
