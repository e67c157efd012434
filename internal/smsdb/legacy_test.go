package smsdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritiek/smsdb-import/internal/message"
)

func newLegacyAdapter(t *testing.T) (*Store, Adapter) {
	t.Helper()
	s := openTestStore(t, legacySchemaSQL)
	suspend(t, s, GenerationLegacy)

	a, err := NewAdapter(context.Background(), s, GenerationLegacy, AdapterOptions{})
	require.NoError(t, err)
	return s, a
}

func TestLegacy_SaveConversation(t *testing.T) {
	ctx := context.Background()
	s, a := newLegacyAdapter(t)
	assert.Equal(t, GenerationLegacy, a.Generation())

	convs := conversations(
		message.New("+31612345678", 100, "Hello", message.Outgoing),
		message.New("+31612345678", 105, "Hi back", message.Incoming),
	)
	require.Len(t, convs, 1)

	sum, err := a.SaveConversation(ctx, convs[0])
	require.NoError(t, err)
	assert.True(t, sum.ParticipantCreated)
	assert.True(t, sum.ConversationCreated)
	assert.Equal(t, 2, sum.Messages)
	assert.Equal(t, 1, sum.Outgoing)
	assert.Equal(t, 1, sum.Incoming)

	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM msg_group"))
	assert.Equal(t, 1, countRows(t, s,
		"SELECT COUNT(*) FROM group_member WHERE address = ? AND country = 'nl' AND group_id = ?",
		"+31612345678", sum.ConversationID))

	rows, err := s.db.Query(`SELECT address, date, text, flags, group_id, association_id, UIFlags, country, read
		FROM message ORDER BY ROWID`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		address     string
		date        int64
		text        string
		flags       int
		groupID     int64
		association int64
		uiFlags     int
		country     string
		read        int
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.address, &r.date, &r.text, &r.flags, &r.groupID, &r.association, &r.uiFlags, &r.country, &r.read))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []row{
		{"+31612345678", 100, "Hello", 3, sum.ConversationID, 100, 4, "nl", 1},
		{"+31612345678", 105, "Hi back", 2, sum.ConversationID, 0, 4, "nl", 1},
	}, got)

	var newest int64
	require.NoError(t, s.db.QueryRow("SELECT newest_message FROM msg_group WHERE ROWID = ?", sum.ConversationID).Scan(&newest))
	assert.Equal(t, sum.LastMessageID, newest)
}

func TestLegacy_ReusesExistingGroup(t *testing.T) {
	ctx := context.Background()
	s, a := newLegacyAdapter(t)

	first, err := a.SaveConversation(ctx, conversations(message.New("+4915100000001", 10, "a", message.Incoming))[0])
	require.NoError(t, err)

	second, err := a.SaveConversation(ctx, conversations(message.New("+4915100000001", 20, "b", message.Outgoing))[0])
	require.NoError(t, err)

	assert.False(t, second.ParticipantCreated)
	assert.False(t, second.ConversationCreated)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.ParticipantID, second.ParticipantID)
	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM msg_group"))
	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM group_member"))
	assert.Equal(t, 2, countRows(t, s, "SELECT COUNT(*) FROM message WHERE group_id = ?", first.ConversationID))
}

func TestLegacy_NewestMessageOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	s, a := newLegacyAdapter(t)

	sum, err := a.SaveConversation(ctx, conversations(message.New("+33600000001", 10, "a", message.Incoming))[0])
	require.NoError(t, err)

	_, err = s.db.Exec("UPDATE msg_group SET newest_message = 1000 WHERE ROWID = ?", sum.ConversationID)
	require.NoError(t, err)

	_, err = a.SaveConversation(ctx, conversations(message.New("+33600000001", 20, "b", message.Incoming))[0])
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, s, "SELECT COUNT(*) FROM msg_group WHERE newest_message = 1000"))
}

func TestLegacy_SaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, a := newLegacyAdapter(t)

	conv := conversations(
		message.New("+31612345678", 100, "one", message.Outgoing),
		message.New("+31612345678", 101, "two", message.Incoming),
		message.New("+31612345678", 102, "boom", message.Incoming),
		message.New("+31612345678", 103, "four", message.Incoming),
	)[0]

	_, err := a.SaveConversation(ctx, conv)
	require.Error(t, err)

	var qe *QueryError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM message"))
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM msg_group"))
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM group_member"))
}

func TestLegacy_TriggersWouldAbortInserts(t *testing.T) {
	s := openTestStore(t, legacySchemaSQL)

	a, err := NewAdapter(context.Background(), s, GenerationLegacy, AdapterOptions{})
	require.NoError(t, err)

	_, err = a.SaveConversation(context.Background(), conversations(message.New("+31612345678", 1, "x", message.Incoming))[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message insert trigger fired")
	assert.Equal(t, 0, countRows(t, s, "SELECT COUNT(*) FROM group_member"))
}

func TestNewAdapter_UnknownGeneration(t *testing.T) {
	s := openTestStore(t, legacySchemaSQL)

	_, err := NewAdapter(context.Background(), s, GenerationAuto, AdapterOptions{})
	assert.Error(t, err)

	_, err = NewAdapter(context.Background(), s, GenerationChat, AdapterOptions{})
	assert.True(t, errors.Is(err, ErrUnknownSchema))
}

func TestSaveConversation_Nil(t *testing.T) {
	_, a := newLegacyAdapter(t)

	sum, err := a.SaveConversation(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, InsertionSummary{}, sum)
}
