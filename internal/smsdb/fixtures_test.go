package smsdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritiek/smsdb-import/internal/grouping"
	"github.com/ritiek/smsdb-import/internal/message"
)

// Text "boom" violates a CHECK constraint in both fixtures, which lets tests
// fail an insert half way through a conversation.
const legacySchemaSQL = `
CREATE TABLE _SqliteDatabaseProperties (key TEXT, value TEXT, UNIQUE (key));
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT, address TEXT, date INTEGER,
	text TEXT CHECK (text IS NULL OR text <> 'boom'), flags INTEGER, replace INTEGER,
	svc_center TEXT, group_id INTEGER, association_id INTEGER, height INTEGER, UIFlags INTEGER,
	version INTEGER, subject TEXT, country TEXT, headers BLOB, recipients BLOB, read INTEGER,
	madrid_version INTEGER, madrid_type INTEGER, madrid_error INTEGER, is_madrid INTEGER,
	madrid_date_read INTEGER, madrid_date_delivered INTEGER
);
CREATE TABLE msg_group (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, type INTEGER, newest_message INTEGER, unread_count INTEGER, hash INTEGER);
CREATE TABLE group_member (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, group_id INTEGER, address TEXT, country TEXT);
INSERT INTO _SqliteDatabaseProperties (key, value) VALUES ('counter_out_lifetime', '10');
INSERT INTO _SqliteDatabaseProperties (key, value) VALUES ('counter_in_lifetime', '20');
CREATE TRIGGER insert_newest_message AFTER INSERT ON message BEGIN SELECT RAISE(ABORT, 'message insert trigger fired'); END;
CREATE TRIGGER update_message_read AFTER UPDATE ON message BEGIN SELECT RAISE(ABORT, 'message update trigger fired'); END;
CREATE TRIGGER delete_member AFTER DELETE ON group_member BEGIN DELETE FROM msg_group WHERE ROWID = OLD.group_id; END;
`

const chatSchemaSQL = `
CREATE TABLE _SqliteDatabaseProperties (key TEXT, value TEXT, UNIQUE (key));
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT UNIQUE, id TEXT NOT NULL, country TEXT,
	service TEXT NOT NULL, uncanonicalized_id TEXT, UNIQUE (id, service)
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT, guid TEXT UNIQUE NOT NULL, style INTEGER, state INTEGER,
	account_id TEXT, properties BLOB, chat_identifier TEXT, service_name TEXT, room_name TEXT,
	account_login TEXT, is_archived INTEGER DEFAULT 0, last_addressed_handle TEXT, display_name TEXT,
	group_id TEXT, is_filtered INTEGER DEFAULT 0, successful_query INTEGER,
	last_read_message_timestamp INTEGER DEFAULT 0
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT, guid TEXT UNIQUE NOT NULL,
	text TEXT CHECK (text IS NULL OR text <> 'boom'), replace INTEGER DEFAULT 0, service_center TEXT,
	handle_id INTEGER DEFAULT 0, subject TEXT, country TEXT, attributedBody BLOB, version INTEGER DEFAULT 0,
	type INTEGER DEFAULT 0, service TEXT, account TEXT, account_guid TEXT, error INTEGER DEFAULT 0,
	date INTEGER, date_read INTEGER, date_delivered INTEGER, is_delivered INTEGER DEFAULT 0,
	is_finished INTEGER DEFAULT 0, is_emote INTEGER DEFAULT 0, is_from_me INTEGER DEFAULT 0,
	is_empty INTEGER DEFAULT 0, is_delayed INTEGER DEFAULT 0, is_auto_reply INTEGER DEFAULT 0,
	is_prepared INTEGER DEFAULT 0, is_read INTEGER DEFAULT 0, is_system_message INTEGER DEFAULT 0,
	is_sent INTEGER DEFAULT 0, has_dd_results INTEGER DEFAULT 0, is_service_message INTEGER DEFAULT 0,
	is_forward INTEGER DEFAULT 0, was_downgraded INTEGER DEFAULT 0, is_archive INTEGER DEFAULT 0,
	cache_has_attachments INTEGER DEFAULT 0, cache_roomnames TEXT, was_data_detected INTEGER DEFAULT 0
);
CREATE TABLE chat_message_join (
	chat_id INTEGER REFERENCES chat (ROWID) ON DELETE CASCADE,
	message_id INTEGER REFERENCES message (ROWID) ON DELETE CASCADE,
	message_date INTEGER DEFAULT 0,
	PRIMARY KEY (chat_id, message_id)
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER REFERENCES chat (ROWID) ON DELETE CASCADE,
	handle_id INTEGER REFERENCES handle (ROWID) ON DELETE CASCADE,
	UNIQUE (chat_id, handle_id)
);
INSERT INTO _SqliteDatabaseProperties (key, value) VALUES ('counter_in_lifetime', '3');
CREATE TRIGGER after_insert_on_message AFTER INSERT ON message BEGIN SELECT RAISE(ABORT, 'message trigger fired'); END;
CREATE TRIGGER after_insert_on_chat_message_join AFTER INSERT ON chat_message_join BEGIN SELECT RAISE(ABORT, 'join trigger fired'); END;
CREATE TRIGGER after_delete_on_handle AFTER DELETE ON handle BEGIN DELETE FROM chat_handle_join WHERE handle_id = OLD.ROWID; END;
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createStore writes a fresh store file with the given schema and returns
// its path.
func createStore(t *testing.T, schemaSQL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sms.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	return path
}

func openTestStore(t *testing.T, schemaSQL string) *Store {
	t.Helper()
	s, err := Open(context.Background(), createStore(t, schemaSQL), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func countRows(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow(query, args...).Scan(&n))
	return n
}

func triggerSQL(t *testing.T, s *Store) map[string]string {
	t.Helper()
	rows, err := s.db.Query("SELECT name, sql FROM sqlite_master WHERE type = 'trigger'")
	require.NoError(t, err)
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, def string
		require.NoError(t, rows.Scan(&name, &def))
		out[name] = def
	}
	require.NoError(t, rows.Err())
	return out
}

// conversations groups msgs with the partition policy.
func conversations(msgs ...message.Message) []*grouping.Conversation {
	return grouping.Partition{}.Group(msgs)
}

// suspend drops the fixture's triggers so inserts do not abort.
func suspend(t *testing.T, s *Store, gen Generation) *TriggerManager {
	t.Helper()
	m, err := NewTriggerManager(context.Background(), s, gen, testLogger())
	require.NoError(t, err)
	require.NoError(t, m.DropAll(context.Background()))
	return m
}
