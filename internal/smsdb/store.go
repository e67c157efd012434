// Package smsdb writes conversations into an iPhone text message store.
//
// Two schema generations are supported: the legacy one built around
// msg_group/group_member, and the chat one built around chat/handle with
// join tables. Inserts bypass the store's own triggers, which are suspended
// for the duration of an import by TriggerManager.
package smsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/xeodou/go-sqlcipher"
)

const (
	tableMessage         = "message"
	tableMsgGroup        = "msg_group"
	tableGroupMember     = "group_member"
	tableChat            = "chat"
	tableHandle          = "handle"
	tableChatMessageJoin = "chat_message_join"
	tableChatHandleJoin  = "chat_handle_join"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options configures how the store is opened.
type Options struct {
	// Key is the SQLCipher passphrase. Empty for unencrypted stores.
	Key         string
	BusyTimeout time.Duration
}

// Store is a single connection to the message store.
type Store struct {
	db      *sql.DB
	path    string
	columns map[string][]string
}

// Open connects to an existing store. It never creates one: a missing file
// yields ErrStoreUnavailable before any connection is attempted.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreUnavailable, path)
		}
		return nil, fmt.Errorf("stat store: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrStoreUnavailable, path)
	}

	db, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One connection for the whole run; transactions and trigger DDL must
	// all see the same session.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	return &Store{
		db:      db,
		path:    path,
		columns: make(map[string][]string),
	}, nil
}

// uriPath escapes the characters SQLite treats specially in a file: URI.
var uriPath = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// dsn builds a file: URI. mode=rw keeps SQLite from creating the file when
// it disappears between the stat and the open.
func dsn(path string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := uriPath.Replace(path)
	if strings.HasPrefix(p, "//") {
		// empty authority, otherwise the first segment is read as a host
		p = "//" + p
	}
	d := fmt.Sprintf("file:%s?mode=rw&_busy_timeout=%d", p, timeout.Milliseconds())
	if opts.Key != "" {
		d += "&_key=" + url.QueryEscape(opts.Key)
	}
	return d
}

func (s *Store) Path() string { return s.path }

// Close releases the connection. Any transaction still open is rolled back
// by the driver.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside one transaction. fn's error rolls everything back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &QueryError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &QueryError{Op: "commit transaction", Err: err}
	}
	return nil
}
