package smsdb

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// Trigger is a trigger definition as found in the store's catalog.
type Trigger struct {
	Name      string
	CreateSQL string
}

// DropSQL is the statement that removes the trigger.
func (t Trigger) DropSQL() string {
	return "DROP TRIGGER " + quoteIdent(t.Name)
}

// LoadTriggers enumerates the triggers an import has to suspend. The legacy
// generation only needs the message table's triggers; the chat generation
// keeps consistency triggers on the join tables too, so all are returned.
func LoadTriggers(ctx context.Context, q Querier, gen Generation) ([]Trigger, error) {
	query := "SELECT name, sql FROM sqlite_master WHERE type = 'trigger' ORDER BY rowid"
	var args []any
	if gen == GenerationLegacy {
		query = "SELECT name, sql FROM sqlite_master WHERE type = 'trigger' AND tbl_name = ? ORDER BY rowid"
		args = append(args, tableMessage)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{Op: "list triggers", Err: err}
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var name string
		var createSQL sql.NullString
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, &QueryError{Op: "list triggers", Err: err}
		}
		triggers = append(triggers, Trigger{Name: name, CreateSQL: createSQL.String})
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "list triggers", Err: err}
	}
	return triggers, nil
}

// TriggerManager suspends and restores the store's triggers around a bulk
// load. The trigger list is captured once, when the manager is created, and
// is what gets restored.
type TriggerManager struct {
	store    *Store
	triggers []Trigger
	dropped  bool
	logger   *slog.Logger
}

func NewTriggerManager(ctx context.Context, s *Store, gen Generation, logger *slog.Logger) (*TriggerManager, error) {
	triggers, err := LoadTriggers(ctx, s.db, gen)
	if err != nil {
		return nil, err
	}
	return &TriggerManager{store: s, triggers: triggers, logger: logger}, nil
}

func (m *TriggerManager) Triggers() []Trigger {
	out := make([]Trigger, len(m.triggers))
	copy(out, m.triggers)
	return out
}

// Dropped reports whether the triggers are currently suspended.
func (m *TriggerManager) Dropped() bool { return m.dropped }

// DropAll removes every trigger in enumeration order. The drops share one
// transaction: if any fails, none of them take effect.
func (m *TriggerManager) DropAll(ctx context.Context) error {
	if m.dropped {
		return nil
	}
	err := m.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range m.triggers {
			if _, err := tx.ExecContext(ctx, t.DropSQL()); err != nil {
				return &TriggerError{Op: opDrop, Name: t.Name, Err: err}
			}
			m.logger.Debug("trigger dropped", "trigger", t.Name)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.dropped = true
	return nil
}

// RestoreAll recreates the dropped triggers from their original definitions,
// in enumeration order and in one transaction. It does nothing unless
// DropAll succeeded. Any failure matches ErrTriggerRestore.
func (m *TriggerManager) RestoreAll(ctx context.Context) error {
	if !m.dropped {
		return nil
	}
	err := m.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range m.triggers {
			if _, err := tx.ExecContext(ctx, t.CreateSQL); err != nil {
				return &TriggerError{Op: opRestore, Name: t.Name, Err: err}
			}
			m.logger.Debug("trigger restored", "trigger", t.Name)
		}
		return nil
	})
	if err != nil {
		var te *TriggerError
		if !errors.As(err, &te) {
			err = &TriggerError{Op: opRestore, Name: "*", Err: err}
		}
		return err
	}
	m.dropped = false
	return nil
}
