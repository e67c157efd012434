package smsdb

import (
	"context"
	"database/sql"
)

const (
	CounterOutLifetime = "counter_out_lifetime"
	CounterInLifetime  = "counter_in_lifetime"
)

// IncrementCounters adds the run's totals to the lifetime counters in the
// properties table. A missing counter row is created with the run's value.
func (s *Store) IncrementCounters(ctx context.Context, outgoing, incoming int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := incrementCounter(ctx, tx, CounterOutLifetime, outgoing); err != nil {
			return err
		}
		return incrementCounter(ctx, tx, CounterInLifetime, incoming)
	})
}

func incrementCounter(ctx context.Context, tx *sql.Tx, key string, n int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE _SqliteDatabaseProperties SET value = COALESCE(value, 0) + ? WHERE key = ?", n, key)
	if err != nil {
		return &QueryError{Op: "increment " + key, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &QueryError{Op: "increment " + key, Err: err}
	}
	if affected > 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO _SqliteDatabaseProperties (key, value) VALUES (?, ?)", key, n); err != nil {
		return &QueryError{Op: "create " + key, Err: err}
	}
	return nil
}

// Counter reads a lifetime counter. A missing row reads as zero.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT CAST(value AS INTEGER) FROM _SqliteDatabaseProperties WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, &QueryError{Op: "read " + key, Err: err}
	}
	return v.Int64, nil
}
