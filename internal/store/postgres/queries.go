package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/walletd/internal/model"
	"github.com/alfredjeanlab/walletd/internal/store"
)

// dbtx is the part of *sql.DB and *sql.Tx the queries need.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const defaultEventLimit = 100

const (
	stateCols = `key, value, updated_at`
	alarmCols = `name, scheduled_at, period_in_minutes`
	eventCols = `id, topic, payload, remote, created_at`
)

type queries struct {
	db dbtx
}

func (q queries) GetState(ctx context.Context, key string) (*model.StateRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+stateCols+` FROM app_state WHERE key = $1`, key)
	rec, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return rec, err
}

// SetState upserts rec and sets rec.UpdatedAt from the database clock.
func (q queries) SetState(ctx context.Context, rec *model.StateRecord) error {
	return q.db.QueryRowContext(ctx, `
		INSERT INTO app_state (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
		RETURNING updated_at`,
		rec.Key, jsonOrNull(rec.Value),
	).Scan(&rec.UpdatedAt)
}

// ListState returns records ordered by key. A non-empty namespace limits
// the result to keys of the form "<namespace>:...".
func (q queries) ListState(ctx context.Context, namespace string) ([]*model.StateRecord, error) {
	query, args := `SELECT `+stateCols+` FROM app_state`, []any(nil)
	if namespace != "" {
		query += ` WHERE key LIKE $1 || ':%'`
		args = append(args, namespace)
	}
	rows, err := q.db.QueryContext(ctx, query+` ORDER BY key`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanState)
}

func (q queries) DeleteState(ctx context.Context, key string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM app_state WHERE key = $1`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	switch {
	case err != nil:
		return fmt.Errorf("rows affected: %w", err)
	case n == 0:
		return store.ErrNotFound
	}
	return nil
}

func (q queries) SaveAlarm(ctx context.Context, a model.Alarm) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO alarms (`+alarmCols+`)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET scheduled_at = $2, period_in_minutes = $3`,
		a.Name, a.ScheduledAt, a.PeriodInMinutes,
	)
	return err
}

// DeleteAlarm is a no-op for unknown names.
func (q queries) DeleteAlarm(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM alarms WHERE name = $1`, name)
	return err
}

func (q queries) ListAlarms(ctx context.Context) ([]model.Alarm, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+alarmCols+` FROM alarms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanAlarm)
}

// RecordEvent appends e to the log and fills in its ID and CreatedAt.
func (q queries) RecordEvent(ctx context.Context, e *model.Event) error {
	return q.db.QueryRowContext(ctx, `
		INSERT INTO events (topic, payload, remote)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		e.Topic, nullableJSON(e.Payload), e.Remote,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListEvents returns events in id order.
func (q queries) ListEvents(ctx context.Context, filter store.EventFilter) ([]*model.Event, error) {
	var (
		conds []string
		args  []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AfterID > 0 {
		conds = append(conds, "id > "+bind(filter.AfterID))
	}
	if filter.Topic != "" {
		conds = append(conds, "topic = "+bind(filter.Topic))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + eventCols + ` FROM events`)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY id ASC LIMIT " + bind(limit))

	rows, err := q.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanEvent)
}
