package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/alfredjeanlab/walletd/internal/model"
)

// row is *sql.Row or *sql.Rows.
type row interface {
	Scan(dest ...any) error
}

// collect scans every row with fn and closes rows.
func collect[T any](rows *sql.Rows, fn func(row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := fn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanState(r row) (*model.StateRecord, error) {
	rec := &model.StateRecord{}
	var value []byte
	if err := r.Scan(&rec.Key, &value, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Value = json.RawMessage(value)
	return rec, nil
}

func scanAlarm(r row) (model.Alarm, error) {
	var a model.Alarm
	if err := r.Scan(&a.Name, &a.ScheduledAt, &a.PeriodInMinutes); err != nil {
		return a, err
	}
	a.ScheduledAt = a.ScheduledAt.UTC()
	return a, nil
}

func scanEvent(r row) (*model.Event, error) {
	e := &model.Event{}
	var payload []byte
	if err := r.Scan(&e.ID, &e.Topic, &payload, &e.Remote, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return e, nil
}

// nullableJSON maps an empty payload to SQL NULL.
func nullableJSON(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return m
}

// jsonOrNull maps an empty value to the JSON literal null; app_state.value
// is NOT NULL.
func jsonOrNull(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte("null")
	}
	return m
}
