package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/notifyhub/prepflow/backend/history"
)

type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads the columns event_id, sequence_id, event_type, timestamp,
// schedule_event_id, attributes, visible_at.
func scanEvent(row scanner) (*history.Event, error) {
	var attributes []byte
	var timestamp int64
	var visibleAt sql.NullInt64

	e := &history.Event{}
	if err := row.Scan(&e.ID, &e.SequenceID, &e.Type, &timestamp, &e.ScheduleEventID, &attributes, &visibleAt); err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	e.Timestamp = time.UnixMilli(timestamp)
	if visibleAt.Valid {
		t := time.UnixMilli(visibleAt.Int64)
		e.VisibleAt = &t
	}

	a, err := history.DeserializeAttributes(e.Type, attributes)
	if err != nil {
		return nil, fmt.Errorf("deserializing attributes: %w", err)
	}

	e.Attributes = a

	return e, nil
}

func scanEvents(rows *sql.Rows) ([]*history.Event, error) {
	defer rows.Close()

	events := make([]*history.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

func insertPendingEvents(ctx context.Context, tx *sql.Tx, instanceID string, events []*history.Event) error {
	for _, e := range events {
		a, err := history.SerializeAttributes(e.Attributes)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(
			ctx,
			"INSERT INTO `pending_events` (event_id, instance_id, event_type, timestamp, schedule_event_id, attributes, visible_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.ID,
			instanceID,
			e.Type,
			e.Timestamp.UnixMilli(),
			e.ScheduleEventID,
			a,
			nullMillis(e.VisibleAt),
		); err != nil {
			return fmt.Errorf("inserting pending event: %w", err)
		}
	}

	return nil
}

// insertHistoryEvents appends events to the history of the instance. The events have to
// continue the sequence of the stored history without gaps.
func insertHistoryEvents(ctx context.Context, tx *sql.Tx, instanceID string, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(sequence_id) FROM `history` WHERE instance_id = ?", instanceID).Scan(&last); err != nil {
		return fmt.Errorf("getting last sequence id: %w", err)
	}

	next := last.Int64 + 1
	for i, e := range events {
		if e.SequenceID != next+int64(i) {
			return &history.OutOfOrderError{Expected: next + int64(i), Got: e.SequenceID}
		}
	}

	for _, e := range events {
		a, err := history.SerializeAttributes(e.Attributes)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(
			ctx,
			"INSERT INTO `history` (instance_id, sequence_id, event_id, event_type, timestamp, schedule_event_id, attributes, visible_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			instanceID,
			e.SequenceID,
			e.ID,
			e.Type,
			e.Timestamp.UnixMilli(),
			e.ScheduleEventID,
			a,
			nullMillis(e.VisibleAt),
		); err != nil {
			return fmt.Errorf("inserting history event: %w", err)
		}
	}

	return nil
}

func removePendingEvents(ctx context.Context, tx *sql.Tx, instanceID string, events []*history.Event) error {
	if len(events) == 0 {
		return nil
	}

	args := make([]any, 0, len(events)+1)
	args = append(args, instanceID)
	for _, e := range events {
		args = append(args, e.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(events)), ",")
	_, err := tx.ExecContext(
		ctx,
		fmt.Sprintf("DELETE FROM `pending_events` WHERE instance_id = ? AND event_id IN (%s)", placeholders),
		args...,
	)

	return err
}

func scheduleActivities(ctx context.Context, tx *sql.Tx, instanceID string, events []*history.Event) error {
	for _, e := range events {
		a, err := history.SerializeAttributes(e.Attributes)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(
			ctx,
			"INSERT INTO `activities` (event_id, instance_id, event_type, timestamp, schedule_event_id, attributes) VALUES (?, ?, ?, ?, ?, ?)",
			e.ID,
			instanceID,
			e.Type,
			e.Timestamp.UnixMilli(),
			e.ScheduleEventID,
			a,
		); err != nil {
			return fmt.Errorf("inserting activity: %w", err)
		}
	}

	return nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
