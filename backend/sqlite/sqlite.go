package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/notifyhub/prepflow/backend"
	"github.com/notifyhub/prepflow/backend/history"
	"github.com/notifyhub/prepflow/backend/metrics"
	"github.com/notifyhub/prepflow/core"
	"github.com/notifyhub/prepflow/internal/metrickeys"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

func NewInMemoryBackend(opts ...option) *sqliteBackend {
	return newSqliteBackend("file::memory:", opts...)
}

func NewSqliteBackend(path string, opts ...option) *sqliteBackend {
	return newSqliteBackend(fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path), opts...)
}

func newSqliteBackend(dsn string, opts ...option) *sqliteBackend {
	backendOptions := backend.ApplyOptions()
	options := &options{
		Options:         &backendOptions,
		ApplyMigrations: true,
		clock:           clock.New(),
	}

	for _, opt := range opts {
		opt(options)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		panic(err)
	}

	// SQLite allows a single writer, and every connection to an in-memory database opens a
	// separate database.
	db.SetMaxOpenConns(1)

	b := &sqliteBackend{
		db:      db,
		options: options,
	}

	if options.ApplyMigrations {
		if err := b.Migrate(); err != nil {
			panic(err)
		}
	}

	return b
}

type sqliteBackend struct {
	db      *sql.DB
	options *options
}

var _ backend.Backend = (*sqliteBackend)(nil)

// Migrate applies any pending database migrations.
func (sb *sqliteBackend) Migrate() error {
	dbi, err := migratesqlite.WithInstance(sb.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating sqlite instance: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite", dbi)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	// Closing m would close the shared database handle.
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("running migrations: %w", err)
		}
	}

	return nil
}

func (sb *sqliteBackend) Tracer() trace.Tracer {
	return sb.options.TracerProvider.Tracer(backend.TracerName)
}

func (sb *sqliteBackend) Metrics() metrics.Client {
	return sb.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: "sqlite"})
}

func (sb *sqliteBackend) Options() *backend.Options {
	return sb.options.Options
}

func (sb *sqliteBackend) Close() error {
	return sb.db.Close()
}

func (sb *sqliteBackend) CreateWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	created, err := sb.createInstance(ctx, tx, instance)
	if err != nil {
		return err
	}

	if !created {
		return backend.ErrInstanceAlreadyExists
	}

	// Initial history is empty, store only new events
	if err := insertPendingEvents(ctx, tx, instance.InstanceID, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting new event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating workflow instance: %w", err)
	}

	sb.options.Metrics.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{
		metrickeys.SubWorkflow: fmt.Sprint(instance.SubWorkflow()),
	}, 1)

	return nil
}

func (sb *sqliteBackend) createInstance(ctx context.Context, tx *sql.Tx, wfi *core.WorkflowInstance) (bool, error) {
	var parentInstanceID, parentExecutionID *string
	var parentEventID *int64
	if wfi.SubWorkflow() {
		parentInstanceID = &wfi.Parent.InstanceID
		parentExecutionID = &wfi.Parent.ExecutionID
		parentEventID = &wfi.ParentEventID
	}

	res, err := tx.ExecContext(
		ctx,
		"INSERT INTO `instances` (id, execution_id, parent_instance_id, parent_execution_id, parent_schedule_event_id, state, created_at) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING",
		wfi.InstanceID,
		wfi.ExecutionID,
		parentInstanceID,
		parentExecutionID,
		parentEventID,
		core.WorkflowInstanceStateRunning,
		sb.options.clock.Now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting workflow instance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (sb *sqliteBackend) CancelWorkflowInstance(ctx context.Context, instance *core.WorkflowInstance, event *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	state, err := instanceState(ctx, tx, instance.InstanceID)
	if err != nil {
		return err
	}

	if err := cancelInstance(ctx, tx, instance.InstanceID, state, event); err != nil {
		return err
	}

	return tx.Commit()
}

func cancelInstance(ctx context.Context, tx *sql.Tx, instanceID string, state core.WorkflowInstanceState, event *history.Event) error {
	if state.Terminal() {
		return nil
	}

	if err := insertPendingEvents(ctx, tx, instanceID, []*history.Event{event}); err != nil {
		return fmt.Errorf("inserting cancellation event: %w", err)
	}

	rows, err := tx.QueryContext(
		ctx,
		"SELECT id FROM `instances` WHERE parent_instance_id = ? AND state = ?",
		instanceID,
		core.WorkflowInstanceStateRunning,
	)
	if err != nil {
		return fmt.Errorf("finding sub-workflows: %w", err)
	}

	children := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}

		children = append(children, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range children {
		e := *event
		e.ID = uuid.NewString()
		if err := cancelInstance(ctx, tx, id, core.WorkflowInstanceStateRunning, &e); err != nil {
			return err
		}
	}

	return nil
}

func instanceState(ctx context.Context, tx *sql.Tx, instanceID string) (core.WorkflowInstanceState, error) {
	var state core.WorkflowInstanceState
	if err := tx.QueryRowContext(ctx, "SELECT state FROM `instances` WHERE id = ?", instanceID).Scan(&state); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WorkflowInstanceStateRunning, backend.ErrInstanceNotFound
		}

		return core.WorkflowInstanceStateRunning, fmt.Errorf("scanning instance state: %w", err)
	}

	return state, nil
}

func (sb *sqliteBackend) GetWorkflowInstanceState(ctx context.Context, instance *core.WorkflowInstance) (core.WorkflowInstanceState, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WorkflowInstanceStateRunning, err
	}
	defer tx.Rollback()

	return instanceState(ctx, tx, instance.InstanceID)
}

func (sb *sqliteBackend) GetWorkflowInstanceHistory(ctx context.Context, instance *core.WorkflowInstance, lastSequenceID *int64) ([]*history.Event, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := instanceState(ctx, tx, instance.InstanceID); err != nil {
		return nil, err
	}

	var cursor int64
	if lastSequenceID != nil {
		cursor = *lastSequenceID
	}

	rows, err := tx.QueryContext(
		ctx,
		"SELECT event_id, sequence_id, event_type, timestamp, schedule_event_id, attributes, visible_at FROM `history` WHERE instance_id = ? AND sequence_id > ? ORDER BY sequence_id",
		instance.InstanceID,
		cursor,
	)
	if err != nil {
		return nil, fmt.Errorf("getting history: %w", err)
	}

	return scanEvents(rows)
}

func scanInstance(row scanner) (*core.WorkflowInstance, core.WorkflowInstanceState, error) {
	var instanceID, executionID string
	var parentInstanceID, parentExecutionID sql.NullString
	var parentEventID sql.NullInt64
	var state core.WorkflowInstanceState

	if err := row.Scan(&instanceID, &executionID, &parentInstanceID, &parentExecutionID, &parentEventID, &state); err != nil {
		return nil, state, err
	}

	if parentInstanceID.Valid {
		parent := core.NewWorkflowInstance(parentInstanceID.String, parentExecutionID.String)
		return core.NewSubWorkflowInstance(instanceID, executionID, parent, parentEventID.Int64), state, nil
	}

	return core.NewWorkflowInstance(instanceID, executionID), state, nil
}

// GetWorkflowTask returns a pending workflow task or nil if there are no pending workflow executions
func (sb *sqliteBackend) GetWorkflowTask(ctx context.Context) (*backend.WorkflowTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := sb.options.clock.Now()
	token := uuid.NewString()

	// Lock the oldest unlocked instance with visible pending events
	row := tx.QueryRowContext(
		ctx,
		`UPDATE instances SET locked_until = ?, lock_token = ?
			WHERE id = (
				SELECT i.id FROM instances i
				WHERE
					i.state = ?
					AND (i.locked_until IS NULL OR i.locked_until <= ?)
					AND EXISTS (
						SELECT 1 FROM pending_events pe
						WHERE pe.instance_id = i.id AND (pe.visible_at IS NULL OR pe.visible_at <= ?)
					)
				ORDER BY i.created_at, i.rowid
				LIMIT 1
			)
			RETURNING id, execution_id, parent_instance_id, parent_execution_id, parent_schedule_event_id, state`,
		now.Add(sb.options.WorkflowLockTimeout).UnixMilli(),
		token,
		core.WorkflowInstanceStateRunning,
		now.UnixMilli(),
		now.UnixMilli(),
	)

	wfi, state, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking workflow instance: %w", err)
	}

	rows, err := tx.QueryContext(
		ctx,
		"SELECT event_id, 0, event_type, timestamp, schedule_event_id, attributes, visible_at FROM `pending_events` WHERE instance_id = ? AND (visible_at IS NULL OR visible_at <= ?) ORDER BY id",
		wfi.InstanceID,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("getting new events: %w", err)
	}

	newEvents, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	var lastSequenceID sql.NullInt64
	if err := tx.QueryRowContext(ctx, "SELECT MAX(sequence_id) FROM `history` WHERE instance_id = ?", wfi.InstanceID).Scan(&lastSequenceID); err != nil {
		return nil, fmt.Errorf("getting most recent sequence id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &backend.WorkflowTask{
		ID:                    token,
		WorkflowInstance:      wfi,
		WorkflowInstanceState: state,
		LastSequenceID:        lastSequenceID.Int64,
		NewEvents:             newEvents,
	}, nil
}

func (sb *sqliteBackend) ExtendWorkflowTask(ctx context.Context, task *backend.WorkflowTask) error {
	res, err := sb.db.ExecContext(
		ctx,
		"UPDATE `instances` SET locked_until = ? WHERE id = ? AND lock_token = ?",
		sb.options.clock.Now().Add(sb.options.WorkflowLockTimeout).UnixMilli(),
		task.WorkflowInstance.InstanceID,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("extending workflow task lock: %w", err)
	}

	return leaseRetained(res)
}

func leaseRetained(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n != 1 {
		return backend.ErrTaskLeaseLost
	}

	return nil
}

// CompleteWorkflowTask checkpoints a workflow task retrieved using GetWorkflowTask
func (sb *sqliteBackend) CompleteWorkflowTask(
	ctx context.Context,
	task *backend.WorkflowTask,
	state core.WorkflowInstanceState,
	executedEvents, activityEvents, timerEvents []*history.Event,
	workflowEvents []*history.WorkflowEvent,
) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	instanceID := task.WorkflowInstance.InstanceID

	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM `instances` WHERE id = ? AND lock_token = ?", instanceID, task.ID).Scan(new(int)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrTaskLeaseLost
		}

		return err
	}

	if err := insertHistoryEvents(ctx, tx, instanceID, executedEvents); err != nil {
		return fmt.Errorf("adding events to history: %w", err)
	}

	if err := removePendingEvents(ctx, tx, instanceID, task.NewEvents); err != nil {
		return fmt.Errorf("removing handled events: %w", err)
	}

	if err := scheduleActivities(ctx, tx, instanceID, activityEvents); err != nil {
		return fmt.Errorf("scheduling activities: %w", err)
	}

	if err := insertPendingEvents(ctx, tx, instanceID, timerEvents); err != nil {
		return fmt.Errorf("scheduling timers: %w", err)
	}

	subWorkflowsCreated := 0
	for _, we := range workflowEvents {
		target := we.WorkflowInstance

		if we.HistoryEvent.Type == history.EventType_WorkflowExecutionStarted {
			created, err := sb.createInstance(ctx, tx, target)
			if err != nil {
				return err
			}

			// Replays of the parent can schedule the same sub-workflow again
			if !created {
				continue
			}

			subWorkflowsCreated++
		} else {
			targetState, err := instanceState(ctx, tx, target.InstanceID)
			if err != nil && !errors.Is(err, backend.ErrInstanceNotFound) {
				return err
			}

			// Discard events for instances that cannot process them anymore
			if err != nil || targetState.Terminal() {
				continue
			}
		}

		if err := insertPendingEvents(ctx, tx, target.InstanceID, []*history.Event{we.HistoryEvent}); err != nil {
			return fmt.Errorf("delivering workflow event: %w", err)
		}
	}

	var completedAt *int64
	if state.Terminal() {
		t := sb.options.clock.Now().UnixMilli()
		completedAt = &t

		if _, err := tx.ExecContext(ctx, "DELETE FROM `pending_events` WHERE instance_id = ?", instanceID); err != nil {
			return fmt.Errorf("removing pending events: %w", err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		"UPDATE `instances` SET state = ?, completed_at = ?, locked_until = NULL, lock_token = NULL WHERE id = ?",
		state,
		completedAt,
		instanceID,
	); err != nil {
		return fmt.Errorf("unlocking instance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing workflow task: %w", err)
	}

	if subWorkflowsCreated > 0 {
		sb.options.Metrics.Counter(metrickeys.WorkflowInstanceCreated, metrics.Tags{
			metrickeys.SubWorkflow: "true",
		}, int64(subWorkflowsCreated))
	}

	return nil
}

func (sb *sqliteBackend) GetActivityTask(ctx context.Context) (*backend.ActivityTask, error) {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := sb.options.clock.Now()
	token := uuid.NewString()

	var instanceID string
	e := &history.Event{}
	var attributes []byte
	var timestamp int64

	if err := tx.QueryRowContext(
		ctx,
		`UPDATE activities SET locked_until = ?, lock_token = ?
			WHERE id = (
				SELECT id FROM activities
				WHERE locked_until IS NULL OR locked_until <= ?
				ORDER BY id
				LIMIT 1
			)
			RETURNING instance_id, event_id, event_type, timestamp, schedule_event_id, attributes`,
		now.Add(sb.options.ActivityLockTimeout).UnixMilli(),
		token,
		now.UnixMilli(),
	).Scan(&instanceID, &e.ID, &e.Type, &timestamp, &e.ScheduleEventID, &attributes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("locking activity: %w", err)
	}

	e.Timestamp = time.UnixMilli(timestamp)
	if e.Attributes, err = history.DeserializeAttributes(e.Type, attributes); err != nil {
		return nil, fmt.Errorf("deserializing attributes: %w", err)
	}

	wfi, _, err := scanInstance(tx.QueryRowContext(
		ctx,
		"SELECT id, execution_id, parent_instance_id, parent_execution_id, parent_schedule_event_id, state FROM `instances` WHERE id = ?",
		instanceID,
	))
	if err != nil {
		return nil, fmt.Errorf("getting activity instance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &backend.ActivityTask{
		ID:               token,
		WorkflowInstance: wfi,
		Event:            e,
	}, nil
}

func (sb *sqliteBackend) ExtendActivityTask(ctx context.Context, task *backend.ActivityTask) error {
	res, err := sb.db.ExecContext(
		ctx,
		"UPDATE `activities` SET locked_until = ? WHERE lock_token = ?",
		sb.options.clock.Now().Add(sb.options.ActivityLockTimeout).UnixMilli(),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("extending activity lock: %w", err)
	}

	return leaseRetained(res)
}

func (sb *sqliteBackend) CompleteActivityTask(ctx context.Context, task *backend.ActivityTask, result *history.Event) error {
	tx, err := sb.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var instanceID string
	if err := tx.QueryRowContext(ctx, "DELETE FROM `activities` WHERE lock_token = ? RETURNING instance_id", task.ID).Scan(&instanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrTaskLeaseLost
		}

		return fmt.Errorf("completing activity: %w", err)
	}

	state, err := instanceState(ctx, tx, instanceID)
	if err != nil && !errors.Is(err, backend.ErrInstanceNotFound) {
		return err
	}

	// Results for finished instances are dropped
	if err == nil && !state.Terminal() {
		if err := insertPendingEvents(ctx, tx, instanceID, []*history.Event{result}); err != nil {
			return fmt.Errorf("inserting activity result: %w", err)
		}
	}

	return tx.Commit()
}
