// Package sqlite stores notifications, their recipients and the user directory in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/notifyhub/prepflow/internal/prepare"
)

//go:embed db/migrations/*.sql
var migrationsFS embed.FS

// migrationsTable keeps the store schema version apart from the workflow backend, both may
// live in the same database file.
const migrationsTable = "store_schema_migrations"

type Store struct {
	db *sql.DB
}

var (
	_ prepare.Store     = (*Store)(nil)
	_ prepare.Directory = (*Store)(nil)
)

func NewInMemoryStore() (*Store, error) {
	return newStore("file::memory:")
}

func NewStore(path string) (*Store, error) {
	return newStore(fmt.Sprintf("file:%v?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
}

func newStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	dbi, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{MigrationsTable: migrationsTable})
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

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureNotification creates the notification in state Preparing if it does not exist yet.
func ensureNotification(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, "INSERT INTO `notifications` (id) VALUES (?) ON CONFLICT(id) DO NOTHING", id); err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

func (s *Store) update(ctx context.Context, notificationID string, query string, args ...any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureNotification(ctx, tx, notificationID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, query, append(args, notificationID)...); err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}

	return tx.Commit()
}

func (s *Store) UpsertRecipients(ctx context.Context, notificationID string, recipients []prepare.Recipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureNotification(ctx, tx, notificationID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(
		ctx,
		"INSERT INTO `recipients` (notification_id, id, kind, name, conversation_id, team_id) VALUES (?, ?, ?, ?, ?, ?) "+
			"ON CONFLICT(notification_id, id) DO UPDATE SET kind = excluded.kind, name = excluded.name, conversation_id = excluded.conversation_id, team_id = excluded.team_id",
	)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range recipients {
		if _, err := stmt.ExecContext(ctx, notificationID, r.ID, string(r.Kind), r.Name, r.ConversationID, r.TeamID); err != nil {
			return fmt.Errorf("upserting recipient %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

func (s *Store) Recipients(ctx context.Context, notificationID string) ([]prepare.Recipient, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT id, kind, COALESCE(name, ''), COALESCE(conversation_id, ''), COALESCE(team_id, '') FROM `recipients` WHERE notification_id = ? ORDER BY id",
		notificationID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]prepare.Recipient, 0)
	for rows.Next() {
		var r prepare.Recipient
		var kind string
		if err := rows.Scan(&r.ID, &kind, &r.Name, &r.ConversationID, &r.TeamID); err != nil {
			return nil, fmt.Errorf("scanning recipient: %w", err)
		}

		r.Kind = prepare.RecipientKind(kind)
		recipients = append(recipients, r)
	}

	return recipients, rows.Err()
}

func (s *Store) SaveContent(ctx context.Context, notificationID string, content []byte) error {
	return s.update(ctx, notificationID, "UPDATE `notifications` SET content = ? WHERE id = ?", content)
}

// Content returns the rendered content of the notification.
func (s *Store) Content(ctx context.Context, notificationID string) ([]byte, error) {
	var content []byte
	if err := s.db.QueryRowContext(ctx, "SELECT content FROM `notifications` WHERE id = ?", notificationID).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, prepare.ErrNotificationNotFound
		}

		return nil, fmt.Errorf("querying content: %w", err)
	}

	return content, nil
}

func (s *Store) SetRecipientCount(ctx context.Context, notificationID string, n int) error {
	return s.update(ctx, notificationID, "UPDATE `notifications` SET total_recipients = ? WHERE id = ?", n)
}

func (s *Store) SetPreparing(ctx context.Context, notificationID string, preparing bool) error {
	if preparing {
		return s.update(ctx, notificationID, "UPDATE `notifications` SET is_preparing = 1 WHERE id = ?")
	}

	return s.update(
		ctx,
		notificationID,
		"UPDATE `notifications` SET is_preparing = 0, status = CASE WHEN status = ? THEN ? ELSE status END WHERE id = ?",
		string(prepare.StatusPreparing),
		string(prepare.StatusSending),
	)
}

func (s *Store) MarkFailed(ctx context.Context, notificationID string, message string) error {
	return s.update(
		ctx,
		notificationID,
		"UPDATE `notifications` SET is_preparing = 0, status = ?, error_message = ? WHERE id = ?",
		string(prepare.StatusFailed),
		message,
	)
}

func (s *Store) State(ctx context.Context, notificationID string) (prepare.NotificationState, error) {
	state := prepare.NotificationState{NotificationID: notificationID}

	var status string
	var errorMessage sql.NullString
	err := s.db.QueryRowContext(
		ctx,
		"SELECT is_preparing, status, error_message, total_recipients FROM `notifications` WHERE id = ?",
		notificationID,
	).Scan(&state.IsPreparing, &status, &errorMessage, &state.TotalRecipients)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, prepare.ErrNotificationNotFound
		}

		return state, fmt.Errorf("querying notification: %w", err)
	}

	state.Status = prepare.Status(status)
	state.ErrorMessage = errorMessage.String

	return state, nil
}
