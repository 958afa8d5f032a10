package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/notifyhub/prepflow/internal/prepare"
)

// AddUser adds or replaces a user of the directory.
func (s *Store) AddUser(ctx context.Context, user prepare.Recipient) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO `users` (id, name, conversation_id) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name, conversation_id = excluded.conversation_id",
		user.ID, user.Name, user.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.ID, err)
	}

	return nil
}

// AddTeam adds or replaces a team and adds the given users to it.
func (s *Store) AddTeam(ctx context.Context, team prepare.Team, memberIDs ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(
		ctx,
		"INSERT INTO `teams` (id, name, tenant_id, service_url) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name, tenant_id = excluded.tenant_id, service_url = excluded.service_url",
		team.ID, team.Name, team.TenantID, team.ServiceURL,
	); err != nil {
		return fmt.Errorf("upserting team %s: %w", team.ID, err)
	}

	for _, id := range memberIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO `team_members` (team_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING", team.ID, id); err != nil {
			return fmt.Errorf("adding member %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func scanUsers(rows *sql.Rows) ([]prepare.Recipient, error) {
	defer rows.Close()

	users := make([]prepare.Recipient, 0)
	for rows.Next() {
		u := prepare.Recipient{Kind: prepare.RecipientKindUser}
		if err := rows.Scan(&u.ID, &u.Name, &u.ConversationID); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}

		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *Store) Users(ctx context.Context) ([]prepare.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, COALESCE(name, ''), COALESCE(conversation_id, '') FROM `users` ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}

	return scanUsers(rows)
}

func (s *Store) Teams(ctx context.Context, ids []string) ([]prepare.Team, error) {
	if len(ids) == 0 {
		return []prepare.Team{}, nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(
		ctx,
		fmt.Sprintf("SELECT id, name, COALESCE(tenant_id, ''), COALESCE(service_url, '') FROM `teams` WHERE id IN (%s)", placeholders),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying teams: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]prepare.Team, len(ids))
	for rows.Next() {
		var t prepare.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.TenantID, &t.ServiceURL); err != nil {
			return nil, fmt.Errorf("scanning team: %w", err)
		}

		byID[t.ID] = t
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	teams := make([]prepare.Team, 0, len(byID))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			teams = append(teams, t)
			delete(byID, id)
		}
	}

	return teams, nil
}

func (s *Store) Roster(ctx context.Context, team prepare.Team) ([]prepare.Recipient, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT u.id, COALESCE(u.name, ''), COALESCE(u.conversation_id, '') FROM `team_members` m JOIN `users` u ON u.id = m.user_id WHERE m.team_id = ? ORDER BY u.id",
		team.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying roster: %w", err)
	}

	return scanUsers(rows)
}

func (s *Store) GeneralChannel(ctx context.Context, team prepare.Team) (prepare.Recipient, error) {
	var name string
	if err := s.db.QueryRowContext(ctx, "SELECT name FROM `teams` WHERE id = ?", team.ID).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return prepare.Recipient{}, fmt.Errorf("unknown team %s", team.ID)
		}

		return prepare.Recipient{}, fmt.Errorf("querying team: %w", err)
	}

	// The general channel of a team shares the team's id.
	return prepare.Recipient{
		ID:             "channel:" + team.ID,
		Kind:           prepare.RecipientKindChannel,
		Name:           name,
		ConversationID: team.ID,
	}, nil
}
