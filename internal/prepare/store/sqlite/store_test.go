package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/internal/prepare"
)

func newTestStore(t *testing.T) *Store {
	s, err := NewInMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func Test_Store_NotificationState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.State(ctx, "n-1")
	require.ErrorIs(t, err, prepare.ErrNotificationNotFound)

	require.NoError(t, s.SaveContent(ctx, "n-1", []byte(`{"type":"AdaptiveCard"}`)))

	state, err := s.State(ctx, "n-1")
	require.NoError(t, err)
	require.True(t, state.IsPreparing)
	require.Equal(t, prepare.StatusPreparing, state.Status)

	content, err := s.Content(ctx, "n-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"AdaptiveCard"}`, string(content))

	require.NoError(t, s.SetRecipientCount(ctx, "n-1", 12))
	for range 2 {
		require.NoError(t, s.SetPreparing(ctx, "n-1", false))
	}

	state, err = s.State(ctx, "n-1")
	require.NoError(t, err)
	require.False(t, state.IsPreparing)
	require.Equal(t, prepare.StatusSending, state.Status)
	require.Equal(t, 12, state.TotalRecipients)

	require.NoError(t, s.MarkFailed(ctx, "n-1", "boom"))
	require.NoError(t, s.SetPreparing(ctx, "n-1", false))

	state, err = s.State(ctx, "n-1")
	require.NoError(t, err)
	require.Equal(t, prepare.StatusFailed, state.Status)
	require.Equal(t, "boom", state.ErrorMessage)
}

func Test_Store_UpsertRecipients(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	recipients := []prepare.Recipient{
		{ID: "user:b", Kind: prepare.RecipientKindUser, Name: "B"},
		{ID: "user:a", Kind: prepare.RecipientKindUser, Name: "A"},
	}

	require.NoError(t, s.UpsertRecipients(ctx, "n-1", recipients))
	require.NoError(t, s.UpsertRecipients(ctx, "n-1", recipients))
	require.NoError(t, s.UpsertRecipients(ctx, "n-1", []prepare.Recipient{
		{ID: "user:a", Kind: prepare.RecipientKindUser, Name: "A2", TeamID: "team-1"},
	}))

	got, err := s.Recipients(ctx, "n-1")
	require.NoError(t, err)
	require.Equal(t, []prepare.Recipient{
		{ID: "user:a", Kind: prepare.RecipientKindUser, Name: "A2", TeamID: "team-1"},
		{ID: "user:b", Kind: prepare.RecipientKindUser, Name: "B"},
	}, got)

	other, err := s.Recipients(ctx, "n-2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func Test_Store_Directory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"u-2", "u-1", "u-3"} {
		require.NoError(t, s.AddUser(ctx, prepare.Recipient{ID: id, Name: "User " + id, ConversationID: "conv-" + id}))
	}

	require.NoError(t, s.AddTeam(ctx, prepare.Team{ID: "t-1", Name: "One"}, "u-1", "u-2"))
	require.NoError(t, s.AddTeam(ctx, prepare.Team{ID: "t-2", Name: "Two"}, "u-3"))

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "u-1", users[0].ID)
	require.Equal(t, prepare.RecipientKindUser, users[0].Kind)

	teams, err := s.Teams(ctx, []string{"t-2", "missing", "t-1"})
	require.NoError(t, err)
	require.Equal(t, []prepare.Team{{ID: "t-2", Name: "Two"}, {ID: "t-1", Name: "One"}}, teams)

	roster, err := s.Roster(ctx, teams[1])
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "conv-u-1", roster[0].ConversationID)

	channel, err := s.GeneralChannel(ctx, teams[0])
	require.NoError(t, err)
	require.Equal(t, "channel:t-2", channel.ID)
	require.Equal(t, prepare.RecipientKindChannel, channel.Kind)

	_, err = s.GeneralChannel(ctx, prepare.Team{ID: "missing"})
	require.Error(t, err)
}

func Test_Store_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertRecipients(ctx, "n-1", []prepare.Recipient{{ID: "user:a", Kind: prepare.RecipientKindUser}}))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Recipients(ctx, "n-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
