package prepare

import (
	"context"
	"errors"
	"time"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Directory resolves audiences against the user and team directory.
type Directory interface {
	// Users returns every user the notification service can reach.
	Users(ctx context.Context) ([]Recipient, error)

	// Teams returns the teams with the given ids, in the order of ids. Unknown ids are skipped.
	Teams(ctx context.Context, ids []string) ([]Team, error)

	// Roster returns the members of the team.
	Roster(ctx context.Context, team Team) ([]Recipient, error)

	// GeneralChannel returns the default channel of the team.
	GeneralChannel(ctx context.Context, team Team) (Recipient, error)
}

// Store persists the recipient records and the state of notifications. All writes are
// idempotent so activities can be re-executed.
type Store interface {
	// UpsertRecipients adds recipients to the notification, replacing records with the same id.
	UpsertRecipients(ctx context.Context, notificationID string, recipients []Recipient) error

	// Recipients returns the recipients of the notification ordered by id.
	Recipients(ctx context.Context, notificationID string) ([]Recipient, error)

	SaveContent(ctx context.Context, notificationID string, content []byte) error

	SetRecipientCount(ctx context.Context, notificationID string, n int) error

	SetPreparing(ctx context.Context, notificationID string, preparing bool) error

	MarkFailed(ctx context.Context, notificationID string, message string) error

	// State returns ErrNotificationNotFound for unknown notifications.
	State(ctx context.Context, notificationID string) (NotificationState, error)
}

// SendQueue hands recipient batches to the send pipeline. Dispatching a batch with an
// already seen message id is a no-op.
type SendQueue interface {
	Dispatch(ctx context.Context, batch RecipientBatch) error
}

// DataQueue schedules the aggregation of send results for a notification. Scheduling an
// already scheduled notification again is a no-op.
type DataQueue interface {
	ScheduleAggregation(ctx context.Context, notificationID string, at time.Time) error
}
