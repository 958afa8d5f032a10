package prepare

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/notifyhub/prepflow/activity"
	"github.com/notifyhub/prepflow/log"
	"github.com/notifyhub/prepflow/workflow"
)

const DefaultBatchSize = 100

// Activities are the side effects of the prepare workflows. Every method may run more than
// once for the same inputs and converges to the same outcome.
type Activities struct {
	Directory Directory
	Store     Store
	SendQueue SendQueue
	DataQueue DataQueue

	// BatchSize is the maximum number of recipients per batch. Defaults to DefaultBatchSize.
	BatchSize int

	// Clock is used to compute the aggregation time. Defaults to the wall clock.
	Clock clock.Clock
}

func (a *Activities) batchSize() int {
	if a.BatchSize <= 0 {
		return DefaultBatchSize
	}

	return a.BatchSize
}

func (a *Activities) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}

	return a.Clock.Now()
}

// ResolveAllUsersAudience stores a recipient record for every user of the directory.
func (a *Activities) ResolveAllUsersAudience(ctx context.Context, input Input) (int, error) {
	users, err := a.Directory.Users(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	if err := a.Store.UpsertRecipients(ctx, input.NotificationID, users); err != nil {
		return 0, fmt.Errorf("storing recipients: %w", err)
	}

	activity.Logger(ctx).Debug("resolved all users audience", log.NotificationIDKey, input.NotificationID, log.RecipientsKey, len(users))

	return len(users), nil
}

// ResolveTeamEntities loads the teams with the given ids.
func (a *Activities) ResolveTeamEntities(ctx context.Context, teamIDs []string) ([]Team, error) {
	teams, err := a.Directory.Teams(ctx, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("loading teams: %w", err)
	}

	if len(teams) != len(teamIDs) {
		activity.Logger(ctx).Warn("some teams could not be found", slog.Int("requested", len(teamIDs)), slog.Int("found", len(teams)))
	}

	return teams, nil
}

// ResolveRoster stores a recipient record for every member of the team.
func (a *Activities) ResolveRoster(ctx context.Context, notificationID string, team Team) (int, error) {
	members, err := a.Directory.Roster(ctx, team)
	if err != nil {
		return 0, fmt.Errorf("loading roster of team %s: %w", team.ID, err)
	}

	for i := range members {
		members[i].TeamID = team.ID
	}

	if err := a.Store.UpsertRecipients(ctx, notificationID, members); err != nil {
		return 0, fmt.Errorf("storing recipients: %w", err)
	}

	return len(members), nil
}

// ResolveTeamChannels stores a recipient record for the general channel of every team.
func (a *Activities) ResolveTeamChannels(ctx context.Context, input Input) (int, error) {
	teams, err := a.Directory.Teams(ctx, input.Audience.Teams)
	if err != nil {
		return 0, fmt.Errorf("loading teams: %w", err)
	}

	channels := make([]Recipient, 0, len(teams))
	for _, team := range teams {
		c, err := a.Directory.GeneralChannel(ctx, team)
		if err != nil {
			return 0, fmt.Errorf("loading channel of team %s: %w", team.ID, err)
		}

		c.TeamID = team.ID
		channels = append(channels, c)
	}

	if err := a.Store.UpsertRecipients(ctx, input.NotificationID, channels); err != nil {
		return 0, fmt.Errorf("storing recipients: %w", err)
	}

	return len(channels), nil
}

// RenderContent builds the message body shared by all recipients and stores it with the
// notification.
func (a *Activities) RenderContent(ctx context.Context, input Input) error {
	card, err := renderCard(input.Content)
	if err != nil {
		return err
	}

	if err := a.Store.SaveContent(ctx, input.NotificationID, card); err != nil {
		return fmt.Errorf("storing content: %w", err)
	}

	return nil
}

func (a *Activities) SetPreparingFlag(ctx context.Context, notificationID string, preparing bool) error {
	return a.Store.SetPreparing(ctx, notificationID, preparing)
}

// EnqueueAggregationTrigger schedules the aggregation of send results delaySeconds from now.
func (a *Activities) EnqueueAggregationTrigger(ctx context.Context, notificationID string, delaySeconds int) error {
	at := a.now().Add(time.Duration(delaySeconds) * time.Second)
	if err := a.DataQueue.ScheduleAggregation(ctx, notificationID, at); err != nil {
		return workflow.NewTransientError(fmt.Errorf("scheduling aggregation: %w", err))
	}

	return nil
}

// PartitionRecipients splits the stored recipients into batches of at most BatchSize,
// ordered by recipient id.
func (a *Activities) PartitionRecipients(ctx context.Context, notificationID string) ([]RecipientBatch, error) {
	recipients, err := a.Store.Recipients(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("loading recipients: %w", err)
	}

	if err := a.Store.SetRecipientCount(ctx, notificationID, len(recipients)); err != nil {
		return nil, fmt.Errorf("storing recipient count: %w", err)
	}

	return Partition(notificationID, recipients, a.batchSize()), nil
}

// DispatchBatch hands the batch to the send pipeline.
func (a *Activities) DispatchBatch(ctx context.Context, notificationID string, batch RecipientBatch) error {
	if batch.NotificationID != notificationID {
		return fmt.Errorf("batch %d belongs to notification %s, not %s", batch.Index, batch.NotificationID, notificationID)
	}

	if err := a.SendQueue.Dispatch(ctx, batch); err != nil {
		return workflow.NewTransientError(fmt.Errorf("dispatching batch %d: %w", batch.Index, err))
	}

	activity.Logger(ctx).Debug("dispatched batch",
		log.NotificationIDKey, notificationID,
		log.BatchIndexKey, batch.Index,
		log.RecipientsKey, len(batch.Recipients))

	return nil
}

// Partition splits recipients into consecutive batches of at most size recipients.
func Partition(notificationID string, recipients []Recipient, size int) []RecipientBatch {
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := make([]RecipientBatch, 0, (len(recipients)+size-1)/size)
	for i := 0; i < len(recipients); i += size {
		end := min(i+size, len(recipients))

		batches = append(batches, RecipientBatch{
			NotificationID: notificationID,
			Index:          len(batches),
			Recipients:     recipients[i:end],
		})
	}

	return batches
}
