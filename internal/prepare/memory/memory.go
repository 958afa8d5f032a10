// Package memory provides in-process implementations of the prepare collaborators.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/notifyhub/prepflow/internal/prepare"
)

type Directory struct {
	mu       sync.Mutex
	users    []prepare.Recipient
	teams    map[string]prepare.Team
	rosters  map[string][]prepare.Recipient
	channels map[string]prepare.Recipient
}

func NewDirectory() *Directory {
	return &Directory{
		teams:    map[string]prepare.Team{},
		rosters:  map[string][]prepare.Recipient{},
		channels: map[string]prepare.Recipient{},
	}
}

func (d *Directory) AddUsers(users ...prepare.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = append(d.users, users...)
}

// AddTeam adds a team with its members. The general channel is derived from the team id.
func (d *Directory) AddTeam(team prepare.Team, members ...prepare.Recipient) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.teams[team.ID] = team
	d.rosters[team.ID] = slices.Clone(members)
	d.channels[team.ID] = prepare.Recipient{
		ID:             "channel:" + team.ID,
		Kind:           prepare.RecipientKindChannel,
		Name:           team.Name,
		ConversationID: team.ID,
	}
}

func (d *Directory) Users(ctx context.Context) ([]prepare.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return slices.Clone(d.users), nil
}

func (d *Directory) Teams(ctx context.Context, ids []string) ([]prepare.Team, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	teams := make([]prepare.Team, 0, len(ids))
	for _, id := range ids {
		if t, ok := d.teams[id]; ok {
			teams = append(teams, t)
		}
	}

	return teams, nil
}

func (d *Directory) Roster(ctx context.Context, team prepare.Team) ([]prepare.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rosters[team.ID]
	if !ok {
		return nil, fmt.Errorf("unknown team %s", team.ID)
	}

	return slices.Clone(members), nil
}

func (d *Directory) GeneralChannel(ctx context.Context, team prepare.Team) (prepare.Recipient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.channels[team.ID]
	if !ok {
		return prepare.Recipient{}, fmt.Errorf("unknown team %s", team.ID)
	}

	return c, nil
}

type notification struct {
	state      prepare.NotificationState
	content    []byte
	recipients map[string]prepare.Recipient
}

type Store struct {
	mu            sync.Mutex
	notifications map[string]*notification
}

func NewStore() *Store {
	return &Store{
		notifications: map[string]*notification{},
	}
}

// get returns the notification, creating it in state Preparing. Callers hold mu.
func (s *Store) get(id string) *notification {
	n, ok := s.notifications[id]
	if !ok {
		n = &notification{
			state: prepare.NotificationState{
				NotificationID: id,
				IsPreparing:    true,
				Status:         prepare.StatusPreparing,
			},
			recipients: map[string]prepare.Recipient{},
		}
		s.notifications[id] = n
	}

	return n
}

func (s *Store) UpsertRecipients(ctx context.Context, notificationID string, recipients []prepare.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.get(notificationID)
	for _, r := range recipients {
		n.recipients[r.ID] = r
	}

	return nil
}

func (s *Store) Recipients(ctx context.Context, notificationID string) ([]prepare.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.get(notificationID)
	recipients := make([]prepare.Recipient, 0, len(n.recipients))
	for _, r := range n.recipients {
		recipients = append(recipients, r)
	}

	slices.SortFunc(recipients, func(a, b prepare.Recipient) int {
		return strings.Compare(a.ID, b.ID)
	})

	return recipients, nil
}

func (s *Store) SaveContent(ctx context.Context, notificationID string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(notificationID).content = slices.Clone(content)

	return nil
}

// Content returns the rendered content of the notification, nil if none was saved.
func (s *Store) Content(notificationID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.notifications[notificationID]; ok {
		return slices.Clone(n.content)
	}

	return nil
}

func (s *Store) SetRecipientCount(ctx context.Context, notificationID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(notificationID).state.TotalRecipients = count

	return nil
}

func (s *Store) SetPreparing(ctx context.Context, notificationID string, preparing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.get(notificationID)
	n.state.IsPreparing = preparing
	if !preparing && n.state.Status == prepare.StatusPreparing {
		n.state.Status = prepare.StatusSending
	}

	return nil
}

func (s *Store) MarkFailed(ctx context.Context, notificationID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.get(notificationID)
	n.state.IsPreparing = false
	n.state.Status = prepare.StatusFailed
	n.state.ErrorMessage = message

	return nil
}

func (s *Store) State(ctx context.Context, notificationID string) (prepare.NotificationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[notificationID]
	if !ok {
		return prepare.NotificationState{}, prepare.ErrNotificationNotFound
	}

	return n.state, nil
}

// SendQueue delivers every message id once and keeps the delivered batches.
type SendQueue struct {
	mu        sync.Mutex
	seen      map[string]bool
	delivered []prepare.RecipientBatch
	calls     int
}

func NewSendQueue() *SendQueue {
	return &SendQueue{
		seen: map[string]bool{},
	}
}

func (q *SendQueue) Dispatch(ctx context.Context, batch prepare.RecipientBatch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.calls++

	id := batch.MessageID()
	if q.seen[id] {
		return nil
	}

	q.seen[id] = true
	q.delivered = append(q.delivered, batch)

	return nil
}

// Delivered returns the batches handed to the send pipeline, in delivery order.
func (q *SendQueue) Delivered() []prepare.RecipientBatch {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.delivered)
}

// Calls returns the number of Dispatch calls, duplicates included.
func (q *SendQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.calls
}

// DataQueue keeps the first scheduled aggregation time per notification.
type DataQueue struct {
	mu        sync.Mutex
	scheduled map[string]time.Time
	calls     int
}

func NewDataQueue() *DataQueue {
	return &DataQueue{
		scheduled: map[string]time.Time{},
	}
}

func (q *DataQueue) ScheduleAggregation(ctx context.Context, notificationID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.calls++

	if _, ok := q.scheduled[notificationID]; !ok {
		q.scheduled[notificationID] = at
	}

	return nil
}

// Scheduled returns the aggregation time of the notification.
func (q *DataQueue) Scheduled(notificationID string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	at, ok := q.scheduled[notificationID]
	return at, ok
}

func (q *DataQueue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.calls
}
