// Package prepare implements the workflows that prepare a broadcast notification for
// sending: resolve the audience into recipient records, render the shared content once,
// partition the recipients into batches and hand every batch to the send pipeline.
package prepare

import (
	"strconv"
	"time"
)

// DefaultAggregationDelay is how long after preparation the first result aggregation runs.
const DefaultAggregationDelay = 20 * time.Second

// AudienceSelector picks the recipients of a notification. When several selectors are set
// the first one wins, in field order.
type AudienceSelector struct {
	// AllUsers targets every user known to the directory.
	AllUsers bool `json:"all_users,omitempty"`

	// Rosters targets the members of the given teams.
	Rosters []string `json:"rosters,omitempty"`

	// Teams targets the general channel of the given teams.
	Teams []string `json:"teams,omitempty"`
}

func (s AudienceSelector) Empty() bool {
	return !s.AllUsers && len(s.Rosters) == 0 && len(s.Teams) == 0
}

type Content struct {
	Title       string `json:"title"`
	Summary     string `json:"summary,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Author      string `json:"author,omitempty"`
	ButtonTitle string `json:"button_title,omitempty"`
	ButtonLink  string `json:"button_link,omitempty"`
}

// Input is the immutable snapshot a prepare workflow is started with.
type Input struct {
	NotificationID string           `json:"notification_id"`
	Audience       AudienceSelector `json:"audience"`
	Content        Content          `json:"content"`

	// AggregationDelaySeconds is the delay of the aggregation trigger enqueued once
	// preparation is done. Submit replaces zero with DefaultAggregationDelay.
	AggregationDelaySeconds int `json:"aggregation_delay_seconds"`
}

type Team struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TenantID   string `json:"tenant_id,omitempty"`
	ServiceURL string `json:"service_url,omitempty"`
}

type RecipientKind string

const (
	RecipientKindUser    RecipientKind = "user"
	RecipientKindChannel RecipientKind = "channel"
)

// Recipient is one delivery target of a notification. ID is unique within a notification.
type Recipient struct {
	ID             string        `json:"id"`
	Kind           RecipientKind `json:"kind"`
	Name           string        `json:"name,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	TeamID         string        `json:"team_id,omitempty"`
}

// RecipientBatch is the unit handed to the send pipeline.
type RecipientBatch struct {
	NotificationID string      `json:"notification_id"`
	Index          int         `json:"index"`
	Recipients     []Recipient `json:"recipients"`
}

// MessageID identifies the batch towards the send pipeline, which drops duplicates.
func (b RecipientBatch) MessageID() string {
	return b.NotificationID + "-" + strconv.Itoa(b.Index)
}

type Status string

const (
	StatusPreparing Status = "Preparing"
	StatusSending   Status = "Sending"
	StatusFailed    Status = "Failed"
)

type NotificationState struct {
	NotificationID  string
	IsPreparing     bool
	Status          Status
	ErrorMessage    string
	TotalRecipients int
}
