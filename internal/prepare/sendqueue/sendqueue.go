// Package sendqueue publishes recipient batches to the send pipeline on NATS JetStream.
package sendqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/internal/prepare"
)

const (
	DefaultStream  = "PREPFLOW_SEND"
	DefaultSubject = "prepflow.send"

	// DefaultDuplicateWindow bounds how long the stream remembers message ids. Batches
	// redispatched within the window are dropped by the server.
	DefaultDuplicateWindow = 24 * time.Hour
)

type Options struct {
	Stream          string
	Subject         string
	DuplicateWindow time.Duration

	// Converter encodes batches. Defaults to converter.DefaultConverter.
	Converter converter.Converter
}

type Queue struct {
	js      jetstream.JetStream
	options Options
}

var _ prepare.SendQueue = (*Queue)(nil)

// New creates the send stream if needed and returns a queue publishing to it.
func New(ctx context.Context, js jetstream.JetStream, options Options) (*Queue, error) {
	if options.Stream == "" {
		options.Stream = DefaultStream
	}

	if options.Subject == "" {
		options.Subject = DefaultSubject
	}

	if options.DuplicateWindow <= 0 {
		options.DuplicateWindow = DefaultDuplicateWindow
	}

	if options.Converter == nil {
		options.Converter = converter.DefaultConverter
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       options.Stream,
		Subjects:   []string{options.Subject + ".>"},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Duplicates: options.DuplicateWindow,
	}); err != nil {
		return nil, fmt.Errorf("ensuring stream %s: %w", options.Stream, err)
	}

	return &Queue{
		js:      js,
		options: options,
	}, nil
}

// Subject returns the subject batches of the notification are published to.
func (q *Queue) Subject(notificationID string) string {
	return q.options.Subject + "." + notificationID
}

func (q *Queue) Dispatch(ctx context.Context, batch prepare.RecipientBatch) error {
	data, err := q.options.Converter.To(batch)
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	ack, err := q.js.Publish(ctx, q.Subject(batch.NotificationID), data, jetstream.WithMsgID(batch.MessageID()))
	if err != nil {
		return fmt.Errorf("publishing batch %s: %w", batch.MessageID(), err)
	}

	if ack == nil {
		return errors.New("publishing batch: no acknowledgement")
	}

	return nil
}

// Decode reads a batch published by Dispatch.
func (q *Queue) Decode(data []byte) (prepare.RecipientBatch, error) {
	var batch prepare.RecipientBatch
	if err := q.options.Converter.From(data, &batch); err != nil {
		return batch, fmt.Errorf("decoding batch: %w", err)
	}

	return batch, nil
}
