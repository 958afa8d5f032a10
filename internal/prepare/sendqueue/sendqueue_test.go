package sendqueue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/prepflow/backend/converter"
	"github.com/notifyhub/prepflow/internal/prepare"
)

func newJetStream(t *testing.T) jetstream.JetStream {
	url := os.Getenv("PREPFLOW_TEST_NATS_URL")
	if url == "" {
		t.Skip("PREPFLOW_TEST_NATS_URL not set")
	}

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return js
}

func Test_Queue_DropsDuplicateBatches(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	js := newJetStream(t)

	stream := "PREPFLOW_TEST_" + uuid.NewString()[:8]
	q, err := New(ctx, js, Options{Stream: stream, Subject: "prepflow.test." + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() { _ = js.DeleteStream(context.Background(), stream) })

	batch := prepare.RecipientBatch{
		NotificationID: "n-1",
		Index:          3,
		Recipients:     []prepare.Recipient{{ID: "user:a", Kind: prepare.RecipientKindUser}},
	}

	require.NoError(t, q.Dispatch(ctx, batch))
	require.NoError(t, q.Dispatch(ctx, batch))

	s, err := js.Stream(ctx, stream)
	require.NoError(t, err)

	info, err := s.Info(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), info.State.Msgs)

	msg, err := s.GetLastMsgForSubject(ctx, q.Subject("n-1"))
	require.NoError(t, err)
	require.Equal(t, "n-1-3", msg.Header.Get(jetstream.MsgIDHeader))

	got, err := q.Decode(msg.Data)
	require.NoError(t, err)
	require.Equal(t, batch, got)
}

func Test_Queue_Decode(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			cv, err := converter.ByName(name)
			require.NoError(t, err)

			q := &Queue{options: Options{Converter: cv}}

			batch := prepare.RecipientBatch{NotificationID: "n-1", Index: 0, Recipients: []prepare.Recipient{{ID: "channel:t-1", Kind: prepare.RecipientKindChannel}}}
			data, err := cv.To(batch)
			require.NoError(t, err)

			got, err := q.Decode(data)
			require.NoError(t, err)
			require.Equal(t, batch, got)
		})
	}
}
