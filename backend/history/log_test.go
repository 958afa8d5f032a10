package history

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newEvents(from, to int64) []*Event {
	events := make([]*Event, 0)
	for i := from; i <= to; i++ {
		events = append(events, NewHistoryEvent(i, time.Now(), EventType_WorkflowTaskStarted, &WorkflowTaskStartedAttributes{}))
	}

	return events
}

func sequenceIDs(events []*Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.SequenceID)
	}

	return ids
}

func TestLog_Append(t *testing.T) {
	tests := []struct {
		name     string
		existing []*Event
		append   []*Event
		wantErr  *OutOfOrderError
		wantLast int64
	}{
		{
			name:     "empty history",
			append:   newEvents(1, 3),
			wantLast: 3,
		},
		{
			name:     "contiguous",
			existing: newEvents(1, 2),
			append:   newEvents(3, 4),
			wantLast: 4,
		},
		{
			name:     "gap",
			existing: newEvents(1, 2),
			append:   newEvents(4, 4),
			wantErr:  &OutOfOrderError{Expected: 3, Got: 4},
			wantLast: 2,
		},
		{
			name:     "overlap",
			existing: newEvents(1, 2),
			append:   newEvents(2, 3),
			wantErr:  &OutOfOrderError{Expected: 3, Got: 2},
			wantLast: 2,
		},
		{
			name:     "gap inside batch",
			append:   append(newEvents(1, 1), newEvents(3, 3)...),
			wantErr:  &OutOfOrderError{Expected: 2, Got: 3},
			wantLast: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLog(tt.existing...)
			require.NoError(t, err)

			err = l.Append(tt.append...)
			if tt.wantErr != nil {
				var ooo *OutOfOrderError
				require.True(t, errors.As(err, &ooo))
				require.Equal(t, tt.wantErr, ooo)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tt.wantLast, l.LastSequenceID())
		})
	}
}

func TestLog_ReplayFrom(t *testing.T) {
	l, err := NewLog(newEvents(1, 5)...)
	require.NoError(t, err)

	require.Equal(t, []int64{1, 2, 3, 4, 5}, sequenceIDs(slices.Collect(l.ReplayFrom(0))))
	require.Equal(t, []int64{4, 5}, sequenceIDs(slices.Collect(l.ReplayFrom(3))))
	require.Empty(t, slices.Collect(l.ReplayFrom(5)))

	// Restartable
	require.Equal(t, []int64{4, 5}, sequenceIDs(slices.Collect(l.ReplayFrom(3))))
}

func TestLog_ReplayFrom_Stop(t *testing.T) {
	l, err := NewLog(newEvents(1, 5)...)
	require.NoError(t, err)

	seen := 0
	for e := range l.ReplayFrom(0) {
		seen++
		if e.SequenceID == 2 {
			break
		}
	}

	require.Equal(t, 2, seen)
}

func TestLog_ReplayFrom_SeesAppends(t *testing.T) {
	l, err := NewLog(newEvents(1, 1)...)
	require.NoError(t, err)

	ids := []int64{}
	for e := range l.ReplayFrom(0) {
		ids = append(ids, e.SequenceID)
		if e.SequenceID == 1 {
			require.NoError(t, l.Append(newEvents(2, 2)...))
		}
	}

	require.Equal(t, []int64{1, 2}, ids)
}

func TestLog_Find(t *testing.T) {
	l, err := NewLog(
		NewHistoryEvent(1, time.Now(), EventType_WorkflowExecutionStarted, &ExecutionStartedAttributes{Name: "wf"}),
		NewHistoryEvent(2, time.Now(), EventType_FailureHandlerScheduled, &FailureHandlerScheduledAttributes{Name: "wf"}, ScheduleEventID(1)),
	)
	require.NoError(t, err)

	e, ok := l.Find(EventType_FailureHandlerScheduled)
	require.True(t, ok)
	require.Equal(t, int64(1), e.ScheduleEventID)

	_, ok = l.Find(EventType_FailureHandlerCompleted)
	require.False(t, ok)
}
