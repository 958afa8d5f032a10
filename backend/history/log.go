package history

import (
	"fmt"
	"iter"
	"sync"
)

// OutOfOrderError is returned when events are appended to a history with a gap or an
// overlap in their sequence ids.
type OutOfOrderError struct {
	Expected int64
	Got      int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("history out of order: expected sequence id %d, got %d", e.Expected, e.Got)
}

// Log is the append-only event history of a single workflow instance.
type Log struct {
	mu     sync.RWMutex
	events []*Event
}

func NewLog(events ...*Event) (*Log, error) {
	l := &Log{}
	if err := l.Append(events...); err != nil {
		return nil, err
	}

	return l, nil
}

// Append adds events to the end of the history. Every event must carry the next
// sequence id, otherwise nothing is appended.
func (l *Log) Append(events ...*Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.lastSequenceID() + 1
	for i, e := range events {
		if e.SequenceID != next+int64(i) {
			return &OutOfOrderError{Expected: next + int64(i), Got: e.SequenceID}
		}
	}

	l.events = append(l.events, events...)

	return nil
}

// ReplayFrom yields, in order, every event with a sequence id greater than cursor.
// Events appended while iterating are included.
func (l *Log) ReplayFrom(cursor int64) iter.Seq[*Event] {
	return func(yield func(*Event) bool) {
		for i := 0; ; i++ {
			l.mu.RLock()
			if i >= len(l.events) {
				l.mu.RUnlock()
				return
			}
			e := l.events[i]
			l.mu.RUnlock()

			if e.SequenceID <= cursor {
				continue
			}

			if !yield(e) {
				return
			}
		}
	}
}

func (l *Log) LastSequenceID() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.lastSequenceID()
}

func (l *Log) lastSequenceID() int64 {
	if len(l.events) == 0 {
		return 0
	}

	return l.events[len(l.events)-1].SequenceID
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.events)
}

// Find returns the first event of the given type, if any.
func (l *Log) Find(eventType EventType) (*Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, e := range l.events {
		if e.Type == eventType {
			return e, true
		}
	}

	return nil, false
}

// Events returns a copy of the recorded events.
func (l *Log) Events() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)

	return events
}
