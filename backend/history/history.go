package history

import (
	"time"

	"github.com/google/uuid"
)

type EventType uint

const (
	_ EventType = iota

	EventType_WorkflowExecutionStarted
	EventType_WorkflowExecutionFinished
	EventType_WorkflowExecutionCanceled

	EventType_WorkflowTaskStarted

	EventType_SubWorkflowScheduled
	EventType_SubWorkflowCompleted
	EventType_SubWorkflowFailed

	EventType_ActivityScheduled
	EventType_ActivityCompleted
	EventType_ActivityFailed

	EventType_TimerScheduled
	EventType_TimerFired

	EventType_FailureHandlerScheduled
	EventType_FailureHandlerCompleted
)

func (et EventType) String() string {
	switch et {
	case EventType_WorkflowExecutionStarted:
		return "WorkflowExecutionStarted"
	case EventType_WorkflowExecutionFinished:
		return "WorkflowExecutionFinished"
	case EventType_WorkflowExecutionCanceled:
		return "WorkflowExecutionCanceled"

	case EventType_WorkflowTaskStarted:
		return "WorkflowTaskStarted"

	case EventType_SubWorkflowScheduled:
		return "SubWorkflowScheduled"
	case EventType_SubWorkflowCompleted:
		return "SubWorkflowCompleted"
	case EventType_SubWorkflowFailed:
		return "SubWorkflowFailed"

	case EventType_ActivityScheduled:
		return "ActivityScheduled"
	case EventType_ActivityCompleted:
		return "ActivityCompleted"
	case EventType_ActivityFailed:
		return "ActivityFailed"

	case EventType_TimerScheduled:
		return "TimerScheduled"
	case EventType_TimerFired:
		return "TimerFired"

	case EventType_FailureHandlerScheduled:
		return "FailureHandlerScheduled"
	case EventType_FailureHandlerCompleted:
		return "FailureHandlerCompleted"

	default:
		return "Unknown"
	}
}

type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id,omitempty"`

	// SequenceID is a monotonically increasing sequence number this event. It's only set for events that have
	// been executed and are in the history
	SequenceID int64 `json:"sid,omitempty"`

	Type EventType `json:"t,omitempty"`

	Timestamp time.Time `json:"ts,omitempty"`

	// ScheduleEventID is used to correlate events belonging together
	// For example, if an activity is scheduled, ScheduleEventID of the schedule event and the
	// completion/failure event are the same.
	ScheduleEventID int64 `json:"seid,omitempty"`

	// Attributes are event type specific attributes
	Attributes any `json:"attr,omitempty"`

	// VisibleAt delays delivery of a pending event, used for timers.
	VisibleAt *time.Time `json:"vat,omitempty"`
}

func (e Event) String() string {
	return e.Type.String()
}

type HistoryEventOption func(e *Event)

func ScheduleEventID(scheduleEventID int64) HistoryEventOption {
	return func(e *Event) {
		e.ScheduleEventID = scheduleEventID
	}
}

func VisibleAt(visibleAt time.Time) HistoryEventOption {
	return func(e *Event) {
		e.VisibleAt = &visibleAt
	}
}

// NewPendingEvent creates an event that has not been added to a history yet.
func NewPendingEvent(timestamp time.Time, eventType EventType, attributes any, opts ...HistoryEventOption) *Event {
	event := &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  timestamp,
		Attributes: attributes,
	}

	for _, opt := range opts {
		opt(event)
	}

	return event
}

func NewHistoryEvent(sequenceID int64, timestamp time.Time, eventType EventType, attributes any, opts ...HistoryEventOption) *Event {
	event := NewPendingEvent(timestamp, eventType, attributes, opts...)
	event.SequenceID = sequenceID
	return event
}
