package history

// EventsByWorkflowInstance groups events by target instance id, preserving the order of
// first appearance.
func EventsByWorkflowInstance(events []*WorkflowEvent) ([]string, map[string][]*WorkflowEvent) {
	order := make([]string, 0)
	groupedEvents := make(map[string][]*WorkflowEvent)

	for _, m := range events {
		id := m.WorkflowInstance.InstanceID

		if _, ok := groupedEvents[id]; !ok {
			order = append(order, id)
		}

		groupedEvents[id] = append(groupedEvents[id], m)
	}

	return order, groupedEvents
}
