package event_bus

const GroupDeletedEvent EventType = "group.deleted"

// GroupDeleted is published after a group and its membership rows are gone. Schedules still
// attached to the group are removed by the subscriber.
type GroupDeleted struct {
	GroupUuid string
	Master    string
	DeletedBy string
}
