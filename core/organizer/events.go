package organizer

import (
	"fmt"

	"github.com/noxproject/forkd/core/block"
)

// NotificationType identifies the kind of ReorgEvent delivered to a
// subscriber: a reorganization landed, or the organizer stopped.
type NotificationType int

const (
	// Reorganized is delivered once per successful reorganization.
	Reorganized NotificationType = iota

	// NotifyServiceStopped is delivered exactly once, as the terminal
	// notification on Stop.
	NotifyServiceStopped
)

var notificationTypeStrings = map[NotificationType]string{
	Reorganized:          "Reorganized",
	NotifyServiceStopped: "ServiceStopped",
}

// String satisfies fmt.Stringer.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("unknown notification type (%d)", int(n))
}

// ReorgEvent is the payload delivered to a subscribe_reorganize handler:
// the fork's parent height plus the blocks that became confirmed
// (Incoming) and the blocks that were displaced (Outgoing). Both slices
// are nil for a ServiceStopped event.
type ReorgEvent struct {
	Type         NotificationType
	ParentHeight uint64
	Incoming     []*block.Block
	Outgoing     []*block.Block
}

// ReorgHandler is the callback signature subscribe_reorganize accepts.
type ReorgHandler func(ReorgEvent)
