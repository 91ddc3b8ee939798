package engine

import (
	"github.com/jmvargas/charla/internal/models"
)

// Events are the only way state enters the merge loop. Discovery and every
// last-message watcher run on their own goroutines but never touch the
// entry map; they convert what they see into one of these and submit it on
// the engine's single event channel.

type event interface {
	isEvent()
}

// discoveredConversation is a conversation plus its resolved display name;
// the profile round trip happens in discovery, not in the merge loop.
type discoveredConversation struct {
	conv models.Conversation
	name string
}

// conversationSetEvent is a complete membership snapshot from discovery.
// It supersedes all previous sets; the merge loop diffs it against its own
// state.
type conversationSetEvent struct {
	set []discoveredConversation
}

func (conversationSetEvent) isEvent() {}

// lastMessageEvent reports the current most recent message of one
// conversation. msg is nil while the conversation is empty.
type lastMessageEvent struct {
	conversationID string
	msg            *models.Message
}

func (lastMessageEvent) isEvent() {}
