package engine

import (
	"sort"
	"time"
)

// Preview is the most recent message of a conversation, reduced to what the
// list view needs.
type Preview struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Entry is one row of the conversation list. Derived state: it exists only
// in memory and only while discovery reports its conversation.
type Entry struct {
	ConversationID string    `json:"conversationId"`
	DisplayName    string    `json:"name"`
	LastMessage    *Preview  `json:"lastMessage,omitempty"`
	SortKey        time.Time `json:"sortKey"`
}

// PreviewLabel returns the sender label for the entry's preview: "you" for
// the viewer's own last message, the other participant's name otherwise,
// and "" when the conversation is empty.
func (e *Entry) PreviewLabel(self string) string {
	if e.LastMessage == nil {
		return ""
	}
	if e.LastMessage.Sender == self {
		return "you"
	}
	return e.DisplayName
}

// Snapshot is one complete, immutable emission of the conversation list,
// sorted by SortKey descending with ties broken by conversation id
// ascending. Seq increases by one per published snapshot.
type Snapshot struct {
	Seq     uint64  `json:"seq"`
	Entries []Entry `json:"entries"`
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].SortKey.Equal(entries[j].SortKey) {
			return entries[i].SortKey.After(entries[j].SortKey)
		}
		return entries[i].ConversationID < entries[j].ConversationID
	})
}
