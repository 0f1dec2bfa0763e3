package conversation

import (
	"time"

	"github.com/google/uuid"
)

// ThoughtMeta carries the routing and classification fields of an
// ASYNC_THOUGHT event.
type ThoughtMeta struct {
	MessageID string
	ToolName  string
	Args      string
}

// AppendThought classifies and appends a reasoning/tool entry onto the
// message identified by meta.MessageID. When no such message exists yet a
// skeleton assistant message is created so the timeline has somewhere to
// attach; its text is filled in later by token events using the same id.
//
// Entries accumulate without cap. Capping timeline length is an explicit
// non-goal.
func (l *MessageList) AppendThought(text string, meta ThoughtMeta) *Message {
	var msg *Message
	if meta.MessageID != "" {
		msg = l.ByID(meta.MessageID)
	}
	if msg == nil {
		if last := l.Last(); last != nil && last.Role == RoleAssistant && last.InFlight() {
			msg = last
		}
	}
	if msg == nil {
		id := meta.MessageID
		if id == "" {
			id = uuid.New().String()
		}
		msg = &Message{
			ID:        id,
			Role:      RoleAssistant,
			Content:   "",
			Lifecycle: LifecycleInProgress,
			CreatedAt: time.Now(),
		}
		l.msgs = append(l.msgs, msg)
	}

	msg.Timeline = append(msg.Timeline, TimelineEntry{
		Type: ClassifyTimelineEntry(meta.ToolName, meta.Args),
		Text: text,
		Tool: meta.ToolName,
		Args: meta.Args,
	})
	msg.HasTimeline = true
	return msg
}
