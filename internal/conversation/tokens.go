package conversation

import (
	"time"

	"github.com/google/uuid"
)

// AppendToken appends a streamed text delta to the most recent in-flight
// assistant message, or starts a new one. Returns the id of the message the
// token landed on.
//
// This is the only path that creates a brand-new assistant message from plain
// content deltas. When the caller has an id from the protocol event it wins
// over a synthesized one.
func (l *MessageList) AppendToken(text, overrideMessageID string) string {
	if last := l.Last(); last != nil && last.Role == RoleAssistant {
		// Stream continuation: concatenate in place. A completed trailing
		// assistant message can also be continued; the backend re-streams a
		// message only under its original id and finalize overwrites content
		// wholesale, so the union stays consistent.
		last.Content += text
		return last.ID
	}

	id := overrideMessageID
	if id == "" {
		id = uuid.New().String()
	}
	msg := &Message{
		ID:        id,
		Role:      RoleAssistant,
		Content:   text,
		Lifecycle: LifecycleInProgress,
		CreatedAt: time.Now(),
	}
	l.msgs = append(l.msgs, msg)
	return id
}

// Finalize overwrites the most recent assistant message with the
// authoritative final content and marks it complete. Returns the finalized
// message so the caller can hand its citations to the source merger.
//
// A finish event with no matching assistant message is a no-op, never a
// crash: returns nil.
func (l *MessageList) Finalize(content string) *Message {
	msg := l.LastAssistant()
	if msg == nil {
		return nil
	}
	msg.Content = content
	msg.Lifecycle = LifecycleComplete
	msg.PendingToolCall = nil
	return msg
}
