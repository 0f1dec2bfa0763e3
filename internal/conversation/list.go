package conversation

import (
	"time"

	"github.com/google/uuid"
)

// MessageList holds the transient, display-ordered messages of one
// conversation. Persisted history is loaded first; in-flight and local
// messages are appended after, in arrival order. The list itself performs no
// timestamp re-sorting: the socket never streams older-than-history content.
//
// MessageList is not safe for concurrent use; the reconciliation controller
// serializes access, matching the single-threaded event model of the
// protocol.
type MessageList struct {
	msgs []*Message
}

func NewMessageList() *MessageList {
	return &MessageList{}
}

// Len returns the number of messages.
func (l *MessageList) Len() int { return len(l.msgs) }

// Messages returns a snapshot copy of the list.
func (l *MessageList) Messages() []Message {
	out := make([]Message, 0, len(l.msgs))
	for _, m := range l.msgs {
		out = append(out, m.clone())
	}
	return out
}

// Reset drops every message. Used on conversation switch; state is fully
// rebuilt, never incrementally patched.
func (l *MessageList) Reset() {
	l.msgs = nil
}

// AppendHuman appends an immutable human turn.
func (l *MessageList) AppendHuman(text string) *Message {
	msg := &Message{
		ID:        uuid.New().String(),
		Role:      RoleHuman,
		Content:   text,
		Lifecycle: LifecycleComplete,
		CreatedAt: time.Now(),
	}
	l.msgs = append(l.msgs, msg)
	return msg
}

// Append adds an already-built message (history projection) to the end.
func (l *MessageList) Append(msg *Message) {
	l.msgs = append(l.msgs, msg)
}

// Last returns the final message, or nil when the list is empty.
func (l *MessageList) Last() *Message {
	if len(l.msgs) == 0 {
		return nil
	}
	return l.msgs[len(l.msgs)-1]
}

// LastAssistant scans from the end for the most recent assistant message.
func (l *MessageList) LastAssistant() *Message {
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].Role == RoleAssistant {
			return l.msgs[i]
		}
	}
	return nil
}

// ByID returns the message with the given id, or nil.
func (l *MessageList) ByID(id string) *Message {
	for _, m := range l.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}
