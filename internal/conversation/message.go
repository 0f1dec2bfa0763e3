package conversation

import (
	"time"

	"github.com/eternisai/enchanted-client/internal/protocol"
)

// Role identifies who produced a chat turn.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Lifecycle is the streaming state of a message.
type Lifecycle string

const (
	LifecycleInProgress       Lifecycle = "in_progress"
	LifecycleAwaitingApproval Lifecycle = "awaiting_approval"
	LifecycleComplete         Lifecycle = "complete"
)

// ApprovalStatus is derived from the lifecycle plus the explicit decision.
type ApprovalStatus string

const (
	ApprovalNone     ApprovalStatus = "none"
	ApprovalAwaiting ApprovalStatus = "awaiting"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// TimelineEntryType classifies a reasoning-trace entry.
type TimelineEntryType string

const (
	EntryThought    TimelineEntryType = "thought"
	EntryToolCall   TimelineEntryType = "tool_call"
	EntryToolResult TimelineEntryType = "tool_result"
)

// TimelineEntry is one visible trace of assistant reasoning or tool usage.
// Entries are append-only for the life of a stream.
type TimelineEntry struct {
	Type TimelineEntryType
	Text string
	Tool string
	Args string
}

// ClassifyTimelineEntry applies the single classification rule: a tool name
// with non-empty arguments is a call, a tool name alone is a result, anything
// else is a thought.
func ClassifyTimelineEntry(tool, args string) TimelineEntryType {
	if tool != "" && args != "" {
		return EntryToolCall
	}
	if tool != "" {
		return EntryToolResult
	}
	return EntryThought
}

// Message is one chat turn.
//
// Content for an assistant message starts empty or partial, grows by
// concatenation, and is replaced once by the authoritative final value at
// stream completion. Content for a human message is immutable after creation.
type Message struct {
	ID              string
	Role            Role
	Content         string
	Timeline        []TimelineEntry
	Lifecycle       Lifecycle
	Decision        ApprovalStatus
	PendingToolCall *protocol.ToolCall
	CreatedAt       time.Time

	// Display flags derived from persisted history payloads.
	HasSources  bool
	HasTimeline bool
}

// ApprovalStatus derives the gate status from lifecycle and decision.
func (m *Message) ApprovalStatus() ApprovalStatus {
	if m.Decision == ApprovalApproved || m.Decision == ApprovalRejected {
		return m.Decision
	}
	if m.Lifecycle == LifecycleAwaitingApproval {
		return ApprovalAwaiting
	}
	return ApprovalNone
}

// InFlight reports whether the message is still streaming or paused on an
// approval. At most one message per conversation may be in flight.
func (m *Message) InFlight() bool {
	return m.Lifecycle == LifecycleInProgress || m.Lifecycle == LifecycleAwaitingApproval
}

// clone returns a copy with an independent timeline slice, for snapshot reads.
func (m *Message) clone() Message {
	out := *m
	if len(m.Timeline) > 0 {
		out.Timeline = make([]TimelineEntry, len(m.Timeline))
		copy(out.Timeline, m.Timeline)
	}
	if m.PendingToolCall != nil {
		tc := *m.PendingToolCall
		out.PendingToolCall = &tc
	}
	return out
}
