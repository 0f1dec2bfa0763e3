package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates inbound socket events.
type EventType string

const (
	EventAsyncStart          EventType = "ASYNC_START"
	EventAsyncContent        EventType = "ASYNC_CONTENT"
	EventAsyncThought        EventType = "ASYNC_THOUGHT"
	EventAsyncSources        EventType = "ASYNC_SOURCES"
	EventAsyncApprovalNeeded EventType = "ASYNC_APPROVAL_NEEDED"
	EventAsyncFinish         EventType = "ASYNC_FINISH"
	EventAsyncError          EventType = "ASYNC_ERROR"
	EventSyncContent         EventType = "SYNC_CONTENT"
)

// Event is the closed union over the eight inbound protocol event kinds.
// Payloads are decoded exactly once, at the socket boundary; everything past
// that point works with typed events.
type Event interface {
	Type() EventType
}

// StartEvent begins (or continues) an assistant stream.
type StartEvent struct {
	Content   string
	MessageID string
}

// ContentEvent appends a token to the in-flight assistant message.
type ContentEvent struct {
	Content   string
	MessageID string
}

// ThoughtEvent appends a reasoning/tool trace entry to the in-flight message.
type ThoughtEvent struct {
	Content   string
	MessageID string
	ToolName  string
	Args      string
}

// SourcesEvent merges citations arriving mid-stream.
type SourcesEvent struct {
	MessageID string
	Sources   []RawSource
}

// ApprovalNeededEvent opens the human-confirmation gate for a tool call.
type ApprovalNeededEvent struct {
	MessageID string
	ToolCall  ToolCall
}

// FinishEvent finalizes the in-flight message with the authoritative content.
type FinishEvent struct {
	Content   string
	MessageID string
	Sources   []RawSource
	Timeline  []TimelineRecord
}

// ErrorEvent finalizes the in-flight message with the error text as content.
type ErrorEvent struct {
	MessageID string
	Message   string
}

// SyncContentEvent creates and finalizes a message in one step (no streaming).
type SyncContentEvent struct {
	Content   string
	MessageID string
	Sources   []RawSource
	Timeline  []TimelineRecord
}

func (StartEvent) Type() EventType          { return EventAsyncStart }
func (ContentEvent) Type() EventType        { return EventAsyncContent }
func (ThoughtEvent) Type() EventType        { return EventAsyncThought }
func (SourcesEvent) Type() EventType        { return EventAsyncSources }
func (ApprovalNeededEvent) Type() EventType { return EventAsyncApprovalNeeded }
func (FinishEvent) Type() EventType         { return EventAsyncFinish }
func (ErrorEvent) Type() EventType          { return EventAsyncError }
func (SyncContentEvent) Type() EventType    { return EventSyncContent }

// UnknownTypeError reports an event whose type tag is not part of the
// protocol. Callers log and drop these; the stream continues.
type UnknownTypeError struct {
	TypeTag string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.TypeTag)
}

// envelope is the superset of all inbound payload fields. Each concrete event
// takes only the fields relevant to its kind.
type envelope struct {
	Type            string           `json:"type"`
	Content         string           `json:"content"`
	MessageID       flexID           `json:"message_id"`
	ToolName        string           `json:"tool_name"`
	Args            string           `json:"args"`
	Sources         []RawSource      `json:"sources"`
	Timeline        []TimelineRecord `json:"timeline"`
	PendingToolCall *ToolCall        `json:"pending_tool_call"`
	Error           string           `json:"error"`
}

// Decode parses one inbound socket frame into its typed event.
//
// Returns an *UnknownTypeError for type tags outside the protocol and a plain
// error for malformed JSON; both are drop-and-continue conditions for the
// caller, never fatal.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}

	switch EventType(env.Type) {
	case EventAsyncStart:
		return StartEvent{Content: env.Content, MessageID: string(env.MessageID)}, nil

	case EventAsyncContent:
		return ContentEvent{Content: env.Content, MessageID: string(env.MessageID)}, nil

	case EventAsyncThought:
		return ThoughtEvent{
			Content:   env.Content,
			MessageID: string(env.MessageID),
			ToolName:  env.ToolName,
			Args:      env.Args,
		}, nil

	case EventAsyncSources:
		return SourcesEvent{MessageID: string(env.MessageID), Sources: env.Sources}, nil

	case EventAsyncApprovalNeeded:
		if env.PendingToolCall == nil {
			return nil, fmt.Errorf("%s event without pending_tool_call", EventAsyncApprovalNeeded)
		}
		return ApprovalNeededEvent{
			MessageID: string(env.MessageID),
			ToolCall:  *env.PendingToolCall,
		}, nil

	case EventAsyncFinish:
		return FinishEvent{
			Content:   env.Content,
			MessageID: string(env.MessageID),
			Sources:   env.Sources,
			Timeline:  env.Timeline,
		}, nil

	case EventAsyncError:
		return ErrorEvent{MessageID: string(env.MessageID), Message: env.Error}, nil

	case EventSyncContent:
		return SyncContentEvent{
			Content:   env.Content,
			MessageID: string(env.MessageID),
			Sources:   env.Sources,
			Timeline:  env.Timeline,
		}, nil
	}

	return nil, &UnknownTypeError{TypeTag: env.Type}
}
