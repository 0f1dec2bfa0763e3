package protocol

import (
	"encoding/json"
	"strconv"
)

// RawSource is a citation record as the backend sends it, before
// normalization. A single record may span several document pages.
type RawSource struct {
	Label        string          `json:"label"`
	LabelID      string          `json:"label_id"`
	AnnotationID string          `json:"annotation_id"`
	Pages        []RawSourcePage `json:"pages"`
}

// RawSourcePage is one page's worth of a citation: the quoted text, the
// token strings highlighted on that page, and their bounding boxes.
type RawSourcePage struct {
	Page   int         `json:"page"`
	Text   string      `json:"text"`
	Tokens []string    `json:"tokens,omitempty"`
	Bounds [][]float64 `json:"bounds,omitempty"`
}

// ToolCall identifies a backend tool invocation awaiting human confirmation.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
}

// TimelineRecord is a reasoning-trace entry as carried on the wire, either in
// an ASYNC_FINISH payload or in persisted history.
type TimelineRecord struct {
	Text string `json:"text"`
	Tool string `json:"tool,omitempty"`
	Args string `json:"args,omitempty"`
}

// flexID decodes a message id that some backend versions send as a JSON
// number and others as a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Outbound frames.

// QueryFrame sends a user turn to the backend.
type QueryFrame struct {
	Query string `json:"query"`
}

// DecisionFrame resolves a pending tool call. The target message id is sent
// verbatim; ids are opaque strings in this client even when the backend
// assigned a numeric one.
type DecisionFrame struct {
	ApprovalDecision bool   `json:"approvalDecision"`
	TargetMessageID  string `json:"targetMessageId"`
}

// MarshalJSON sends numeric-looking ids as JSON numbers for backend
// compatibility, and everything else as strings.
func (d DecisionFrame) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(d.TargetMessageID, 10, 64); err == nil {
		return json.Marshal(struct {
			ApprovalDecision bool  `json:"approvalDecision"`
			TargetMessageID  int64 `json:"targetMessageId"`
		}{d.ApprovalDecision, n})
	}
	type alias DecisionFrame
	return json.Marshal(alias(d))
}
