package conversation

import (
	"log/slog"

	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/protocol"
)

// PendingApproval is the singleton human-confirmation checkpoint for the
// current conversation.
type PendingApproval struct {
	MessageID string
	ToolCall  protocol.ToolCall
}

// ApprovalGate pauses and resumes the conversation around a tool call that
// requires human confirmation.
//
// States: none -> awaiting -> {approved | rejected} -> none. The pending
// approval is the single source of truth; the visible flag is purely a
// display toggle, so dismissing the prompt hides it without resolving
// anything.
//
// A second approval request while one is pending overwrites it (last request
// wins). The backend serializes tool calls per conversation, so no queue is
// kept.
type ApprovalGate struct {
	pending  *PendingApproval
	visible  bool
	decision ApprovalStatus
	log      *logger.Logger
}

func NewApprovalGate(log *logger.Logger) *ApprovalGate {
	return &ApprovalGate{
		decision: ApprovalNone,
		log:      log.WithComponent("approval_gate"),
	}
}

// Request opens the gate for a tool call. Overwrites any pending approval.
func (g *ApprovalGate) Request(messageID string, toolCall protocol.ToolCall) {
	if g.pending != nil {
		g.log.Warn("overwriting pending approval",
			slog.String("previous_message_id", g.pending.MessageID),
			slog.String("message_id", messageID))
	}
	g.pending = &PendingApproval{
		MessageID: messageID,
		ToolCall:  toolCall,
	}
	g.visible = true
	g.decision = ApprovalNone
}

// Pending returns a copy of the pending approval, or nil.
func (g *ApprovalGate) Pending() *PendingApproval {
	if g.pending == nil {
		return nil
	}
	p := *g.pending
	return &p
}

// Visible reports whether the prompt should be shown.
func (g *ApprovalGate) Visible() bool {
	return g.pending != nil && g.visible
}

// Dismiss hides the prompt without resolving the approval.
func (g *ApprovalGate) Dismiss() {
	g.visible = false
}

// Reopen shows the prompt again for an unresolved approval.
func (g *ApprovalGate) Reopen() {
	if g.pending != nil {
		g.visible = true
	}
}

// RecordDecision notes the user's decision locally. The pending approval is
// NOT cleared here: it clears only when a subsequent event for the same
// message id confirms the backend resumed or aborted, so a silently failed
// send never shows a premature "resolved" state.
func (g *ApprovalGate) RecordDecision(approved bool) {
	if approved {
		g.decision = ApprovalApproved
	} else {
		g.decision = ApprovalRejected
	}
}

// Decision returns the locally recorded decision for the pending approval.
func (g *ApprovalGate) Decision() ApprovalStatus {
	return g.decision
}

// ClearIfResumed clears the gate when an event for the pending approval's
// message arrives, signalling resumption or termination. Returns true when
// the gate was cleared.
func (g *ApprovalGate) ClearIfResumed(messageID string) bool {
	if g.pending == nil || messageID == "" || g.pending.MessageID != messageID {
		return false
	}
	g.log.Debug("approval gate cleared", slog.String("message_id", messageID))
	g.pending = nil
	g.visible = false
	g.decision = ApprovalNone
	return true
}

// Reset drops all gate state. Called on conversation switch.
func (g *ApprovalGate) Reset() {
	g.pending = nil
	g.visible = false
	g.decision = ApprovalNone
}
