package conversation

import (
	"log/slog"
	"testing"

	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/protocol"
)

func testGate() *ApprovalGate {
	return NewApprovalGate(logger.New(logger.Config{Level: slog.LevelError}))
}

func TestApprovalRequestAndVisibility(t *testing.T) {
	gate := testGate()
	if gate.Pending() != nil || gate.Visible() {
		t.Fatal("expected empty gate initially")
	}

	gate.Request("msg-1", protocol.ToolCall{Name: "delete_file"})

	pending := gate.Pending()
	if pending == nil || pending.MessageID != "msg-1" {
		t.Fatalf("expected pending approval for msg-1, got %+v", pending)
	}
	if !gate.Visible() {
		t.Error("expected prompt visible after request")
	}
}

func TestApprovalLastRequestWins(t *testing.T) {
	gate := testGate()
	gate.Request("msg-1", protocol.ToolCall{Name: "first"})
	gate.Request("msg-2", protocol.ToolCall{Name: "second"})

	pending := gate.Pending()
	if pending.MessageID != "msg-2" || pending.ToolCall.Name != "second" {
		t.Errorf("expected the later request to win, got %+v", pending)
	}
}

func TestApprovalDismissAndReopen(t *testing.T) {
	gate := testGate()
	gate.Request("msg-1", protocol.ToolCall{Name: "tool"})

	gate.Dismiss()
	if gate.Visible() {
		t.Error("expected prompt hidden after dismiss")
	}
	if gate.Pending() == nil {
		t.Error("dismiss must not resolve the approval")
	}

	gate.Reopen()
	if !gate.Visible() {
		t.Error("expected prompt visible after reopen")
	}
}

func TestApprovalReopenWithoutPendingIsNoOp(t *testing.T) {
	gate := testGate()
	gate.Reopen()
	if gate.Visible() {
		t.Error("reopen with nothing pending must not show the prompt")
	}
}

func TestRecordDecisionKeepsGateOpen(t *testing.T) {
	gate := testGate()
	gate.Request("msg-1", protocol.ToolCall{Name: "tool"})

	gate.RecordDecision(true)
	if gate.Decision() != ApprovalApproved {
		t.Errorf("expected approved decision, got %s", gate.Decision())
	}
	if gate.Pending() == nil {
		t.Error("recording a decision must not clear the gate; only a backend event does")
	}
}

func TestClearIfResumedMatchesMessageID(t *testing.T) {
	gate := testGate()
	gate.Request("msg-1", protocol.ToolCall{Name: "tool"})

	if gate.ClearIfResumed("msg-other") {
		t.Error("unrelated message id must not clear the gate")
	}
	if gate.ClearIfResumed("") {
		t.Error("empty message id must not clear the gate")
	}
	if !gate.ClearIfResumed("msg-1") {
		t.Error("matching message id must clear the gate")
	}
	if gate.Pending() != nil || gate.Visible() {
		t.Error("expected empty gate after resume")
	}
}

func TestGateReset(t *testing.T) {
	gate := testGate()
	gate.Request("msg-1", protocol.ToolCall{Name: "tool"})
	gate.RecordDecision(false)

	gate.Reset()
	if gate.Pending() != nil || gate.Visible() || gate.Decision() != ApprovalNone {
		t.Error("expected gate fully cleared after reset")
	}
}
