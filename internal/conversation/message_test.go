package conversation

import (
	"testing"

	"github.com/eternisai/enchanted-client/internal/protocol"
)

func TestApprovalStatusDerivation(t *testing.T) {
	msg := &Message{Lifecycle: LifecycleInProgress}
	if got := msg.ApprovalStatus(); got != ApprovalNone {
		t.Errorf("expected none for a plain stream, got %s", got)
	}

	msg.Lifecycle = LifecycleAwaitingApproval
	if got := msg.ApprovalStatus(); got != ApprovalAwaiting {
		t.Errorf("expected awaiting, got %s", got)
	}

	// An explicit decision wins over the lifecycle.
	msg.Decision = ApprovalRejected
	if got := msg.ApprovalStatus(); got != ApprovalRejected {
		t.Errorf("expected rejected, got %s", got)
	}
}

func TestInFlight(t *testing.T) {
	for lifecycle, want := range map[Lifecycle]bool{
		LifecycleInProgress:       true,
		LifecycleAwaitingApproval: true,
		LifecycleComplete:         false,
	} {
		msg := &Message{Lifecycle: lifecycle}
		if msg.InFlight() != want {
			t.Errorf("InFlight for %s: expected %v", lifecycle, want)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	msg := &Message{
		ID:              "m",
		Timeline:        []TimelineEntry{{Type: EntryThought, Text: "orig"}},
		PendingToolCall: &protocol.ToolCall{Name: "orig"},
	}

	copied := msg.clone()
	copied.Timeline[0].Text = "mutated"
	copied.PendingToolCall.Name = "mutated"

	if msg.Timeline[0].Text != "orig" {
		t.Error("clone must not share the timeline slice")
	}
	if msg.PendingToolCall.Name != "orig" {
		t.Error("clone must not share the pending tool call")
	}
}
