package conversation

import "sync"

// UIState is the per-conversation display context that intentionally
// survives a conversation switch, so a reselected conversation restores its
// scroll position.
type UIState struct {
	ConversationID    string
	IsNewConversation bool
	ScrollOffset      float64
}

// UIStateRegistry keeps UIState per conversation for the life of the
// process. It is the only state carried across a conversation switch;
// everything else is fully reset.
type UIStateRegistry struct {
	mu     sync.RWMutex
	states map[string]UIState
}

func NewUIStateRegistry() *UIStateRegistry {
	return &UIStateRegistry{
		states: make(map[string]UIState),
	}
}

// Save stores the UI state for a conversation.
func (r *UIStateRegistry) Save(state UIState) {
	if state.ConversationID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.ConversationID] = state
}

// Restore returns the saved state for a conversation, or a zero state for
// that id when none was saved.
func (r *UIStateRegistry) Restore(conversationID string) UIState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if state, ok := r.states[conversationID]; ok {
		return state
	}
	return UIState{ConversationID: conversationID}
}
