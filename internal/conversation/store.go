package conversation

import (
	"sync"
	"time"
)

// StoredMessage is a citation-store entry: the persisted view of one
// message's text and citation set. It lives apart from the message list so
// citations can arrive before, during, or after the message's text is known.
type StoredMessage struct {
	Content   string
	Timestamp time.Time
	Citations []Citation
}

// CitationStore maps message id -> stored content and citations for the
// current conversation.
//
// Thread-safety: reads may come from the render layer while the controller
// mutates, so the store carries its own RWMutex even though event dispatch
// itself is serialized.
type CitationStore struct {
	mu      sync.RWMutex
	entries map[string]*StoredMessage
}

func NewCitationStore() *CitationStore {
	return &CitationStore{
		entries: make(map[string]*StoredMessage),
	}
}

// Merge adds citations for a message, de-duplicating by annotation id. This
// is the single de-duplication rule in the system, applied identically for
// mid-stream partials and finalize calls: only citations whose AnnotationID
// is not already present are appended. Returns how many were added and how
// many were duplicates.
func (s *CitationStore) Merge(messageID string, citations []Citation) (added, duplicates int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[messageID]
	if !ok {
		entry = &StoredMessage{}
		s.entries[messageID] = entry
	}

	seen := make(map[string]bool, len(entry.Citations))
	for _, existing := range entry.Citations {
		seen[existing.AnnotationID] = true
	}

	for _, c := range citations {
		if seen[c.AnnotationID] {
			duplicates++
			continue
		}
		seen[c.AnnotationID] = true
		entry.Citations = append(entry.Citations, c)
		added++
	}
	return added, duplicates
}

// SetContent overwrites the stored content and timestamp for a message.
// Last write wins: a finalize always beats a mid-stream partial for the text
// field. Citations are untouched; they only ever grow via Merge.
func (s *CitationStore) SetContent(messageID, content string, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[messageID]
	if !ok {
		entry = &StoredMessage{}
		s.entries[messageID] = entry
	}
	entry.Content = content
	entry.Timestamp = timestamp
}

// Get returns a copy of the entry for a message id.
func (s *CitationStore) Get(messageID string) (StoredMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[messageID]
	if !ok {
		return StoredMessage{}, false
	}
	out := StoredMessage{
		Content:   entry.Content,
		Timestamp: entry.Timestamp,
	}
	if len(entry.Citations) > 0 {
		out.Citations = make([]Citation, len(entry.Citations))
		copy(out.Citations, entry.Citations)
	}
	return out, true
}

// Len returns the number of stored message entries.
func (s *CitationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset drops every entry. Called on conversation switch.
func (s *CitationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*StoredMessage)
}
