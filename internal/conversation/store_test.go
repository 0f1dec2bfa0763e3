package conversation

import (
	"testing"
	"time"
)

func TestMergeDeduplicatesByAnnotationID(t *testing.T) {
	store := NewCitationStore()

	added, dups := store.Merge("msg-1", []Citation{
		{ID: "msg-1.0", AnnotationID: "123"},
		{ID: "msg-1.1", AnnotationID: "456"},
	})
	if added != 2 || dups != 0 {
		t.Fatalf("expected 2 added 0 duplicates, got %d/%d", added, dups)
	}

	// The same annotation arriving again, even under a different citation id,
	// is a duplicate.
	added, dups = store.Merge("msg-1", []Citation{
		{ID: "msg-1.2", AnnotationID: "123"},
		{ID: "msg-1.3", AnnotationID: "789"},
	})
	if added != 1 || dups != 1 {
		t.Fatalf("expected 1 added 1 duplicate, got %d/%d", added, dups)
	}

	entry, ok := store.Get("msg-1")
	if !ok {
		t.Fatal("expected an entry for msg-1")
	}
	if len(entry.Citations) != 3 {
		t.Errorf("expected 3 citations after de-dup, got %d", len(entry.Citations))
	}
}

func TestMergeOrderIndependentFinalSet(t *testing.T) {
	partial := []Citation{{ID: "m.0", AnnotationID: "123"}}
	final := []Citation{
		{ID: "m.0", AnnotationID: "123"},
		{ID: "m.1", AnnotationID: "456"},
	}

	partialFirst := NewCitationStore()
	partialFirst.Merge("m", partial)
	partialFirst.Merge("m", final)

	finalFirst := NewCitationStore()
	finalFirst.Merge("m", final)
	finalFirst.Merge("m", partial)

	a, _ := partialFirst.Get("m")
	b, _ := finalFirst.Get("m")
	if len(a.Citations) != 2 || len(b.Citations) != 2 {
		t.Errorf("expected both orders to converge on 2 citations, got %d and %d",
			len(a.Citations), len(b.Citations))
	}
}

func TestSetContentLastWriteWins(t *testing.T) {
	store := NewCitationStore()
	early := time.Now().Add(-time.Minute)

	store.SetContent("msg-1", "partial text", early)
	store.SetContent("msg-1", "final text", time.Now())

	entry, _ := store.Get("msg-1")
	if entry.Content != "final text" {
		t.Errorf("expected the later write to win, got %q", entry.Content)
	}
}

func TestSetContentPreservesCitations(t *testing.T) {
	store := NewCitationStore()
	store.Merge("msg-1", []Citation{{AnnotationID: "123"}})
	store.SetContent("msg-1", "final", time.Now())

	entry, _ := store.Get("msg-1")
	if len(entry.Citations) != 1 {
		t.Errorf("content overwrite must not touch citations, got %d", len(entry.Citations))
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewCitationStore()
	store.Merge("msg-1", []Citation{{AnnotationID: "123", Label: "orig"}})

	entry, _ := store.Get("msg-1")
	entry.Citations[0].Label = "mutated"

	again, _ := store.Get("msg-1")
	if again.Citations[0].Label != "orig" {
		t.Error("Get must return an independent copy")
	}
}

func TestStoreReset(t *testing.T) {
	store := NewCitationStore()
	store.Merge("msg-1", []Citation{{AnnotationID: "123"}})

	store.Reset()
	if store.Len() != 0 {
		t.Errorf("expected empty store after reset, got %d entries", store.Len())
	}
	if _, ok := store.Get("msg-1"); ok {
		t.Error("expected no entry after reset")
	}
}
