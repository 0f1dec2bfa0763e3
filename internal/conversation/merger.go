package conversation

import (
	"log/slog"
	"time"

	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/metrics"
	"github.com/eternisai/enchanted-client/internal/protocol"
)

// SourceMerger reconciles citation sets arriving mid-stream or at finalize
// into the citation store and the transient message list.
type SourceMerger struct {
	store   *CitationStore
	list    *MessageList
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewSourceMerger(store *CitationStore, list *MessageList, m *metrics.Metrics, log *logger.Logger) *SourceMerger {
	return &SourceMerger{
		store:   store,
		list:    list,
		metrics: m,
		log:     log.WithComponent("source_merger"),
	}
}

// MergeSources maps raw citations and merges them into the store for the
// given message, marking the message as having sources. Citations whose
// annotation id is already present are dropped.
func (m *SourceMerger) MergeSources(raw []protocol.RawSource, messageID string) {
	if len(raw) == 0 {
		return
	}

	citations := MapSources(raw, messageID)
	added, duplicates := m.store.Merge(messageID, citations)
	m.metrics.CitationsMerged(added, duplicates)

	if msg := m.list.ByID(messageID); msg != nil {
		msg.HasSources = true
	}

	m.log.Debug("merged mid-stream sources",
		slog.String("message_id", messageID),
		slog.Int("added", added),
		slog.Int("duplicates", duplicates))
}

// FinalizeSources merges the finish-time citation set and overwrites the
// stored content and timestamp for the message. Finalize always wins over a
// mid-stream partial for the text field, never for citations, which only
// ever grow.
func (m *SourceMerger) FinalizeSources(raw []protocol.RawSource, messageID, content string, timestamp time.Time) {
	if len(raw) > 0 {
		citations := MapSources(raw, messageID)
		added, duplicates := m.store.Merge(messageID, citations)
		m.metrics.CitationsMerged(added, duplicates)

		if msg := m.list.ByID(messageID); msg != nil {
			msg.HasSources = true
		}
	}

	m.store.SetContent(messageID, content, timestamp)

	m.log.Debug("finalized sources",
		slog.String("message_id", messageID),
		slog.Int("raw_count", len(raw)))
}
