package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eternisai/enchanted-client/internal/history"
	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/metrics"
	"github.com/eternisai/enchanted-client/internal/protocol"
	"github.com/eternisai/enchanted-client/internal/transport"
)

var (
	// ErrNotConnected is returned when a send is attempted while the socket
	// is not ready. Logged by the controller; callers may ignore it.
	ErrNotConnected = errors.New("conversation socket not connected")

	// ErrSendLocked is returned while the send re-entrancy lock is held,
	// guarding against double-submit from rapid repeated key presses.
	ErrSendLocked = errors.New("a send is already in flight")

	// ErrNoPendingApproval is returned for a decision with no open gate.
	ErrNoPendingApproval = errors.New("no pending approval")
)

// defaultSendDebounce is how long the send lock stays held after a send
// completes.
const defaultSendDebounce = 300 * time.Millisecond

// Socket is the minimal outbound surface the controller needs from a
// conversation socket.
type Socket interface {
	Send(v any) error
	Close() error
}

// Dialer opens conversation sockets. The production implementation wraps
// transport.Dial; tests inject fakes.
type Dialer interface {
	Dial(ctx context.Context, addr transport.Address, cb transport.Callbacks) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, addr transport.Address, cb transport.Callbacks) (Socket, error)

func (f DialerFunc) Dial(ctx context.Context, addr transport.Address, cb transport.Callbacks) (Socket, error) {
	return f(ctx, addr, cb)
}

// HistoryFetcher is the persisted-history collaborator.
type HistoryFetcher interface {
	Fetch(ctx context.Context, conversationID string) ([]history.Record, error)
}

// Options configures a Controller.
type Options struct {
	SocketBaseURL string
	DocumentID    string
	CorpusID      string
	AuthToken     string

	// SendDebounce overrides the default 300ms send lock window.
	SendDebounce time.Duration

	Dialer  Dialer
	History HistoryFetcher
	Metrics *metrics.Metrics
	Logger  *logger.Logger

	// OnChange fires after every state mutation, outside the internal lock.
	OnChange func()
	// OnConnectionChange fires when connection readiness flips.
	OnConnectionChange func(ready bool)
}

// Controller owns one conversation's client-side state: the message list,
// the citation store, the approval gate, and the socket lifecycle. It merges
// three sources of truth (persisted history, live stream deltas, and the
// tool-approval side channel) into one consistent message list.
//
// Event dispatch is serialized: each protocol event is applied under a lock
// and runs to completion before the next, so the reducers below may assume
// no concurrent mutation within the conversation.
type Controller struct {
	mu sync.Mutex

	baseURL      string
	documentID   string
	corpusID     string
	authToken    string
	sendDebounce time.Duration

	dialer  Dialer
	history HistoryFetcher
	metrics *metrics.Metrics
	log     *logger.Logger

	onChange     func()
	onConnChange func(ready bool)

	list     *MessageList
	store    *CitationStore
	gate     *ApprovalGate
	merger   *SourceMerger
	uiStates *UIStateRegistry

	// Socket lifecycle. gen increments on every open/close so callbacks from
	// a superseded socket can detect they are stale and drop their events.
	sock            Socket
	gen             uint64
	connectionReady bool
	sendLocked      bool

	conversationID    string
	isNewConversation bool
	uiState           UIState

	disposed bool
}

// NewController builds a controller for the given scope. One controller
// instance serves one active conversation at a time.
func NewController(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.New(logger.Config{Level: slog.LevelInfo})
	}
	log = log.WithComponent("reconciliation_controller")

	debounce := opts.SendDebounce
	if debounce <= 0 {
		debounce = defaultSendDebounce
	}

	list := NewMessageList()
	store := NewCitationStore()

	return &Controller{
		baseURL:      opts.SocketBaseURL,
		documentID:   opts.DocumentID,
		corpusID:     opts.CorpusID,
		authToken:    opts.AuthToken,
		sendDebounce: debounce,
		dialer:       opts.Dialer,
		history:      opts.History,
		metrics:      opts.Metrics,
		log:          log,
		onChange:     opts.OnChange,
		onConnChange: opts.OnConnectionChange,
		list:         list,
		store:        store,
		gate:         NewApprovalGate(log),
		merger:       NewSourceMerger(store, list, opts.Metrics, log),
		uiStates:     NewUIStateRegistry(),
	}
}

// SelectConversation switches to an existing conversation: transient state
// for the previous conversation is fully reset, persisted history is loaded,
// and a socket is opened addressed at the conversation.
func (c *Controller) SelectConversation(ctx context.Context, conversationID string) {
	c.mu.Lock()
	c.saveUIStateLocked()
	c.closeSocketLocked()
	c.resetLocked()
	c.conversationID = conversationID
	c.isNewConversation = false
	c.uiState = c.uiStates.Restore(conversationID)
	c.mu.Unlock()

	c.log.Info("conversation selected", slog.String("conversation_id", conversationID))

	c.loadHistory(ctx, conversationID)
	c.openSocket(ctx, conversationID)
	c.notifyChange()
}

// StartNewConversation resets state and opens a socket with no conversation
// id; the backend allocates one lazily on first exchange.
func (c *Controller) StartNewConversation(ctx context.Context) {
	c.mu.Lock()
	c.saveUIStateLocked()
	c.closeSocketLocked()
	c.resetLocked()
	c.conversationID = ""
	c.isNewConversation = true
	c.uiState = UIState{IsNewConversation: true}
	c.mu.Unlock()

	c.log.Info("new conversation started")

	c.openSocket(ctx, "")
	c.notifyChange()
}

// ExitConversation leaves the current conversation, saving its UI state and
// closing the socket. Safe to call when no conversation is active.
func (c *Controller) ExitConversation() {
	c.mu.Lock()
	c.saveUIStateLocked()
	c.closeSocketLocked()
	c.resetLocked()
	c.conversationID = ""
	c.isNewConversation = false
	c.uiState = UIState{}
	c.mu.Unlock()

	c.notifyChange()
}

// Reconnect re-dials the socket for the current conversation. This is the
// user-initiated recovery path; the controller never reconnects on its own.
func (c *Controller) Reconnect(ctx context.Context) {
	c.mu.Lock()
	conversationID := c.conversationID
	c.closeSocketLocked()
	c.mu.Unlock()

	c.metrics.Reconnect()
	c.openSocket(ctx, conversationID)
}

// Dispose tears the controller down. Idempotent; late events from the closed
// socket are ignored.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.saveUIStateLocked()
	c.closeSocketLocked()
	c.mu.Unlock()
}

// SendUserMessage sends a human turn over the socket. Rejected (logged, not
// thrown) when the socket is not ready or a send is already in flight.
func (c *Controller) SendUserMessage(text string) error {
	c.mu.Lock()
	if !c.connectionReady || c.sock == nil {
		c.mu.Unlock()
		c.log.Warn("send rejected: socket not connected")
		return ErrNotConnected
	}
	if c.sendLocked {
		c.mu.Unlock()
		c.log.Warn("send rejected: send already in flight")
		return ErrSendLocked
	}
	c.sendLocked = true
	sock := c.sock
	c.mu.Unlock()

	err := sock.Send(protocol.QueryFrame{Query: text})

	// Release the re-entrancy lock shortly after completion regardless of
	// outcome, so a transient failure does not wedge the input.
	time.AfterFunc(c.sendDebounce, func() {
		c.mu.Lock()
		c.sendLocked = false
		c.mu.Unlock()
	})

	if err != nil {
		c.mu.Lock()
		c.setConnectionReadyLocked(false)
		c.mu.Unlock()
		c.log.Error("failed to send user message", slog.String("error", err.Error()))
		c.notifyConnChange(false)
		return err
	}

	c.mu.Lock()
	c.list.AppendHuman(text)
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// SendApprovalDecision resolves the pending tool call. The gate is not
// cleared locally; it clears only when a subsequent event for the same
// message id confirms the backend resumed or aborted.
func (c *Controller) SendApprovalDecision(approved bool) error {
	c.mu.Lock()
	pending := c.gate.Pending()
	if pending == nil {
		c.mu.Unlock()
		c.log.Warn("approval decision rejected: no pending approval")
		return ErrNoPendingApproval
	}
	if !c.connectionReady || c.sock == nil {
		c.mu.Unlock()
		c.log.Warn("approval decision rejected: socket not connected")
		return ErrNotConnected
	}
	sock := c.sock
	c.mu.Unlock()

	err := sock.Send(protocol.DecisionFrame{
		ApprovalDecision: approved,
		TargetMessageID:  pending.MessageID,
	})
	if err != nil {
		c.mu.Lock()
		c.setConnectionReadyLocked(false)
		c.mu.Unlock()
		c.log.Error("failed to send approval decision", slog.String("error", err.Error()))
		c.notifyConnChange(false)
		return err
	}

	c.mu.Lock()
	c.gate.RecordDecision(approved)
	if msg := c.list.ByID(pending.MessageID); msg != nil {
		if approved {
			msg.Decision = ApprovalApproved
		} else {
			msg.Decision = ApprovalRejected
		}
	}
	c.mu.Unlock()

	c.log.Info("approval decision sent",
		slog.String("message_id", pending.MessageID),
		slog.Bool("approved", approved))

	c.notifyChange()
	return nil
}

// DismissApproval hides the approval prompt without resolving it.
func (c *Controller) DismissApproval() {
	c.mu.Lock()
	c.gate.Dismiss()
	c.mu.Unlock()
	c.notifyChange()
}

// ReopenApproval shows the prompt again for an unresolved approval.
func (c *Controller) ReopenApproval() {
	c.mu.Lock()
	c.gate.Reopen()
	c.mu.Unlock()
	c.notifyChange()
}

// Apply runs one protocol event through the reducers. Exposed so state
// transitions are testable without a socket; the socket read pump routes
// through the same path with a staleness guard in front.
func (c *Controller) Apply(ev protocol.Event) {
	c.mu.Lock()
	c.applyLocked(ev)
	c.mu.Unlock()
	c.notifyChange()
}

// Snapshot reads.

// Messages returns a copy of the current message list.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Messages()
}

// StoredSources returns the citation-store entry for a message.
func (c *Controller) StoredSources(messageID string) (StoredMessage, bool) {
	return c.store.Get(messageID)
}

// PendingApproval returns a copy of the pending approval, or nil.
func (c *Controller) PendingApproval() *PendingApproval {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Pending()
}

// ApprovalVisible reports whether the approval prompt should be shown.
func (c *Controller) ApprovalVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gate.Visible()
}

// ConnectionReady reports whether the socket can accept sends.
func (c *Controller) ConnectionReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectionReady
}

// ConversationID returns the active conversation id ("" for a new one).
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// UIState returns the current conversation's display context.
func (c *Controller) UIState() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uiState
}

// SetScrollOffset records the scroll position for the active conversation.
func (c *Controller) SetScrollOffset(offset float64) {
	c.mu.Lock()
	c.uiState.ScrollOffset = offset
	c.uiStates.Save(UIState{
		ConversationID:    c.conversationID,
		IsNewConversation: c.isNewConversation,
		ScrollOffset:      offset,
	})
	c.mu.Unlock()
}

// Internals.

func (c *Controller) resetLocked() {
	c.list.Reset()
	c.store.Reset()
	c.gate.Reset()
	c.sendLocked = false
}

func (c *Controller) saveUIStateLocked() {
	if c.conversationID == "" {
		return
	}
	c.uiStates.Save(UIState{
		ConversationID:    c.conversationID,
		IsNewConversation: c.isNewConversation,
		ScrollOffset:      c.uiState.ScrollOffset,
	})
}

// closeSocketLocked nulls the socket reference before closing the old
// object, so its late-arriving callbacks see a stale generation and drop
// their events. Idempotent.
func (c *Controller) closeSocketLocked() {
	c.gen++
	sock := c.sock
	c.sock = nil
	c.setConnectionReadyLocked(false)
	if sock != nil {
		sock.Close()
	}
}

func (c *Controller) setConnectionReadyLocked(ready bool) {
	c.connectionReady = ready
	c.metrics.SetConnectionReady(ready)
}

func (c *Controller) openSocket(ctx context.Context, conversationID string) {
	if c.dialer == nil {
		c.log.Warn("no dialer configured, staying offline")
		return
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.gen++
	myGen := c.gen
	c.mu.Unlock()

	addr := transport.Address{
		BaseURL:        c.baseURL,
		DocumentID:     c.documentID,
		CorpusID:       c.corpusID,
		ConversationID: conversationID,
		AuthToken:      c.authToken,
	}

	cb := transport.Callbacks{
		OnEvent: func(ev protocol.Event) {
			c.mu.Lock()
			if c.gen != myGen {
				// Stale socket: a switch or teardown superseded it.
				c.mu.Unlock()
				return
			}
			c.applyLocked(ev)
			c.mu.Unlock()
			c.notifyChange()
		},
		OnMalformed: func(data []byte, err error) {
			var unknown *protocol.UnknownTypeError
			if errors.As(err, &unknown) {
				c.metrics.UnknownEventType()
				c.log.Warn("ignoring unknown event type", slog.String("type", unknown.TypeTag))
				return
			}
			c.metrics.MalformedPayload()
			c.log.Warn("dropping malformed payload",
				slog.String("error", err.Error()),
				slog.Int("bytes", len(data)))
		},
		OnClose: func(err error) {
			c.mu.Lock()
			if c.gen != myGen {
				c.mu.Unlock()
				return
			}
			c.setConnectionReadyLocked(false)
			c.sock = nil
			c.mu.Unlock()

			if err != nil {
				c.log.Warn("socket closed with error", slog.String("error", err.Error()))
			} else {
				c.log.Debug("socket closed")
			}
			c.notifyConnChange(false)
		},
	}

	sock, err := c.dialer.Dial(ctx, addr, cb)
	if err != nil {
		c.log.Error("failed to open socket", slog.String("error", err.Error()))
		c.notifyConnChange(false)
		return
	}

	c.mu.Lock()
	if c.gen != myGen || c.disposed {
		// Superseded while dialing: discard the fresh socket.
		c.mu.Unlock()
		sock.Close()
		return
	}
	c.sock = sock
	c.setConnectionReadyLocked(true)
	c.mu.Unlock()

	c.notifyConnChange(true)
}

// loadHistory fetches persisted messages and merges them before any
// transient chat content: history first, in-flight messages appended after,
// concatenated by array order. The socket never streams older-than-history
// content, so no timestamp re-sort is needed.
func (c *Controller) loadHistory(ctx context.Context, conversationID string) {
	if c.history == nil || conversationID == "" {
		return
	}

	records, err := c.history.Fetch(ctx, conversationID)
	if err != nil {
		// History failure is not fatal: the live stream still works.
		c.log.Error("history fetch failed", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	for i := range records {
		rec := &records[i]

		if len(rec.Data.Sources) > 0 {
			citations := MapSources(rec.Data.Sources, rec.ID)
			added, duplicates := c.store.Merge(rec.ID, citations)
			c.metrics.CitationsMerged(added, duplicates)
			c.store.SetContent(rec.ID, rec.Content, rec.CreatedAt)
		}

		msg := projectHistoryRecord(rec)
		c.list.Append(msg)

		// Reloading a page mid-approval: reopen the gate from the record.
		if msg.Lifecycle == LifecycleAwaitingApproval && msg.PendingToolCall != nil {
			c.gate.Request(msg.ID, *msg.PendingToolCall)
		}
	}
	c.mu.Unlock()

	c.log.Info("history reconciled",
		slog.String("conversation_id", conversationID),
		slog.Int("messages", len(records)))
}

// projectHistoryRecord turns a persisted record into a display-ready
// message. A record persisted with state in_progress or awaiting_approval is
// treated as not-yet-complete even though it is historical.
func projectHistoryRecord(rec *history.Record) *Message {
	role := RoleAssistant
	if rec.Role == "human" {
		role = RoleHuman
	}

	lifecycle := LifecycleComplete
	switch rec.Data.State {
	case "in_progress":
		lifecycle = LifecycleInProgress
	case "awaiting_approval":
		lifecycle = LifecycleAwaitingApproval
	}

	msg := &Message{
		ID:          rec.ID,
		Role:        role,
		Content:     rec.Content,
		Lifecycle:   lifecycle,
		CreatedAt:   rec.CreatedAt,
		HasSources:  len(rec.Data.Sources) > 0,
		HasTimeline: len(rec.Data.Timeline) > 0,
	}

	for _, tr := range rec.Data.Timeline {
		msg.Timeline = append(msg.Timeline, TimelineEntry{
			Type: ClassifyTimelineEntry(tr.Tool, tr.Args),
			Text: tr.Text,
			Tool: tr.Tool,
			Args: tr.Args,
		})
	}

	if lifecycle == LifecycleAwaitingApproval && rec.Data.PendingToolCall != nil {
		tc := *rec.Data.PendingToolCall
		msg.PendingToolCall = &tc
	}

	return msg
}

// applyLocked dispatches one typed event to the reducers. Logical
// inconsistencies (finalize with no open message, events for unknown ids)
// are no-ops, never panics: the reducers must stay crash-free under
// adversarial event ordering.
func (c *Controller) applyLocked(ev protocol.Event) {
	c.metrics.EventProcessed(string(ev.Type()))

	switch e := ev.(type) {
	case protocol.StartEvent:
		id := c.list.AppendToken(e.Content, e.MessageID)
		c.resumeIfGatedLocked(id)

	case protocol.ContentEvent:
		id := c.list.AppendToken(e.Content, e.MessageID)
		c.resumeIfGatedLocked(id)

	case protocol.ThoughtEvent:
		c.list.AppendThought(e.Content, ThoughtMeta{
			MessageID: e.MessageID,
			ToolName:  e.ToolName,
			Args:      e.Args,
		})

	case protocol.SourcesEvent:
		c.merger.MergeSources(e.Sources, e.MessageID)

	case protocol.ApprovalNeededEvent:
		c.handleApprovalNeededLocked(e)

	case protocol.FinishEvent:
		c.finalizeLocked(e.Content, e.MessageID, e.Sources, e.Timeline)

	case protocol.ErrorEvent:
		// Backend-signaled errors surface as message content, displayed
		// like any other message, never raised.
		text := e.Message
		if text == "" {
			text = "Something went wrong. Please try again."
		}
		c.finalizeLocked(text, e.MessageID, nil, nil)

	case protocol.SyncContentEvent:
		// Create-and-finalize in one step: route through the only
		// assistant-creation path, then overwrite with the final text.
		c.list.AppendToken(e.Content, e.MessageID)
		c.finalizeLocked(e.Content, e.MessageID, e.Sources, e.Timeline)

	default:
		c.log.Warn("ignoring unhandled event", slog.String("type", string(ev.Type())))
	}
}

// resumeIfGatedLocked clears the approval gate when content arrives for the
// gated message, and moves the message back into streaming state.
func (c *Controller) resumeIfGatedLocked(messageID string) {
	if !c.gate.ClearIfResumed(messageID) {
		return
	}
	if msg := c.list.ByID(messageID); msg != nil {
		if msg.Lifecycle == LifecycleAwaitingApproval {
			msg.Lifecycle = LifecycleInProgress
		}
		msg.PendingToolCall = nil
	}
}

func (c *Controller) handleApprovalNeededLocked(e protocol.ApprovalNeededEvent) {
	var msg *Message
	if e.MessageID != "" {
		msg = c.list.ByID(e.MessageID)
	}
	if msg == nil {
		msg = c.list.LastAssistant()
	}
	if msg == nil {
		// No stream to pause: attach a skeleton so the prompt has a home.
		msg = c.list.AppendThought("", ThoughtMeta{MessageID: e.MessageID})
		msg.Timeline = nil
		msg.HasTimeline = false
	}

	msg.Lifecycle = LifecycleAwaitingApproval
	tc := e.ToolCall
	msg.PendingToolCall = &tc
	msg.Decision = ApprovalNone

	gateID := e.MessageID
	if gateID == "" {
		gateID = msg.ID
	}
	c.gate.Request(gateID, e.ToolCall)

	c.log.Info("approval requested",
		slog.String("message_id", gateID),
		slog.String("tool", e.ToolCall.Name))
}

// finalizeLocked applies the authoritative final content to the most recent
// assistant message and reconciles its citation set. A finish with no open
// assistant message is a no-op.
func (c *Controller) finalizeLocked(content, overrideID string, sources []protocol.RawSource, timeline []protocol.TimelineRecord) {
	msg := c.list.Finalize(content)
	if msg == nil {
		c.log.Warn("finish event with no assistant message, ignoring")
		return
	}

	// Adopt a finish-time timeline only when the stream delivered none;
	// entries already accumulated are append-only and never replaced.
	if len(msg.Timeline) == 0 && len(timeline) > 0 {
		for _, tr := range timeline {
			msg.Timeline = append(msg.Timeline, TimelineEntry{
				Type: ClassifyTimelineEntry(tr.Tool, tr.Args),
				Text: tr.Text,
				Tool: tr.Tool,
				Args: tr.Args,
			})
		}
		msg.HasTimeline = true
	}

	storeID := overrideID
	if storeID == "" {
		storeID = msg.ID
	}
	c.merger.FinalizeSources(sources, storeID, content, time.Now())

	c.resumeIfGatedLocked(storeID)
	c.resumeIfGatedLocked(msg.ID)
}

func (c *Controller) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *Controller) notifyConnChange(ready bool) {
	if c.onConnChange != nil {
		c.onConnChange(ready)
	}
}
