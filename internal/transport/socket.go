package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eternisai/enchanted-client/internal/logger"
	"github.com/eternisai/enchanted-client/internal/protocol"
)

const (
	// handshakeTimeout caps the websocket dial.
	handshakeTimeout = 15 * time.Second

	// writeTimeout caps a single outbound frame write.
	writeTimeout = 10 * time.Second
)

// ErrSocketClosed is returned by Send after Close.
var ErrSocketClosed = errors.New("socket closed")

// Callbacks routes socket activity back to the owner. OnEvent is invoked
// from the read pump goroutine, one event at a time and in delivery order;
// the owner may therefore treat dispatch as single-threaded.
type Callbacks struct {
	// OnEvent delivers a decoded protocol event.
	OnEvent func(ev protocol.Event)

	// OnMalformed reports a frame that failed to decode (bad JSON or an
	// unknown type tag). The frame is dropped and the pump continues.
	OnMalformed func(data []byte, err error)

	// OnClose fires exactly once when the read pump ends, with the read
	// error (nil on clean close).
	OnClose func(err error)
}

// Socket is a conversation socket: one websocket connection delivering typed
// protocol events. Close is idempotent and safe to call concurrently with
// the read pump.
type Socket struct {
	conn *websocket.Conn
	log  *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a socket to the given address and starts its read pump.
func Dial(ctx context.Context, addr Address, cb Callbacks, log *logger.Logger) (*Socket, error) {
	socketURL, err := addr.URL()
	if err != nil {
		return nil, err
	}

	if expiry, ok := addr.TokenExpiry(); ok && time.Now().After(expiry) {
		log.Warn("auth token already expired, dialing anyway",
			slog.Time("expired_at", expiry))
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		conn:   conn,
		log:    log.WithComponent("socket"),
		closed: make(chan struct{}),
	}
	go s.readPump(cb)

	s.log.Info("socket opened",
		slog.String("document_id", addr.DocumentID),
		slog.String("corpus_id", addr.CorpusID),
		slog.String("conversation_id", addr.ConversationID))

	return s, nil
}

// readPump reads frames until the connection dies, decoding each into a
// typed event. Decode failures are reported and dropped; the stream
// continues.
func (s *Socket) readPump(cb Callbacks) {
	defer func() {
		// One bad frame handler must not take the client down.
		if r := recover(); r != nil {
			s.log.Error("panic in socket read pump", slog.Any("panic", r))
		}
	}()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				// Locally initiated close: not an error.
				err = nil
			default:
			}
			if cb.OnClose != nil {
				cb.OnClose(err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			if cb.OnMalformed != nil {
				cb.OnMalformed(data, err)
			}
			continue
		}

		if cb.OnEvent != nil {
			cb.OnEvent(ev)
		}
	}
}

// Send marshals v and writes it as a text frame.
func (s *Socket) Send(v any) error {
	select {
	case <-s.closed:
		return ErrSocketClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

// Close shuts the socket down. Idempotent: closing an already-closed socket
// does nothing and never fails.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		s.conn.Close()
		s.log.Debug("socket closed")
	})
	return nil
}
