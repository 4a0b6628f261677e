// ABOUTME: One browser listener's WebSocket session state and write path
// ABOUTME: Modeled on pkg/sendspin/server.go's client/clientWriter, queue bound from websocket_manager.cpp's send_loop
package wsgateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// outboundQueueCap bounds how many PCM frames may be queued for a slow
// listener before new frames are dropped for that session only (§4.3's
// websocket_manager.cpp: `if (audio_queue.size() < 50) enqueue else drop`).
const outboundQueueCap = 50

const writeDeadline = 10 * time.Second

// Session is one accepted, handshaken browser WebSocket connection.
type Session struct {
	id   string
	conn *websocket.Conn

	outbound chan []byte

	writeMu sync.Mutex

	lastTick atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(conn *websocket.Conn) *Session {
	s := &Session{
		id:       uuid.NewString(),
		conn:     conn,
		outbound: make(chan []byte, outboundQueueCap),
		done:     make(chan struct{}),
	}
	s.Touch()
	return s
}

// ID returns the session's server-assigned identifier.
func (s *Session) ID() string { return s.id }

// QueuedFrames reports how many PCM frames are currently buffered in the
// session's outbound queue, waiting for the write loop to drain them.
// Never exceeds outboundQueueCap.
func (s *Session) QueuedFrames() int { return len(s.outbound) }

// Touch marks the session alive as of now.
func (s *Session) Touch() { s.lastTick.Store(time.Now().UnixNano()) }

// SilentFor reports how long it's been since the last inbound message.
func (s *Session) SilentFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - s.lastTick.Load())
}

// enqueueAudio offers a PCM frame to the session's outbound queue. If the
// queue is full the frame is dropped for this session only; other
// sessions are unaffected (§4.3).
func (s *Session) enqueueAudio(frame []byte) {
	select {
	case s.outbound <- frame:
	default:
	}
}

// writeFrame performs one synchronized write on the underlying
// connection. gorilla/websocket forbids concurrent writers, so every
// writer (the audio drain loop, the ping reply, the close handshake)
// goes through this.
func (s *Session) writeFrame(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteMessage(messageType, data)
}

// Close closes the session exactly once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
