// ABOUTME: WebSocket fan-out for browser listeners (C4)
// ABOUTME: Modeled on pkg/sendspin/server.go's Start/Stop/handleWebSocket/handleConnection,
// liveness timing and format announcement from original_source/server-core/src/websocket_manager.cpp
package wsgateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audio-share/audio-share-go/internal/audioformat"
)

// WSHeartbeatInterval and WSHeartbeatTimeout govern browser-session
// liveness, distinct from the reliable-stream protocol's tighter bounds
// because browsers police their own ping/pong cadence loosely (§4.4).
const (
	WSHeartbeatInterval = 10 * time.Second
	WSHeartbeatTimeout  = 30 * time.Second
)

// Gateway accepts WebSocket upgrades from browser listeners, announces
// the stream format once per session, and fans out PCM frames to every
// open session, dropping frames only for sessions that fall behind.
type Gateway struct {
	format audioformat.Format

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	running  bool

	httpServer *http.Server

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a gateway that announces the given format to every
// connecting session.
func New(format audioformat.Format) *Gateway {
	return &Gateway{
		format:   format,
		sessions: make(map[*Session]struct{}),
		stopChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			// Browser listeners on a local network arrive from whatever
			// origin the serving page was loaded from; there's no
			// cross-site credential at risk here (§1 Non-goals: no auth).
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start binds an HTTP server on host:port and begins accepting upgrades
// on any request path in the background, mirroring controlplane.Server.Start's
// non-blocking convention.
func (g *Gateway) Start(host string, port uint16) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	g.httpServer = &http.Server{Addr: addr, Handler: g}

	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	errChan := make(chan error, 1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("wsgateway: listen %s: %w", addr, err)
	case <-time.After(50 * time.Millisecond):
	}

	log.Printf("[wsgateway] listening on %s", addr)
	return nil
}

// Stop shuts the HTTP server down, closes every session, and waits for
// all loops to exit.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		g.mu.Lock()
		g.running = false
		sessions := make([]*Session, 0, len(g.sessions))
		for s := range g.sessions {
			sessions = append(sessions, s)
		}
		g.sessions = make(map[*Session]struct{})
		g.mu.Unlock()

		close(g.stopChan)
		for _, s := range sessions {
			s.Close()
		}

		if g.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			g.httpServer.Shutdown(ctx)
		}
	})
	g.wg.Wait()
}

// ServeHTTP makes Gateway usable as an http.Handler directly, as well as
// mounted under a mux.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request, announces the format, and
// services the session until it closes (§4.2/§6 handle_session).
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	g.mu.Unlock()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[wsgateway] upgrade error: %v", err)
		return
	}

	session := newSession(conn)
	g.addSession(session)
	defer func() {
		g.removeSession(session)
		session.Close()
	}()

	formatFrame, err := audioformat.MarshalFormatJSON(g.format)
	if err != nil {
		log.Printf("[wsgateway] marshal format: %v", err)
		return
	}
	if err := session.writeFrame(websocket.TextMessage, formatFrame); err != nil {
		log.Printf("[wsgateway] send format: %v", err)
		return
	}

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.writeLoop(session)
	}()
	go func() {
		defer g.wg.Done()
		g.heartbeatLoop(session)
	}()

	g.readLoop(session)
}

// readLoop runs on the HandleWebSocket goroutine, per gorilla/websocket's
// single-reader requirement. It refreshes liveness on every frame and
// answers text "ping" with "pong" (§6).
func (g *Gateway) readLoop(session *Session) {
	for {
		messageType, data, err := session.conn.ReadMessage()
		if err != nil {
			return
		}
		session.Touch()

		if messageType == websocket.TextMessage && string(data) == "ping" {
			if err := session.writeFrame(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		}
	}
}

// writeLoop drains a session's outbound queue onto the wire.
func (g *Gateway) writeLoop(session *Session) {
	for {
		select {
		case <-session.done:
			return
		case frame, ok := <-session.outbound:
			if !ok {
				return
			}
			if err := session.writeFrame(websocket.BinaryMessage, frame); err != nil {
				session.Close()
				return
			}
		}
	}
}

// heartbeatLoop drops a session that's gone quiet for WSHeartbeatTimeout.
func (g *Gateway) heartbeatLoop(session *Session) {
	ticker := time.NewTicker(WSHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-g.stopChan:
			return
		case <-ticker.C:
			if session.SilentFor() > WSHeartbeatTimeout {
				log.Printf("[wsgateway] session %s timed out, closing", session.ID())
				session.writeFrame(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				session.Close()
				return
			}
		}
	}
}

func (g *Gateway) addSession(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[s] = struct{}{}
}

func (g *Gateway) removeSession(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, s)
}

// BroadcastAudioData implements broadcast.Broadcaster. A frame is queued
// on every open session; a session whose queue is already full drops the
// frame without affecting any other session (§4.3).
func (g *Gateway) BroadcastAudioData(data []byte, blockAlign int) {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.enqueueAudio(data)
	}
}

// SessionCount reports how many browser sessions are currently open.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Sessions returns a snapshot of the currently open sessions, letting a
// caller inspect per-session state (e.g. QueuedFrames) without reaching
// into the gateway's lock.
func (g *Gateway) Sessions() []*Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
