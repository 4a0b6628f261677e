package audioshare

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audio-share/audio-share-go/internal/audioformat"
)

func TestServerStartStop(t *testing.T) {
	format := audioformat.Format{Encoding: audioformat.EncodingS16LE, Channels: 2, SampleRate: 48000}

	var srv *Server
	var lastErr error
	for _, port := range []uint16{49765, 49766, 49767} {
		s, err := New(Config{Host: "127.0.0.1", Port: port, WebSocketPort: port + 1, Format: format})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.Start(nil); err == nil {
			srv = s
			break
		} else {
			lastErr = err
		}
	}
	if srv == nil {
		t.Fatalf("could not start server: %v", lastErr)
	}
	defer srv.Stop()

	addr := srv.control.Addr()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, 1) // CmdGetFormat
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	header := make([]byte, 8)
	if _, err := conn.Read(header); err != nil {
		t.Fatalf("read: %v", err)
	}
}

// TestBroadcastBurstKeepsUDPResponsiveWhileWSDrops exercises §8 scenario
// 4: a UDP peer and a non-draining WebSocket listener both attached, a
// producer firing 100 broadcasts back-to-back. The UDP peer's delivery
// never goes through the gateway's per-session queue, so it stays
// responsive for the whole burst; the WS session's queue is bounded and
// silently drops once full.
func TestBroadcastBurstKeepsUDPResponsiveWhileWSDrops(t *testing.T) {
	format := audioformat.Format{Encoding: audioformat.EncodingS16LE, Channels: 2, SampleRate: 48000}

	var srv *Server
	var lastErr error
	for _, port := range []uint16{49960, 49961, 49962} {
		s, err := New(Config{Host: "127.0.0.1", Port: port, WebSocketPort: port + 1, Format: format})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := s.Start(nil); err == nil {
			srv = s
			break
		} else {
			lastErr = err
		}
	}
	if srv == nil {
		t.Fatalf("could not start server: %v", lastErr)
	}
	defer srv.Stop()

	controlAddr := srv.control.Addr()

	// Register one reliable-stream peer and its UDP endpoint.
	tcpConn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		t.Fatalf("tcp Dial: %v", err)
	}
	defer tcpConn.Close()

	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, 2) // CmdStartPlay
	tcpConn.Write(req)
	reply := make([]byte, 8)
	tcpConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := tcpConn.Read(reply); err != nil {
		t.Fatalf("read START_PLAY reply: %v", err)
	}
	peerID := binary.LittleEndian.Uint32(reply[4:8])

	udpConn, err := net.Dial("udp", controlAddr)
	if err != nil {
		t.Fatalf("udp Dial: %v", err)
	}
	defer udpConn.Close()
	// The burst is read only after all 100 broadcasts, so the socket's
	// receive buffer must hold ~140KB of datagrams; the default one
	// overflows and the kernel drops the excess.
	if uc, ok := udpConn.(*net.UDPConn); ok {
		uc.SetReadBuffer(1 << 20)
	}

	registration := make([]byte, 4)
	binary.LittleEndian.PutUint32(registration, peerID)
	if _, err := udpConn.Write(registration); err != nil {
		t.Fatalf("udp registration write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.PeerCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("peer never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond) // let SetUDPEndpoint land

	// Connect a WebSocket listener that never reads. Shrinking its
	// receive buffer makes the kernel advertise a near-zero TCP window
	// almost immediately, so the gateway's writer blocks on this
	// session's socket within the first few frames instead of absorbing
	// most of the 100-frame burst into the OS send buffer - otherwise
	// the outbound queue would rarely fill within a short burst.
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := net.Dial(network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := c.(*net.TCPConn); ok {
				tc.SetReadBuffer(1)
			}
			return c, nil
		},
	}
	wsURL := fmt.Sprintf("ws://%s:%d/", srv.config.Host, srv.config.WebSocketPort)
	wsConn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws Dial: %v", err)
	}
	defer wsConn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for srv.SessionCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("websocket session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	blockAlign := format.BlockAlign()
	chunk := make([]byte, 1400-1400%blockAlign)
	for i := range chunk {
		chunk[i] = byte(i)
	}

	broadcaster := srv.Broadcaster()
	for i := 0; i < 100; i++ {
		broadcaster.BroadcastAudioData(chunk, blockAlign)
	}

	received := 0
	udpConn.SetReadDeadline(time.Now().Add(1 * time.Second))
	buf := make([]byte, 2048)
	for {
		n, err := udpConn.Read(buf)
		if err != nil {
			break
		}
		if n != len(chunk) {
			t.Fatalf("datagram %d bytes, want %d", n, len(chunk))
		}
		received++
	}
	if received != 100 {
		t.Fatalf("udp peer received %d datagrams, want 100 (responsiveness broken by a slow WS session)", received)
	}

	sessions := srv.gateway.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("got %d websocket sessions, want 1", len(sessions))
	}
	if got := sessions[0].QueuedFrames(); got != 50 {
		t.Fatalf("websocket session queue depth = %d, want 50 (outboundQueueCap)", got)
	}
}

func TestServerRejectsInvalidFormat(t *testing.T) {
	_, err := New(Config{Host: "127.0.0.1", Port: 1, WebSocketPort: 2, Format: audioformat.Format{}})
	if err == nil {
		t.Fatal("expected error for zero-value format")
	}
}
