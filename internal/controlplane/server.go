// ABOUTME: Reliable-stream control plane (C2) and datagram fan-out (C3)
// ABOUTME: Modeled on network_manager.cpp's start_server/read_loop/heartbeat_loop/broadcast_audio_data
// and internal/server/server.go's Start/Stop/stopOnce/wg lifecycle skeleton.
package controlplane

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audio-share/audio-share-go/internal/audioformat"
	"github.com/audio-share/audio-share-go/internal/broadcast"
	"github.com/audio-share/audio-share-go/internal/bufferpool"
)

// MaxUDPPayload is the largest UDP payload this server will ever send, so
// that a single audio segment never needs IP fragmentation on a typical
// LAN path (§1: DEFAULT_MTU 1492 - IPv4-mapped IPv6 header 40 - UDP header 8).
const MaxUDPPayload = 1444

// HeartbeatInterval and HeartbeatTimeout govern the server->peer liveness
// check on the reliable stream (§4.4).
const (
	HeartbeatInterval = 3 * time.Second
	HeartbeatTimeout  = 5 * time.Second
)

// Config configures Server.Start.
type Config struct {
	Host   string
	Port   uint16
	Format audioformat.Format
}

// Server is the reliable-stream control plane plus the UDP datagram
// fan-out, composed in one type because they share a bound port and a
// peer registry (§3, §4.2, §4.3).
type Server struct {
	registry     *Registry
	pool         *bufferpool.Pool
	broadcasters broadcast.List

	formatBody []byte

	tcpListener net.Listener
	udpConn     *net.UDPConn
	isV4        bool

	running  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a control-plane server for the given audio format.
// The format is encoded once up front since GET_FORMAT replies are
// identical for the server's whole lifetime.
func NewServer(format audioformat.Format, pool *bufferpool.Pool) (*Server, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("controlplane: invalid format: %w", err)
	}
	return &Server{
		registry:   NewRegistry(),
		pool:       pool,
		formatBody: audioformat.EncodeProto(format),
		stopChan:   make(chan struct{}),
	}, nil
}

// AddBroadcaster installs an additional fan-out target (e.g. the
// WebSocket gateway), reached before UDP segmentation (§4.3).
func (s *Server) AddBroadcaster(b broadcast.Broadcaster) {
	s.broadcasters.Add(b)
}

// Start binds the reliable-stream TCP listener and the UDP datagram
// socket on the same host:port and begins accepting (§4.2 start_server).
func (s *Server) Start(cfg Config) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("controlplane: tcp listen %s: %w", addr, err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("controlplane: resolve udp %s: %w", addr, err)
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("controlplane: udp listen %s: %w", addr, err)
	}

	s.tcpListener = ln
	s.udpConn = udpConn
	if local, ok := udpConn.LocalAddr().(*net.UDPAddr); ok {
		s.isV4 = local.IP.To4() != nil
	} else {
		s.isV4 = true
	}
	s.running.Store(true)

	s.wg.Add(2)
	go s.acceptTCPLoop()
	go s.acceptUDPLoop()

	log.Printf("[controlplane] listening on %s (tcp+udp)", addr)
	return nil
}

// Stop closes both sockets, drops every peer, and waits for all loops to
// exit (§4.2 stop_server).
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.running.Store(false)
		close(s.stopChan)
		if s.tcpListener != nil {
			s.tcpListener.Close()
		}
		if s.udpConn != nil {
			s.udpConn.Close()
		}
		s.registry.CloseAll()
	})
	s.wg.Wait()
}

func (s *Server) acceptTCPLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			return
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}
		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

// readLoop services one reliable-stream connection until it closes or
// sends something the protocol doesn't allow (§4.2 read_loop).
func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()
	defer s.closeSession(conn)

	for {
		cmd, err := readCmd(conn)
		if err != nil {
			return
		}

		switch cmd {
		case CmdGetFormat:
			frame, err := encodeFormatReply(s.formatBody)
			if err != nil {
				log.Printf("[controlplane] %v", err)
				return
			}
			if _, err := conn.Write(frame); err != nil {
				return
			}

		case CmdStartPlay:
			peer, err := s.registry.Add(conn)
			if err != nil {
				log.Printf("[controlplane] %v", err)
				return
			}
			if _, err := conn.Write(encodeStartReply(peer.ID())); err != nil {
				s.registry.Remove(conn)
				return
			}
			s.wg.Add(1)
			go s.heartbeatLoop(peer)

		case CmdHeartbeat:
			if peer, ok := s.registry.Get(conn); ok {
				peer.Touch()
			}

		default:
			log.Printf("[controlplane] unknown command %d, closing session", cmd)
			return
		}
	}
}

// closeSession removes conn's peer, if any, and closes the connection.
// Safe to call more than once for the same conn.
func (s *Server) closeSession(conn net.Conn) {
	s.registry.Remove(conn)
	conn.Close()
}

// heartbeatLoop is the server-side half of liveness tracking: it pings
// the peer every HeartbeatInterval and drops it after HeartbeatTimeout
// of silence (§4.4 heartbeat_loop).
func (s *Server) heartbeatLoop(peer *Peer) {
	defer s.wg.Done()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, ok := s.registry.Get(peer.Conn()); !ok {
				return
			}
			if time.Duration(peer.SilentFor()) > HeartbeatTimeout {
				log.Printf("[controlplane] peer %d timed out, closing", peer.ID())
				s.closeSession(peer.Conn())
				return
			}
			if err := peer.WriteFramed(encodeHeartbeat()); err != nil {
				s.closeSession(peer.Conn())
				return
			}
		}
	}
}

// acceptUDPLoop reads peer-id registration datagrams and attaches the
// sender's address to the matching peer (§4.2 accept_udp_loop).
func (s *Server) acceptUDPLoop() {
	defer s.wg.Done()

	buf := make([]byte, 4)
	for {
		n, addr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		id, ok := decodeUDPRegistration(buf[:n])
		if !ok {
			continue
		}
		target := normalizeV4Mapped(addr)
		if !s.registry.SetUDPEndpoint(id, target) {
			log.Printf("[controlplane] udp registration for unknown peer id:%d", id)
		}
	}
}

// normalizeV4Mapped unwraps an IPv4-mapped IPv6 address into its plain
// IPv4 form, matching the original's make_address_v4(v4_mapped, ...) call
// in fill_udp_peer so address-family filtering later compares like with
// like.
func normalizeV4Mapped(addr *net.UDPAddr) *net.UDPAddr {
	if ip4 := addr.IP.To4(); ip4 != nil {
		return &net.UDPAddr{IP: ip4, Port: addr.Port}
	}
	return addr
}

// BroadcastAudioData implements broadcast.Broadcaster so the top-level
// server can be installed directly as a capture sink. It forwards to any
// additional broadcasters first, then segments the chunk to fit under
// MaxUDPPayload on a block-align boundary and fans the segments out over
// UDP to every listener with a known endpoint (§4.3 broadcast_audio_data).
func (s *Server) BroadcastAudioData(data []byte, blockAlign int) {
	if !s.running.Load() || len(data) == 0 || blockAlign <= 0 {
		return
	}

	s.broadcasters.BroadcastAudioData(data, blockAlign)

	maxSeg := MaxUDPPayload - MaxUDPPayload%blockAlign
	if maxSeg <= 0 {
		maxSeg = blockAlign
	}

	segments := make([]*bufferpool.Buffer, 0, (len(data)+maxSeg-1)/maxSeg)
	for begin := 0; begin < len(data); {
		n := len(data) - begin
		if n > maxSeg {
			n = maxSeg
		}
		buf := s.pool.Acquire()
		buf.Resize(n)
		copy(buf.Bytes(), data[begin:begin+n])
		segments = append(segments, buf)
		begin += n
	}

	targets, mismatched := s.registry.SnapshotUDPTargets(s.isV4)
	for _, id := range mismatched {
		log.Printf("[controlplane] address family mismatch for peer id:%d, dropping", id)
	}
	if len(targets) == 0 {
		for _, seg := range segments {
			seg.Release()
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			for _, seg := range segments {
				seg.Release()
			}
		}()
		for _, seg := range segments {
			for _, t := range targets {
				if _, err := s.udpConn.WriteToUDP(seg.Bytes(), t.Endpoint); err != nil {
					log.Printf("[controlplane] udp send to peer id:%d failed: %v", t.PeerID, err)
				}
			}
		}
	}()
}

// PeerCount reports how many peers currently hold a registry entry.
func (s *Server) PeerCount() int {
	return s.registry.Count()
}

// Addr returns the reliable-stream listener's bound address, useful for
// tests that start on an OS-assigned port.
func (s *Server) Addr() string {
	return s.tcpListener.Addr().String()
}
