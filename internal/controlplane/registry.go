// ABOUTME: Peer registry — per-listener session state for the reliable-stream protocol
// ABOUTME: Mirrors network_manager.hpp's playing_peer_list_t and peer_info_t
package controlplane

import (
	"net"
	"sync"
	"sync/atomic"
)

// Peer is one row per listener that has completed START_PLAY (§3).
type Peer struct {
	id   uint32
	conn net.Conn

	// udpEndpoint is guarded by Registry.mu, matching the original's
	// single _peer_list_mutex protecting both the map and this field.
	udpEndpoint *net.UDPAddr

	// lastTick is read by the heartbeat loop and written by the read
	// loop; kept atomic so neither contends with the other (§5).
	lastTick atomic.Int64

	// writeMu serializes writes to conn so a reply and a heartbeat
	// never interleave on the wire (§5's "reply framing is atomic").
	writeMu sync.Mutex
}

// ID returns the peer's process-wide unique id.
func (p *Peer) ID() uint32 { return p.id }

// Conn returns the peer's reliable-stream connection.
func (p *Peer) Conn() net.Conn { return p.conn }

// Touch refreshes last_tick to now.
func (p *Peer) Touch() { p.lastTick.Store(nowNano()) }

// SilentFor reports how long it's been since the peer's last tick.
func (p *Peer) SilentFor() int64 { return nowNano() - p.lastTick.Load() }

// WriteFramed performs one atomic write of the concatenated frame.
func (p *Peer) WriteFramed(frame []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := p.conn.Write(frame)
	return err
}

// Registry maps each open reliable-stream connection to its Peer. Key
// identity is the connection itself, not the id (§3).
type Registry struct {
	mu             sync.Mutex
	byConn         map[net.Conn]*Peer
	nextID         uint32
	loggedMismatch map[uint32]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn:         make(map[net.Conn]*Peer),
		loggedMismatch: make(map[uint32]struct{}),
	}
}

// ErrDuplicatePeer is returned by Add when conn is already registered —
// a duplicate START_PLAY on the same stream (§7 PeerProtocolError).
var ErrDuplicatePeer = duplicatePeerError{}

type duplicatePeerError struct{}

func (duplicatePeerError) Error() string { return "controlplane: duplicate START_PLAY on stream" }

// Add admits a new peer on conn, allocating the next process-wide id.
func (r *Registry) Add(conn net.Conn) (*Peer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byConn[conn]; exists {
		return nil, ErrDuplicatePeer
	}

	r.nextID++
	p := &Peer{id: r.nextID, conn: conn}
	p.lastTick.Store(nowNano())
	r.byConn[conn] = p
	return p, nil
}

// Remove drops conn's peer from the registry, if present.
func (r *Registry) Remove(conn net.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, conn)
}

// Get looks up the peer for conn.
func (r *Registry) Get(conn net.Conn) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byConn[conn]
	return p, ok
}

// SetUDPEndpoint locates the peer whose id matches and attaches addr as
// its udp_endpoint. Reports whether a matching peer was found.
func (r *Registry) SetUDPEndpoint(id uint32, addr *net.UDPAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byConn {
		if p.id == id {
			p.udpEndpoint = addr
			return true
		}
	}
	return false
}

// UDPTarget is a (peer id, endpoint) pair used by the fan-out dispatcher.
type UDPTarget struct {
	PeerID   uint32
	Endpoint *net.UDPAddr
}

// SnapshotUDPTargets returns the current UDP endpoints of every peer
// with one set, filtering for address-family match with isV4 (the UDP
// server socket's family). A mismatched peer id is returned in
// mismatched only the first time it is seen, so the caller logs each
// mismatch once per peer id.
func (r *Registry) SnapshotUDPTargets(isV4 bool) (matched []UDPTarget, mismatched []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.byConn {
		ep := p.udpEndpoint
		if ep == nil {
			continue
		}
		epIsV4 := ep.IP.To4() != nil
		if epIsV4 == isV4 {
			matched = append(matched, UDPTarget{PeerID: p.id, Endpoint: ep})
			continue
		}
		if _, logged := r.loggedMismatch[p.id]; !logged {
			r.loggedMismatch[p.id] = struct{}{}
			mismatched = append(mismatched, p.id)
		}
	}
	return matched, mismatched
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn)
}

// CloseAll closes every registered peer's connection and empties the
// registry. Used by server shutdown (§5 "drop all peers").
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.byConn))
	for c := range r.byConn {
		conns = append(conns, c)
	}
	r.byConn = make(map[net.Conn]*Peer)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
