// ABOUTME: Top-level server composing the control plane, WebSocket gateway, and capture source
// ABOUTME: Modeled on cmd/resonate-server/main.go's Config/New/Start/Stop wiring,
// operation split (start_server/stop_server) from original_source/server-core/src/network_manager.hpp
package audioshare

import (
	"fmt"
	"log"

	"github.com/audio-share/audio-share-go/internal/audioformat"
	"github.com/audio-share/audio-share-go/internal/broadcast"
	"github.com/audio-share/audio-share-go/internal/bufferpool"
	"github.com/audio-share/audio-share-go/internal/capture"
	"github.com/audio-share/audio-share-go/internal/controlplane"
	"github.com/audio-share/audio-share-go/internal/wsgateway"
)

// bufferPoolInitialCapacity and bufferPoolMaxSize mirror buffer_pool's
// constructor defaults (§5): enough headroom for a handful of in-flight
// broadcasts without unbounded growth.
const (
	bufferPoolInitialCapacity = 16
	bufferPoolMaxSize         = 128
)

// Config configures a Server's control-plane and WebSocket gateway
// listeners and the audio format they advertise.
type Config struct {
	Host          string
	Port          uint16
	WebSocketPort uint16
	Format        audioformat.Format
}

// Server composes the reliable-stream control plane (C2/C3), the
// WebSocket gateway (C4), and a capture source into one running unit,
// the way network_manager and websocket_manager are composed under one
// CLI in the original implementation's main().
type Server struct {
	config Config

	pool     *bufferpool.Pool
	control  *controlplane.Server
	gateway  *wsgateway.Gateway
	source   capture.Source
	sourceWg chan struct{}
}

// New creates a Server for the given configuration. New itself returns
// an error if the format is invalid (§3 Validate).
func New(cfg Config) (*Server, error) {
	pool := bufferpool.New(controlplane.MaxUDPPayload, bufferPoolInitialCapacity, bufferPoolMaxSize)

	control, err := controlplane.NewServer(cfg.Format, pool)
	if err != nil {
		return nil, fmt.Errorf("audioshare: %w", err)
	}

	gateway := wsgateway.New(cfg.Format)
	control.AddBroadcaster(gateway)

	return &Server{
		config:  cfg,
		pool:    pool,
		control: control,
		gateway: gateway,
	}, nil
}

// Start binds the reliable-stream/UDP listener and the WebSocket gateway
// and begins streaming from source into the broadcast path
// (§4.2 start_server). source may be nil, in which case the caller is
// responsible for feeding the server via Broadcaster() itself.
func (s *Server) Start(source capture.Source) error {
	if err := s.control.Start(controlplane.Config{
		Host:   s.config.Host,
		Port:   s.config.Port,
		Format: s.config.Format,
	}); err != nil {
		return err
	}

	if err := s.gateway.Start(s.config.Host, s.config.WebSocketPort); err != nil {
		s.control.Stop()
		return err
	}

	if source != nil {
		s.source = source
		s.sourceWg = make(chan struct{})
		go func() {
			defer close(s.sourceWg)
			if err := source.Run(s.control); err != nil {
				log.Printf("[audioshare] capture source stopped: %v", err)
			}
		}()
	}

	log.Printf("[audioshare] serving %s on tcp/udp %s:%d, websocket on %s:%d",
		s.config.Format.Encoding, s.config.Host, s.config.Port, s.config.Host, s.config.WebSocketPort)
	return nil
}

// Stop halts capture, drops every peer and session, and closes both
// listeners (§4.2 stop_server).
func (s *Server) Stop() {
	if s.source != nil {
		s.source.Stop()
		<-s.sourceWg
	}
	s.gateway.Stop()
	s.control.Stop()
}

// Broadcaster exposes the control plane as a broadcast.Broadcaster so an
// external capture pipeline (out of scope here) can feed this server
// directly instead of going through a capture.Source.
func (s *Server) Broadcaster() broadcast.Broadcaster {
	return s.control
}

// PeerCount reports how many reliable-stream listeners are attached.
func (s *Server) PeerCount() int {
	return s.control.PeerCount()
}

// SessionCount reports how many WebSocket listeners are attached.
func (s *Server) SessionCount() int {
	return s.gateway.SessionCount()
}
