package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"

	"github.com/majchrzamemil/handshaker/chaincfg"
	"github.com/majchrzamemil/handshaker/peer"
	"github.com/majchrzamemil/handshaker/wire"
)

// server runs the handshake with the configured destination peer.
type server struct {
	started  int32
	shutdown int32

	chainParams *chaincfg.Params
	peer        *peer.Peer

	quit chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	// err is the result of the handshake. It is only valid once done is
	// closed.
	err error
}

// progressf prints a timestamped progress line to the console.
func progressf(format string, args ...interface{}) {
	fmt.Fprintf(color.Output, "%s %s %s\n", color.GreenString("[info]"),
		color.CyanString(time.Now().Format(time.DateTime)),
		fmt.Sprintf(format, args...))
}

// failuref prints a timestamped failure line to the console.
func failuref(format string, args ...interface{}) {
	fmt.Fprintf(color.Output, "%s %s %s\n", color.RedString("[error]"),
		color.CyanString(time.Now().Format(time.DateTime)),
		color.YellowString(format, args...))
}

// newPeerConfig returns the peer configuration for cfg. Handshake progress is
// reported on the console.
func newPeerConfig(cfg *config, chainParams *chaincfg.Params) *peer.Config {
	return &peer.Config{
		ChainParams:      chainParams,
		UserAgent:        cfg.UserAgent,
		ProtocolVersion:  wire.ProtocolVersion,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Listeners: peer.MessageListeners{
			OnStateChange: func(p *peer.Peer, from, to peer.HandshakeState) {
				switch to {
				case peer.StateConnecting:
					progressf("Connecting to %s (%s)", p, chainParams.Name)
				case peer.StateVersionSent:
					progressf("Connected, version sent to %s: waiting "+
						"for a response...", p)
				case peer.StateAwaitingVerAck:
					progressf("Verack sent to %s: waiting for verack...", p)
				case peer.StateCompleted:
					progressf("%s", color.GreenString("Handshake "+
						"with %s completed", p))
				}
			},
			OnVersion: func(p *peer.Peer, msg *wire.MsgVersion) {
				progressf("Received version from %s: protocol %d, "+
					"user agent %q, services %v, start height %d", p,
					msg.ProtocolVersion, msg.UserAgent, msg.Services,
					msg.LastBlock)
			},
			OnVerAck: func(p *peer.Peer) {
				progressf("Received verack from %s", p)
			},
		},
	}
}

// newServer returns a new server configured to handshake with the
// destination address in cfg on the network defined by chainParams.
func newServer(cfg *config, chainParams *chaincfg.Params) (*server, error) {
	if !cfg.destAddr.IsValid() {
		return nil, &AddressParseError{Addr: cfg.DestAddr,
			Err: errors.New("no address")}
	}

	s := server{
		chainParams: chainParams,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.peer = peer.NewOutboundPeer(newPeerConfig(cfg, chainParams),
		cfg.destAddr)
	return &s, nil
}

// handshakeHandler runs the handshake until it finishes or the server is
// stopped. It must be run as a goroutine.
func (s *server) handshakeHandler() {
	defer s.wg.Done()
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	s.err = s.peer.Handshake(ctx)
	if s.err != nil {
		hskrLog.Errorf("Handshake with %s failed in state %v: %v",
			s.peer, s.peer.State(), s.err)
		failuref("Handshake with %s failed: %v", s.peer, s.err)
		return
	}

	remote := s.peer.RemoteVersion()
	if remote != nil {
		hskrLog.Infof("Peer %s: user agent %s, protocol %d, height %d",
			s.peer, remote.UserAgent, remote.ProtocolVersion,
			remote.LastBlock)
	}
	hskrLog.Infof("Handshake with %s completed in %v", s.peer,
		time.Since(start).Round(time.Millisecond))
}

// Start begins the handshake with the destination peer.
func (s *server) Start() {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	hskrLog.Trace("Starting server")

	s.wg.Add(1)
	go s.handshakeHandler()
}

// Stop gracefully shuts down the server by aborting a handshake in
// progress and closing the peer connection.
func (s *server) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		hskrLog.Infof("Server is already in the process of shutting down")
		return nil
	}

	hskrLog.Debug("Server shutting down")
	close(s.quit)
	s.wg.Wait()

	return s.peer.Disconnect()
}

// WaitForShutdown blocks until the handshake goroutine has exited.
func (s *server) WaitForShutdown() {
	s.wg.Wait()
}

// Done returns a channel that is closed once the handshake finished.
func (s *server) Done() <-chan struct{} {
	return s.done
}

// Err returns the result of the handshake once Done is closed.
func (s *server) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
