package peer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/majchrzamemil/handshaker/chaincfg"
	"github.com/majchrzamemil/handshaker/wire"
)

const (
	// DefaultHandshakeTimeout is the time allowed for the whole handshake,
	// from dialing to receiving the remote verack.
	DefaultHandshakeTimeout = 30 * time.Second
)

// HandshakeState is the progress of an outbound handshake.
type HandshakeState int

const (
	// StateConnecting is the state while the connection is being dialed.
	StateConnecting HandshakeState = iota

	// StateVersionSent is the state after our version message was sent
	// and before the remote version arrived.
	StateVersionSent

	// StateAwaitingVerAck is the state after the remote version was
	// acknowledged with a verack and before the remote verack arrived.
	StateAwaitingVerAck

	// StateCompleted is the terminal state of a successful handshake.
	StateCompleted
)

var stateStrings = map[HandshakeState]string{
	StateConnecting:     "connecting",
	StateVersionSent:    "version sent",
	StateAwaitingVerAck: "awaiting verack",
	StateCompleted:      "completed",
}

// String returns the state in human-readable form.
func (s HandshakeState) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown HandshakeState (%d)", int(s))
}

// MessageListeners defines callback function pointers to invoke with
// message listeners for a peer. Any listener which is not set is ignored.
// They are invoked from the goroutine running the handshake.
type MessageListeners struct {
	// OnVersion is invoked when a peer receives a version bitcoin
	// message that could be decoded.
	OnVersion func(p *Peer, msg *wire.MsgVersion)

	// OnVerAck is invoked when a peer receives a verack bitcoin message.
	OnVerAck func(p *Peer)

	// OnStateChange is invoked each time the handshake moves to a new
	// state.
	OnStateChange func(p *Peer, from, to HandshakeState)
}

// Config is the struct to hold configuration options useful to Peer.
type Config struct {
	// ChainParams identifies which chain parameters the peer is associated
	// with. It defaults to the main network.
	ChainParams *chaincfg.Params

	// UserAgent is sent in the version message. It defaults to
	// wire.DefaultUserAgent.
	UserAgent string

	// ProtocolVersion is advertised in the version message. It defaults
	// to wire.ProtocolVersion.
	ProtocolVersion int32

	// Services specifies which services to advertise as supported by the
	// local peer.
	Services wire.ServiceFlag

	// StartHeight is the last block height advertised.
	StartHeight int32

	// DisableRelayTx asks the remote peer not to announce transactions.
	DisableRelayTx bool

	// Dial opens the connection. It defaults to a net.Dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	// HandshakeTimeout bounds the whole handshake. Zero disables the
	// limit, leaving only the context passed to Handshake.
	HandshakeTimeout time.Duration

	// Listeners houses callback functions to be invoked on receiving peer
	// messages.
	Listeners MessageListeners
}

// Peer performs the version handshake with a single remote bitcoin peer
// over an outbound connection. Reads and writes happen on the goroutine
// calling Handshake, one at a time.
type Peer struct {
	cfg  Config
	addr netip.AddrPort
	conn net.Conn

	state           HandshakeState
	nonce           uint64
	versionReceived bool
	verAckSent      bool
	verAckReceived  bool
	remoteVersion   *wire.MsgVersion
}

// NewOutboundPeer returns a new outbound bitcoin peer for addr. Missing
// configuration options are filled with their defaults.
func NewOutboundPeer(cfg *Config, addr netip.AddrPort) *Peer {
	p := &Peer{cfg: *cfg, addr: addr}
	if p.cfg.ChainParams == nil {
		p.cfg.ChainParams = &chaincfg.MainNetParams
	}
	if p.cfg.UserAgent == "" {
		p.cfg.UserAgent = wire.DefaultUserAgent
	}
	if p.cfg.ProtocolVersion == 0 {
		p.cfg.ProtocolVersion = wire.ProtocolVersion
	}
	if p.cfg.Dial == nil {
		var d net.Dialer
		p.cfg.Dial = d.DialContext
	}
	return p
}

// String returns the peer's address.
func (p *Peer) String() string {
	return p.addr.String()
}

// Addr returns the remote address.
func (p *Peer) Addr() netip.AddrPort {
	return p.addr
}

// State returns the current handshake state.
func (p *Peer) State() HandshakeState {
	return p.state
}

// RemoteVersion returns the version message received from the peer, or nil
// when none was received or it could not be decoded.
func (p *Peer) RemoteVersion() *wire.MsgVersion {
	return p.remoteVersion
}

// Conn returns the underlying connection, nil before Handshake dialed.
func (p *Peer) Conn() net.Conn {
	return p.conn
}

// Disconnect closes the connection, if one was made.
func (p *Peer) Disconnect() error {
	if p.conn == nil {
		return nil
	}
	log.Tracef("Disconnecting %s", p)
	return p.conn.Close()
}

// Handshake dials the peer and exchanges version and verack messages. It
// returns nil once a version was received, a verack was sent in response
// and a verack was received. The connection is left open either way; call
// Disconnect to close it.
func (p *Peer) Handshake(ctx context.Context) error {
	if p.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.HandshakeTimeout)
		defer cancel()
	}

	p.setState(StateConnecting)
	log.Debugf("Connecting to %s", p)
	conn, err := p.cfg.Dial(ctx, "tcp", p.addr.String())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("handshake with %s aborted: %w", p, ctx.Err())
		}
		return &TransportError{Op: "dial", Addr: p.String(), Err: err}
	}
	p.conn = conn

	// Unblock any pending read or write once the context is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	err = p.negotiate()
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("handshake with %s aborted: %w", p, ctx.Err())
	}
	return err
}

// negotiate sends our version and processes incoming messages until the
// handshake completes or fails.
func (p *Peer) negotiate() error {
	nonce, err := wire.RandomUint64()
	if err != nil {
		return err
	}
	p.nonce = nonce

	if err := p.writeMessage(p.localVersionMsg()); err != nil {
		return err
	}
	p.setState(StateVersionSent)

	reader := NewReader(p.conn, p.cfg.ChainParams.Net)
	for {
		frame, err := reader.ReadMessage()
		if err == io.EOF {
			return &TransportError{Op: "read", Addr: p.String(), Err: ErrPeerClosed}
		}
		if err != nil {
			if te, ok := err.(*TransportError); ok && te.Addr == "" {
				te.Addr = p.String()
			}
			return err
		}
		if frame == nil {
			continue
		}
		log.Debugf("Received %v from %s", frame.Command, p)

		switch frame.Command {
		case wire.CmdVersion:
			if err := p.handleVersion(frame); err != nil {
				return err
			}

		case wire.CmdVerAck:
			p.verAckReceived = true
			if p.cfg.Listeners.OnVerAck != nil {
				p.cfg.Listeners.OnVerAck(p)
			}
		}

		if p.versionReceived && p.verAckSent && p.verAckReceived {
			p.setState(StateCompleted)
			log.Infof("Handshake with %s (%s) completed", p,
				p.cfg.ChainParams.Name)
			return nil
		}
	}
}

// handleVersion acknowledges the first version message received from the
// peer. Later version messages are ignored.
func (p *Peer) handleVersion(frame *Frame) error {
	if p.versionReceived {
		log.Debugf("Ignoring duplicate version message from %s", p)
		return nil
	}

	// The remote version fields do not influence the handshake; decoding
	// is best effort and only serves logging and self connection
	// detection.
	if frame.Payload != nil {
		msg := &wire.MsgVersion{}
		if err := msg.BtcDecode(bytes.NewReader(frame.Payload)); err != nil {
			log.Warnf("Unable to decode version from %s: %v", p, err)
		} else {
			if msg.Nonce == p.nonce {
				return ErrSelfConnection
			}
			p.remoteVersion = msg
			log.Debugf("Peer %s: protocol version %d, user agent %q, "+
				"services %v, height %d", p, msg.ProtocolVersion,
				msg.UserAgent, msg.Services, msg.LastBlock)
			if p.cfg.Listeners.OnVersion != nil {
				p.cfg.Listeners.OnVersion(p, msg)
			}
		}
	}
	p.versionReceived = true

	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}
	p.verAckSent = true
	p.setState(StateAwaitingVerAck)
	return nil
}

// localVersionMsg creates a version message that can be used to send to the
// remote peer.
func (p *Peer) localVersionMsg() *wire.MsgVersion {
	theirNA := wire.NewNetAddressAddrPort(p.addr, 0)

	// Advertise our services but not our address.
	ourNA := wire.NewNetAddressIPPort(net.IPv4zero, 0, p.cfg.Services)

	msg := wire.NewMsgVersion(ourNA, theirNA, p.nonce, p.cfg.StartHeight)
	msg.ProtocolVersion = p.cfg.ProtocolVersion
	msg.Services = p.cfg.Services
	msg.UserAgent = p.cfg.UserAgent
	msg.Relay = !p.cfg.DisableRelayTx
	return msg
}

// writeMessage frames msg for the configured network and writes it to the
// connection.
func (p *Peer) writeMessage(msg wire.Message) error {
	sm, err := wire.BuildMessage(msg, p.cfg.ChainParams.Net)
	if err != nil {
		return err
	}

	log.Debugf("Sending %v to %s (%d bytes)", msg.Command(), p,
		len(sm.Header)+len(sm.Payload))
	if _, err := p.conn.Write(sm.Bytes()); err != nil {
		return &TransportError{Op: "write", Addr: p.String(), Err: err}
	}
	return nil
}

// setState moves the handshake to state and notifies the listener.
func (p *Peer) setState(state HandshakeState) {
	from := p.state
	p.state = state
	log.Tracef("Peer %s: %v -> %v", p, from, state)
	if p.cfg.Listeners.OnStateChange != nil {
		p.cfg.Listeners.OnStateChange(p, from, state)
	}
}
