package transport

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsm-network/dsm/internal/clock"
	"github.com/dsm-network/dsm/internal/config"
	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/errs"
	"github.com/dsm-network/dsm/internal/ids"
)

const protocolVersion = 1

// pendingDial tracks an in-flight initiator-side handshake (spec.md §4.F
// steps 1-2,5-7), keyed by connection_id in Listener.pending.
type pendingDial struct {
	remoteAddr *net.UDPAddr
	kemPub     crypto.KEMPublicKey
	kemSK      crypto.KEMPrivateKey
	nonce      [32]byte
	startedAt  time.Time
	result     chan dialOutcome
}

type dialOutcome struct {
	conn *Connection
	err  error
}

// Listener binds one UDP socket and multiplexes every SecureUdpConnection
// over it (spec.md §4.F "Listener"): one socket-owning type holding an
// RWMutex-guarded active-connection table, plus the pending-handshake
// table and the idle-eviction reaper.
type Listener struct {
	sock *net.UDPConn
	cfg  *config.Config
	log  *slog.Logger

	activeMu sync.RWMutex
	active   map[string]*Connection // keyed by remote UDP addr string

	pendingMu sync.Mutex
	pending   map[uint64]*pendingDial // keyed by connection_id (initiator side)

	acceptCh chan *Connection

	// authFailures is the "aggregated counter exposed to telemetry"
	// spec.md §7 requires for silently-dropped AuthFailure occurrences.
	authFailures atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// AuthFailureCount returns the number of inbound DATA datagrams dropped so
// far because no candidate nonce produced a valid AEAD tag (spec.md §7's
// AuthFailure telemetry counter).
func (l *Listener) AuthFailureCount() uint64 { return l.authFailures.Load() }

// Listen binds addr and starts the receive and reaper loops.
func Listen(ctx context.Context, addr string, cfg *config.Config, log *slog.Logger) (*Listener, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, map[string]any{"addr": addr}, err)
	}
	sock, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, map[string]any{"addr": addr}, err)
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		sock:     sock,
		cfg:      cfg,
		log:      log.With("component", "transport"),
		active:   make(map[string]*Connection),
		pending:  make(map[uint64]*pendingDial),
		acceptCh: make(chan *Connection, 16),
		ctx:      lctx,
		cancel:   cancel,
	}
	l.log.Info("transport listening", "addr", sock.LocalAddr().String())

	l.wg.Add(2)
	go l.receiveLoop()
	go l.reapLoop()
	return l, nil
}

// LocalAddr returns the bound socket's address.
func (l *Listener) LocalAddr() net.Addr { return l.sock.LocalAddr() }

// Close shuts down the socket and background loops. Active connections are
// not individually closed; callers that need a graceful CLOSE handshake on
// every connection should Close() them first.
func (l *Listener) Close() error {
	l.cancel()
	err := l.sock.Close()
	l.wg.Wait()
	return err
}

// Accept blocks until a new connection completes its handshake as
// responder, ctx is cancelled, or the listener is closed.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	select {
	case c, ok := <-l.acceptCh:
		if !ok {
			return nil, errs.ErrConnectionClosed
		}
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, errs.ErrConnectionClosed
	}
}

func (l *Listener) removeActive(c *Connection) {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	if existing, ok := l.active[c.remoteAddr.String()]; ok && existing == c {
		delete(l.active, c.remoteAddr.String())
	}
}

func (l *Listener) lookupActive(addr *net.UDPAddr) *Connection {
	l.activeMu.RLock()
	defer l.activeMu.RUnlock()
	return l.active[addr.String()]
}

func (l *Listener) insertActive(c *Connection) {
	l.activeMu.Lock()
	defer l.activeMu.Unlock()
	l.active[c.remoteAddr.String()] = c
}

func (l *Listener) newConnection(id uint64, remoteAddr *net.UDPAddr, keys sessionKeys) *Connection {
	maxPayload := l.cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = config.DefaultMaxPayloadBytes
	}
	c := &Connection{
		id:             id,
		remoteAddr:     remoteAddr,
		localAddr:      l.sock.LocalAddr(),
		sock:           l.sock,
		keys:           keys,
		maxPayload:     maxPayload,
		receiveTimeout: l.cfg.ReceiveTimeout(),
		recvCh:         make(chan []byte, recvQueueDepth),
		listener:       l,
		log:            l.log,
	}
	c.touch()
	return c
}

// Dial runs the initiator side of the handshake against remoteAddr (spec.md
// §4.F steps 1,2,5,6,7).
func (l *Listener) Dial(ctx context.Context, remoteAddr string) (*Connection, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, errs.New(errs.KindNetwork, map[string]any{"addr": remoteAddr}, err)
	}

	connID, err := ids.NewConnectionID()
	if err != nil {
		return nil, errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "connection id generation"}, err)
	}
	kemPub, kemSK, err := crypto.GenerateKEMKeyPair()
	if err != nil {
		return nil, errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "kem keypair generation"}, err)
	}
	var nonceI [32]byte
	if err := randomNonce(nonceI[:]); err != nil {
		return nil, errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "nonce generation"}, err)
	}
	pkBytes, err := crypto.MarshalKEMPublicKey(kemPub)
	if err != nil {
		return nil, errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "marshal kem public key"}, err)
	}

	pd := &pendingDial{
		remoteAddr: udpAddr,
		kemPub:     kemPub,
		kemSK:      kemSK,
		nonce:      nonceI,
		startedAt:  clock.Now(),
		result:     make(chan dialOutcome, 1),
	}
	l.pendingMu.Lock()
	l.pending[connID] = pd
	l.pendingMu.Unlock()

	payload := HandshakePayload{
		Version:   protocolVersion,
		Timestamp: uint64(clock.Now().Unix()),
		Nonce:     nonceI,
		KEMBytes:  pkBytes,
	}
	header := FrameHeader{ConnectionID: connID, Type: MsgHS}
	hdr := header.Encode()
	frame := append(append([]byte(nil), hdr[:]...), payload.Encode()...)
	if _, err := l.sock.WriteToUDP(frame, udpAddr); err != nil {
		l.dropPending(connID)
		return nil, errs.New(errs.KindNetwork, map[string]any{"addr": remoteAddr}, err)
	}

	timer := time.NewTimer(l.cfg.HandshakeTimeout())
	defer timer.Stop()
	select {
	case out := <-pd.result:
		return out.conn, out.err
	case <-timer.C:
		l.dropPending(connID)
		return nil, errs.ErrHandshakeTimeout
	case <-ctx.Done():
		l.dropPending(connID)
		return nil, ctx.Err()
	case <-l.ctx.Done():
		l.dropPending(connID)
		return nil, errs.ErrConnectionClosed
	}
}

func (l *Listener) dropPending(connID uint64) {
	l.pendingMu.Lock()
	delete(l.pending, connID)
	l.pendingMu.Unlock()
}

func randomNonce(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// receiveLoop is the listener's single dispatch goroutine: it reads every
// datagram off the shared socket and routes it by message type exactly as
// spec.md §4.F's "Receive" section specifies, dropping and continuing on any
// recoverable per-packet error (malformed payload, unrecognized type, wrong
// source) rather than surfacing it to a caller. Only malformed or rejected
// handshakes are logged (at debug level); DATA frames that fail to
// authenticate are counted in authFailures; the rest are dropped silently.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	buf := make([]byte, 65535)
	for {
		n, addr, err := l.sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				l.log.Debug("receive error", "err", err)
				continue
			}
		}
		if n < HeaderSize {
			continue
		}
		frame := append([]byte(nil), buf[:n]...)
		l.dispatch(frame, addr)
	}
}

func (l *Listener) dispatch(frame []byte, addr *net.UDPAddr) {
	header, err := DecodeFrameHeader(frame)
	if err != nil {
		return
	}

	switch header.Type {
	case MsgHS:
		l.handleHS(header, frame[HeaderSize:], addr)
	case MsgHSResp:
		l.handleHSResp(header, frame[HeaderSize:], addr)
	case MsgData:
		l.handleData(header, frame[HeaderSize:], addr)
	case MsgKA:
		if c := l.lookupActive(addr); c != nil && c.id == header.ConnectionID {
			c.touch()
		}
	case MsgClose:
		if c := l.lookupActive(addr); c != nil && c.id == header.ConnectionID {
			c.closeFromPeer()
		}
	default:
		// Unknown message_type: drop.
	}
}

// handleHS is the responder side of steps 3-4,6-7: validate the incoming
// HS, generate our own ephemeral material, encapsulate against the
// initiator's public key, and reply with HS_RESP.
func (l *Listener) handleHS(header FrameHeader, body []byte, addr *net.UDPAddr) {
	// Handshakes from addresses already in the active table are ignored.
	if l.lookupActive(addr) != nil {
		return
	}

	payload, err := DecodeHandshakePayload(body)
	if err != nil {
		l.log.Debug("malformed HS payload", "addr", addr.String(), "err", err)
		return
	}
	if payload.Version != protocolVersion {
		l.log.Debug("HS version mismatch", "addr", addr.String(), "version", payload.Version)
		return
	}
	if !clock.WithinSkew(payload.Timestamp, clock.DefaultHandshakeSkew) {
		l.log.Debug("HS timestamp skew rejected", "addr", addr.String())
		return
	}

	initiatorPub, err := crypto.ParseKEMPublicKey(payload.KEMBytes)
	if err != nil {
		l.log.Debug("malformed HS kem public key", "addr", addr.String(), "err", err)
		return
	}

	var nonceR [32]byte
	for {
		if err := randomNonce(nonceR[:]); err != nil {
			l.log.Debug("nonce generation failed", "err", err)
			return
		}
		if nonceR != payload.Nonce {
			break
		}
	}

	// The responder encapsulates against the initiator's public key per
	// spec.md §9's normative correction; it needs no long-lived KEM keypair
	// of its own for this handshake, only the resulting shared secret.
	ct, ss, err := crypto.Encapsulate(initiatorPub)
	if err != nil {
		l.log.Debug("kem encapsulate failed", "err", err)
		return
	}

	// pk_responder in spec.md §4.F step 6's KDF input has no literal
	// counterpart once the handshake is corrected to a real KEM (the
	// responder never generates its own long-lived public key for this
	// exchange) — see DESIGN.md's Open Question resolution: the
	// encapsulated ciphertext stands in for it, since it's the responder's
	// actual per-handshake public contribution and both sides hold the
	// identical bytes.
	keys := deriveSessionKeys(ss, payload.Nonce, nonceR, payload.KEMBytes, ct)

	resp := HandshakePayload{
		Version:   protocolVersion,
		Timestamp: uint64(clock.Now().Unix()),
		Nonce:     nonceR,
		KEMBytes:  ct,
	}
	respHeader := FrameHeader{ConnectionID: header.ConnectionID, Type: MsgHSResp}
	hdr := respHeader.Encode()
	frame := append(append([]byte(nil), hdr[:]...), resp.Encode()...)
	if _, err := l.sock.WriteToUDP(frame, addr); err != nil {
		l.log.Debug("send HS_RESP failed", "addr", addr.String(), "err", err)
		return
	}

	conn := l.newConnection(header.ConnectionID, addr, keys)
	l.insertActive(conn)
	select {
	case l.acceptCh <- conn:
	default:
		l.log.Warn("accept queue full, dropping newly handshaken connection", "addr", addr.String())
		conn.closeFromPeer()
	}
}

// handleHSResp is the initiator side of steps 5-7.
func (l *Listener) handleHSResp(header FrameHeader, body []byte, addr *net.UDPAddr) {
	l.pendingMu.Lock()
	pd, ok := l.pending[header.ConnectionID]
	if ok {
		delete(l.pending, header.ConnectionID)
	}
	l.pendingMu.Unlock()
	if !ok || pd.remoteAddr.String() != addr.String() {
		return
	}

	payload, err := DecodeHandshakePayload(body)
	if err != nil {
		pd.result <- dialOutcome{err: errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "malformed HS_RESP"}, err)}
		return
	}
	if payload.Version != protocolVersion {
		pd.result <- dialOutcome{err: errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "version mismatch"}, nil)}
		return
	}

	ss, err := crypto.Decapsulate(pd.kemSK, payload.KEMBytes)
	if err != nil {
		pd.result <- dialOutcome{err: errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "kem decapsulate failed"}, err)}
		return
	}

	initiatorPubBytes, err := crypto.MarshalKEMPublicKey(pd.kemPub)
	if err != nil {
		pd.result <- dialOutcome{err: errs.New(errs.KindHandshakeFailure, map[string]any{"reason": "marshal own public key"}, err)}
		return
	}

	keys := deriveSessionKeys(ss, pd.nonce, payload.Nonce, initiatorPubBytes, payload.KEMBytes)

	conn := l.newConnection(header.ConnectionID, pd.remoteAddr, keys)
	l.insertActive(conn)
	pd.result <- dialOutcome{conn: conn}
}

// dataLookahead bounds how many counters ahead of the last-seen one a
// receiver will trial-decrypt against, to tolerate minor UDP reordering
// without an explicit nonce on the wire (spec.md §4.F's DATA payload size
// budget, 65535-9-16, has no room for one).
const dataLookahead = 8

func (l *Listener) handleData(header FrameHeader, ciphertext []byte, addr *net.UDPAddr) {
	conn := l.lookupActive(addr)
	if conn == nil || conn.id != header.ConnectionID {
		return
	}
	// aad is the first 9 bytes of the frame: header.Encode() reconstructs
	// exactly those bytes since it's the same FrameHeader value.
	hdr := header.Encode()

	for _, counter := range conn.candidateNonces(dataLookahead) {
		nonce := crypto.NonceFromCounter(counter)
		plaintext, err := crypto.Open(conn.keys.encKey, nonce, ciphertext, hdr[:])
		if err != nil {
			continue
		}
		if !conn.acceptNonce(counter) {
			return // valid ciphertext but a counter already consumed: replay, dropped silently
		}
		conn.touch()
		conn.deliver(plaintext)
		return
	}
	// No candidate counter decrypted successfully: AuthFailure, dropped
	// silently per spec.md §7 — only counted, never surfaced as an error.
	l.authFailures.Add(1)
}

// reapLoop periodically evicts idle active connections and expired pending
// handshakes (spec.md §4.F "Listener": pending entries expire on a 5s
// handshake timeout; §5: idle connections older than a configurable TTL,
// default 5 min, are evicted by a background reaper).
func (l *Listener) reapLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.reapIdleActive()
			l.reapExpiredPending()
		}
	}
}

func (l *Listener) reapIdleActive() {
	ttl := l.cfg.IdleEviction()
	if ttl <= 0 {
		ttl = config.DefaultIdleEvictionSecs * time.Second
	}
	var stale []*Connection
	l.activeMu.RLock()
	for _, c := range l.active {
		if c.IdleSince() > ttl {
			stale = append(stale, c)
		}
	}
	l.activeMu.RUnlock()
	for _, c := range stale {
		l.log.Debug("evicting idle connection", "connection_id", c.id, "addr", c.remoteAddr.String())
		c.closeFromPeer()
	}
}

func (l *Listener) reapExpiredPending() {
	timeout := l.cfg.HandshakeTimeout()
	now := clock.Now()
	l.pendingMu.Lock()
	for id, pd := range l.pending {
		if now.Sub(pd.startedAt) > timeout {
			delete(l.pending, id)
			select {
			case pd.result <- dialOutcome{err: errs.ErrHandshakeTimeout}:
			default:
			}
		}
	}
	l.pendingMu.Unlock()
}
