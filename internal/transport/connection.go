package transport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dsm-network/dsm/internal/clock"
	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/errs"
)

// recvQueueDepth bounds how many undelivered DATA payloads a Connection
// buffers before newer ones are dropped, so one slow consumer can't stall
// the listener's single dispatch loop for every other connection.
const recvQueueDepth = 64

// Connection is a SecureUdpConnection (spec.md §4.F): one logical,
// post-quantum-authenticated stream between two UDP endpoints, sharing the
// underlying socket and active-connection table with its Listener exactly
// as spec.md §9's Ownership note describes.
type Connection struct {
	id         uint64
	remoteAddr *net.UDPAddr
	localAddr  net.Addr
	sock       *net.UDPConn
	keys       sessionKeys

	sendNonce atomic.Uint64
	recvWin   replayWindow

	lastActivity atomic.Int64 // UnixNano, written via clock.Now()

	maxPayload      int
	receiveTimeout  time.Duration

	recvCh chan []byte

	closed    atomic.Bool
	closeOnce sync.Once

	listener *Listener // for removal from the active table on Close
	log      *slog.Logger
}

// ID is this connection's connection_id.
func (c *Connection) ID() uint64 { return c.id }

// RemoteAddr is the peer's UDP address.
func (c *Connection) RemoteAddr() *net.UDPAddr { return c.remoteAddr }

func (c *Connection) touch() {
	c.lastActivity.Store(clock.Now().UnixNano())
}

// IdleSince reports how long it has been since this connection last saw
// traffic in either direction.
func (c *Connection) IdleSince() time.Duration {
	last := time.Unix(0, c.lastActivity.Load())
	return clock.Now().Sub(last)
}

// Send encrypts and transmits a DATA frame (spec.md §4.F "Send (DATA)").
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return errs.ErrConnectionClosed
	}
	if len(data) > c.maxPayload {
		return errs.New(errs.KindMessageTooLarge, map[string]any{
			"size": len(data), "limit": c.maxPayload,
		}, nil)
	}

	n := c.sendNonce.Add(1) - 1
	header := FrameHeader{ConnectionID: c.id, Type: MsgData}
	hdr := header.Encode()
	nonce := crypto.NonceFromCounter(n)

	ct, err := crypto.Seal(c.keys.encKey, nonce, data, hdr[:])
	if err != nil {
		return errs.New(errs.KindSerialization, map[string]any{"what": "seal failed"}, err)
	}

	frame := make([]byte, 0, HeaderSize+len(ct))
	frame = append(frame, hdr[:]...)
	frame = append(frame, ct...)

	if _, err := c.sock.WriteToUDP(frame, c.remoteAddr); err != nil {
		return errs.New(errs.KindNetwork, map[string]any{"addr": c.remoteAddr.String()}, err)
	}
	c.touch()
	return nil
}

// sendControl transmits an empty-payload control frame (KA or CLOSE).
func (c *Connection) sendControl(t MessageType) error {
	header := FrameHeader{ConnectionID: c.id, Type: t}
	hdr := header.Encode()
	if _, err := c.sock.WriteToUDP(hdr[:], c.remoteAddr); err != nil {
		return errs.New(errs.KindNetwork, map[string]any{"addr": c.remoteAddr.String()}, err)
	}
	return nil
}

// Keepalive sends a KA frame and updates last_activity.
func (c *Connection) Keepalive() error {
	if c.closed.Load() {
		return errs.ErrConnectionClosed
	}
	if err := c.sendControl(MsgKA); err != nil {
		return err
	}
	c.touch()
	return nil
}

// Receive blocks until a decrypted DATA payload is available, ctx is
// cancelled, the default receive timeout elapses, or the connection is
// closed (spec.md §4.F "Receive").
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(c.receiveTimeout)
	defer timer.Stop()
	select {
	case data, ok := <-c.recvCh:
		if !ok {
			return nil, errs.ErrConnectionClosed
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, errs.ErrReceiveTimeout
	}
}

// deliver hands a decrypted DATA payload to a waiting/future Receive call.
// Dropped (with a log line) if the connection's queue is already full,
// rather than blocking the listener's single dispatch loop.
func (c *Connection) deliver(payload []byte) {
	select {
	case c.recvCh <- payload:
	default:
		c.log.Warn("dropping payload, receive queue full", "connection_id", c.id)
	}
}

// candidateNonces returns the counters worth trial-decrypting an inbound
// DATA payload against, and acceptNonce records one as consumed once
// decryption under it has succeeded (spec.md §4.F "Receive": "sliding
// bitmap of size ≥ 64").
func (c *Connection) candidateNonces(lookahead int) []uint64 {
	return c.recvWin.candidates(lookahead)
}

func (c *Connection) acceptNonce(n uint64) bool {
	return c.recvWin.accept(n)
}

// Close idempotently tears down the connection: best-effort CLOSE frame,
// removal from the listener's active table, and release of the receive
// queue (spec.md §4.F "Close: ... idempotent").
func (c *Connection) Close() error {
	var sendErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		sendErr = c.sendControl(MsgClose)
		if c.listener != nil {
			c.listener.removeActive(c)
		}
		close(c.recvCh)
	})
	return sendErr
}

// closeFromPeer is invoked by the listener's dispatch loop on receipt of a
// CLOSE frame: it tears down local state without sending one back.
func (c *Connection) closeFromPeer() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.listener != nil {
			c.listener.removeActive(c)
		}
		close(c.recvCh)
	})
}
