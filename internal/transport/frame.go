// Package transport implements spec.md §4.F: the Secure UDP Transport —
// a post-quantum-authenticated datagram channel with a KEM handshake,
// SHAKE256 session-key derivation, ChaCha20-Poly1305 framing, and
// per-connection lifecycle management.
//
// One type owns the raw socket and an RWMutex-guarded connection table;
// session keys are derived once per handshake rather than per record, the
// way a Noise-style transport cipher is keyed.
package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/dsm-network/dsm/internal/errs"
)

// MessageType is the single-byte frame discriminant (spec.md §4.F).
type MessageType uint8

const (
	MsgHS     MessageType = 0
	MsgHSResp MessageType = 1
	MsgData   MessageType = 2
	MsgKA     MessageType = 3
	MsgClose  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MsgHS:
		return "HS"
	case MsgHSResp:
		return "HS_RESP"
	case MsgData:
		return "DATA"
	case MsgKA:
		return "KA"
	case MsgClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// HeaderSize is the 9-byte frame header: connection_id (u64 BE) +
// message_type (u8).
const HeaderSize = 9

// FrameHeader is the fixed-layout prefix of every datagram this transport
// sends or receives.
type FrameHeader struct {
	ConnectionID uint64
	Type         MessageType
}

// Encode writes the header in its on-wire form (big-endian, per spec.md
// §6: "all multi-byte integers big-endian in the frame header").
func (h FrameHeader) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint64(buf[0:8], h.ConnectionID)
	buf[8] = byte(h.Type)
	return buf
}

// DecodeFrameHeader parses the first HeaderSize bytes of buf.
func DecodeFrameHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < HeaderSize {
		return FrameHeader{}, errs.New(errs.KindSerialization, map[string]any{
			"what": "frame shorter than header", "len": len(buf),
		}, nil)
	}
	return FrameHeader{
		ConnectionID: binary.BigEndian.Uint64(buf[0:8]),
		Type:         MessageType(buf[8]),
	}, nil
}

// HandshakePayload is the HS/HS_RESP payload shape (spec.md §4.F):
// { version: u32, timestamp: u64, nonce32: [32], kem_public_key: bytes }.
// It is encoded in the same fixed-width-little-endian, length-prefixed
// style as internal/dsmstate's canonical encoding, kept local to this
// package since it has no other consumer.
//
// KEMBytes carries different contents depending on direction, per spec.md
// §9's normative correction of the source's conflated
// derive_shared_secret: on HS it's the initiator's KEM public key; on
// HS_RESP it's the KEM ciphertext the responder encapsulated against that
// public key. Both are opaque byte strings at the framing layer, so one
// field and one wire shape serve both messages.
type HandshakePayload struct {
	Version   uint32
	Timestamp uint64
	Nonce     [32]byte
	KEMBytes  []byte
}

// Encode serializes a HandshakePayload.
func (p HandshakePayload) Encode() []byte {
	buf := make([]byte, 0, 4+8+32+4+len(p.KEMBytes))
	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], p.Version)
	buf = append(buf, v[:]...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], p.Timestamp)
	buf = append(buf, ts[:]...)
	buf = append(buf, p.Nonce[:]...)
	var kl [4]byte
	binary.LittleEndian.PutUint32(kl[:], uint32(len(p.KEMBytes)))
	buf = append(buf, kl[:]...)
	buf = append(buf, p.KEMBytes...)
	return buf
}

// DecodeHandshakePayload parses the form written by Encode.
func DecodeHandshakePayload(buf []byte) (HandshakePayload, error) {
	if len(buf) < 4+8+32+4 {
		return HandshakePayload{}, errs.New(errs.KindSerialization, map[string]any{
			"what": "handshake payload too short",
		}, nil)
	}
	var p HandshakePayload
	p.Version = binary.LittleEndian.Uint32(buf[0:4])
	p.Timestamp = binary.LittleEndian.Uint64(buf[4:12])
	copy(p.Nonce[:], buf[12:44])
	klen := binary.LittleEndian.Uint32(buf[44:48])
	end := 48 + int(klen)
	if end > len(buf) {
		return HandshakePayload{}, errs.New(errs.KindSerialization, map[string]any{
			"what": "handshake payload kem key truncated",
		}, nil)
	}
	p.KEMBytes = append([]byte(nil), buf[48:end]...)
	return p, nil
}
