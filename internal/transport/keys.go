package transport

import "github.com/dsm-network/dsm/internal/crypto"

// sessionKeys holds the pair derived at the end of a handshake (spec.md
// §4.F step 6).
type sessionKeys struct {
	encKey [crypto.Size]byte
	macKey [crypto.Size]byte
}

// deriveSessionKeys computes
//
//	okm = SHAKE256(ss || nonce_initiator || nonce_responder || pk_initiator || pk_responder, 64)
//	enc_key = okm[0:32]; mac_key = okm[32:64]
//
// Both endpoints call this with arguments in initiator-first order
// regardless of local role (spec.md §4.F step 6's explicit requirement),
// which is why the parameters are named by role rather than "local"/"remote".
func deriveSessionKeys(ss [crypto.Size]byte, nonceInitiator, nonceResponder [32]byte, pkInitiator, pkResponder []byte) sessionKeys {
	okm := make([]byte, 64)
	crypto.XOF(okm, ss[:], nonceInitiator[:], nonceResponder[:], pkInitiator, pkResponder)
	var keys sessionKeys
	copy(keys.encKey[:], okm[0:32])
	copy(keys.macKey[:], okm[32:64])
	return keys
}
