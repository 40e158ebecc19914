package crypto

import (
	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/slhdsa"
)

// sigScheme is the post-quantum signature scheme used for long-lived
// identity signatures (spec.md §4.A: "SPHINCS+-like signatures"). SLH-DSA
// (FIPS 205) is the standardized successor to SPHINCS+ and is what circl
// ships its stateless hash-based scheme under; ParamIDSHAKE128s selects the
// SHAKE-based, 128-bit-security, small-signature parameter set, keeping
// this scheme hash-based and consistent with the rest of this package's
// BLAKE3/SHAKE256 core.
var sigScheme sign.Scheme = slhdsa.ParamIDSHAKE128s.Scheme()

// SigPublicKey and SigPrivateKey wrap circl's opaque key types.
type SigPublicKey struct{ inner sign.PublicKey }
type SigPrivateKey struct{ inner sign.PrivateKey }

// SigSize is the fixed signature size for the configured parameter set.
var SigSize = sigScheme.SignatureSize()

// GenerateSigKeyPair is sig_keypair() from spec.md §4.A.
func GenerateSigKeyPair() (SigPublicKey, SigPrivateKey, error) {
	pk, sk, err := sigScheme.GenerateKey()
	if err != nil {
		return SigPublicKey{}, SigPrivateKey{}, err
	}
	return SigPublicKey{pk}, SigPrivateKey{sk}, nil
}

// Sign is sig_sign(sk, msg) -> sig from spec.md §4.A.
func Sign(sk SigPrivateKey, msg []byte) []byte {
	return sigScheme.Sign(sk.inner, msg, nil)
}

// VerifySig is sig_verify(pk, msg, sig) -> bool from spec.md §4.A.
func VerifySig(pk SigPublicKey, msg, sig []byte) bool {
	return sigScheme.Verify(pk.inner, msg, sig, nil)
}

// MarshalSigPublicKey serializes a signature public key.
func MarshalSigPublicKey(pk SigPublicKey) ([]byte, error) {
	return pk.inner.MarshalBinary()
}

// ParseSigPublicKey deserializes a signature public key.
func ParseSigPublicKey(buf []byte) (SigPublicKey, error) {
	pk, err := sigScheme.UnmarshalBinaryPublicKey(buf)
	if err != nil {
		return SigPublicKey{}, err
	}
	return SigPublicKey{pk}, nil
}
