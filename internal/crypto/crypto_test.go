package crypto

import "testing"

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	if a != b {
		t.Fatalf("Hash not deterministic: %x != %x", a, b)
	}
}

func TestHashConcatMatchesManualConcat(t *testing.T) {
	got := HashConcat([]byte("foo"), []byte("bar"))
	want := Hash([]byte("foobar"))
	if got != want {
		t.Fatalf("HashConcat mismatch: %x != %x", got, want)
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	nonce := NonceFromCounter(7)
	aad := []byte("aad")
	plaintext := []byte("hello")

	ct, err := Seal(key, nonce, plaintext, aad)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Open(key, nonce, ct, aad)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != string(plaintext) {
		t.Fatalf("roundtrip mismatch: %q != %q", pt, plaintext)
	}
}

func TestOpenDetectsTamper(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(key *[KeySize]byte, nonce *[NonceSize]byte, ct, aad []byte) []byte
	}{
		{"flip ciphertext bit", func(_ *[KeySize]byte, _ *[NonceSize]byte, ct, _ []byte) []byte {
			out := append([]byte{}, ct...)
			out[0] ^= 1
			return out
		}},
	}
	var key [KeySize]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	nonce := NonceFromCounter(1)
	aad := []byte("aad")
	ct, err := Seal(key, nonce, []byte("payload"), aad)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tampered := tc.mutate(&key, &nonce, ct, aad)
			if _, err := Open(key, nonce, tampered, aad); err != ErrAuthFailure {
				t.Fatalf("expected ErrAuthFailure, got %v", err)
			}
		})
	}

	t.Run("wrong aad", func(t *testing.T) {
		if _, err := Open(key, nonce, ct, []byte("different")); err != ErrAuthFailure {
			t.Fatalf("expected ErrAuthFailure, got %v", err)
		}
	})

	t.Run("wrong nonce", func(t *testing.T) {
		other := NonceFromCounter(2)
		if _, err := Open(key, other, ct, aad); err != ErrAuthFailure {
			t.Fatalf("expected ErrAuthFailure, got %v", err)
		}
	})
}

func TestKEMRoundTrip(t *testing.T) {
	pk, sk, err := GenerateKEMKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	ct, ssSend, err := Encapsulate(pk)
	if err != nil {
		t.Fatal(err)
	}
	ssRecv, err := Decapsulate(sk, ct)
	if err != nil {
		t.Fatal(err)
	}
	if ssSend != ssRecv {
		t.Fatalf("shared secret mismatch")
	}
}

func TestKEMPublicKeyMarshalRoundTrip(t *testing.T) {
	pk, _, err := GenerateKEMKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	buf, err := MarshalKEMPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	pk2, err := ParseKEMPublicKey(buf)
	if err != nil {
		t.Fatal(err)
	}
	ct, ss1, err := Encapsulate(pk2)
	if err != nil {
		t.Fatal(err)
	}
	_ = ct
	_ = ss1
}

func TestSigRoundTrip(t *testing.T) {
	pk, sk, err := GenerateSigKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("a state transition")
	sig := Sign(sk, msg)
	if !VerifySig(pk, msg, sig) {
		t.Fatal("valid signature failed to verify")
	}
	if VerifySig(pk, []byte("different message"), sig) {
		t.Fatal("signature verified against wrong message")
	}
}
