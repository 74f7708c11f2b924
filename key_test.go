package dkim

import (
	"crypto/sha256"
	"crypto/x509"
	"testing"

	"golang.org/x/crypto/ed25519"
)

func TestPrivateKey_SignVerify_RSA(t *testing.T) {
	priv := &PrivateKey{Algo: KeyRSA, RSA: testPrivateKey}
	pub := &PublicKey{Algo: KeyRSA, RSA: &testPrivateKey.PublicKey}

	sum := sha256.Sum256([]byte("hello dkim"))
	sig, err := priv.Sign(HashSHA256, sum[:])
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if err := pub.Verify(HashSHA256, sum[:], sig); err != nil {
		t.Errorf("Verify returned error: %v", err)
	}

	sum2 := sha256.Sum256([]byte("tampered"))
	if err := pub.Verify(HashSHA256, sum2[:], sig); err == nil {
		t.Error("expected Verify to fail against a different digest")
	}
}

func TestPrivateKey_SignVerify_Ed25519(t *testing.T) {
	priv := &PrivateKey{Algo: KeyEd25519, Ed25519: testEd25519PrivateKey}
	pub := &PublicKey{Algo: KeyEd25519, Ed25519: testEd25519PrivateKey.Public().(ed25519.PublicKey)}

	sum := sha256.Sum256([]byte("hello dkim"))
	sig, err := priv.Sign(HashSHA256, sum[:])
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if err := pub.Verify(HashSHA256, sum[:], sig); err != nil {
		t.Errorf("Verify returned error: %v", err)
	}

	sum2 := sha256.Sum256([]byte("tampered"))
	if err := pub.Verify(HashSHA256, sum2[:], sig); err == nil {
		t.Error("expected Verify to fail against a different digest")
	}
}

func TestParsePublicKeyBytes_rsa1024Accepted(t *testing.T) {
	// A 512-bit modulus encoded as a minimal, syntactically valid
	// SubjectPublicKeyInfo would require generating a throwaway key; instead
	// exercise the size check directly against the test key's larger
	// modulus to confirm it is accepted.
	der, err := x509.MarshalPKIXPublicKey(&testPrivateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal test public key: %v", err)
	}
	if _, err := ParsePublicKeyBytes(KeyRSA, der); err != nil {
		t.Errorf("ParsePublicKeyBytes rejected a valid 1024-bit key: %v", err)
	}
}
