package dkim

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/ed25519"
)

func testEd25519Resolver(t *testing.T) KeyResolver {
	t.Helper()
	pub := testEd25519PrivateKey.Public().(ed25519.PublicKey)
	record := "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub)
	return &PublicKeyResolver{Lookuper: &stubTXTLookuper{records: map[string][]string{
		"brisbane._domainkey.football.example.com": {record},
	}}}
}

func TestSignAndVerify_ed25519(t *testing.T) {
	opts := &SignOptions{
		Domain:     "football.example.com",
		Selector:   "brisbane",
		PrivateKey: &PrivateKey{Algo: KeyEd25519, Ed25519: testEd25519PrivateKey},
		HeaderKeys: []string{"From", "To", "Subject", "Date", "Message-ID"},
	}

	res := signAndVerify(t, opts, testEd25519Resolver(t))
	if !res.Pass() {
		t.Errorf("expected a passing ed25519 signature, got: %+v (err: %v)", res, res.Err)
	}
}

func TestSignAndVerify_ed25519_viaCryptoSigner(t *testing.T) {
	opts := &SignOptions{
		Domain:     "football.example.com",
		Selector:   "brisbane",
		Signer:     testEd25519PrivateKey,
		KeyAlgo:    KeyEd25519,
		HeaderKeys: []string{"From", "To", "Subject", "Date", "Message-ID"},
	}

	res := signAndVerify(t, opts, testEd25519Resolver(t))
	if !res.Pass() {
		t.Errorf("expected a passing ed25519 signature via crypto.Signer, got: %+v (err: %v)", res, res.Err)
	}
}

func TestSign_ed25519RejectsSHA1(t *testing.T) {
	opts := &SignOptions{
		Domain:     "football.example.com",
		Selector:   "brisbane",
		PrivateKey: &PrivateKey{Algo: KeyEd25519, Ed25519: testEd25519PrivateKey},
		HeaderKeys: []string{"From"},
		HashAlgo:   HashSHA1,
	}
	var b bytes.Buffer
	if err := Sign(&b, strings.NewReader(mailString), opts); err == nil {
		t.Error("expected an error when signing ed25519 with sha1")
	}
}
