package dkim

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"testing"
)

type stubTXTLookuper struct {
	records map[string][]string
}

func (s *stubTXTLookuper) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if txt, ok := s.records[name]; ok {
		return txt, nil
	}
	return nil, newError(KindKeyUnavailable, "no such domain: "+name)
}

func testRSAKeyRecordValue(t *testing.T) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&testPrivateKey.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal test public key: %v", err)
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(der)
}

func TestParseKeyRecord_rsa(t *testing.T) {
	rec, err := ParseKeyRecord(testRSAKeyRecordValue(t))
	if err != nil {
		t.Fatalf("ParseKeyRecord returned error: %v", err)
	}
	if rec.Key.Algo != KeyRSA {
		t.Errorf("Algo = %v, want rsa", rec.Key.Algo)
	}
	if !rec.AllowsService() {
		t.Error("expected default s= to allow the email service")
	}
	if !rec.AllowsHash(HashSHA256) {
		t.Error("expected absent h= to allow sha256")
	}
}

func TestParseKeyRecord_revoked(t *testing.T) {
	rec, err := ParseKeyRecord("v=DKIM1; p=")
	if err == nil {
		t.Fatal("expected an error for a revoked key record")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindKeyRevoked {
		t.Errorf("got %v, want KindKeyRevoked", err)
	}
	if !rec.Revoked {
		t.Error("expected Revoked to be true")
	}
}

func TestParseKeyRecord_restrictedService(t *testing.T) {
	rec, err := ParseKeyRecord(testRSAKeyRecordValue(t) + "; s=foo")
	if err != nil {
		t.Fatalf("ParseKeyRecord returned error: %v", err)
	}
	if rec.AllowsService() {
		t.Error("expected s=foo to not allow the email service")
	}
}

func TestParseKeyRecord_restrictedHash(t *testing.T) {
	rec, err := ParseKeyRecord(testRSAKeyRecordValue(t) + "; h=sha1")
	if err != nil {
		t.Fatalf("ParseKeyRecord returned error: %v", err)
	}
	if rec.AllowsHash(HashSHA256) {
		t.Error("expected h=sha1 to not allow sha256")
	}
	if !rec.AllowsHash(HashSHA1) {
		t.Error("expected h=sha1 to allow sha1")
	}
}

func TestPublicKeyResolver_Resolve(t *testing.T) {
	lookuper := &stubTXTLookuper{records: map[string][]string{
		"brisbane._domainkey.example.org": {testRSAKeyRecordValue(t)},
	}}
	r := &PublicKeyResolver{Lookuper: lookuper}

	rec, err := r.Resolve(context.Background(), "example.org", "brisbane")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rec.Key.Algo != KeyRSA {
		t.Errorf("Algo = %v, want rsa", rec.Key.Algo)
	}

	if _, err := r.Resolve(context.Background(), "nowhere.example", "brisbane"); err == nil {
		t.Error("expected an error resolving a missing key record")
	}
}
