package dkim

import (
	"strconv"
	"strings"
)

// HashAlgo identifies the digest algorithm named by a signature's a= tag.
type HashAlgo string

const (
	HashSHA1   HashAlgo = "sha1"
	HashSHA256 HashAlgo = "sha256"
)

// KeyAlgo identifies the public-key algorithm named by a signature's a= tag.
type KeyAlgo string

const (
	KeyRSA     KeyAlgo = "rsa"
	KeyEd25519 KeyAlgo = "ed25519"
)

// Canonicalization selects how a header or the body is canonicalized before
// hashing, per RFC 6376 section 3.4.
type Canonicalization string

const (
	CanonSimple  Canonicalization = "simple"
	CanonRelaxed Canonicalization = "relaxed"
)

// DKIMHeader is the parsed tag-list model of one DKIM-Signature header
// field, as laid out by RFC 6376 section 3.5. It is produced by
// ParseDKIMHeader and consumed by Verifier; HeaderBuilder produces the wire
// form from the signer's side instead of this type, since a signature
// under construction doesn't have a body hash or signature bytes yet.
type DKIMHeader struct {
	Version       string
	KeyAlgo       KeyAlgo
	HashAlgo      HashAlgo
	HeaderCanon   Canonicalization
	BodyCanon     Canonicalization
	Domain        string
	SignedHeaders []string
	BodyHashB64   string
	Selector      string
	SignatureB64  string
	Identity      string // i= tag, defaults to "@"+Domain if absent
	BodyLength    *int64 // l= tag, nil if absent
	QueryMethods  []string
	Timestamp     *int64 // t=
	Expiration    *int64 // x=
	CopiedHeaders string // z=, left undecoded
}

// ParseDKIMHeader parses the value of one DKIM-Signature header field
// (everything after the field name and colon) into a DKIMHeader, validating
// its syntax per RFC 6376 section 3.5 but not yet evaluating it against a
// message, a time, or a key (that's Verifier's job).
func ParseDKIMHeader(raw string) (*DKIMHeader, error) {
	tags, err := ParseTagList(raw)
	if err != nil {
		return nil, err
	}
	m := tagMap(tags)

	h := &DKIMHeader{}

	h.Version = m["v"]
	if h.Version == "" {
		return nil, missingTagError("v")
	}
	if h.Version != "1" {
		return nil, newError(KindIncompatibleVersion, "v="+h.Version)
	}

	a, ok := m["a"]
	if !ok {
		return nil, missingTagError("a")
	}
	ka, ha, err := parseSigAlgo(a)
	if err != nil {
		return nil, err
	}
	h.KeyAlgo, h.HashAlgo = ka, ha

	c := m["c"]
	if c == "" {
		c = "simple/simple"
	}
	hc, bc, err := parseCanonicalization(c)
	if err != nil {
		return nil, err
	}
	h.HeaderCanon, h.BodyCanon = hc, bc

	h.Domain, ok = m["d"]
	if !ok || h.Domain == "" {
		return nil, missingTagError("d")
	}

	hh, ok := m["h"]
	if !ok || hh == "" {
		return nil, missingTagError("h")
	}
	h.SignedHeaders = splitColonList(hh)
	if !containsFold(h.SignedHeaders, "from") {
		return nil, newError(KindFromFieldNotSigned, "")
	}

	h.BodyHashB64, ok = m["bh"]
	if !ok || h.BodyHashB64 == "" {
		return nil, missingTagError("bh")
	}

	h.SignatureB64, ok = m["b"]
	if !ok {
		return nil, missingTagError("b")
	}

	h.Selector, ok = m["s"]
	if !ok || h.Selector == "" {
		return nil, missingTagError("s")
	}

	if i, ok := m["i"]; ok {
		h.Identity = i
	} else {
		h.Identity = "@" + h.Domain
	}
	if err := h.checkIdentityDomain(); err != nil {
		return nil, err
	}

	if l, ok := m["l"]; ok {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 0 {
			return nil, newError(KindSignatureSyntaxError, "malformed l=")
		}
		h.BodyLength = &n
	}

	if q, ok := m["q"]; ok {
		h.QueryMethods = splitColonList(q)
	} else {
		h.QueryMethods = []string{"dns/txt"}
	}

	if t, ok := m["t"]; ok {
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, newError(KindSignatureSyntaxError, "malformed t=")
		}
		h.Timestamp = &n
	}

	if x, ok := m["x"]; ok {
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, newError(KindSignatureSyntaxError, "malformed x=")
		}
		h.Expiration = &n
	}

	if h.Timestamp != nil && h.Expiration != nil && *h.Expiration < *h.Timestamp {
		return nil, newError(KindSignatureSyntaxError, "x= precedes t=")
	}

	h.CopiedHeaders = m["z"]

	return h, nil
}

func (h *DKIMHeader) checkIdentityDomain() error {
	at := strings.LastIndexByte(h.Identity, '@')
	if at < 0 {
		return newError(KindSignatureSyntaxError, "malformed i=: missing '@'")
	}
	idomain := h.Identity[at+1:]
	if idomain == h.Domain {
		return nil
	}
	if strings.HasSuffix(idomain, "."+h.Domain) {
		return nil
	}
	return newError(KindDomainMismatch, "i= domain "+idomain+" is not "+h.Domain+" or a subdomain")
}

func parseSigAlgo(a string) (KeyAlgo, HashAlgo, error) {
	parts := strings.SplitN(a, "-", 2)
	if len(parts) != 2 {
		return "", "", newError(KindUnsupportedHashAlgorithm, "malformed a="+a)
	}
	var ka KeyAlgo
	switch parts[0] {
	case string(KeyRSA):
		ka = KeyRSA
	case string(KeyEd25519):
		ka = KeyEd25519
	default:
		return "", "", newError(KindUnsupportedHashAlgorithm, "unknown key algorithm: "+parts[0])
	}
	var ha HashAlgo
	switch parts[1] {
	case string(HashSHA1):
		ha = HashSHA1
	case string(HashSHA256):
		ha = HashSHA256
	default:
		return "", "", newError(KindUnsupportedHashAlgorithm, "unknown hash algorithm: "+parts[1])
	}
	if ka == KeyEd25519 && ha != HashSHA256 {
		return "", "", newError(KindUnsupportedHashAlgorithm, "ed25519 requires sha256")
	}
	return ka, ha, nil
}

func parseCanonicalization(c string) (Canonicalization, Canonicalization, error) {
	parts := strings.SplitN(c, "/", 2)
	headerC := parts[0]
	bodyC := "simple"
	if len(parts) == 2 {
		bodyC = parts[1]
	}
	hc, err := toCanon(headerC)
	if err != nil {
		return "", "", err
	}
	bc, err := toCanon(bodyC)
	if err != nil {
		return "", "", err
	}
	return hc, bc, nil
}

func toCanon(s string) (Canonicalization, error) {
	switch s {
	case string(CanonSimple):
		return CanonSimple, nil
	case string(CanonRelaxed):
		return CanonRelaxed, nil
	default:
		return "", newError(KindSignatureSyntaxError, "unknown canonicalization: "+s)
	}
}
