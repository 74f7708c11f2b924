package dkim

import (
	"strconv"
	"time"
)

// HeaderBuilder accumulates the tags of a DKIM-Signature header under
// construction, then folds them into wire form with Build. It mirrors the
// staged, move-style accumulation of the DKIMSignature/DKIMTag machinery in
// dkim.go, adding the tag ordering and defaults a Signer needs: a signer
// calls Build twice, once with an empty b= to compute the header hash, and
// again with the real signature bytes once they're known.
type HeaderBuilder struct {
	keyAlgo     KeyAlgo
	hashAlgo    HashAlgo
	domain      string
	selector    string
	headerCanon Canonicalization
	bodyCanon   Canonicalization
	headers     []string
	identity    string
	bodyLength  *int64
	queryMethod string
	timestamp   *int64
	expiration  *int64
	bodyHashB64 string
}

// NewHeaderBuilder starts a HeaderBuilder for a signature signed under
// domain/selector with the given key and hash algorithms. Canonicalization
// defaults to relaxed/relaxed (override it with WithCanonicalization). The
// query method is always dns/txt; no setter changes it, so Build never
// emits q=.
func NewHeaderBuilder(domain, selector string, ka KeyAlgo, ha HashAlgo) *HeaderBuilder {
	return &HeaderBuilder{
		keyAlgo:     ka,
		hashAlgo:    ha,
		domain:      domain,
		selector:    selector,
		headerCanon: CanonRelaxed,
		bodyCanon:   CanonRelaxed,
		queryMethod: "dns/txt",
	}
}

// WithCanonicalization sets the header/body canonicalization pair.
func (b *HeaderBuilder) WithCanonicalization(header, body Canonicalization) *HeaderBuilder {
	b.headerCanon = header
	b.bodyCanon = body
	return b
}

// WithSignedHeaders sets the h= list, in the order they'll be hashed.
func (b *HeaderBuilder) WithSignedHeaders(headers []string) *HeaderBuilder {
	b.headers = headers
	return b
}

// WithIdentity sets the i= tag. If never called, Build omits i= and a
// verifier treats the identity as "@"+domain.
func (b *HeaderBuilder) WithIdentity(identity string) *HeaderBuilder {
	b.identity = identity
	return b
}

// WithBodyLength sets the l= tag, truncating the signed body to n bytes.
func (b *HeaderBuilder) WithBodyLength(n int64) *HeaderBuilder {
	b.bodyLength = &n
	return b
}

// WithTime sets t= from t, truncated to whole seconds.
func (b *HeaderBuilder) WithTime(t time.Time) *HeaderBuilder {
	sec := t.Unix()
	b.timestamp = &sec
	return b
}

// WithExpiry sets x= from t, truncated to whole seconds.
func (b *HeaderBuilder) WithExpiry(t time.Time) *HeaderBuilder {
	sec := t.Unix()
	b.expiration = &sec
	return b
}

// WithBodyHash sets bh= to the base64-encoded body hash. Build panics if
// called before this, since a DKIM-Signature without bh= is meaningless.
func (b *HeaderBuilder) WithBodyHash(bh string) *HeaderBuilder {
	b.bodyHashB64 = bh
	return b
}

// Build folds the accumulated tags into a complete "DKIM-Signature: ..."
// field, terminated by CRLF, with b= set to signatureB64 (pass "" to get
// the to-be-signed form per RFC 6376 section 3.7). The field is returned
// as written; HeaderHash canonicalizes it.
func (b *HeaderBuilder) Build(signatureB64 string) string {
	if b.bodyHashB64 == "" {
		panic("dkim: HeaderBuilder.Build called before WithBodyHash")
	}

	sig := NewDKIMSignature()
	sig.AddPlainTag("v", "1")
	sig.AddPlainTag("a", string(b.keyAlgo)+"-"+string(b.hashAlgo))
	sig.AddPlainTag("d", b.domain)
	sig.AddPlainTag("s", b.selector)
	sig.AddPlainTag("c", string(b.headerCanon)+"/"+string(b.bodyCanon))
	sig.AddBase64Tag("bh", b.bodyHashB64)
	sig.AddDelimTag("h", b.headers, ":")
	if b.timestamp != nil {
		sig.AddPlainTag("t", strconv.FormatInt(*b.timestamp, 10))
	}
	if b.expiration != nil {
		sig.AddPlainTag("x", strconv.FormatInt(*b.expiration, 10))
	}
	if b.identity != "" {
		sig.AddPlainTag("i", b.identity)
	}
	if b.bodyLength != nil {
		sig.AddPlainTag("l", strconv.FormatInt(*b.bodyLength, 10))
	}
	if b.queryMethod != "" && b.queryMethod != "dns/txt" {
		sig.AddPlainTag("q", b.queryMethod)
	}
	sig.AddBase64Tag("b", signatureB64)

	return sig.Buf.String() + crlf
}
