package dkim

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"io"
	"strings"
	"time"
)

// signatureDrift is the grace period RFC 6376 section 3.5's x= tag is given
// against the verifier's clock: a signature whose expiration has already
// passed still verifies as long as it passed no more than this long ago,
// absorbing ordinary clock skew and mail transit delay between signer and
// verifier.
const signatureDrift = 15 * time.Minute

// Result reports the outcome of verifying a message's DKIM-Signature
// headers against one caller-supplied from-domain, per RFC 6376 section 6
// and the "dkim" authres result codes of RFC 8601. It is a three-way
// outcome, not a report per signature: Verify walks every DKIM-Signature
// header looking for one whose d= matches the requested domain and fully
// verifies, and returns a single Result describing that search.
//
//   - Pass: HeaderCanon/BodyCanon are set and Err is nil. A signature from
//     Domain verified.
//   - Fail: Err is non-nil. At least one signature was found whose d=
//     matched (or that failed to parse or had expired, which is checked
//     before d= is compared) and none of them verified.
//   - Neutral: Err is nil and HeaderCanon is empty. No signature's d=
//     matched Domain. A message with no DKIM-Signature at all gets no
//     Result: Verify returns nil for it.
type Result struct {
	// Domain is the from-domain Verify was asked to check. On Fail, it is
	// carried through from the caller's request rather than read back off
	// the failing signature, since a malformed signature may never have
	// gotten far enough to expose a trustworthy d=.
	Domain string
	// HeaderCanon and BodyCanon are the c= canonicalization pair the
	// passing signature used. Both are empty unless Pass() is true.
	HeaderCanon Canonicalization
	BodyCanon   Canonicalization
	// Err is nil for Pass and Neutral, and the last per-signature error
	// recorded while searching for a match on Fail. Use IsPermFail/
	// IsTempFail to classify it.
	Err error
}

// Pass reports whether a signature from Domain verified successfully.
func (r *Result) Pass() bool { return r.Err == nil && r.HeaderCanon != "" }

// Neutral reports whether no signature from Domain was found to evaluate,
// as opposed to one being found and failing.
func (r *Result) Neutral() bool { return r.Err == nil && r.HeaderCanon == "" }

type rawSignature struct {
	headerIndex int
	value       string
}

// Verifier verifies the DKIM-Signature headers on a message. The zero
// Verifier resolves keys over the public DNS; set Resolver to a
// *PublicKeyResolver pointed at a different server, or to any
// implementation of the KeyResolver interface, to use a different key
// source (a cache, a canned record in a test). VerifyWithKey is the
// synchronous counterpart for a caller that already holds the signer's
// public key and wants to skip DNS entirely.
type Verifier struct {
	// Resolver looks up the public key for a (domain, selector) pair. If
	// nil, a PublicKeyResolver backed by 1.1.1.1:53 is used.
	Resolver KeyResolver
	// Logger receives per-signature diagnostics. If nil, logging is
	// discarded.
	Logger Logger
	// Clock returns the current time, used to evaluate x=. Defaults to
	// time.Now; tests override it for deterministic expiry checks.
	Clock func() time.Time
}

// KeyResolver resolves the public key for one signature. *PublicKeyResolver
// implements this by querying DNS; a caller can supply its own for tests or
// for an alternate key store.
type KeyResolver interface {
	Resolve(ctx context.Context, domain, selector string) (*KeyRecord, error)
}

func (v *Verifier) resolver() KeyResolver {
	if v.Resolver != nil {
		return v.Resolver
	}
	return &PublicKeyResolver{Lookuper: NewDNSResolver("1.1.1.1:53"), Logger: v.Logger}
}

func (v *Verifier) clock() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return now()
}

// Verify reads a complete message (headers, blank line, body) from r and
// searches its DKIM-Signature headers, in header order, for one whose d=
// case-insensitively matches fromDomain and fully verifies against a key
// resolved via v.Resolver. It returns nil, nil if the message carries no
// DKIM-Signature header at all; otherwise it returns exactly one Result
// describing a Pass, Fail, or Neutral outcome (see Result).
//
// Signatures whose d= doesn't match fromDomain are skipped without
// affecting the outcome. The first matching signature that verifies
// short-circuits the search with a Pass; otherwise, once every signature
// has been examined, the result is Fail carrying the last error recorded
// against a matching (or unparseable) signature, or Neutral if none was
// recorded.
//
// r need not be fully consumed on error.
func (v *Verifier) Verify(ctx context.Context, r io.Reader, fromDomain string) (*Result, error) {
	bufr := bufio.NewReader(r)
	h, err := readHeader(bufr)
	if err != nil {
		return nil, err
	}

	var sigs []rawSignature
	for i, kv := range h {
		k, val := parseHeaderField(kv)
		if strings.EqualFold(k, headerFieldName) {
			sigs = append(sigs, rawSignature{i, val})
		}
	}
	if len(sigs) == 0 {
		return nil, nil
	}

	body, err := io.ReadAll(bufr)
	if err != nil {
		return nil, err
	}

	return v.verifyAll(ctx, h, sigs, body, fromDomain), nil
}

// verifyAll implements the from_domain-gated aggregation: every signature
// is parsed and validated first (so a malformed header is always recorded
// as an error, whether or not its d= would have matched); only once that
// succeeds does the d= comparison against fromDomain decide whether the
// signature is evaluated at all.
func (v *Verifier) verifyAll(ctx context.Context, h header, sigs []rawSignature, body []byte, fromDomain string) *Result {
	log := loggerOrDiscard(v.Logger)
	now := v.clock()

	var lastErr error
	for _, sig := range sigs {
		dh, err := ParseDKIMHeader(sig.value)
		if err != nil {
			lastErr = err
			continue
		}
		if err := checkExpiration(dh, now); err != nil {
			lastErr = err
			continue
		}

		if !strings.EqualFold(dh.Domain, fromDomain) {
			continue
		}

		if err := v.verifySignature(ctx, h, h[sig.headerIndex], dh, body); err != nil {
			log.Warnf("dkim: signature d=%s s=%s failed: %v", dh.Domain, dh.Selector, err)
			lastErr = err
			continue
		}

		return &Result{Domain: dh.Domain, HeaderCanon: dh.HeaderCanon, BodyCanon: dh.BodyCanon}
	}

	return &Result{Domain: fromDomain, Err: lastErr}
}

// checkExpiration enforces RFC 6376 section 3.5's x= tag with the
// verifier's drift allowance: a signature is only expired once now is past
// its expiration by more than signatureDrift, so an x= a few seconds or
// minutes in the past still verifies.
func checkExpiration(dh *DKIMHeader, now time.Time) error {
	if dh.Expiration == nil {
		return nil
	}
	deadline := time.Unix(*dh.Expiration, 0).Add(signatureDrift)
	if now.After(deadline) {
		return newError(KindSignatureExpired, "")
	}
	return nil
}

// verifySignature checks one already-parsed, already-domain-matched
// signature: its query method, the resolved key's eligibility, and the
// cryptographic body/header hashes.
func (v *Verifier) verifySignature(ctx context.Context, h header, sigField string, dh *DKIMHeader, body []byte) error {
	if !containsFold(dh.QueryMethods, "dns/txt") {
		return newError(KindUnsupportedQueryMethod, strings.Join(dh.QueryMethods, ":"))
	}

	rec, err := v.resolver().Resolve(ctx, dh.Domain, dh.Selector)
	if err != nil {
		return err
	}
	if rec.Revoked {
		return newError(KindKeyRevoked, "")
	}
	if rec.Key.Algo != dh.KeyAlgo {
		return newError(KindUnsupportedHashAlgorithm, "key record algorithm does not match a=")
	}
	if !rec.AllowsHash(dh.HashAlgo) {
		return newError(KindUnsupportedHashAlgorithm, "key record h= does not permit "+string(dh.HashAlgo))
	}

	bodyHash, err := decodeBase64String(dh.BodyHashB64)
	if err != nil {
		return newError(KindSignatureSyntaxError, "malformed bh=")
	}
	sig, err := decodeBase64String(dh.SignatureB64)
	if err != nil {
		return newError(KindSignatureSyntaxError, "malformed b=")
	}

	computedBodyHash, err := BodyHash(bytes.NewReader(body), dh.BodyCanon, dh.HashAlgo, dh.BodyLength)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(computedBodyHash, bodyHash) != 1 {
		return newError(KindBodyHashDidNotVerify, "")
	}

	headerHash, err := HeaderHash(h, dh.SignedHeaders, sigField, dh.HeaderCanon, dh.HashAlgo)
	if err != nil {
		return err
	}

	return rec.Key.Verify(dh.HashAlgo, headerHash, sig)
}

// staticKeyResolver always hands back the same key regardless of the
// (domain, selector) requested, so VerifyWithKey can reuse Verifier's
// aggregation logic without involving DNS.
type staticKeyResolver struct {
	key *PublicKey
}

func (s *staticKeyResolver) Resolve(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	return &KeyRecord{Key: s.key, Services: []string{"*"}}, nil
}

// VerifyWithKey verifies r's DKIM-Signature headers against a single known
// public key, with no DNS lookup involved. It is the synchronous entrypoint
// named alongside Verify's DNS-resolver path: since key resolution can't
// suspend, VerifyWithKey never blocks on the network and takes no context.
func VerifyWithKey(r io.Reader, fromDomain string, key *PublicKey) (*Result, error) {
	v := &Verifier{Resolver: &staticKeyResolver{key: key}}
	return v.Verify(context.Background(), r, fromDomain)
}
