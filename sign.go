package dkim

import (
	"bufio"
	"bytes"
	"crypto"
	"io"
	"time"
)

// SignOptions configures Sign. Domain, Selector, HeaderKeys and exactly one
// of PrivateKey or Signer are required; the rest have RFC 6376-sane
// defaults. This mirrors the teacher's plain-struct SignOptions rather than
// a functional-options builder, since a signing call has a small, fixed set
// of fields known up front.
type SignOptions struct {
	// Domain is the d= tag: the signing domain.
	Domain string
	// Selector is the s= tag: the DNS selector under Domain's _domainkey
	// subdomain holding the public key.
	Selector string
	// Identity is the i= tag. Optional; if empty, a verifier treats the
	// identity as "@"+Domain.
	Identity string

	// PrivateKey signs directly with an in-memory RSA or Ed25519 key.
	// Mutually exclusive with Signer.
	PrivateKey *PrivateKey
	// Signer signs through the standard crypto.Signer interface, for a
	// caller whose key lives behind an HSM or remote signing service.
	// Mutually exclusive with PrivateKey. KeyAlgo must be set explicitly
	// since a crypto.Signer's concrete key type is only discovered at
	// sign time.
	Signer  crypto.Signer
	KeyAlgo KeyAlgo

	// HashAlgo selects a= 's hash component. Defaults to HashSHA256;
	// HashSHA1 is rejected (RFC 8301 section 3.1).
	HashAlgo HashAlgo
	// HeaderCanon and BodyCanon select c=. Default to CanonRelaxed.
	HeaderCanon Canonicalization
	BodyCanon   Canonicalization

	// HeaderKeys lists the headers to sign, in signing order. Required;
	// must include "From" (case-insensitive), per RFC 6376 section 5.4.
	HeaderKeys []string
	// BodyLength, if non-nil, sets l= and truncates the signed body to
	// that many bytes.
	BodyLength *int64
	// Expiry, if positive, sets x= to the signing time plus Expiry.
	Expiry time.Duration

	// Clock returns the signing time, used for t= and x=. Defaults to
	// time.Now.
	Clock func() time.Time
}

func (o *SignOptions) clock() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return now()
}

func (o *SignOptions) hashAlgo() (HashAlgo, error) {
	switch o.HashAlgo {
	case "":
		return HashSHA256, nil
	case HashSHA1:
		// RFC 8301 section 3.1: rsa-sha1 MUST NOT be used for signing.
		return "", newError(KindUnsupportedHashAlgorithm, "sha1 is not permitted for signing")
	case HashSHA256:
		return HashSHA256, nil
	default:
		return "", newError(KindUnsupportedHashAlgorithm, string(o.HashAlgo))
	}
}

func (o *SignOptions) canon() (Canonicalization, Canonicalization) {
	hc, bc := o.HeaderCanon, o.BodyCanon
	if hc == "" {
		hc = CanonRelaxed
	}
	if bc == "" {
		bc = CanonRelaxed
	}
	return hc, bc
}

func (o *SignOptions) keyAlgo() (KeyAlgo, error) {
	switch {
	case o.PrivateKey != nil:
		return o.PrivateKey.Algo, nil
	case o.Signer != nil:
		if o.KeyAlgo == "" {
			return "", newError(KindBuilderError, "SignOptions.KeyAlgo is required when Signer is set")
		}
		return o.KeyAlgo, nil
	default:
		return "", newError(KindBuilderError, "SignOptions needs PrivateKey or Signer")
	}
}

func (o *SignOptions) sign(algo HashAlgo, hashed []byte) ([]byte, error) {
	switch {
	case o.PrivateKey != nil:
		return o.PrivateKey.Sign(algo, hashed)
	case o.Signer != nil:
		return (&cryptoSignerKey{algo: algo, s: o.Signer}).sign(hashed)
	default:
		return nil, newError(KindBuilderError, "SignOptions needs PrivateKey or Signer")
	}
}

// Sign reads a complete message (headers, blank line, body) from r,
// computes a DKIM-Signature header under opts, and writes that header
// followed by the original message to w.
//
// The body is buffered in memory to compute its hash; this library does
// not stream-sign arbitrarily large bodies.
func Sign(w io.Writer, r io.Reader, opts *SignOptions) error {
	if opts.Domain == "" {
		return newError(KindBuilderError, "SignOptions.Domain is required")
	}
	if opts.Selector == "" {
		return newError(KindBuilderError, "SignOptions.Selector is required")
	}
	if len(opts.HeaderKeys) == 0 {
		return newError(KindBuilderError, "SignOptions.HeaderKeys is required")
	}
	if !containsFold(opts.HeaderKeys, "from") {
		return newError(KindBuilderError, "SignOptions.HeaderKeys must include From")
	}

	ka, err := opts.keyAlgo()
	if err != nil {
		return err
	}
	ha, err := opts.hashAlgo()
	if err != nil {
		return err
	}
	if ka == KeyEd25519 && ha != HashSHA256 {
		return newError(KindUnsupportedHashAlgorithm, "ed25519 requires sha256")
	}
	headerCanon, bodyCanon := opts.canon()

	bufr := bufio.NewReader(r)
	h, err := readHeader(bufr)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(bufr)
	if err != nil {
		return err
	}

	bh, err := BodyHash(bytes.NewReader(body), bodyCanon, ha, opts.BodyLength)
	if err != nil {
		return err
	}

	hb := NewHeaderBuilder(opts.Domain, opts.Selector, ka, ha).
		WithCanonicalization(headerCanon, bodyCanon).
		WithSignedHeaders(opts.HeaderKeys).
		WithBodyHash(encodeBodyHash(bh))
	if opts.Identity != "" {
		hb.WithIdentity(opts.Identity)
	}
	if opts.BodyLength != nil {
		hb.WithBodyLength(*opts.BodyLength)
	}
	t := opts.clock()
	hb.WithTime(t)
	if opts.Expiry > 0 {
		hb.WithExpiry(t.Add(opts.Expiry))
	}

	unsignedField := hb.Build("")

	headerHash, err := HeaderHash(h, opts.HeaderKeys, unsignedField, headerCanon, ha)
	if err != nil {
		return err
	}

	sig, err := opts.sign(ha, headerHash)
	if err != nil {
		return err
	}

	signedField := hb.Build(encodeSignatureB64(sig))

	if _, err := io.WriteString(w, signedField); err != nil {
		return err
	}
	if err := writeHeader(w, h); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
