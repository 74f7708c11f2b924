package dkim

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	"encoding/base64"
	"io"
	"regexp"
	"strings"
)

func (a HashAlgo) cryptoHash() (crypto.Hash, error) {
	switch a {
	case HashSHA1:
		return crypto.SHA1, nil
	case HashSHA256:
		return crypto.SHA256, nil
	default:
		return 0, newError(KindUnsupportedHashAlgorithm, string(a))
	}
}

// BodyHash canonicalizes body under bodyCanon, hashes it with algo, and
// returns the raw digest. bodyLength, if non-nil, truncates the
// canonicalized body to that many bytes (the signer/verifier side of the
// l= tag); it does not truncate the input before canonicalization.
func BodyHash(body io.Reader, bodyCanon Canonicalization, algo HashAlgo, bodyLength *int64) ([]byte, error) {
	h, err := algo.cryptoHash()
	if err != nil {
		return nil, err
	}
	hasher := h.New()

	can, ok := canonicalizers[bodyCanon]
	if !ok {
		return nil, newError(KindSignatureSyntaxError, "unknown body canonicalization: "+string(bodyCanon))
	}

	var w io.Writer = hasher
	if bodyLength != nil {
		w = &limitedWriter{W: w, N: *bodyLength}
	}

	wc := can.CanonicalizeBody(w)
	if _, err := io.Copy(wc, body); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return hasher.Sum(nil), nil
}

func encodeBodyHash(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

func decodeBase64String(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(stripAllWhitespace(s))
}

// HeaderHash picks the headers named by headerKeys out of msgHeaders
// (bottom-up, per RFC 6376 section 5.4.2), canonicalizes each under
// headerCanon, appends the canonicalized DKIM-Signature field itself
// (sigField, with its b= value stripped per section 3.7), and returns the
// resulting digest under algo. It is used identically by the signer (over
// a header built with an empty b=) and the verifier (over the header as
// received).
func HeaderHash(msgHeaders header, headerKeys []string, sigField string, headerCanon Canonicalization, algo HashAlgo) ([]byte, error) {
	h, err := algo.cryptoHash()
	if err != nil {
		return nil, err
	}
	hasher := h.New()

	can, ok := canonicalizers[headerCanon]
	if !ok {
		return nil, newError(KindSignatureSyntaxError, "unknown header canonicalization: "+string(headerCanon))
	}

	picker := newHeaderPicker(msgHeaders)
	for _, key := range headerKeys {
		kv := picker.Pick(key)
		if kv == "" {
			// A signed header that doesn't exist in the message contributes
			// nothing to the hash; RFC 6376 section 5.4.2 allows this.
			continue
		}
		if _, err := hasher.Write([]byte(can.CanonicalizeHeader(kv))); err != nil {
			return nil, err
		}
	}

	canSig := removeSignatureValue(sigField)
	canSig = can.CanonicalizeHeader(canSig)
	canSig = strings.TrimRight(canSig, "\r\n")
	if _, err := hasher.Write([]byte(canSig)); err != nil {
		return nil, err
	}

	return hasher.Sum(nil), nil
}

var rxSigValue = regexp.MustCompile(`(b\s*=)[^;]+`)

// removeSignatureValue blanks out the b= tag's value in a raw
// DKIM-Signature field, per RFC 6376 section 3.7: the signature is always
// computed and verified with b= present but empty.
func removeSignatureValue(s string) string {
	return rxSigValue.ReplaceAllString(s, "$1")
}
