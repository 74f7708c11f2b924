package dkim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"golang.org/x/crypto/ed25519"
)

// PublicKey is the parsed form of a DKIM public key record, holding either
// an RSA or an Ed25519 key depending on Algo. It is produced by
// ParsePublicKeyBytes (from a DNS TXT record's p= tag) or constructed
// directly by a caller that already holds the key.
type PublicKey struct {
	Algo   KeyAlgo
	RSA    *rsa.PublicKey
	Ed25519 ed25519.PublicKey
}

// ParsePublicKeyBytes parses the DER-encoded public key bytes found in a
// DKIM key record's p= tag (already base64-decoded), per RFC 6376
// section 3.6.1. RSA keys are accepted either as a SubjectPublicKeyInfo
// structure (PKIX) or as a bare PKCS#1 RSAPublicKey, the form RFC 6376's
// Appendix A example record uses; Ed25519 keys, per RFC 8463 section 3, are
// the bare 32-byte point with no ASN.1 wrapper.
func ParsePublicKeyBytes(algo KeyAlgo, der []byte) (*PublicKey, error) {
	switch algo {
	case KeyRSA:
		var rsaPub *rsa.PublicKey
		pub, err := x509.ParsePKIXPublicKey(der)
		if err == nil {
			var ok bool
			if rsaPub, ok = pub.(*rsa.PublicKey); !ok {
				return nil, newError(KindKeyUnavailable, "p= is not an RSA key")
			}
		} else if rsaPub, err = x509.ParsePKCS1PublicKey(der); err != nil {
			return nil, wrapError(KindKeyUnavailable, err)
		}
		// RFC 8301 section 3.2: verifiers MUST NOT consider signatures
		// made with RSA keys smaller than 1024 bits to be valid.
		if rsaPub.Size()*8 < 1024 {
			return nil, newError(KindKeyUnavailable, "RSA key smaller than 1024 bits")
		}
		return &PublicKey{Algo: KeyRSA, RSA: rsaPub}, nil
	case KeyEd25519:
		if len(der) != ed25519.PublicKeySize {
			return nil, newError(KindKeyUnavailable, "malformed ed25519 key")
		}
		return &PublicKey{Algo: KeyEd25519, Ed25519: ed25519.PublicKey(der)}, nil
	default:
		return nil, newError(KindUnsupportedHashAlgorithm, "unknown key algorithm: "+string(algo))
	}
}

// Verify checks that sig is a valid signature over hashed, a digest
// computed with the hash algorithm algo, under k. For an RSA key this is
// PKCS#1 v1.5 verification; for Ed25519, per RFC 8463, the signature
// covers the digest bytes directly rather than the original message
// (plain Ed25519, not Ed25519ph), matching how every DKIM Ed25519
// implementation treats the hashed header set as the "message".
func (k *PublicKey) Verify(algo HashAlgo, hashed, sig []byte) error {
	switch k.Algo {
	case KeyRSA:
		ch, err := algo.cryptoHash()
		if err != nil {
			return err
		}
		if err := rsa.VerifyPKCS1v15(k.RSA, ch, hashed, sig); err != nil {
			return wrapError(KindSignatureDidNotVerify, err)
		}
		return nil
	case KeyEd25519:
		if !ed25519.Verify(k.Ed25519, hashed, sig) {
			return newError(KindSignatureDidNotVerify, "ed25519 verification failed")
		}
		return nil
	default:
		return newError(KindUnsupportedHashAlgorithm, "unknown key algorithm")
	}
}

// PrivateKey is the parsed form of a signer's private key, holding either
// an RSA or an Ed25519 key depending on Algo.
type PrivateKey struct {
	Algo    KeyAlgo
	RSA     *rsa.PrivateKey
	Ed25519 ed25519.PrivateKey
}

// ParsePrivateKeyPEM parses a PEM-encoded PKCS#1 or PKCS#8 RSA private key,
// or a PKCS#8 Ed25519 private key, as produced by openssl or
// crypto/x509.MarshalPKCS8PrivateKey.
func ParsePrivateKeyPEM(pemBytes []byte) (*PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, newError(KindBuilderError, "no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &PrivateKey{Algo: KeyRSA, RSA: key}, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, wrapError(KindBuilderError, err)
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return &PrivateKey{Algo: KeyRSA, RSA: k}, nil
	case ed25519.PrivateKey:
		return &PrivateKey{Algo: KeyEd25519, Ed25519: k}, nil
	default:
		return nil, newError(KindBuilderError, "unsupported private key type")
	}
}

// Sign computes a signature over hashed, a digest taken with the hash
// algorithm algo, under k. See PublicKey.Verify for why the Ed25519 case
// signs the digest directly instead of going through crypto.Signer with a
// SHA-256 crypto.SignerOpts, which would produce an Ed25519ph (prehashed)
// signature that RFC 8463 does not use.
func (k *PrivateKey) Sign(algo HashAlgo, hashed []byte) ([]byte, error) {
	switch k.Algo {
	case KeyRSA:
		ch, err := algo.cryptoHash()
		if err != nil {
			return nil, err
		}
		sig, err := rsa.SignPKCS1v15(rand.Reader, k.RSA, ch, hashed)
		if err != nil {
			return nil, wrapError(KindFailedToSign, err)
		}
		return sig, nil
	case KeyEd25519:
		return ed25519.Sign(k.Ed25519, hashed), nil
	default:
		return nil, newError(KindUnsupportedHashAlgorithm, "unknown key algorithm")
	}
}

// cryptoSignerKey signs through a caller-supplied crypto.Signer, for
// callers (such as an HSM-backed key store) that plug a crypto.Signer into
// SignOptions instead of holding raw key material in a PrivateKey; see
// SignOptions.Signer.
type cryptoSignerKey struct {
	algo HashAlgo
	s    crypto.Signer
}

func (k *cryptoSignerKey) keyAlgo() (KeyAlgo, error) {
	switch k.s.Public().(type) {
	case *rsa.PublicKey:
		return KeyRSA, nil
	case ed25519.PublicKey:
		return KeyEd25519, nil
	default:
		return "", newError(KindUnsupportedHashAlgorithm, "unsupported crypto.Signer public key type")
	}
}

func (k *cryptoSignerKey) sign(hashed []byte) ([]byte, error) {
	ka, err := k.keyAlgo()
	if err != nil {
		return nil, err
	}
	if ka == KeyEd25519 {
		// crypto.Signer.Sign with crypto.Hash(0) is the escape hatch RFC
		// 8032 implementations use to request plain (non-prehashed)
		// Ed25519; ed25519.PrivateKey honors it.
		sig, err := k.s.Sign(rand.Reader, hashed, crypto.Hash(0))
		if err != nil {
			return nil, wrapError(KindFailedToSign, err)
		}
		return sig, nil
	}
	ch, err := k.algo.cryptoHash()
	if err != nil {
		return nil, err
	}
	sig, err := k.s.Sign(rand.Reader, hashed, ch)
	if err != nil {
		return nil, wrapError(KindFailedToSign, err)
	}
	return sig, nil
}

func encodeSignatureB64(sig []byte) string {
	return base64.StdEncoding.EncodeToString(sig)
}
