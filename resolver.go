package dkim

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/miekg/dns"
)

// TXTLookuper resolves the TXT records published at a DNS name. It is the
// query-method collaborator spec'd for the default PublicKeyResolver;
// DNSResolver is the production implementation, and tests supply a stub.
type TXTLookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSResolver issues DKIM key queries against a recursive resolver using
// github.com/miekg/dns, rather than net.LookupTXT, so callers can plug in
// their own dns.Client (custom timeouts, a specific upstream, EDNS0).
type DNSResolver struct {
	// Server is the "host:port" of the recursive resolver to query.
	Server string
	Client *dns.Client
}

// NewDNSResolver returns a DNSResolver querying server (e.g. "8.8.8.8:53")
// with default dns.Client settings.
func NewDNSResolver(server string) *DNSResolver {
	return &DNSResolver{Server: server, Client: new(dns.Client)}
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := r.Client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, wrapError(KindKeyUnavailable, err).withTemporary()
	}
	if in.Rcode == dns.RcodeNameError {
		return nil, newError(KindKeyUnavailable, "no such domain: "+name)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, newError(KindKeyUnavailable, "DNS query failed: "+dns.RcodeToString[in.Rcode]).withTemporary()
	}

	var txt []string
	for _, rr := range in.Answer {
		if t, ok := rr.(*dns.TXT); ok {
			txt = append(txt, strings.Join(t.Txt, ""))
		}
	}
	return txt, nil
}

// KeyRecord is the parsed form of a DKIM key record (RFC 6376 section
// 3.6.1): the TXT record published at <selector>._domainkey.<domain>.
type KeyRecord struct {
	Key       *PublicKey
	HashAlgos []string // h= tag, restricts which a= hash algorithms are acceptable; nil means no restriction
	Services  []string // s= tag, service types the key applies to; ParseKeyRecord records an absent s= as {"*"}, and AllowsService rejects a nil Services
	Revoked   bool      // true if p= is empty, per RFC 6376 section 3.6.1
}

// ParseKeyRecord parses the tag list of a DKIM key TXT record.
func ParseKeyRecord(raw string) (*KeyRecord, error) {
	tags, err := ParseTagList(raw)
	if err != nil {
		return nil, err
	}
	m := tagMap(tags)

	if v, ok := m["v"]; ok && v != "DKIM1" {
		return nil, newError(KindKeyUnavailable, "unsupported key record version: "+v)
	}

	rec := &KeyRecord{}
	if h, ok := m["h"]; ok {
		rec.HashAlgos = splitColonList(h)
	}
	if s, ok := m["s"]; ok {
		rec.Services = splitColonList(s)
	} else {
		rec.Services = []string{"*"}
	}

	p, ok := m["p"]
	if !ok {
		return nil, missingTagError("p")
	}
	if p == "" {
		rec.Revoked = true
		return rec, newError(KindKeyRevoked, "")
	}

	ka := KeyRSA
	if k, ok := m["k"]; ok {
		switch k {
		case string(KeyRSA):
			ka = KeyRSA
		case string(KeyEd25519):
			ka = KeyEd25519
		default:
			return nil, newError(KindUnsupportedHashAlgorithm, "unknown key record k=: "+k)
		}
	}

	der, err := base64.StdEncoding.DecodeString(stripAllWhitespace(p))
	if err != nil {
		return nil, newError(KindKeyUnavailable, "malformed p=")
	}
	pub, err := ParsePublicKeyBytes(ka, der)
	if err != nil {
		return nil, err
	}
	rec.Key = pub

	return rec, nil
}

// AllowsService reports whether the key record's s= tag permits use for
// email (DKIM's sole service type).
func (r *KeyRecord) AllowsService() bool {
	return containsFold(r.Services, "*") || containsFold(r.Services, "email")
}

// AllowsHash reports whether the key record's h= tag permits algo. An
// absent h= tag permits every hash algorithm.
func (r *KeyRecord) AllowsHash(algo HashAlgo) bool {
	if r.HashAlgos == nil {
		return true
	}
	return containsFold(r.HashAlgos, string(algo))
}

// PublicKeyResolver retrieves and validates the DKIM key record for a
// signature's (domain, selector) pair. NewPublicKeyResolver's DNSResolver
// is the default production collaborator; a Verifier's Resolver field lets
// a caller substitute one backed by a local cache or a canned record for
// testing.
type PublicKeyResolver struct {
	Lookuper TXTLookuper
	Logger   Logger
}

// NewPublicKeyResolver returns a PublicKeyResolver backed by server, a
// recursive DNS resolver's "host:port" address.
func NewPublicKeyResolver(server string) *PublicKeyResolver {
	return &PublicKeyResolver{Lookuper: NewDNSResolver(server)}
}

// Resolve fetches and parses the key record published for selector._domainkey.domain.
func (p *PublicKeyResolver) Resolve(ctx context.Context, domain, selector string) (*KeyRecord, error) {
	log := loggerOrDiscard(p.Logger)
	name := selector + "._domainkey." + domain
	log.Debugf("dkim: querying key record at %s", name)

	txt, err := p.Lookuper.LookupTXT(ctx, name)
	if err != nil {
		log.Warnf("dkim: key record lookup for %s failed: %v", name, err)
		return nil, err
	}
	if len(txt) == 0 {
		return nil, newError(KindKeyUnavailable, "no key record found at "+name)
	}

	rec, err := ParseKeyRecord(txt[0])
	if err != nil {
		return rec, err
	}
	if !rec.AllowsService() {
		return rec, newError(KindKeyUnavailable, "key record does not permit the email service")
	}
	return rec, nil
}
