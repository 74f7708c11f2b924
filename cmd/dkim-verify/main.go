package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log"
	"net/mail"
	"os"
	"strings"

	"github.com/dkimwire/dkim"
)

// fromDomain reads the domain out of msg's From header, the from_domain a
// Verify call is evaluated against.
func fromDomain(msg []byte) (string, error) {
	m, err := mail.ReadMessage(bytes.NewReader(msg))
	if err != nil {
		return "", err
	}
	addr, err := mail.ParseAddress(m.Header.Get("From"))
	if err != nil {
		return "", err
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at < 0 {
		return "", err
	}
	return addr.Address[at+1:], nil
}

func main() {
	server := flag.String("dns", "1.1.1.1:53", "recursive DNS resolver to query for public keys")
	verbose := flag.Bool("v", false, "log DNS queries as they happen")
	flag.Parse()

	resolver := dkim.NewPublicKeyResolver(*server)
	v := &dkim.Verifier{Resolver: resolver}
	if *verbose {
		v.Logger = dkim.NewLogger(os.Stderr, dkim.LevelDebug)
		resolver.Logger = v.Logger
	}

	msg, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatal(err)
	}
	domain, err := fromDomain(msg)
	if err != nil {
		log.Fatalf("failed to read From header: %v", err)
	}

	res, err := v.Verify(context.Background(), bytes.NewReader(msg), domain)
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case res == nil:
		log.Print("message has no DKIM-Signature headers")
	case res.Pass():
		log.Printf("valid signature for %s", res.Domain)
	case res.Neutral():
		log.Printf("no signature found for from-domain %s", domain)
		os.Exit(1)
	default:
		log.Printf("invalid signature for %s: %v", res.Domain, res.Err)
		os.Exit(1)
	}
}
