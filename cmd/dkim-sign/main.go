package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/dkimwire/dkim"
)

func main() {
	domain := flag.String("domain", "", "signing domain (d=)")
	selector := flag.String("selector", "", "DNS selector (s=)")
	keyPath := flag.String("key", "", "path to a PEM-encoded RSA or Ed25519 private key")
	headers := flag.String("headers", "From,To,Subject,Date,Message-ID", "comma-separated list of headers to sign (h=)")
	relaxed := flag.Bool("relaxed", false, "use relaxed/relaxed canonicalization instead of simple/simple")
	flag.Parse()

	if *domain == "" || *selector == "" || *keyPath == "" {
		log.Fatal("dkim-sign: -domain, -selector and -key are required")
	}

	pemBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		log.Fatalf("dkim-sign: failed to read private key: %v", err)
	}
	priv, err := dkim.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		log.Fatalf("dkim-sign: failed to parse private key: %v", err)
	}

	opts := &dkim.SignOptions{
		Domain:      *domain,
		Selector:    *selector,
		PrivateKey:  priv,
		HeaderKeys:  strings.Split(*headers, ","),
		HeaderCanon: dkim.CanonSimple,
		BodyCanon:   dkim.CanonSimple,
	}
	if *relaxed {
		opts.HeaderCanon = dkim.CanonRelaxed
		opts.BodyCanon = dkim.CanonRelaxed
	}

	if err := dkim.Sign(os.Stdout, os.Stdin, opts); err != nil {
		log.Fatalf("dkim-sign: %v", err)
	}
}
