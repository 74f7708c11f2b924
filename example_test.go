package dkim_test

import (
	"bytes"
	"context"
	"log"
	"strings"

	"github.com/dkimwire/dkim"
)

var (
	mailString string
	privateKey *dkim.PrivateKey
)

func ExampleSign() {
	r := strings.NewReader(mailString)

	options := &dkim.SignOptions{
		Domain:     "example.org",
		Selector:   "brisbane",
		PrivateKey: privateKey,
		HeaderKeys: []string{"From", "To", "Subject", "Date", "Message-ID"},
	}

	var b bytes.Buffer
	if err := dkim.Sign(&b, r, options); err != nil {
		log.Fatal(err)
	}
}

func ExampleVerifier_Verify() {
	r := strings.NewReader(mailString)

	v := &dkim.Verifier{}
	res, err := v.Verify(context.Background(), r, "example.org")
	if err != nil {
		log.Fatal(err)
	}

	switch {
	case res == nil:
		log.Println("message has no DKIM-Signature headers")
	case res.Pass():
		log.Println("valid signature for:", res.Domain)
	default:
		log.Println("invalid signature for:", res.Domain, res.Err)
	}
}
