package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/mail"
	"net/textproto"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/emersion/go-milter"
	"github.com/emersion/go-msgauth/authres"

	"github.com/dkimwire/dkim"
)

var (
	signDomains    stringSliceFlag
	identity       string
	listenURI      string
	privateKeyPath string
	selector       string
	dnsServer      string
	verbose        bool
)

var privateKey *dkim.PrivateKey

var signHeaderKeys = []string{
	"From",
	"Reply-To",
	"Subject",
	"Date",
	"To",
	"Cc",
	"Resent-Date",
	"Resent-From",
	"Resent-To",
	"Resent-Cc",
	"In-Reply-To",
	"References",
	"List-Id",
	"List-Help",
	"List-Unsubscribe",
	"List-Subscribe",
	"List-Post",
	"List-Owner",
	"List-Archive",
}

func init() {
	flag.Var(&signDomains, "d", "Domain(s) whose mail should be signed")
	flag.StringVar(&identity, "i", "", "Server identity (defaults to hostname)")
	flag.StringVar(&listenURI, "l", "unix:///tmp/dkim-milter.sock", "Listen URI")
	flag.StringVar(&privateKeyPath, "k", "", "Private key (PEM-formatted)")
	flag.StringVar(&selector, "s", "", "Selector")
	flag.StringVar(&dnsServer, "dns", "1.1.1.1:53", "Recursive DNS resolver for key lookups")
	flag.BoolVar(&verbose, "v", false, "Enable verbose logging")
}

type stringSliceFlag []string

func (f *stringSliceFlag) String() string {
	return strings.Join(*f, ", ")
}

func (f *stringSliceFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// session buffers an entire message in memory and signs/verifies it once,
// in Body, rather than streaming it through a DKIM hasher incrementally.
// This trades the ability to handle arbitrarily large messages for a much
// simpler adapter around the one-shot Sign/Verifier.Verify API; a milter
// deployment handling very large mail would instead want the library to
// expose a streaming hasher, which is future work.
type session struct {
	authResDelete []int
	headerBuf     bytes.Buffer
	bodyBuf       bytes.Buffer

	fromDomain     string
	signDomain     string
	signHeaderKeys []string
}

func (s *session) Connect(host string, family string, port uint16, addr net.IP, m *milter.Modifier) (milter.Response, error) {
	return nil, nil
}

func (s *session) Helo(name string, m *milter.Modifier) (milter.Response, error) {
	return nil, nil
}

func (s *session) MailFrom(from string, m *milter.Modifier) (milter.Response, error) {
	return nil, nil
}

func (s *session) RcptTo(rcptTo string, m *milter.Modifier) (milter.Response, error) {
	return nil, nil
}

func parseAddressDomain(s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}

	parts := strings.SplitN(addr.Address, "@", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("dkim-milter: malformed address: missing '@'")
	}

	return parts[1], nil
}

func (s *session) Header(name string, value string, m *milter.Modifier) (milter.Response, error) {
	if strings.EqualFold(name, "From") {
		domain, err := parseAddressDomain(value)
		if err != nil {
			return nil, fmt.Errorf("dkim-milter: failed to parse header field '%v': %v", name, err)
		}
		s.fromDomain = domain
	}

	if strings.EqualFold(name, "From") || strings.EqualFold(name, "Sender") {
		domain, err := parseAddressDomain(value)
		if err != nil {
			return nil, fmt.Errorf("dkim-milter: failed to parse header field '%v': %v", name, err)
		}

		for _, d := range signDomains {
			if strings.EqualFold(d, domain) {
				s.signDomain = d
				break
			}
		}
	}

	for _, k := range signHeaderKeys {
		if strings.EqualFold(name, k) {
			s.signHeaderKeys = append(s.signHeaderKeys, name)
		}
	}

	field := name + ": " + value + "\r\n"
	_, err := s.headerBuf.WriteString(field)
	return milter.RespContinue, err
}

func getIdentity(authRes string) string {
	parts := strings.SplitN(authRes, ";", 2)
	return strings.TrimSpace(parts[0])
}

func (s *session) Headers(h textproto.MIMEHeader, m *milter.Modifier) (milter.Response, error) {
	if _, err := s.headerBuf.WriteString("\r\n"); err != nil {
		return nil, err
	}

	fields := h["Authentication-Results"]
	for i, field := range fields {
		if strings.EqualFold(identity, getIdentity(field)) {
			s.authResDelete = append(s.authResDelete, i+1)
		}
	}

	return milter.RespContinue, nil
}

func (s *session) BodyChunk(chunk []byte, m *milter.Modifier) (milter.Response, error) {
	_, err := s.bodyBuf.Write(chunk)
	return milter.RespContinue, err
}

func (s *session) Body(m *milter.Modifier) (milter.Response, error) {
	for _, index := range s.authResDelete {
		if err := m.ChangeHeader(index, "Authentication-Results", ""); err != nil {
			return nil, err
		}
	}

	message := append(append([]byte(nil), s.headerBuf.Bytes()...), s.bodyBuf.Bytes()...)

	v := &dkim.Verifier{Resolver: dkim.NewPublicKeyResolver(dnsServer)}
	res, err := v.Verify(context.Background(), bytes.NewReader(message), s.fromDomain)
	if err != nil {
		if verbose {
			log.Printf("DKIM verification failed: %v", err)
		}
		return nil, err
	}

	if s.signDomain != "" {
		opts := &dkim.SignOptions{
			Domain:     s.signDomain,
			Selector:   selector,
			PrivateKey: privateKey,
			HeaderKeys: s.signHeaderKeys,
		}

		var signed bytes.Buffer
		if err := dkim.Sign(&signed, bytes.NewReader(message), opts); err != nil {
			if verbose {
				log.Printf("DKIM signature failed: %v", err)
			}
			return nil, err
		}

		name, value, err := splitSignatureField(signed.String())
		if err != nil {
			return nil, err
		}

		if err := m.InsertHeader(0, name, value); err != nil {
			return nil, err
		}
	}

	if verbose {
		switch {
		case res == nil:
			log.Print("DKIM: message carries no DKIM-Signature headers")
		case res.Pass():
			log.Printf("DKIM verification succeeded for %v", res.Domain)
		case res.Neutral():
			log.Printf("DKIM: no signature found for from-domain %v", s.fromDomain)
		default:
			log.Printf("DKIM verification failed for %v: %v", res.Domain, res.Err)
		}
	}

	var authResults []authres.Result
	switch {
	case res == nil || res.Neutral():
		authResults = append(authResults, &authres.DKIMResult{Value: authres.ResultNone})
	case res.Pass():
		authResults = append(authResults, &authres.DKIMResult{Value: authres.ResultPass, Domain: res.Domain})
	default:
		var val authres.ResultValue
		switch res.Status() {
		case dkim.StatusPermError:
			val = authres.ResultPermError
		case dkim.StatusTempError:
			val = authres.ResultTempError
		default:
			val = authres.ResultFail
		}
		authResults = append(authResults, &authres.DKIMResult{Value: val, Domain: res.Domain})
	}

	header := authres.Format(identity, authResults)
	if err := m.InsertHeader(0, "Authentication-Results", header); err != nil {
		return nil, err
	}

	return milter.RespAccept, nil
}

// splitSignatureField extracts the name and value of the DKIM-Signature
// field Sign prepends to its output. Sign always writes it as the very
// first header field, folded with CRLF-plus-space continuation lines, so
// the field ends at the first CRLF that isn't followed by whitespace.
func splitSignatureField(signed string) (name, value string, err error) {
	end := -1
	for i := 0; i+1 < len(signed); i++ {
		if signed[i] != '\r' || signed[i+1] != '\n' {
			continue
		}
		if i+2 < len(signed) && (signed[i+2] == ' ' || signed[i+2] == '\t') {
			continue
		}
		end = i
		break
	}
	if end < 0 {
		return "", "", fmt.Errorf("dkim-milter: malformed signed message")
	}

	field := signed[:end]
	name, value, found := strings.Cut(field, ": ")
	if !found {
		return "", "", fmt.Errorf("dkim-milter: malformed DKIM-Signature header field")
	}
	return name, value, nil
}

func loadPrivateKey(path string) (*dkim.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return dkim.ParsePrivateKeyPEM(b)
}

func main() {
	flag.Parse()

	if identity == "" {
		var err error
		identity, err = os.Hostname()
		if err != nil {
			log.Fatal("Failed to read hostname: ", err)
		}
	}

	if (len(signDomains) > 0 || privateKeyPath != "" || selector != "") && !(len(signDomains) > 0 && privateKeyPath != "" && selector != "") {
		log.Fatal("Domain(s) (-d), private key (-k) and selector (-s) must all be specified")
	}

	if privateKeyPath != "" {
		var err error
		privateKey, err = loadPrivateKey(privateKeyPath)
		if err != nil {
			log.Fatalf("Failed to load private key from '%v': %v", privateKeyPath, err)
		}
	}

	parts := strings.SplitN(listenURI, "://", 2)
	if len(parts) != 2 {
		log.Fatal("Invalid listen URI")
	}
	listenNetwork, listenAddr := parts[0], parts[1]

	srv := milter.Server{
		NewMilter: func() milter.Milter {
			return &session{}
		},
		Actions:  milter.OptAddHeader | milter.OptChangeHeader,
		Protocol: milter.OptNoConnect | milter.OptNoHelo | milter.OptNoMailFrom | milter.OptNoRcptTo,
	}

	ln, err := net.Listen(listenNetwork, listenAddr)
	if err != nil {
		log.Fatal("Failed to setup listener: ", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		if err := srv.Close(); err != nil {
			log.Fatal("Failed to close server: ", err)
		}
	}()

	log.Println("Milter listening at", listenURI)
	if err := srv.Serve(ln); err != nil && err != milter.ErrServerClosed {
		log.Fatal("Failed to serve: ", err)
	}
}
