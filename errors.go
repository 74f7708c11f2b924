package dkim

import "fmt"

// Kind classifies the diagnostic reason behind a DKIM outcome.
type Kind int

const (
	KindUnknownInternalError Kind = iota
	KindSignatureSyntaxError
	KindSignatureMissingRequiredTag
	KindIncompatibleVersion
	KindDomainMismatch
	KindFromFieldNotSigned
	KindUnsupportedQueryMethod
	KindSignatureExpired
	KindUnsupportedHashAlgorithm
	KindBodyHashDidNotVerify
	KindSignatureDidNotVerify
	KindKeyUnavailable
	KindKeyRevoked
	KindFailedToSign
	KindBuilderError
)

var kindStrings = map[Kind]string{
	KindUnknownInternalError:        "unknown internal error",
	KindSignatureSyntaxError:        "signature syntax error",
	KindSignatureMissingRequiredTag: "signature missing required tag",
	KindIncompatibleVersion:         "incompatible signature version",
	KindDomainMismatch:              "domain mismatch",
	KindFromFieldNotSigned:          "From field not signed",
	KindUnsupportedQueryMethod:      "unsupported public key query method",
	KindSignatureExpired:            "signature has expired",
	KindUnsupportedHashAlgorithm:    "unsupported hash algorithm",
	KindBodyHashDidNotVerify:        "body hash did not verify",
	KindSignatureDidNotVerify:       "signature did not verify",
	KindKeyUnavailable:              "key unavailable",
	KindKeyRevoked:                  "key revoked",
	KindFailedToSign:                "failed to sign",
	KindBuilderError:                "builder error",
}

func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "dkim error"
}

// Temporary reports whether errors of this Kind can be transient failures
// worth retrying. It is true for KindKeyUnavailable alone, whether or not a
// given error of that Kind is transient; Error.Temporary tells which
// KindKeyUnavailable errors wrap a transient DNS lookup error.
func (k Kind) Temporary() bool {
	return k == KindKeyUnavailable
}

// Error is the error type returned throughout this package. Per-signature
// verification errors are always of this type; errors from Sign are either
// *Error (such as KindBuilderError, KindUnsupportedHashAlgorithm or
// KindFailedToSign) or an error from reading or writing the message.
type Error struct {
	Kind Kind
	// Tag is set for KindSignatureMissingRequiredTag.
	Tag string
	// Msg is an additional human-readable detail, if any.
	Msg string
	// Err is the wrapped cause, if any (e.g. a DNS lookup error).
	Err error
	// temporary marks a KindKeyUnavailable as a transient DNS failure.
	temporary bool
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Tag != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Tag)
	}
	if e.Msg != "" {
		msg = msg + ": " + e.Msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return "dkim: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target shares this error's Kind, so callers can do
// errors.Is(err, &dkim.Error{Kind: dkim.KindSignatureExpired}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Temporary reports whether the error is a transient failure (currently
// only possible for a KindKeyUnavailable wrapping a temporary DNS error).
func (e *Error) Temporary() bool {
	return e.temporary
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func missingTagError(tag string) *Error {
	return &Error{Kind: KindSignatureMissingRequiredTag, Tag: tag}
}

// withTemporary marks e as a transient failure and returns it, for chaining
// onto newError/wrapError at the call site.
func (e *Error) withTemporary() *Error {
	e.temporary = true
	return e
}

// IsPermFail reports whether err signals a permanent DKIM failure: a
// malformed or semantically invalid signature, an unavailable or revoked
// key that isn't going to become available, or a cryptographic mismatch.
func IsPermFail(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	switch e.Kind {
	case KindUnknownInternalError, KindBuilderError, KindFailedToSign:
		return false
	default:
		return !e.Temporary()
	}
}

// IsTempFail reports whether err signals a transient failure that may
// succeed if retried, such as a DNS timeout.
func IsTempFail(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == KindKeyUnavailable && e.Temporary()
}
