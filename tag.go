package dkim

import (
	"regexp"
	"strings"
)

// Tag is a single name/value pair from a DKIM tag list, as defined by
// RFC 6376 section 3.2. Position is preserved in the slice returned by
// ParseTagList; lookup by name is the caller's job (DKIMHeader does this
// with last-occurrence-wins semantics).
type Tag struct {
	Name  string
	Value string
}

var (
	rxFWS        = regexp.MustCompile(`[ \t\r\n]+`)
	rxTagName    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	rxAllWS      = regexp.MustCompile(`[ \t\r\n]+`)
)

// ParseTagList parses the raw value of a tag-list header (a DKIM-Signature
// field body or a DKIM TXT record), tolerating folding whitespace (FWS)
// around tag names, the '=' separator, and tag values. It does not decode
// the z= tag's quoted-printable-style escaping, which is diagnostic-only.
//
// Per RFC 6376 section 3.2, whitespace internal to a tag value is folded
// to a single space; the b= and bh= tags are a special case (all their
// whitespace is stripped here, and again by decodeBase64String in hash.go)
// since header folding routinely splits their base64 payload across lines.
func ParseTagList(raw string) ([]Tag, error) {
	var tags []Tag
	specs := strings.Split(raw, ";")
	for i, spec := range specs {
		spec = strings.TrimSpace(rxFWS.ReplaceAllString(spec, " "))
		if spec == "" {
			if i == len(specs)-1 {
				// Trailing ";" with nothing after it.
				continue
			}
			return nil, newError(KindSignatureSyntaxError, "empty tag-spec")
		}

		eq := strings.IndexByte(spec, '=')
		if eq < 0 {
			return nil, newError(KindSignatureSyntaxError, "malformed tag-spec: missing '='")
		}

		name := strings.TrimSpace(spec[:eq])
		if !rxTagName.MatchString(name) {
			return nil, newError(KindSignatureSyntaxError, "malformed tag-name: "+name)
		}

		value := strings.TrimSpace(spec[eq+1:])
		if name == "b" || name == "bh" {
			value = stripAllWhitespace(value)
		}

		tags = append(tags, Tag{Name: name, Value: value})
	}
	return tags, nil
}

// tagMap folds a Tag slice into a name->value map, last occurrence wins,
// per spec "keys unique, last occurrence wins during parse".
func tagMap(tags []Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[t.Name] = t.Value
	}
	return m
}

func stripAllWhitespace(s string) string {
	return rxAllWS.ReplaceAllString(s, "")
}

// splitColonList splits a colon-separated tag value (h=, q=) into its
// elements, removing all whitespace from each.
func splitColonList(s string) []string {
	parts := strings.Split(s, ":")
	for i, p := range parts {
		parts[i] = stripAllWhitespace(p)
	}
	return parts
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
