// Package rules implements the small declarative language embedded in
// extraction configs. A rule string is either a fixed value, an
// ${api:...} extraction over captured traffic, or a ${localStorage:...}
// placeholder. Parsing never fails: malformed rules degrade to fixed
// strings.
package rules

import "strings"

// Kind classifies a parsed rule.
type Kind int

const (
	// KindFixed returns the raw string verbatim.
	KindFixed Kind = iota
	// KindAPI extracts a request header or response-body field from a
	// captured exchange.
	KindAPI
	// KindLocalStorage is a placeholder resolved by the result builder
	// from the end-of-session storage snapshot.
	KindLocalStorage
)

const (
	apiPrefix     = "${api:"
	storagePrefix = "${localStorage:"

	// API rule part/section tokens.
	PartRequest    = "request"
	PartResponse   = "response"
	SectionHeaders = "headers"
	SectionBody    = "body"
)

// Rule is the parsed form of one rule string.
type Rule struct {
	Kind Kind
	Raw  string

	// KindAPI fields.
	APIPath   string // URL substring locating the exchange
	Part      string // request | response
	Section   string // headers | body
	FieldPath string // header name, or colon-separated body path

	// KindLocalStorage field.
	StorageKey string
}

// Parse classifies a rule string. Syntax:
//
//	${api:/path/to/api:response:body:user:uid}  - captured response body
//	${api:/path/to/api:request:headers:cookie}  - captured request header
//	${localStorage:key}                         - storage snapshot
//	anything else                               - fixed value
func Parse(raw string) Rule {
	switch {
	case strings.HasPrefix(raw, apiPrefix):
		return parseAPI(raw)
	case strings.HasPrefix(raw, storagePrefix):
		key := strings.TrimRight(strings.TrimPrefix(raw, storagePrefix), "}")
		return Rule{Kind: KindLocalStorage, Raw: raw, StorageKey: key}
	default:
		return Rule{Kind: KindFixed, Raw: raw}
	}
}

func parseAPI(raw string) Rule {
	content := strings.TrimRight(strings.TrimPrefix(raw, apiPrefix), "}")
	parts := strings.Split(content, ":")
	if len(parts) < 3 {
		// Not enough tokens to be an api rule; treat the whole string as
		// a fixed value rather than erroring out.
		return Rule{Kind: KindFixed, Raw: raw}
	}

	r := Rule{
		Kind:    KindAPI,
		Raw:     raw,
		APIPath: parts[0],
		Part:    parts[1],
		Section: parts[2],
	}
	if len(parts) > 3 {
		// The field path may itself contain colons (storage-style keys),
		// so everything after the third token is rejoined.
		r.FieldPath = strings.Join(parts[3:], ":")
	}
	return r
}
