package schemas

import (
	"strconv"
	"strings"
)

// -- Extraction Configuration Models --
// These types mirror the JSON contract supplied by the calling process.
// Field names are snake_case on the wire and must survive round-trips
// unchanged, including arbitrary header-name keys inside ExtractRules.

// LoginSuccessMode selects how the engine decides that an interactive
// login has completed.
type LoginSuccessMode string

const (
	// ModeURLMatch matches the current page URL against a glob pattern.
	ModeURLMatch LoginSuccessMode = "url_match"
	// ModeAPIMatch matches a field extracted from a captured API response
	// against an expected value.
	ModeAPIMatch LoginSuccessMode = "api_match"
)

// ExtractorConfig describes one extraction run. It is immutable for the
// run's duration.
type ExtractorConfig struct {
	PlatformID          string           `json:"platform_id"`
	PlatformName        string           `json:"platform_name"`
	LoginURL            string           `json:"login_url"`
	LoginSuccessMode    LoginSuccessMode `json:"login_success_mode"`
	LoginSuccessPattern string           `json:"login_success_pattern"`

	// api_match parameters. Ignored when the mode is url_match.
	LoginSuccessAPIRule     string        `json:"login_success_api_rule,omitempty"`
	LoginSuccessAPIOperator MatchOperator `json:"login_success_api_operator,omitempty"`
	LoginSuccessAPIValue    string        `json:"login_success_api_value,omitempty"`

	// Optional page to navigate to after login is detected, with a fresh
	// capture window.
	RedirectURL string `json:"redirect_url,omitempty"`

	ExtractRules ExtractRules `json:"extract_rules"`

	// Bookkeeping carried for store round-trips; the engine ignores them.
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ExtractRules declares which fields to derive from the captured session.
// The output mirrors this shape exactly, with rule strings replaced by
// their evaluated values.
type ExtractRules struct {
	UserInfo       map[string]string `json:"user_info"`
	RequestHeaders map[string]string `json:"request_headers"`
	LocalStorage   []string          `json:"local_storage"`
	Cookie         *CookieRule       `json:"cookie,omitempty"`
}

// CookieRule selects where the cookie value comes from. A nil rule means
// the full browser cookie jar.
type CookieRule struct {
	Source     string `json:"source"`
	APIPath    string `json:"api_path,omitempty"`
	HeaderName string `json:"header_name,omitempty"`
}

// Cookie source values. The original configs spell these with a "from_"
// prefix; the short forms are accepted as aliases.
const (
	CookieSourceBrowser = "from_browser"
	CookieSourceAPI     = "from_api"
)

// FromAPI reports whether the rule asks for a header captured from an API
// request rather than the browser cookie jar.
func (r *CookieRule) FromAPI() bool {
	if r == nil {
		return false
	}
	return r.Source == CookieSourceAPI || r.Source == "api"
}

// -- Match Operators --

// MatchOperator compares an extracted value against an expected value.
// The serialized names are capitalized variant names, matching the
// configs already in the wild.
type MatchOperator string

const (
	OpEq          MatchOperator = "Eq"
	OpNeq         MatchOperator = "Neq"
	OpGt          MatchOperator = "Gt"
	OpLt          MatchOperator = "Lt"
	OpGte         MatchOperator = "Gte"
	OpLte         MatchOperator = "Lte"
	OpContains    MatchOperator = "Contains"
	OpNotContains MatchOperator = "NotContains"
	OpStartsWith  MatchOperator = "StartsWith"
	OpEndsWith    MatchOperator = "EndsWith"
)

// Known reports whether the operator is one of the supported constants.
func (op MatchOperator) Known() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte,
		OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		return true
	}
	return false
}

// Match applies the operator. Numeric operators parse both sides as
// float64: an unparsable actual value yields false, an unparsable expected
// value is compared against 0. Comparison never panics.
func (op MatchOperator) Match(actual, expected string) bool {
	switch op {
	case OpEq:
		return actual == expected
	case OpNeq:
		return actual != expected
	case OpGt:
		return compareNumeric(actual, expected, func(a, e float64) bool { return a > e })
	case OpLt:
		return compareNumeric(actual, expected, func(a, e float64) bool { return a < e })
	case OpGte:
		return compareNumeric(actual, expected, func(a, e float64) bool { return a >= e })
	case OpLte:
		return compareNumeric(actual, expected, func(a, e float64) bool { return a <= e })
	case OpContains:
		return strings.Contains(actual, expected)
	case OpNotContains:
		return !strings.Contains(actual, expected)
	case OpStartsWith:
		return strings.HasPrefix(actual, expected)
	case OpEndsWith:
		return strings.HasSuffix(actual, expected)
	}
	return false
}

func compareNumeric(actual, expected string, cmp func(a, e float64) bool) bool {
	a, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return false
	}
	e, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		e = 0
	}
	return cmp(a, e)
}
