package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/rules"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		raw  string
		want rules.Rule
	}{
		{
			name: "fixed value",
			raw:  "douyin",
			want: rules.Rule{Kind: rules.KindFixed, Raw: "douyin"},
		},
		{
			name: "response body rule",
			raw:  "${api:/web/api/media/user/info:response:body:user:uid}",
			want: rules.Rule{
				Kind:      rules.KindAPI,
				Raw:       "${api:/web/api/media/user/info:response:body:user:uid}",
				APIPath:   "/web/api/media/user/info",
				Part:      "response",
				Section:   "body",
				FieldPath: "user:uid",
			},
		},
		{
			name: "request header rule",
			raw:  "${api:/account/api/v1/user/account/info:request:headers:x-secsdk-csrf-token}",
			want: rules.Rule{
				Kind:      rules.KindAPI,
				Raw:       "${api:/account/api/v1/user/account/info:request:headers:x-secsdk-csrf-token}",
				APIPath:   "/account/api/v1/user/account/info",
				Part:      "request",
				Section:   "headers",
				FieldPath: "x-secsdk-csrf-token",
			},
		},
		{
			name: "api rule without field path",
			raw:  "${api:/ping:response:body}",
			want: rules.Rule{
				Kind:    rules.KindAPI,
				Raw:     "${api:/ping:response:body}",
				APIPath: "/ping",
				Part:    "response",
				Section: "body",
			},
		},
		{
			name: "api rule with too few tokens degrades to fixed",
			raw:  "${api:/only/path:response}",
			want: rules.Rule{Kind: rules.KindFixed, Raw: "${api:/only/path:response}"},
		},
		{
			name: "localStorage rule",
			raw:  "${localStorage:security-sdk/s_sdk_cert_key}",
			want: rules.Rule{
				Kind:       rules.KindLocalStorage,
				Raw:        "${localStorage:security-sdk/s_sdk_cert_key}",
				StorageKey: "security-sdk/s_sdk_cert_key",
			},
		},
		{
			name: "unrecognized envelope is a fixed value",
			raw:  "${cookie:whatever}",
			want: rules.Rule{Kind: rules.KindFixed, Raw: "${cookie:whatever}"},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rules.Parse(tt.raw))
		})
	}
}

func TestEvaluateFixedValueLaw(t *testing.T) {
	t.Parallel()

	// Anything that is not an api or localStorage rule comes back verbatim,
	// with or without captured traffic.
	snap := []capture.Exchange{{URL: "https://x.test/api", ResponseBody: []byte(`{"a":1}`)}}
	for _, raw := range []string{"", "plain", "https://a.b/c", "${broken", "${api:short}"} {
		assert.Equal(t, raw, rules.Evaluate(raw, snap), "rule %q", raw)
		assert.Equal(t, raw, rules.Evaluate(raw, nil), "rule %q without captures", raw)
	}
}

func TestEvaluateResponseBody(t *testing.T) {
	t.Parallel()

	snap := []capture.Exchange{
		{
			URL:          "https://foo.test/x/y?ts=1",
			ResponseBody: []byte(`{"a":{"b":"v"}}`),
		},
	}
	assert.Equal(t, "v", rules.Evaluate("${api:/x/y:response:body:a:b}", snap))

	// No matching exchange at all: empty string, never an error.
	assert.Equal(t, "", rules.Evaluate("${api:/x/y:response:body:a:b}", nil))
	assert.Equal(t, "", rules.Evaluate("${api:/other:response:body:a:b}", snap))
}

func TestEvaluateBodyLeafShapes(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"int": 42,
		"float": 3.5,
		"bool": true,
		"null": null,
		"list": ["first", "second"],
		"obj": {"k": "v"},
		"dotted.key": "dot",
		"user": {"avatar_thumb": {"url_list": ["https://cdn.test/a.jpg"]}}
	}`)
	snap := []capture.Exchange{{URL: "https://foo.test/info", ResponseBody: body}}

	testCases := []struct {
		name string
		rule string
		want string
	}{
		{"integer renders without decimals", "${api:/info:response:body:int}", "42"},
		{"float keeps its fraction", "${api:/info:response:body:float}", "3.5"},
		{"boolean", "${api:/info:response:body:bool}", "true"},
		{"null yields empty", "${api:/info:response:body:null}", ""},
		{"array index", "${api:/info:response:body:list:1}", "second"},
		{"array leaf serializes to JSON", "${api:/info:response:body:list}", `["first", "second"]`},
		{"object leaf serializes to JSON", "${api:/info:response:body:obj}", `{"k": "v"}`},
		{"missing path yields empty", "${api:/info:response:body:user:missing:deep}", ""},
		{"non-traversable path yields empty", "${api:/info:response:body:int:nested}", ""},
		{"key containing a literal dot", "${api:/info:response:body:dotted.key}", "dot"},
		{"nested url_list index", "${api:/info:response:body:user:avatar_thumb:url_list:0}", "https://cdn.test/a.jpg"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rules.Evaluate(tt.rule, snap))
		})
	}
}

func TestEvaluateRequestHeaders(t *testing.T) {
	t.Parallel()

	snap := []capture.Exchange{
		{
			URL: "https://foo.test/account/api/v1/user/account/info",
			RequestHeaders: map[string]string{
				"Cookie":     "sid=abc",
				"User-Agent": "Mozilla/5.0",
			},
		},
	}

	// Header lookup is case-insensitive.
	assert.Equal(t, "sid=abc", rules.Evaluate("${api:/account/api:request:headers:cookie}", snap))
	assert.Equal(t, "Mozilla/5.0", rules.Evaluate("${api:/account/api:request:headers:user-agent}", snap))
	// Absent header degrades to empty.
	assert.Equal(t, "", rules.Evaluate("${api:/account/api:request:headers:referer}", snap))
}

func TestEvaluateBodyRuleSkipsHeaderOnlyExchange(t *testing.T) {
	t.Parallel()

	// The first matching URL has no captured body (non-JSON response);
	// the body rule keeps searching, the header rule takes the first hit.
	snap := []capture.Exchange{
		{
			URL:            "https://foo.test/login/check?attempt=1",
			RequestHeaders: map[string]string{"cookie": "early"},
		},
		{
			URL:            "https://foo.test/login/check?attempt=2",
			RequestHeaders: map[string]string{"cookie": "late"},
			ResponseBody:   []byte(`{"status":"ok"}`),
		},
	}

	assert.Equal(t, "ok", rules.Evaluate("${api:/login/check:response:body:status}", snap))
	assert.Equal(t, "early", rules.Evaluate("${api:/login/check:request:headers:cookie}", snap))
}

func TestEvaluateLocalStoragePlaceholderPassesThrough(t *testing.T) {
	t.Parallel()

	// The evaluator leaves storage placeholders alone; the result builder
	// substitutes them from the end-of-session snapshot.
	raw := "${localStorage:security-sdk/s_sdk_cert_key}"
	assert.Equal(t, raw, rules.Evaluate(raw, nil))
}

func TestCompileGlob(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		pattern string
		url     string
		match   bool
	}{
		{"double star spans path segments", "**/creator-micro/**", "https://foo.com/abc/creator-micro/def", true},
		{"no partial directory match", "**/creator-micro/**", "https://foo.com/creator-macro/x", false},
		{"single star", "https://*.douyin.com/", "https://creator.douyin.com/", true},
		{"literal dot is escaped", "https://a.b/", "https://axb/", false},
		{"question mark is one character", "v?", "v1", true},
		{"question mark is not two characters", "v?", "v12", false},
		{"anchored at both ends", "abc", "xabcx", false},
		{"exact literal", "abc", "abc", true},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			re, err := rules.CompileGlob(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.url),
				"pattern %q vs %q", tt.pattern, tt.url)
		})
	}
}

func TestWatchedPaths(t *testing.T) {
	t.Parallel()

	cfg := &schemas.ExtractorConfig{
		LoginSuccessMode:    schemas.ModeAPIMatch,
		LoginSuccessAPIRule: "${api:/login/check:response:body:status}",
		ExtractRules: schemas.ExtractRules{
			UserInfo: map[string]string{
				"nickname":   "${api:/web/api/media/user/info:response:body:user:nickname}",
				"avatar_url": "${api:/web/api/media/user/info:response:body:user:avatar_thumb:url_list:0}",
				"source":     "fixed-value",
			},
			RequestHeaders: map[string]string{
				"user-agent": "${api:/account/api/v1/user/account/info:request:headers:user-agent}",
			},
			Cookie: &schemas.CookieRule{
				Source:  schemas.CookieSourceAPI,
				APIPath: "/passport/cookie",
			},
		},
	}

	got := rules.WatchedPaths(cfg)
	assert.ElementsMatch(t, []string{
		"/web/api/media/user/info",
		"/account/api/v1/user/account/info",
		"/passport/cookie",
		"/login/check",
	}, got)

	// Duplicated paths collapse; fixed values contribute nothing.
	assert.Len(t, got, 4)
}

func TestWatchedPathsEmptyConfig(t *testing.T) {
	t.Parallel()
	assert.Empty(t, rules.WatchedPaths(&schemas.ExtractorConfig{}))
}
