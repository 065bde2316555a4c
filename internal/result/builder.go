// Package result assembles the final AuthResult from captured traffic, the
// end-of-session localStorage snapshot, and the browser cookie jar.
package result

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/rules"
)

// Inputs is everything one extraction run gathered before building.
type Inputs struct {
	Exchanges  []capture.Exchange
	Storage    []schemas.LocalStorageItem
	CookieJar  string
	CurrentURL string
}

// Builder walks the configured extract_rules and fills an AuthResult. It
// never fails: missing data yields empty fields, because partial
// credentials still let the caller retry a narrower step.
type Builder struct {
	cfg    *schemas.ExtractorConfig
	logger *zap.Logger
}

func NewBuilder(cfg *schemas.ExtractorConfig, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{cfg: cfg, logger: logger.Named("result")}
}

// Build fills the extraction fields of res in place. The output mirrors
// the shape of extract_rules exactly: every configured key appears, with
// its rule string replaced by the evaluated value.
func (b *Builder) Build(res *schemas.AuthResult, in Inputs) {
	cfg := b.cfg.ExtractRules

	for name, raw := range cfg.UserInfo {
		value := b.evaluate(raw, in)
		if value == "" {
			b.logger.Debug("user_info field evaluated empty", zap.String("field", name))
		}
		res.UserInfo[name] = value
	}
	for name, raw := range cfg.RequestHeaders {
		value := b.evaluate(raw, in)
		if value == "" {
			b.logger.Debug("request_headers field evaluated empty", zap.String("header", name))
		}
		res.RequestHeaders[name] = value
	}

	res.Cookie = b.cookieValue(in)
	res.LocalStorage = append(res.LocalStorage, in.Storage...)
	res.CurrentURL = in.CurrentURL
}

// evaluate resolves one rule string. localStorage placeholders are
// resolved here, from the end-of-session snapshot, because storage is
// page-scoped and read once rather than streamed like network traffic.
// A referenced key must therefore be listed in local_storage to resolve.
func (b *Builder) evaluate(raw string, in Inputs) string {
	rule := rules.Parse(raw)
	if rule.Kind == rules.KindLocalStorage {
		for _, item := range in.Storage {
			if item.Key == rule.StorageKey {
				return item.Value
			}
		}
		return ""
	}
	return rules.EvaluateRule(rule, in.Exchanges)
}

// cookieValue resolves the cookie through the ordered strategy list:
// the configured api request header first, the browser jar otherwise or
// when the api source yields nothing.
func (b *Builder) cookieValue(in Inputs) string {
	if c := b.cfg.ExtractRules.Cookie; c.FromAPI() {
		header := c.HeaderName
		if header == "" {
			header = "cookie"
		}
		for i := range in.Exchanges {
			exch := &in.Exchanges[i]
			if !strings.Contains(exch.URL, c.APIPath) {
				continue
			}
			if v, ok := exch.RequestHeader(header); ok && v != "" {
				return v
			}
		}
		b.logger.Debug("api cookie source yielded nothing, using browser jar",
			zap.String("api_path", c.APIPath),
			zap.String("header", header))
	}
	return in.CookieJar
}

// Extracted reports whether a built result carries anything usable: at
// least one non-empty user_info field or a cookie. Success hinges on this
// after login detection.
func Extracted(res *schemas.AuthResult) bool {
	if res.Cookie != "" {
		return true
	}
	for _, v := range res.UserInfo {
		if v != "" {
			return true
		}
	}
	return false
}
