package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/rules"
)

// EnvRunConfig is the environment variable through which the desktop app
// hands the extractor a raw JSON run config.
const EnvRunConfig = "AMM_CONFIG"

// Error is a fatal configuration problem detected before any browser
// launches. The CLI reports it on stderr and exits non-zero without
// emitting a result envelope.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func errf(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseRunConfig decodes and validates one ExtractorConfig from raw JSON.
// Decoding deliberately uses encoding/json: header-name keys inside
// extract_rules carry meaning in their exact casing and must not be
// normalized by the config machinery.
func ParseRunConfig(raw []byte) (*schemas.ExtractorConfig, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &Error{Reason: "extractor config is empty"}
	}
	var cfg schemas.ExtractorConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errf("", "parse extractor config: %v", err)
	}
	NormalizeRunConfig(&cfg)
	if err := ValidateRunConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RunConfigFromFile loads a run config from a JSON file path.
func RunConfigFromFile(path string) (*schemas.ExtractorConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errf("", "read extractor config %s: %v", path, err)
	}
	return ParseRunConfig(raw)
}

// RunConfigFromEnv loads a run config from the AMM_CONFIG environment
// variable. The second return reports whether the variable was set at all,
// so callers can fall through to other sources when it is absent.
func RunConfigFromEnv() (*schemas.ExtractorConfig, bool, error) {
	raw, ok := os.LookupEnv(EnvRunConfig)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, false, nil
	}
	cfg, err := ParseRunConfig([]byte(raw))
	return cfg, true, err
}

// NormalizeRunConfig fills documented defaults in place: an absent
// login_success_mode means url_match.
func NormalizeRunConfig(cfg *schemas.ExtractorConfig) {
	if cfg.LoginSuccessMode == "" {
		cfg.LoginSuccessMode = schemas.ModeURLMatch
	}
}

// ValidateRunConfig checks that a run config is complete enough to drive
// a session. Everything rejected here would otherwise hang the detector or
// silently extract nothing; partial extract_rules are deliberately legal.
func ValidateRunConfig(cfg *schemas.ExtractorConfig) error {
	if cfg.LoginURL == "" {
		return &Error{Field: "login_url", Reason: "is required"}
	}
	u, err := url.Parse(cfg.LoginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errf("login_url", "%q is not an absolute URL", cfg.LoginURL)
	}

	switch cfg.LoginSuccessMode {
	case schemas.ModeURLMatch:
		if cfg.LoginSuccessPattern == "" {
			return &Error{Field: "login_success_pattern", Reason: "is required for url_match"}
		}
		if _, err := rules.CompileGlob(cfg.LoginSuccessPattern); err != nil {
			return errf("login_success_pattern", "%q does not compile: %v", cfg.LoginSuccessPattern, err)
		}
	case schemas.ModeAPIMatch:
		if cfg.LoginSuccessAPIRule == "" {
			return &Error{Field: "login_success_api_rule", Reason: "is required for api_match"}
		}
		if r := rules.Parse(cfg.LoginSuccessAPIRule); r.Kind != rules.KindAPI {
			return errf("login_success_api_rule", "%q is not an ${api:...} rule", cfg.LoginSuccessAPIRule)
		}
		if !cfg.LoginSuccessAPIOperator.Known() {
			return errf("login_success_api_operator", "unknown operator %q", cfg.LoginSuccessAPIOperator)
		}
		if cfg.LoginSuccessAPIValue == "" {
			return &Error{Field: "login_success_api_value", Reason: "is required for api_match"}
		}
	default:
		return errf("login_success_mode", "unknown mode %q", cfg.LoginSuccessMode)
	}

	if c := cfg.ExtractRules.Cookie; c != nil {
		switch c.Source {
		case "", schemas.CookieSourceBrowser, "browser", schemas.CookieSourceAPI, "api":
		default:
			return errf("extract_rules.cookie.source", "unknown source %q", c.Source)
		}
		if c.FromAPI() && c.APIPath == "" {
			return &Error{Field: "extract_rules.cookie.api_path", Reason: "is required when source is from_api"}
		}
	}
	return nil
}
