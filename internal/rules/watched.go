package rules

import (
	"sort"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

// WatchedPaths collects every api-path substring referenced by the
// config's rules: user_info, request_headers, the cookie rule, and the
// login-success rule. The capture layer retains only exchanges whose URL
// contains one of these, which bounds memory over a long login wait.
// Order is deterministic (sorted rule keys, first appearance wins).
func WatchedPaths(cfg *schemas.ExtractorConfig) []string {
	seen := make(map[string]struct{})
	var paths []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}
	addRule := func(raw string) {
		if r := Parse(raw); r.Kind == KindAPI {
			add(r.APIPath)
		}
	}

	for _, k := range sortedKeys(cfg.ExtractRules.UserInfo) {
		addRule(cfg.ExtractRules.UserInfo[k])
	}
	for _, k := range sortedKeys(cfg.ExtractRules.RequestHeaders) {
		addRule(cfg.ExtractRules.RequestHeaders[k])
	}
	if c := cfg.ExtractRules.Cookie; c.FromAPI() {
		add(c.APIPath)
	}
	if cfg.LoginSuccessMode == schemas.ModeAPIMatch {
		addRule(cfg.LoginSuccessAPIRule)
	}
	return paths
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
