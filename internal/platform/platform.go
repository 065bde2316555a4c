// Package platform ships the built-in extractor configs. A config saved
// in the store under the same id takes precedence; these are the factory
// defaults an operator starts from.
package platform

import (
	"fmt"
	"sort"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

var builtins = map[string]func() *schemas.ExtractorConfig{
	"douyin": douyin,
}

// Builtin returns a fresh copy of the factory config for id, so callers
// may edit it freely before saving.
func Builtin(id string) (*schemas.ExtractorConfig, error) {
	f, ok := builtins[id]
	if !ok {
		return nil, fmt.Errorf("no builtin platform %q", id)
	}
	return f(), nil
}

// BuiltinIDs lists the bundled platform ids in stable order.
func BuiltinIDs() []string {
	ids := make([]string, 0, len(builtins))
	for id := range builtins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func douyin() *schemas.ExtractorConfig {
	return &schemas.ExtractorConfig{
		PlatformID:          "douyin",
		PlatformName:        "抖音",
		LoginURL:            "https://creator.douyin.com/",
		LoginSuccessMode:    schemas.ModeURLMatch,
		LoginSuccessPattern: "**/creator-micro/**",
		ExtractRules: schemas.ExtractRules{
			UserInfo: map[string]string{
				"uid":        "${api:/web/api/media/user/info:response:body:user:uid}",
				"nickname":   "${api:/web/api/media/user/info:response:body:user:nickname}",
				"avatar_url": "${api:/web/api/media/user/info:response:body:user:avatar_thumb:url_list:0}",
			},
			RequestHeaders: map[string]string{
				"accept":              "${api:/account/api/v1/user/account/info:request:headers:accept}",
				"user-agent":          "${api:/account/api/v1/user/account/info:request:headers:user-agent}",
				"sec-ch-ua":           "${api:/account/api/v1/user/account/info:request:headers:sec-ch-ua}",
				"sec-ch-ua-mobile":    "${api:/account/api/v1/user/account/info:request:headers:sec-ch-ua-mobile}",
				"sec-ch-ua-platform":  "${api:/account/api/v1/user/account/info:request:headers:sec-ch-ua-platform}",
				"sec-fetch-dest":      "${api:/account/api/v1/user/account/info:request:headers:sec-fetch-dest}",
				"sec-fetch-mode":      "${api:/account/api/v1/user/account/info:request:headers:sec-fetch-mode}",
				"sec-fetch-site":      "${api:/account/api/v1/user/account/info:request:headers:sec-fetch-site}",
				"accept-encoding":     "${api:/account/api/v1/user/account/info:request:headers:accept-encoding}",
				"accept-language":     "${api:/account/api/v1/user/account/info:request:headers:accept-language}",
				"x-secsdk-csrf-token": "${api:/account/api/v1/user/account/info:request:headers:x-secsdk-csrf-token}",
			},
			LocalStorage: []string{
				"security-sdk/s_sdk_cert_key",
				"security-sdk/s_sdk_crypt_sdk",
				"security-sdk/s_sdk_pri_key",
				"security-sdk/s_sdk_pub_key",
				"security-sdk/s_sdk_server_cert_key",
				"security-sdk/s_sdk_sign_data_key/token",
				"security-sdk/s_sdk_sign_data_key/web_protect",
			},
			Cookie: &schemas.CookieRule{Source: schemas.CookieSourceBrowser},
		},
	}
}
