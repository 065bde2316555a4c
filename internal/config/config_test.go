package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

// resetSingleton gives each test a clean slate around the process-global
// config instance.
func resetSingleton() {
	instance = nil
	once = sync.Once{}
	loadErr = nil
}

func TestGetUninitialized(t *testing.T) {
	resetSingleton()
	assert.Panics(t, func() { Get() }, "Get() should panic if configuration is not initialized")
}

func TestLoadAndGet(t *testing.T) {
	resetSingleton()

	yamlConfig := []byte(`
logger:
  level: debug
  service_name: amm-test
browser:
  headless: true
  window_width: 1440
extraction:
  login_timeout: 120s
  poll_interval: 500ms
store:
  path: /tmp/amm/platforms.db
`)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	require.NoError(t, Load(v))

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "amm-test", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1440, cfg.Browser.WindowWidth)
	assert.Equal(t, 120*time.Second, cfg.Extraction.LoginTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Extraction.PollInterval)
	assert.Equal(t, "/tmp/amm/platforms.db", cfg.Store.Path)

	// Subsequent loads must not replace the instance.
	v2 := viper.New()
	v2.SetConfigType("yaml")
	_ = v2.ReadConfig(bytes.NewBufferString(`logger: {level: error}`))
	require.NoError(t, Load(v2))

	cfg2 := Get()
	assert.Same(t, cfg, cfg2, "Get() should return the same instance")
	assert.Equal(t, "debug", cfg2.Logger.Level, "Configuration should not be reloaded")
}

func TestSetDefaults(t *testing.T) {
	resetSingleton()

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, Load(v))

	cfg := Get()
	assert.False(t, cfg.Browser.Headless, "the operator must see the login page by default")
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 800, cfg.Browser.WindowHeight)
	assert.NotEmpty(t, cfg.Browser.UserAgent)
	assert.Equal(t, 300*time.Second, cfg.Extraction.LoginTimeout)
	assert.Equal(t, time.Second, cfg.Extraction.PollInterval)
	assert.Equal(t, 3*time.Second, cfg.Extraction.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Extraction.QuietWindow)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "zero values are fine",
			config: Config{},
		},
		{
			name:        "negative login timeout",
			config:      Config{Extraction: ExtractionConfig{LoginTimeout: -time.Second}},
			expectError: true,
			errorMsg:    "login_timeout",
		},
		{
			name:        "negative poll interval",
			config:      Config{Extraction: ExtractionConfig{PollInterval: -time.Second}},
			expectError: true,
			errorMsg:    "poll_interval",
		},
		{
			name:        "negative window size",
			config:      Config{Browser: BrowserConfig{WindowWidth: -1}},
			expectError: true,
			errorMsg:    "window",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSet(t *testing.T) {
	resetSingleton()

	expected := &Config{Store: StoreConfig{Path: "set-from-test"}}
	Set(expected)

	assert.Same(t, expected, Get())
}

// -- Run config ingestion --

func validRunConfigJSON() string {
	return `{
		"platform_id": "douyin",
		"platform_name": "抖音创作者平台",
		"login_url": "https://creator.douyin.com/",
		"login_success_mode": "url_match",
		"login_success_pattern": "**/creator-micro/**",
		"extract_rules": {
			"user_info": {"nickname": "${api:/web/api/media/user/info:response:body:user:nickname}"},
			"request_headers": {"Cookie": "${api:/account/api:request:headers:cookie}"},
			"local_storage": ["security-sdk/s_sdk_cert_key"],
			"cookie": {"source": "from_browser"}
		}
	}`
}

func TestParseRunConfig(t *testing.T) {
	cfg, err := ParseRunConfig([]byte(validRunConfigJSON()))
	require.NoError(t, err)
	assert.Equal(t, "douyin", cfg.PlatformID)
	assert.Equal(t, schemas.ModeURLMatch, cfg.LoginSuccessMode)
	assert.Equal(t, "Cookie", mapKey(cfg.ExtractRules.RequestHeaders), "header-name casing survives parsing")
}

func mapKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}

func TestParseRunConfigDefaultsMode(t *testing.T) {
	cfg, err := ParseRunConfig([]byte(`{
		"login_url": "https://creator.douyin.com/",
		"login_success_pattern": "**/home/**",
		"extract_rules": {"user_info": {}, "request_headers": {}, "local_storage": []}
	}`))
	require.NoError(t, err)
	assert.Equal(t, schemas.ModeURLMatch, cfg.LoginSuccessMode)
}

func TestParseRunConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty input", "   ", "empty"},
		{"malformed json", `{"login_url":`, "parse extractor config"},
		{"missing login url", `{"login_success_pattern":"*"}`, "login_url"},
		{"relative login url", `{"login_url":"creator.douyin.com"}`, "absolute URL"},
		{
			"url match without pattern",
			`{"login_url":"https://x.test/","login_success_mode":"url_match"}`,
			"login_success_pattern",
		},
		{
			"api match without rule",
			`{"login_url":"https://x.test/","login_success_mode":"api_match"}`,
			"login_success_api_rule",
		},
		{
			"api match with non api rule",
			`{"login_url":"https://x.test/","login_success_mode":"api_match",
			  "login_success_api_rule":"plain","login_success_api_operator":"Eq","login_success_api_value":"ok"}`,
			"not an ${api:...} rule",
		},
		{
			"api match with unknown operator",
			`{"login_url":"https://x.test/","login_success_mode":"api_match",
			  "login_success_api_rule":"${api:/c:response:body:s}","login_success_api_operator":"equals","login_success_api_value":"ok"}`,
			"operator",
		},
		{
			"api match without expected value",
			`{"login_url":"https://x.test/","login_success_mode":"api_match",
			  "login_success_api_rule":"${api:/c:response:body:s}","login_success_api_operator":"Eq"}`,
			"login_success_api_value",
		},
		{
			"unknown mode",
			`{"login_url":"https://x.test/","login_success_mode":"dom_match"}`,
			"login_success_mode",
		},
		{
			"unknown cookie source",
			`{"login_url":"https://x.test/","login_success_pattern":"*",
			  "extract_rules":{"cookie":{"source":"jar"}}}`,
			"cookie.source",
		},
		{
			"api cookie without path",
			`{"login_url":"https://x.test/","login_success_pattern":"*",
			  "extract_rules":{"cookie":{"source":"from_api"}}}`,
			"api_path",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRunConfig([]byte(tc.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)

			var cfgErr *Error
			assert.True(t, errors.As(err, &cfgErr), "all parse failures are config errors")
		})
	}
}

func TestRunConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "douyin.json")
	require.NoError(t, os.WriteFile(path, []byte(validRunConfigJSON()), 0o600))

	cfg, err := RunConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "douyin", cfg.PlatformID)

	_, err = RunConfigFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	var cfgErr *Error
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRunConfigFromEnv(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		t.Setenv(EnvRunConfig, "")
		cfg, ok, err := RunConfigFromEnv()
		assert.Nil(t, cfg)
		assert.False(t, ok)
		assert.NoError(t, err)
	})

	t.Run("present", func(t *testing.T) {
		t.Setenv(EnvRunConfig, validRunConfigJSON())
		cfg, ok, err := RunConfigFromEnv()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "douyin", cfg.PlatformID)
	})

	t.Run("present but invalid", func(t *testing.T) {
		t.Setenv(EnvRunConfig, `{"login_url":""}`)
		_, ok, err := RunConfigFromEnv()
		assert.True(t, ok)
		assert.Error(t, err)
	})
}
