package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/browser"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/emit"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/engine"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/platform"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/store"
)

func newExtractCmd() *cobra.Command {
	var (
		filePath   string
		platformID string
	)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Run one login-and-extract flow and print the result envelope",
		Long: `extract opens the platform's login page in a browser, waits for the
operator to log in (QR scan or password), then evaluates the configured
extraction rules against the captured traffic.

The run config comes from, in order of precedence: --file, the ` + config.EnvRunConfig + `
environment variable (raw JSON), or --platform resolved against the
saved-config store and then the builtin presets.

The process exits 0 whenever a result envelope was emitted, even a
failure one; a non-zero exit means the run config itself was rejected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			appCfg := config.Get()

			runCfg, err := resolveRunConfig(ctx, filePath, platformID, appCfg, logger)
			if err != nil {
				return err
			}
			logger.Info("starting extraction",
				zap.String("platform_id", runCfg.PlatformID),
				zap.String("login_url", runCfg.LoginURL),
				zap.String("mode", string(runCfg.LoginSuccessMode)))

			eng := engine.New(runCfg, appCfg.Extraction, newSessionLauncher(appCfg.Browser, logger), logger)
			res := eng.Run(ctx)

			if err := emit.WriteResult(cmd.OutOrStdout(), res); err != nil {
				return fmt.Errorf("emit result: %w", err)
			}
			return nil
		},
	}

	extractCmd.Flags().StringVarP(&filePath, "file", "f", "", "path to a run config JSON file")
	extractCmd.Flags().StringVarP(&platformID, "platform", "p", "", "saved or builtin platform id")
	return extractCmd
}

// resolveRunConfig applies the ingestion precedence: --file, then the
// environment variable, then --platform.
func resolveRunConfig(ctx context.Context, filePath, platformID string, appCfg *config.Config, logger *zap.Logger) (*schemas.ExtractorConfig, error) {
	if filePath != "" {
		logger.Info("run config from file", zap.String("path", filePath))
		return config.RunConfigFromFile(filePath)
	}

	if cfg, ok, err := config.RunConfigFromEnv(); ok || err != nil {
		if err != nil {
			return nil, err
		}
		logger.Info("run config from environment", zap.String("var", config.EnvRunConfig))
		return cfg, nil
	}

	if platformID != "" {
		cfg, err := loadPlatform(ctx, platformID, appCfg, logger)
		if err != nil {
			return nil, err
		}
		config.NormalizeRunConfig(cfg)
		if err := config.ValidateRunConfig(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	return nil, &config.Error{
		Field:  "config",
		Reason: fmt.Sprintf("no run config given: pass --file, set %s, or pass --platform", config.EnvRunConfig),
	}
}

// loadPlatform resolves a platform id against the store first, the
// builtin presets second. An unusable store degrades to presets only.
func loadPlatform(ctx context.Context, id string, appCfg *config.Config, logger *zap.Logger) (*schemas.ExtractorConfig, error) {
	st, err := store.Open(appCfg.Store.Path, logger)
	if err != nil {
		logger.Warn("store unavailable, using builtin presets only", zap.Error(err))
	} else {
		defer st.Close()
		cfg, err := st.Get(ctx, id)
		if err == nil {
			logger.Info("run config from store", zap.String("platform_id", id))
			return cfg, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	cfg, err := platform.Builtin(id)
	if err != nil {
		return nil, &config.Error{Field: "platform", Reason: err.Error()}
	}
	logger.Info("run config from builtin preset", zap.String("platform_id", id))
	return cfg, nil
}

// managedDriver ties a session to its manager so one Close tears down
// both the tab and the allocator.
type managedDriver struct {
	*browser.Session
	mgr *browser.Manager
}

func (d managedDriver) Close(ctx context.Context) error {
	err := d.Session.Close(ctx)
	d.mgr.Shutdown()
	return err
}

func newSessionLauncher(bcfg config.BrowserConfig, logger *zap.Logger) engine.Launcher {
	return func(ctx context.Context, watched []string) (engine.Driver, error) {
		mgr := browser.NewManager(ctx, logger, bcfg)
		sess, err := mgr.NewSession(ctx, watched)
		if err != nil {
			mgr.Shutdown()
			return nil, err
		}
		return managedDriver{Session: sess, mgr: mgr}, nil
	}
}
