package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
)

// Version is stamped by the build.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "amm-extractor",
	Short: "Config-driven credential extraction for creator platforms",
	Long: `amm-extractor drives a real browser through a platform login flow,
watches the traffic the page produces, and evaluates a declarative rule
set against it to pull out credentials: user info, auth headers, the
cookie and selected localStorage keys.

The result is printed to stdout as one JSON object between
RESULT_JSON_START and RESULT_JSON_END markers; everything else the
program says goes to stderr.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("initialize configuration: %w", err)
		}
		if err := config.Load(viper.GetViper()); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		observability.InitializeLogger(config.Get().Logger)
		observability.GetLogger().Debug("configuration loaded",
			zap.String("version", Version),
			zap.String("config_file", viper.ConfigFileUsed()))
		return nil
	},
}

// Execute runs the command tree. The context carries signal cancellation
// from main; a cancelled run is not reported as a command failure here
// because the engine already folded it into the result.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && ctx.Err() == nil {
		observability.GetLogger().Error("command failed", zap.Error(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logger.level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this file")
	_ = viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logger.log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newPlatformsCmd())
	rootCmd.AddCommand(newDoctorCmd())
}

// initializeConfig wires viper: defaults, the optional config file, and
// AMM_-prefixed environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/auto-matrix-manager")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
		// No config file is fine; defaults and env cover everything.
	}
	return nil
}
