package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/preflight"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var platformID string

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can run an extraction",
		Long: `doctor verifies the pieces an extraction needs before any browser
window opens: a Chrome binary, a reachable login page for the chosen
platform, and the config store location.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			appCfg := config.Get()
			out := cmd.OutOrStdout()

			failed := false

			path, err := preflight.FindBrowser(appCfg.Browser.ExecPath)
			if err != nil {
				failed = true
				fmt.Fprintf(out, "browser:    MISSING (%v)\n", err)
			} else {
				fmt.Fprintf(out, "browser:    %s\n", path)
			}

			cfg, err := loadPlatform(ctx, platformID, appCfg, logger)
			if err != nil {
				failed = true
				fmt.Fprintf(out, "platform:   %s (%v)\n", platformID, err)
			} else {
				probe, err := preflight.ProbeLoginURL(ctx, cfg.LoginURL, appCfg.Browser.UserAgent)
				if err != nil {
					failed = true
					fmt.Fprintf(out, "login page: UNREACHABLE (%v)\n", err)
				} else {
					fmt.Fprintf(out, "login page: HTTP %d %q\n", probe.StatusCode, probe.Title)
				}
			}

			storePath := appCfg.Store.Path
			if storePath == "" {
				if p, err := store.DefaultPath(); err == nil {
					storePath = p
				}
			}
			fmt.Fprintf(out, "store:      %s\n", storePath)

			if failed {
				return errors.New("doctor found problems")
			}
			fmt.Fprintln(out, "ok")
			return nil
		},
	}

	doctorCmd.Flags().StringVarP(&platformID, "platform", "p", "douyin", "platform whose login page to probe")
	return doctorCmd
}
