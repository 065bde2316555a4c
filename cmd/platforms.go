package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/platform"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/store"
)

func newPlatformsCmd() *cobra.Command {
	platformsCmd := &cobra.Command{
		Use:   "platforms",
		Short: "Manage saved platform configs",
		Long: `Saved configs live in a local SQLite store and take precedence over
the builtin presets when "extract --platform" resolves an id.`,
	}
	platformsCmd.AddCommand(
		newPlatformsListCmd(),
		newPlatformsShowCmd(),
		newPlatformsSaveCmd(),
		newPlatformsRemoveCmd(),
	)
	return platformsCmd
}

func openStore() (*store.Store, error) {
	return store.Open(config.Get().Store.Path, observability.GetLogger())
}

func newPlatformsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved platforms and builtin presets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			saved, err := st.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSOURCE\tUPDATED")
			seen := map[string]bool{}
			for _, p := range saved {
				seen[p.PlatformID] = true
				fmt.Fprintf(w, "%s\t%s\tsaved\t%s\n",
					p.PlatformID, p.PlatformName, p.UpdatedAt.Format("2006-01-02 15:04"))
			}
			for _, id := range platform.BuiltinIDs() {
				if seen[id] {
					continue
				}
				cfg, err := platform.Builtin(id)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\tbuiltin\t-\n", id, cfg.PlatformName)
			}
			return w.Flush()
		},
	}
}

func newPlatformsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one platform config as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPlatform(cmd.Context(), args[0], config.Get(), observability.GetLogger())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newPlatformsSaveCmd() *cobra.Command {
	var filePath string

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Validate a run config file and save it to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.RunConfigFromFile(filePath)
			if err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Save(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", cfg.PlatformID, cfg.PlatformName)
			return nil
		},
	}

	saveCmd.Flags().StringVarP(&filePath, "file", "f", "", "path to a run config JSON file (required)")
	_ = saveCmd.MarkFlagRequired("file")
	return saveCmd
}

func newPlatformsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a saved platform config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
