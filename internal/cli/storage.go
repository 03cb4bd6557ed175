package cli

import (
	"fmt"
	"io"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/alexivanou/guide-offline/internal/cachetier"
	"github.com/spf13/cobra"
)

func newStorageCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Show what the offline store holds",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			info, err := a.Service.StorageInfo(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd, flags, info, func(w io.Writer) {
				fmt.Fprintf(w, "packages:  %d (%d landmarks, ~%s)\n", info.Packages.Packages, info.Packages.Landmarks, formatBytes(info.Packages.EstimatedBytes))
				fmt.Fprintf(w, "audio:     %d clips, %s\n", info.Audio.Count, formatBytes(info.Audio.TotalBytes))
				fmt.Fprintf(w, "visits:    %d pending, %d dead\n", info.Visits.Pending, info.Visits.Dead)
			})
		}),
	}
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every package and the visit queue",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Bool("audio", false, "Also delete stored audio")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		withAudio, _ := cmd.Flags().GetBool("audio")
		if err := a.Service.ClearAllOfflineData(cmd.Context()); err != nil {
			return err
		}
		if withAudio {
			if err := a.Service.ClearAudio(cmd.Context()); err != nil {
				return err
			}
		}
		return output(cmd, flags, map[string]bool{"ok": true}, nil)
	})
	return cmd
}

func newCacheCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the request cache tiers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every request cache",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Cache.HandleMessage(cmd.Context(), cachetier.MessageClearCache); err != nil {
				return err
			}
			return output(cmd, flags, map[string]string{"state": a.Cache.State().String()}, nil)
		}),
	})
	return cmd
}
