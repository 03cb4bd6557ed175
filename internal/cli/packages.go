package cli

import (
	"fmt"
	"io"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/spf13/cobra"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and downloaded cities",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			status := a.Service.Status(cmd.Context())
			return output(cmd, flags, status, func(w io.Writer) {
				state := "offline"
				if status.IsOnline {
					state = "online"
				}
				fmt.Fprintf(w, "network: %s\n", state)
				fmt.Fprintf(w, "cities:  %d\n", len(status.DownloadedCities))
			})
		}),
	}
}

func newDownloadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "download <city-id>...",
		Short: "Download offline packages",
		Long:  "Download or refresh the offline package of each city. Unchanged packages transfer no data.",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			results := make([]model.DownloadProgress, 0, len(args))
			var firstErr error
			for _, cityID := range args {
				err := a.Service.DownloadCity(cmd.Context(), cityID)
				progress, _ := a.Service.Progress(cityID)
				results = append(results, progress)
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if err := output(cmd, flags, results, func(w io.Writer) {
				for _, p := range results {
					fmt.Fprintf(w, "%-12s %-9s %s\n", p.CityID, p.Status, p.Message)
				}
			}); err != nil {
				return err
			}
			return firstErr
		}),
	}
}

func newListCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloaded cities",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().Bool("available", false, "List cities offered by the server instead")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		available, _ := cmd.Flags().GetBool("available")
		if available {
			listing, err := a.Service.ListAvailablePackages(cmd.Context())
			if err != nil {
				return err
			}
			return output(cmd, flags, listing, func(w io.Writer) {
				for _, p := range listing {
					fmt.Fprintf(w, "%-12s %-20s %3d landmarks\n", p.ID, p.Name, p.LandmarkCount)
				}
			})
		}

		cities := a.Service.DownloadedCities(cmd.Context())
		return output(cmd, flags, cities, func(w io.Writer) {
			for _, c := range cities {
				fmt.Fprintf(w, "%-12s %-20s %3d landmarks  %s\n", c.CityID, c.Name, c.LandmarkCount, formatBytes(c.SizeBytes))
			}
		})
	})
	return cmd
}

func newRmCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <city-id>...",
		Short: "Delete downloaded cities",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			for _, cityID := range args {
				if err := a.Service.DeleteCity(cmd.Context(), cityID); err != nil {
					return err
				}
			}
			return output(cmd, flags, map[string]interface{}{"ok": true, "deleted": args}, nil)
		}),
	}
}
