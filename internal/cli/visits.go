package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/spf13/cobra"
)

func newVisitCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visit <landmark-id>",
		Short: "Record a landmark visit",
		Long:  "Report a visit to the server, or queue it for the next sync when offline.",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringP("session", "s", "", "Session id (generated when empty)")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		session, _ := cmd.Flags().GetString("session")
		receipt, err := a.Service.RecordVisit(cmd.Context(), args[0], session)
		if err != nil {
			return err
		}
		return output(cmd, flags, receipt, func(w io.Writer) {
			if receipt.Queued {
				fmt.Fprintf(w, "queued %s (%s)\n", receipt.LandmarkID, receipt.QueueID)
				return
			}
			fmt.Fprintf(w, "sent %s\n", receipt.LandmarkID)
		})
	})
	return cmd
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send queued visits to the server",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			result, err := a.Service.SyncQueuedVisits(cmd.Context())
			if err != nil && !errors.Is(err, model.ErrPartialSyncFailure) {
				return err
			}
			if oerr := output(cmd, flags, result, func(w io.Writer) {
				fmt.Fprintf(w, "synced %d, failed %d, deduplicated %d, dead-lettered %d\n",
					result.Synced, result.Failed, result.Deduplicated, result.DeadLettered)
			}); oerr != nil {
				return oerr
			}
			return err
		}),
	}
}
