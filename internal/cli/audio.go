package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newAudioCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Manage stored narration audio",
	}
	cmd.AddCommand(
		newAudioPrefetchCmd(flags),
		newAudioListCmd(flags),
		newAudioGetCmd(flags),
		newAudioClearCmd(flags),
	)
	return cmd
}

func newAudioPrefetchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prefetch <requests.json>",
		Short: "Download every clip listed in a JSON array of audio requests",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read requests: %w", err)
			}
			var reqs []model.AudioRequest
			if err := json.Unmarshal(data, &reqs); err != nil {
				return fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
			}
			result, err := a.Service.PrefetchAudio(cmd.Context(), reqs)
			if result != nil {
				if oerr := output(cmd, flags, result, func(w io.Writer) {
					fmt.Fprintf(w, "downloaded %d, skipped %d, failed %d\n", result.Downloaded, result.Skipped, result.Failed)
				}); oerr != nil {
					return oerr
				}
			}
			return err
		}),
	}
}

func newAudioListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list <city-id>",
		Short: "List stored clips for a downloaded city",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			assets, err := a.Service.ListAudio(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return output(cmd, flags, assets, func(w io.Writer) {
				for _, asset := range assets {
					fmt.Fprintf(w, "%-20s %-4s %8s %5.0fs\n", asset.LandmarkID, asset.Language, formatBytes(asset.SizeBytes), asset.DurationSeconds)
				}
			})
		}),
	}
}

func newAudioGetCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <landmark-id>",
		Short: "Write a stored clip to a file",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringP("lang", "l", "en", "Language")
	cmd.Flags().StringP("out", "o", "", "Output file (required)")
	cmd.MarkFlagRequired("out")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		lang, _ := cmd.Flags().GetString("lang")
		out, _ := cmd.Flags().GetString("out")

		asset, err := a.Service.GetAudio(cmd.Context(), args[0], lang)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, asset.Audio, 0644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		return output(cmd, flags, asset, nil)
	})
	return cmd
}

func newAudioClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored clip",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
			if err := a.Service.ClearAudio(cmd.Context()); err != nil {
				return err
			}
			return output(cmd, flags, map[string]bool{"ok": true}, nil)
		}),
	}
}
