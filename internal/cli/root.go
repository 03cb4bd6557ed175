// Package cli implements the guidectl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/alexivanou/guide-offline/internal/config"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type globalFlags struct {
	format  string
	offline bool
	verbose bool
}

// NewRootCmd builds the guidectl command tree
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "guidectl",
		Short:         "Manage the offline audio-guide store",
		Long:          "Download city packages, inspect storage, sync queued visits and back up the offline store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.format, "format", "f", "json", "Output format: json or text")
	root.PersistentFlags().BoolVar(&flags.offline, "offline", false, "Skip the connectivity probe and act offline")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Log to stderr")

	root.AddCommand(
		newStatusCmd(flags),
		newDownloadCmd(flags),
		newListCmd(flags),
		newRmCmd(flags),
		newVisitCmd(flags),
		newSyncCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newAudioCmd(flags),
		newStorageCmd(flags),
		newClearCmd(flags),
		newCacheCmd(flags),
	)
	return root
}

// openApp boots the store and cache tiers and probes the remote API once
func openApp(cmd *cobra.Command, flags *globalFlags) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if flags.verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}

	if flags.offline {
		a.Monitor.Set(false)
	} else {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Sync.RequestTimeout+time.Second)
		a.Prober.Probe(ctx)
		cancel()
	}
	return a, nil
}

// withApp runs fn against an opened app and closes it afterwards
func withApp(flags *globalFlags, fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, flags)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, args, a)
	}
}

// output writes v as JSON, or calls text when the text format was requested
func output(cmd *cobra.Command, flags *globalFlags, v interface{}, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if flags.format == "text" && text != nil {
		text(w)
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
