package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexivanou/guide-offline/internal/app"
	"github.com/spf13/cobra"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an encrypted backup of packages and queued visits",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().StringP("password", "p", "", "Backup password (required)")
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	cmd.MarkFlagRequired("password")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		password, _ := cmd.Flags().GetString("password")
		out, _ := cmd.Flags().GetString("out")

		payload, err := a.Service.ExportBundle(cmd.Context(), password)
		if err != nil {
			return err
		}
		if out == "" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), payload)
			return err
		}
		if err := os.WriteFile(out, []byte(payload), 0600); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
		return output(cmd, flags, map[string]interface{}{"ok": true, "file": out}, nil)
	})
	return cmd
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore an encrypted backup",
		Long:  "Restore packages and queued visits. Packages whose version is already stored are skipped.",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringP("password", "p", "", "Backup password (required)")
	cmd.MarkFlagRequired("password")

	cmd.RunE = withApp(flags, func(cmd *cobra.Command, args []string, a *app.App) error {
		password, _ := cmd.Flags().GetString("password")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read backup: %w", err)
		}
		result, err := a.Service.ImportBundle(cmd.Context(), strings.TrimSpace(string(data)), password)
		if err != nil {
			return err
		}
		return output(cmd, flags, result, func(w io.Writer) {
			fmt.Fprintf(w, "imported %d packages (%d skipped), %d visits\n",
				result.PackagesImported, result.PackagesSkipped, result.VisitsImported)
		})
	})
	return cmd
}
