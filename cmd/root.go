// cmd/root.go

package cmd

import (
	"fmt"
	"os"

	"github.com/CodeMonkeyCybersecurity/charon/cmd/bootstrap"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_cli"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_io"
	"github.com/CodeMonkeyCybersecurity/charon/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd is the base command for charon.
var RootCmd = &cobra.Command{
	Use:   "charon",
	Short: "Charon provisions MySQL routers against an InnoDB cluster",
	Long: `Charon bootstraps router deployments: it discovers the cluster topology
from the metadata server, registers a router identity, provisions a
dedicated database account with its password sealed in an encrypted
keyring, and writes the router configuration atomically.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: charon_cli.Wrap(func(rc *charon_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		fmt.Println("⚠️  No subcommand provided. Try `charon help`.")
		return cmd.Help()
	}),
}

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands() {
	RootCmd.AddCommand(bootstrap.BootstrapCmd)

	RootCmd.PersistentFlags().Bool("debug", false, "Enable debug diagnostics in error output")
	cobra.OnInitialize(func() {
		if debug, err := RootCmd.PersistentFlags().GetBool("debug"); err == nil && debug {
			charon_err.SetDebugMode(true)
		}
	})
}

// Execute runs the root command and maps the outcome to a process exit code.
// A prompt abort exits 130 without an error banner.
func Execute() {
	defer func() {
		_ = logger.Sync()
	}()

	RegisterCommands()

	if err := RootCmd.Execute(); err != nil {
		if charon_err.IsUserAbort(err) {
			logger.L().Debug("Cancelled by user")
			os.Exit(charon_err.ExitCode(err))
		}
		logger.L().Error("Command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(charon_err.ExitCode(err))
	}
}
