package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the awayreply application
var rootCmd = &cobra.Command{
	Use:   "awayreply",
	Short: "Answers Gmail messages with a vacation notice",
	Long: `awayreply is a Gmail vacation auto-responder.

After a one-time OAuth authorization it polls the inbox at random intervals,
replies once to every thread that has not been answered yet and labels each
handled thread.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "awayreply version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
