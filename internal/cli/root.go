package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/OddsClaw/OddsClaw/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"   ___      _     _      ____ _\n" +
		"  / _ \\  __| | __| |___ / ___| | __ ___      __\n" +
		" | | | |/ _` |/ _` / __| |   | |/ _` \\ \\ /\\ / /\n" +
		" | |_| | (_| | (_| \\__ \\ |___| | (_| |\\ V  V /\n" +
		"  \\___/ \\__,_|\\__,_|___/\\____|_|\\__,_| \\_/\\_/\n"
)

var rootCmd = &cobra.Command{
	Use:   "oddsclaw",
	Short: "OddsClaw - Autonomous prediction-market betting agent",
	Long:  color.CyanString(logo) + "\nAn autonomous agent that evaluates prediction markets and places sized bets.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(fundsCmd)
}
