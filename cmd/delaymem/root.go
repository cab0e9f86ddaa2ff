package main

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// version is set at link time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "delaymem",
	Short: "Simulate delay lines backed by burst memory.",
	Long: `delaymem builds a system of delay lines, caches, and arbiters ` +
		`from a YAML description and drives it with a random workload. ` +
		`Every tap output is checked against a reference model.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command and exits through atexit so that registered
// flushers run.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
