package main

import (
	"github.com/sarchlab/delaymem/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config.yaml]",
	Short: "Check a system description without simulating it.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()

		if len(args) == 1 {
			var err error

			cfg, err = config.Load(args[0])
			if err != nil {
				return err
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		for _, d := range cfg.DelayLines {
			cmd.Printf("%s: %d samples, %d taps, %s\n",
				d.Name, d.Length, len(d.Taps), d.Storage)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
