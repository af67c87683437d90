package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	flags := &commonFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "sew",
		Short:         "Solar eclipse workbench: script translator and scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path (json, yaml or toml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override logging.level")
	pf.StringVar(&flags.script, "script", "", "Override the script path")
	pf.StringVar(&flags.moments, "moments", "", "Override the moments file path")
	pf.StringVar(&flags.simAnchor, "sim-anchor", "", "Simulate: reference moment to move")
	pf.StringVar(&flags.simAt, "sim-at", "", "Simulate: RFC 3339 time the anchor happens at")
	pf.StringVar(&flags.simIn, "sim-in", "", "Simulate: delay after start-up the anchor happens at (e.g. 2m)")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newPlanCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("sew %s\n", version)
			return nil
		},
	}
}
