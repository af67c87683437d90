package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sew/internal/app"
)

const stopTimeout = 20 * time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the script: fire every command at its time",
		Long: "Run loads the plan and fires each command at its absolute time. Without\n" +
			"--watch it exits once every job has finished.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.checkFlags(); err != nil {
				return err
			}
			a, err := app.NewApp(app.Options{
				ConfigPath: ctx.flags.config,
				Watch:      watch,
				Override:   ctx.override,
			})
			if err != nil {
				return err
			}

			sigCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := a.Start(sigCtx); err != nil {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
				defer stopCancel()
				_ = a.Stop(stopCtx, app.StopFatalError)
				return err
			}
			reason := a.Run(sigCtx)

			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
			defer stopCancel()
			_ = a.Stop(stopCtx, reason)
			if reason == app.StopFatalError {
				return a.Err()
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep running and reload the config, script and moments on change")
	return cmd
}
