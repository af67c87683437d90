package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sew/internal/moments"
	"sew/internal/script"
	"sew/pkg/logx"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "translate [script]",
		Short: "Translate a script into plain commands, expanding every loop",
		Long: "Translate reads a script, expands intervalometer and ranged loops and prints\n" +
			"one canonical command per line. Ranged loops need --moments.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Script)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no script given (argument, --script or config)")
			}
			log := ctx.logger(cfg)

			opts := []script.TranslatorOption{script.WithLogger(log.With(logx.String("comp", "translator")))}
			if mp := strings.TrimSpace(cfg.Moments.Path); mp != "" {
				set, err := moments.Load(mp, nil)
				if err != nil {
					return fmt.Errorf("moments %s: %w", mp, err)
				}
				opts = append(opts, script.WithMoments(set))
			}
			cmds, err := script.NewTranslator(opts...).TranslateFile(path)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				bw := bufio.NewWriter(f)
				if err := script.WriteScript(bw, cmds); err != nil {
					return err
				}
				return bw.Flush()
			}
			return script.WriteScript(w, cmds)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
