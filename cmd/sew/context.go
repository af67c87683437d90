package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"sew/internal/config"
	"sew/pkg/logx"
)

type commonFlags struct {
	config   string
	logLevel string

	script    string
	moments   string
	simAnchor string
	simAt     string
	simIn     string
}

type commandContext struct {
	flags *commonFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *commonFlags) *commandContext {
	return &commandContext{flags: flags}
}

// override applies the command line flags on top of a loaded config.
func (c *commandContext) override(cfg *config.Config) {
	f := c.flags
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(f.script); v != "" {
		cfg.Script = v
	}
	if v := strings.TrimSpace(f.moments); v != "" {
		cfg.Moments.Path = v
	}
	if anchor := strings.TrimSpace(f.simAnchor); anchor != "" {
		cfg.Simulation = &config.SimulationConfig{
			Anchor: anchor,
			Target: strings.TrimSpace(f.simAt),
			In:     strings.TrimSpace(f.simIn),
		}
	}
}

func (c *commandContext) checkFlags() error {
	f := c.flags
	hasSim := strings.TrimSpace(f.simAt) != "" || strings.TrimSpace(f.simIn) != ""
	if hasSim && strings.TrimSpace(f.simAnchor) == "" {
		return errors.New("--sim-at and --sim-in need --sim-anchor")
	}
	return nil
}

// ensureConfig loads the config file, if any, and applies the flags.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if err := c.checkFlags(); err != nil {
			c.configErr = err
			return
		}
		cfg := config.Default()
		if path := strings.TrimSpace(c.flags.config); path != "" {
			loaded, err := config.NewConfigManager(path).Load()
			if err != nil {
				c.configErr = err
				return
			}
			cfg = loaded
		}
		c.override(cfg)
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("invalid config: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger is a console logger for the one-shot commands.
func (c *commandContext) logger(cfg *config.Config) logx.Logger {
	level := "warn"
	if v := strings.TrimSpace(c.flags.logLevel); v != "" {
		level = v
	} else if cfg != nil && strings.EqualFold(cfg.Logging.Level, "debug") {
		level = "debug"
	}
	return logx.NewConsole(level)
}
