package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bjaus/commandbus/assembly"
	"github.com/bjaus/commandbus/internal/logger"
)

// app carries state shared by subcommands once the root has loaded the
// configuration.
type app struct {
	configPath string
	cfg        *assembly.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "busctl",
		Short:        "Inspect command bus configuration",
		Long:         "Loads a command bus configuration, validates it and explains which transport and retry policy each command type gets.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the configuration file (default $"+assembly.EnvConfig+" or ./commandbus.yaml)")

	root.AddCommand(
		newCheckCmd(a),
		newRouteCmd(a),
		newPolicyCmd(a),
	)
	return root
}

func (a *app) load() error {
	var (
		cfg *assembly.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = assembly.Load(a.configPath)
	} else {
		cfg, err = assembly.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	a.cfg, a.logger = cfg, log
	return nil
}

// assembler creates an Assembler over the built-in references.
func (a *app) assembler() (*assembly.Assembler, error) {
	return assembly.New(a.cfg, builtins(a.logger), assembly.WithLogger(a.logger))
}
