package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bjaus/commandbus/assembly"
	"github.com/bjaus/commandbus/serializer"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Long:  "Builds every transport, the serializer, the retry policies and the dispatcher without connecting to any broker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := a.assembler()
			if err != nil {
				return err
			}
			defer asm.Close()

			if _, err := asm.Transport(); err != nil {
				return err
			}
			if _, err := asm.Serializer(); err != nil {
				return err
			}
			if _, err := asm.Dispatcher(); err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), asm)
			return nil
		},
	}
}

func printSummary(w io.Writer, asm *assembly.Assembler) {
	cfg := asm.Config()
	table := asm.Routes()

	fmt.Fprintln(w, "configuration ok")
	fmt.Fprintf(w, "remote: %t\n", cfg.Remote.Enabled)

	keys := table.Keys()
	if len(keys) == 0 {
		fmt.Fprintf(w, "transports: %s (fallback)\n", assembly.DefaultDSN)
	} else {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k
			if k == table.Default() {
				names[i] += " (default)"
			}
		}
		fmt.Fprintf(w, "transports: %s\n", strings.Join(names, ", "))
	}
	for _, r := range table.Routes() {
		fmt.Fprintf(w, "  %s -> %s\n", r.Pattern, r.Transport)
	}

	typ := cfg.Remote.Serializer.Type
	if typ == "" {
		typ = serializer.Default
	}
	fmt.Fprintf(w, "serializer: %s\n", typ)
	def := cfg.Retries.Default
	if def == "" {
		def = assembly.BuiltinThrow
	}
	fmt.Fprintf(w, "retries: default %s, %d overrides\n", def, len(cfg.Retries.Policies))
	fmt.Fprintf(w, "handlers: %d\n", len(cfg.Handlers))
	fmt.Fprintf(w, "extensions: %d, middlewares: %d\n", len(cfg.Extensions), len(cfg.Middlewares))
}
