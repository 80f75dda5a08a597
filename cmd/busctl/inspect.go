package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bjaus/commandbus/assembly"
)

func newRouteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "route <command-type>...",
		Short: "Show the transport each command type is sent through",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := a.assembler()
			if err != nil {
				return err
			}
			defer asm.Close()

			w := cmd.OutOrStdout()
			for _, commandType := range args {
				key := asm.Routes().Lookup(commandType)
				if key == "" {
					key = assembly.DefaultDSN
				}
				fmt.Fprintf(w, "%s\t%s\n", commandType, key)
			}
			return nil
		},
	}
}

func newPolicyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "policy <command-type>...",
		Short: "Show the retry policy each command type uses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := a.assembler()
			if err != nil {
				return err
			}
			defer asm.Close()

			// Fails on references the built-ins do not provide.
			if _, err := asm.Retries(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, commandType := range args {
				fmt.Fprintf(w, "%s\t%s\n", commandType, a.cfg.Retries.RefFor(commandType))
			}
			return nil
		},
	}
}
