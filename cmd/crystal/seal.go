package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSealCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seal <file>",
		Short: "Encrypt a file into a sealed blob",
		Long: `Encrypts a file with the transit key (CRYSTAL_TRANSIT_KEY) and prints the
sealed blob. The blob can be sent as the "sealed" field of POST /api/runs or
passed to 'crystal run --sealed'. Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			sealer, err := requireSealer(cfg)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			blob, err := sealer.Seal(data)
			if err != nil {
				return fmt.Errorf("failed to seal input: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), blob)
			return err
		},
	}
}

func newOpenCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "open <file>",
		Short: "Decrypt a sealed blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			sealer, err := requireSealer(cfg)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			plain, err := sealer.Open(strings.TrimSpace(string(data)))
			if err != nil {
				return fmt.Errorf("failed to open blob: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(plain)
			return err
		},
	}
}
