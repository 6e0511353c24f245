package main

import (
	"fmt"

	"github.com/jonathan/context-crystal/internal/config"
	"github.com/spf13/cobra"
)

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash of an API key",
		Long: `Hashes an API key with BCRYPT_COST and API_KEY_PEPPER. Set the output as
CRYSTAL_API_KEY_HASH to enable POST /api/token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := config.NewAPIKeyConfig()
			if err != nil {
				return err
			}
			hash, err := keys.HashKey(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
