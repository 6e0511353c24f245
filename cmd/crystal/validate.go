package main

import (
	"fmt"

	"github.com/jonathan/context-crystal/internal/schemas"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a JSON document against a schema",
		Long: `Validates a conversation, optimized prompt or pipeline status document.
--schema takes conversation, optimized_prompt, pipeline_status or the path of a
JSON Schema file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if name, ok := embeddedSchema(schema); ok {
				var data []byte
				if data, err = readInput(cmd, args[0]); err != nil {
					return err
				}
				err = schemas.Validate(name, data)
			} else {
				err = schemas.ValidateJSON(schema, args[0])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "conversation", "Embedded schema name or path to a JSON Schema file")
	return cmd
}

// embeddedSchema maps a short schema name onto an embedded schema file
func embeddedSchema(name string) (string, bool) {
	switch name {
	case "conversation":
		return schemas.Conversation, true
	case "optimized_prompt", "prompt":
		return schemas.OptimizedPrompt, true
	case "pipeline_status", "status":
		return schemas.PipelineStatus, true
	}
	return "", false
}
