package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/narratica/narratica/internal/storyparse"
)

func newParseCommand() *cobra.Command {
	var output string
	var strict bool

	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Parse story markdown into a structured document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			doc := storyparse.Parse(string(raw))
			if strict {
				if err := storyparse.Validate(doc); err != nil {
					return err
				}
			}
			return writeStructured(cmd.OutOrStdout(), output, doc)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format: json or yaml")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the document has no title or no pages")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}
