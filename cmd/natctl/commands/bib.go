package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errProtoArgRequired = errors.New("proto argument is required, expected udp, tcp, or icmp")

func bibCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bib",
		Short: "Inspect the Binding Information Base",
	}

	cmd.AddCommand(bibListCmd())

	return cmd
}

func bibListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <udp|tcp|icmp>",
		Short: "List all BIB entries for a protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errProtoArgRequired
			}

			entries, err := apiClient.ListBIB(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("list bib: %w", err)
			}

			out, err := formatBIBEntries(entries, outputFormat)
			if err != nil {
				return fmt.Errorf("format bib entries: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}
