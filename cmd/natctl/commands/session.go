package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect active sessions",
	}

	cmd.AddCommand(sessionListCmd())

	return cmd
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <udp|tcp|icmp>",
		Short: "List all active sessions for a protocol",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if args[0] == "" {
				return errProtoArgRequired
			}

			sessions, err := apiClient.ListSessions(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}
}
