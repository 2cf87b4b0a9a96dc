package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nat64io/natd/cmd/natctl/client"
)

// Sentinel errors for CLI validation.
var (
	errV4V6Required  = errors.New("--v4 and --v6 flags are both required")
	errL3Required    = errors.New("--l3 flag is required, expected ipv4 or ipv6")
	errProtoRequired = errors.New("--proto flag is required, expected udp, tcp, or icmp")
)

func staticRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "static-route",
		Short: "Manage static BIB route entries",
	}

	cmd.AddCommand(staticRouteAddCmd())
	cmd.AddCommand(staticRouteDeleteCmd())

	return cmd
}

// --- static-route add ---

func staticRouteAddCmd() *cobra.Command {
	var (
		proto  string
		v4Flag string
		v6Flag string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a static BIB entry pinning a v4 endpoint to a v6 endpoint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if proto == "" {
				return errProtoRequired
			}
			if v4Flag == "" || v6Flag == "" {
				return errV4V6Required
			}

			v4, err := parseEndpoint(v4Flag)
			if err != nil {
				return fmt.Errorf("parse --v4: %w", err)
			}
			v6, err := parseEndpoint(v6Flag)
			if err != nil {
				return fmt.Errorf("parse --v6: %w", err)
			}

			entry, err := apiClient.AddStaticRoute(context.Background(), proto, v4, v6)
			if err != nil {
				return fmt.Errorf("add static route: %w", err)
			}

			out, err := formatBIBEntry(entry, outputFormat)
			if err != nil {
				return fmt.Errorf("format bib entry: %w", err)
			}
			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().StringVar(&proto, "proto", "", "L4 protocol: udp, tcp, icmp")
	cmd.Flags().StringVar(&v4Flag, "v4", "", "IPv4 endpoint as addr:id, e.g. 203.0.113.1:5000")
	cmd.Flags().StringVar(&v6Flag, "v6", "", "IPv6 endpoint as addr:id, e.g. 64:ff9b::192.0.2.1:443")

	return cmd
}

// --- static-route delete ---

func staticRouteDeleteCmd() *cobra.Command {
	var (
		proto  string
		l3     string
		v4Flag string
		v6Flag string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove a static BIB entry by its v4 or v6 endpoint",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if proto == "" {
				return errProtoRequired
			}
			if l3 == "" {
				return errL3Required
			}

			var v4, v6 client.Endpoint
			switch l3 {
			case "ipv4":
				parsed, err := parseEndpoint(v4Flag)
				if err != nil {
					return fmt.Errorf("parse --v4: %w", err)
				}
				v4 = parsed
			case "ipv6":
				parsed, err := parseEndpoint(v6Flag)
				if err != nil {
					return fmt.Errorf("parse --v6: %w", err)
				}
				v6 = parsed
			default:
				return fmt.Errorf("%w: %q", errL3Required, l3)
			}

			if err := apiClient.DeleteStaticRoute(context.Background(), proto, l3, v4, v6); err != nil {
				return fmt.Errorf("delete static route: %w", err)
			}

			fmt.Println("static route deleted")
			return nil
		},
	}

	cmd.Flags().StringVar(&proto, "proto", "", "L4 protocol: udp, tcp, icmp")
	cmd.Flags().StringVar(&l3, "l3", "", "L3 protocol to key the delete on: ipv4 or ipv6")
	cmd.Flags().StringVar(&v4Flag, "v4", "", "IPv4 endpoint as addr:id (when --l3=ipv4)")
	cmd.Flags().StringVar(&v6Flag, "v6", "", "IPv6 endpoint as addr:id (when --l3=ipv6)")

	return cmd
}
