package main

import (
	"fmt"

	"github.com/nimasrn/school-payment/internal/config"
	gateway "github.com/nimasrn/school-payment/internal/gateways"
	"github.com/spf13/cobra"
)

// newSignCmd prints the signature_key the gateway would send, handy for
// replaying notifications by hand.
func newSignCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "sign <order_id> <status_code> <gross_amount>",
		Short: "Compute a gateway notification signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = config.Get().GatewayServerKey
			}
			if key == "" {
				return fmt.Errorf("no server key: pass --key or set GATEWAY_SERVER_KEY")
			}
			fmt.Fprintln(cmd.OutOrStdout(), gateway.Sign(args[0], args[1], args[2], key))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "gateway server key (defaults to GATEWAY_SERVER_KEY)")
	return cmd
}
